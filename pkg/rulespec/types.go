package rulespec

// CorrelationScope 关联规则搜索范围
type CorrelationScope string

const (
	ScopeAll     CorrelationScope = "all"
	ScopeHeaders CorrelationScope = "headers"
	ScopeBody    CorrelationScope = "body"
)

// ExtractorKind 关联规则提取方式
type ExtractorKind int

const (
	ExtractorUnknown ExtractorKind = iota
	ExtractorBoundary
	ExtractorRegex
	ExtractorJSON
)

func (k ExtractorKind) String() string {
	switch k {
	case ExtractorBoundary:
		return "boundary"
	case ExtractorRegex:
		return "regex"
	case ExtractorJSON:
		return "json"
	default:
		return "unknown"
	}
}

// BoundarySide 单侧边界
type BoundarySide struct {
	Text       string
	IgnoreCase bool
}

// Boundary 左右边界，至少一侧存在
type Boundary struct {
	Left  *BoundarySide
	Right *BoundarySide
}

// LeftText 返回左边界文本，不存在时为空串
func (b *Boundary) LeftText() string {
	if b == nil || b.Left == nil {
		return ""
	}
	return b.Left.Text
}

// RightText 返回右边界文本，不存在时为空串
func (b *Boundary) RightText() string {
	if b == nil || b.Right == nil {
		return ""
	}
	return b.Right.Text
}

// Regex 正则提取
type Regex struct {
	Pattern string
	Group   int
}

// JSONPath JSON 路径提取
type JSONPath struct {
	Path string
}

// Extractor 提取方式（标签联合，Kind 决定哪个字段有效）
type Extractor struct {
	Kind     ExtractorKind
	Boundary *Boundary
	Regex    *Regex
	JSON     *JSONPath
}

// Selection 匹配结果选择策略
type Selection int

const (
	SelectFirst Selection = iota
	SelectOrdinal
	SelectAll
	SelectLast
)

func (s Selection) String() string {
	switch s {
	case SelectOrdinal:
		return "ordinal"
	case SelectAll:
		return "all"
	case SelectLast:
		return "last"
	default:
		return "first"
	}
}

// CorrelationRule 关联规则
type CorrelationRule struct {
	Name           string
	Extractor      Extractor
	Scope          CorrelationScope
	Selection      Selection
	Ordinal        int
	URL            string
	ReplaceFilters []*ReplaceFilter
	Profiles       []string
}

// All 是否捕获全部匹配
func (r *CorrelationRule) All() bool { return r.Selection == SelectAll }

// Last 是否捕获最后一个匹配
func (r *CorrelationRule) Last() bool { return r.Selection == SelectLast }

// Count 扫描窗口大小，0 表示不限制
func (r *CorrelationRule) Count() int {
	switch r.Selection {
	case SelectAll, SelectLast:
		return 0
	case SelectOrdinal:
		return r.Ordinal
	default:
		return 1
	}
}

// Range 数值区间，To 为 0 时等于 From
type Range struct {
	From    int
	To      int
	Exclude bool
}

// Contains 判断数值是否落在区间内
func (r Range) Contains(v int) bool {
	to := r.To
	if to == 0 {
		to = r.From
	}
	return v >= r.From && v <= to
}

// ReplaceScope 替换范围
type ReplaceScope string

const (
	ReplaceAll     ReplaceScope = "all"
	ReplaceURL     ReplaceScope = "url"
	ReplaceHeaders ReplaceScope = "headers"
	ReplaceBody    ReplaceScope = "body"
)

// FilterTarget 请求/响应过滤目标
type FilterTarget string

const (
	TargetAll      FilterTarget = "all"
	TargetRequest  FilterTarget = "request"
	TargetResponse FilterTarget = "response"
)

// MethodFilter 方法过滤
type MethodFilter struct {
	Method  string
	Exclude bool
}

// TextFilter 文本过滤（子串或正则），用于 url/headers/body/action
type TextFilter struct {
	Pattern string
	Regex   bool
	Exclude bool
}

// RequestResponseFilter 复合请求/响应过滤器。
// 以指针身份作为出现次数计数器的键，规则加载后不可复制。
type RequestResponseFilter struct {
	Target      FilterTarget
	Methods     []MethodFilter
	URL         *TextFilter
	Headers     *TextFilter
	Body        *TextFilter
	Action      *TextFilter
	Status      []Range
	Occurrences []Range
}

// ReplaceFilter 替换过滤器
type ReplaceFilter struct {
	IgnoreCase      *bool
	Boundary        *Boundary
	Scope           ReplaceScope
	Occurrences     []Range
	RequestResponse *RequestResponseFilter
}

// TimeUnit 日期偏移单位
type TimeUnit string

const (
	UnitSeconds TimeUnit = "seconds"
	UnitMinutes TimeUnit = "minutes"
	UnitHours   TimeUnit = "hours"
	UnitDays    TimeUnit = "days"
	UnitWeeks   TimeUnit = "weeks"
	UnitMonths  TimeUnit = "months"
	UnitYears   TimeUnit = "years"
)

// DateTemplate 日期替换模板
type DateTemplate struct {
	Format          string
	OffsetAmount    int
	OffsetUnit      TimeUnit
	WorkingDaysOnly bool
}

// ReplaceKind 替换定义类型
type ReplaceKind int

const (
	ReplaceText ReplaceKind = iota
	ReplaceDate
)

// Replace 参数替换定义：字面文本或日期模板
type Replace struct {
	Kind       ReplaceKind
	Text       string
	Date       *DateTemplate
	IgnoreCase *bool
	Filters    []*ReplaceFilter
}

// UpdateValueOn 参数取值更新时机
type UpdateValueOn string

const (
	UpdateOnIteration  UpdateValueOn = "iteration"
	UpdateOnOccurrence UpdateValueOn = "occurrence"
	UpdateOnce         UpdateValueOn = "once"
)

// SelectNextRow 数据文件取行策略
type SelectNextRow string

const (
	RowSequential SelectNextRow = "sequential"
	RowRandom     SelectNextRow = "random"
	RowUnique     SelectNextRow = "unique"
)

// WhenOutOfValues 数据耗尽策略
type WhenOutOfValues string

const (
	OutOfValuesNone       WhenOutOfValues = "none"
	OutOfValuesAbortUser  WhenOutOfValues = "abortUser"
	OutOfValuesCycle      WhenOutOfValues = "cycle"
	OutOfValuesRepeatLast WhenOutOfValues = "repeatLast"
)

// SourceKind 参数数据来源
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceFile
	SourceDate
)

// FileSource 文件数据源
type FileSource struct {
	Name            string
	Column          string
	Delimiter       string
	SameLineAs      string
	FirstDataLine   int
	SelectNextRow   SelectNextRow
	WhenOutOfValues WhenOutOfValues
}

// DateSource 日期数据源
type DateSource struct {
	Format      string
	Offset      int
	WorkingDays bool
}

// ParamSource 参数来源（标签联合）
type ParamSource struct {
	Kind SourceKind
	File *FileSource
	Date *DateSource
}

// ParameterRule 参数化规则
type ParameterRule struct {
	Name          string
	Replace       []*Replace
	Source        ParamSource
	UpdateValueOn UpdateValueOn
	Profiles      []string
}

// ExcludeURL URL 排除规则
type ExcludeURL struct {
	URL      string
	Profiles []string
}

// ExcludeHeader 头部排除规则
type ExcludeHeader struct {
	Header   string
	URL      string
	Profiles []string
}

// File 随脚本输出的数据文件
type File struct {
	Name       string
	SourcePath string
	TargetPath string
	Profiles   []string
}

// Script 蓝图脚本段
type Script struct {
	Correlations   []*CorrelationRule
	Parameters     []*ParameterRule
	ExcludeURLs    []*ExcludeURL
	ExcludeHeaders []*ExcludeHeader
	Files          []*File
}

// Blueprint 规范化后的蓝图
type Blueprint struct {
	Name     string
	Script   Script
	Profiles map[string]Script
}

// RuleSet 按 profile 解析后的规则集，供生成流水线使用
type RuleSet struct {
	Name           string
	Correlations   []*CorrelationRule
	Parameters     []*ParameterRule
	ExcludeURLs    []*ExcludeURL
	ExcludeHeaders []*ExcludeHeader
	Files          []*File
}

// FileByName 按名称查找数据文件
func (rs *RuleSet) FileByName(name string) *File {
	for _, f := range rs.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}
