package model

import (
	"time"

	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"

	"github.com/google/uuid"
)

// RunID 生成运行ID
type RunID string

// NewRunID 创建新的运行ID
func NewRunID() RunID { return RunID(uuid.New().String()) }

// MatchedCorrelation 一次扫描产生的关联匹配结果。
// all 规则的每个值各有独立参数名，记录在 ParamNames 中，与 Values 一一对应。
type MatchedCorrelation struct {
	Rule       *rulespec.CorrelationRule
	ParamName  string
	ParamNames []string
	Values     []string
}

// Names 返回本次匹配产生的全部参数名
func (m *MatchedCorrelation) Names() []string {
	if len(m.ParamNames) > 0 {
		return m.ParamNames
	}
	return []string{m.ParamName}
}

// ScriptRequest 写入脚本的请求：替换后的请求、录制原样的请求与响应
type ScriptRequest struct {
	EntryIndex   int
	StartedAt    time.Time
	Request      *traffic.Request
	Original     *traffic.Request
	Response     *traffic.Response
	Correlations []*MatchedCorrelation
}

// URL 返回录制时的请求地址
func (r *ScriptRequest) URL() string {
	if r.Original != nil {
		return r.Original.URL
	}
	return r.Request.URL
}

// RequestGroup 主请求及其并发加载的子请求
type RequestGroup struct {
	Primary          *ScriptRequest
	Children         []*ScriptRequest
	ReferrerGroupURL string
}

// LastChild 返回最后一个子请求
func (g *RequestGroup) LastChild() *ScriptRequest {
	if len(g.Children) == 0 {
		return nil
	}
	return g.Children[len(g.Children)-1]
}

// RemoveLastChild 移除并返回最后一个子请求
func (g *RequestGroup) RemoveLastChild() *ScriptRequest {
	last := g.LastChild()
	if last != nil {
		g.Children = g.Children[:len(g.Children)-1]
	}
	return last
}

// Requests 按顺序返回主请求与子请求
func (g *RequestGroup) Requests() []*ScriptRequest {
	out := make([]*ScriptRequest, 0, len(g.Children)+1)
	out = append(out, g.Primary)
	return append(out, g.Children...)
}

// ElementKind 脚本元素类型
type ElementKind int

const (
	ElementGroup ElementKind = iota
	ElementStartTransaction
	ElementEndTransaction
	ElementThinkTime
)

// Element 脚本中的一个有序元素（标签联合，Kind 决定有效字段）
type Element struct {
	Kind        ElementKind
	Group       *RequestGroup
	Transaction string
	ThinkTime   time.Duration
}

// ParameterTable 需要外置为数据表的参数
type ParameterTable struct {
	Rule         *rulespec.ParameterRule
	File         *rulespec.File
	TotalRecords int
}

// Script 生成结果：有序元素与最终绑定的参数
type Script struct {
	Name       string
	Elements   []Element
	Bindings   map[string]string
	Parameters []*rulespec.ParameterRule
	Files      []*rulespec.File
}

// NewScript 创建空脚本
func NewScript(name string) *Script {
	return &Script{Name: name, Bindings: map[string]string{}}
}

// AddGroup 追加请求组
func (s *Script) AddGroup(g *RequestGroup) {
	s.Elements = append(s.Elements, Element{Kind: ElementGroup, Group: g})
}

// LastGroup 返回最近追加的请求组
func (s *Script) LastGroup() *RequestGroup {
	for i := len(s.Elements) - 1; i >= 0; i-- {
		if s.Elements[i].Kind == ElementGroup {
			return s.Elements[i].Group
		}
	}
	return nil
}

// StartTransaction 追加事务开始标记
func (s *Script) StartTransaction(name string) {
	s.Elements = append(s.Elements, Element{Kind: ElementStartTransaction, Transaction: name})
}

// EndTransaction 追加事务结束标记
func (s *Script) EndTransaction(name string) {
	s.Elements = append(s.Elements, Element{Kind: ElementEndTransaction, Transaction: name})
}

// AddThinkTime 追加思考时间
func (s *Script) AddThinkTime(d time.Duration) {
	s.Elements = append(s.Elements, Element{Kind: ElementThinkTime, ThinkTime: d})
}

// Groups 按顺序返回全部请求组
func (s *Script) Groups() []*RequestGroup {
	var out []*RequestGroup
	for _, e := range s.Elements {
		if e.Kind == ElementGroup {
			out = append(out, e.Group)
		}
	}
	return out
}

// RunStats 单次生成的统计信息
type RunStats struct {
	Entries      int `json:"entries"`
	Excluded     int `json:"excluded"`
	Groups       int `json:"groups"`
	Requests     int `json:"requests"`
	Correlations int `json:"correlations"`
	Promotions   int `json:"promotions"`
	Transactions int `json:"transactions"`
}
