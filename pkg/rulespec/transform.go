package rulespec

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// transformer 将 YAML 解码后的原始结构转换为规范化模型，
// 简写形式（字符串边界、字符串方法、"a-b" 区间等）在此展开。
type transformer struct {
	errs Errors
}

func (t *transformer) fail(path, format string, args ...any) {
	t.errs = append(t.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func (t *transformer) object(path string, v any) map[string]any {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.fail(path, "expected an object, got %T", v)
		return nil
	}
	return m
}

// keys 校验对象只包含允许的键
func (t *transformer) keys(path string, m map[string]any, allowed ...string) {
	var unknown []string
	for k := range m {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		t.fail(join(path, k), "unknown field")
	}
}

// items 列表字段，单个值视为一个元素的列表
func (t *transformer) items(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

func (t *transformer) str(path string, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int, int64, float64, bool:
		return fmt.Sprint(x)
	default:
		t.fail(path, "expected a string, got %T", v)
		return ""
	}
}

func (t *transformer) integer(path string, v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if x != math.Trunc(x) {
			t.fail(path, "expected an integer, got %v", x)
			return 0
		}
		return int(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			t.fail(path, "expected an integer, got %q", x)
			return 0
		}
		return n
	default:
		t.fail(path, "expected an integer, got %T", v)
		return 0
	}
}

func (t *transformer) boolean(path string, v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	default:
		t.fail(path, "expected a boolean, got %T", v)
		return false
	}
}

func (t *transformer) optBool(path string, v any) *bool {
	if v == nil {
		return nil
	}
	b := t.boolean(path, v)
	return &b
}

func (t *transformer) strs(path string, v any) []string {
	var out []string
	for i, it := range t.items(v) {
		out = append(out, t.str(index(path, i), it))
	}
	return out
}

func (t *transformer) blueprint(raw map[string]any) *Blueprint {
	t.keys("", raw, "name", "script", "profiles", "version", "simulation", "args")
	bp := &Blueprint{
		Name:     t.str("name", raw["name"]),
		Script:   t.script("script", raw["script"]),
		Profiles: map[string]Script{},
	}
	profiles := t.object("profiles", raw["profiles"])
	for name, p := range profiles {
		path := join("profiles", name)
		pm := t.object(path, p)
		t.keys(path, pm, "script", "simulation", "args")
		bp.Profiles[name] = t.script(join(path, "script"), pm["script"])
	}
	return bp
}

func (t *transformer) script(path string, v any) Script {
	var s Script
	m := t.object(path, v)
	if m == nil {
		return s
	}
	t.keys(path, m, "correlations", "parameters", "excludeUrls", "excludeHeaders", "files", "assertions", "logic")
	for i, it := range t.items(m["correlations"]) {
		s.Correlations = append(s.Correlations, t.correlation(index(join(path, "correlations"), i), it))
	}
	for i, it := range t.items(m["parameters"]) {
		s.Parameters = append(s.Parameters, t.parameter(index(join(path, "parameters"), i), it))
	}
	for i, it := range t.items(m["excludeUrls"]) {
		s.ExcludeURLs = append(s.ExcludeURLs, t.excludeURL(index(join(path, "excludeUrls"), i), it))
	}
	for i, it := range t.items(m["excludeHeaders"]) {
		s.ExcludeHeaders = append(s.ExcludeHeaders, t.excludeHeader(index(join(path, "excludeHeaders"), i), it))
	}
	for i, it := range t.items(m["files"]) {
		s.Files = append(s.Files, t.file(index(join(path, "files"), i), it))
	}
	return s
}

func (t *transformer) correlation(path string, v any) *CorrelationRule {
	r := &CorrelationRule{Scope: ScopeAll}
	m := t.object(path, v)
	if m == nil {
		return r
	}
	t.keys(path, m, "name", "boundary", "regex", "json", "all", "last", "ordinal", "scope",
		"url", "replaceFilters", "profiles")
	r.Name = t.str(join(path, "name"), m["name"])
	r.URL = t.str(join(path, "url"), m["url"])
	r.Profiles = t.strs(join(path, "profiles"), m["profiles"])
	if s := t.str(join(path, "scope"), m["scope"]); s != "" {
		r.Scope = CorrelationScope(s)
	}

	if b, ok := m["boundary"]; ok {
		r.Extractor.Boundary = t.boundary(join(path, "boundary"), b)
	}
	if re, ok := m["regex"]; ok {
		r.Extractor.Regex = t.regex(join(path, "regex"), re)
	}
	if j, ok := m["json"]; ok {
		r.Extractor.JSON = t.jsonPath(join(path, "json"), j)
	}
	r.Extractor.Kind = extractorKind(r.Extractor)

	var selections []Selection
	if t.boolean(join(path, "all"), m["all"]) {
		selections = append(selections, SelectAll)
	}
	if t.boolean(join(path, "last"), m["last"]) {
		selections = append(selections, SelectLast)
	}
	if o, ok := m["ordinal"]; ok && o != nil {
		r.Ordinal = t.integer(join(path, "ordinal"), o)
		selections = append(selections, SelectOrdinal)
	}
	switch len(selections) {
	case 0:
		r.Selection = SelectFirst
	case 1:
		r.Selection = selections[0]
	default:
		t.fail(path, "ordinal, all and last are mutually exclusive")
	}

	for i, it := range t.items(m["replaceFilters"]) {
		r.ReplaceFilters = append(r.ReplaceFilters, t.replaceFilter(index(join(path, "replaceFilters"), i), it))
	}
	return r
}

// extractorKind 仅当恰好存在一种提取方式时返回对应类型
func extractorKind(e Extractor) ExtractorKind {
	kind := ExtractorUnknown
	n := 0
	if e.Boundary != nil {
		kind = ExtractorBoundary
		n++
	}
	if e.Regex != nil {
		kind = ExtractorRegex
		n++
	}
	if e.JSON != nil {
		kind = ExtractorJSON
		n++
	}
	if n != 1 {
		return ExtractorUnknown
	}
	return kind
}

func (t *transformer) boundary(path string, v any) *Boundary {
	b := &Boundary{}
	m := t.object(path, v)
	if m == nil {
		return b
	}
	t.keys(path, m, "left", "right")
	b.Left = t.boundarySide(join(path, "left"), m["left"])
	b.Right = t.boundarySide(join(path, "right"), m["right"])
	return b
}

func (t *transformer) boundarySide(path string, v any) *BoundarySide {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return &BoundarySide{Text: x}
	default:
		m := t.object(path, v)
		if m == nil {
			return nil
		}
		t.keys(path, m, "boundary", "ignoreCase")
		return &BoundarySide{
			Text:       t.str(join(path, "boundary"), m["boundary"]),
			IgnoreCase: t.boolean(join(path, "ignoreCase"), m["ignoreCase"]),
		}
	}
}

func (t *transformer) regex(path string, v any) *Regex {
	if s, ok := v.(string); ok {
		return &Regex{Pattern: s}
	}
	r := &Regex{}
	m := t.object(path, v)
	if m == nil {
		return r
	}
	t.keys(path, m, "pattern", "group")
	r.Pattern = t.str(join(path, "pattern"), m["pattern"])
	r.Group = t.integer(join(path, "group"), m["group"])
	return r
}

func (t *transformer) jsonPath(path string, v any) *JSONPath {
	if s, ok := v.(string); ok {
		return &JSONPath{Path: s}
	}
	j := &JSONPath{}
	m := t.object(path, v)
	if m == nil {
		return j
	}
	t.keys(path, m, "path")
	j.Path = t.str(join(path, "path"), m["path"])
	return j
}

func (t *transformer) replaceFilter(path string, v any) *ReplaceFilter {
	f := &ReplaceFilter{Scope: ReplaceAll}
	m := t.object(path, v)
	if m == nil {
		return f
	}
	t.keys(path, m, "ignoreCase", "boundary", "scope", "occurrences", "requestResponse")
	f.IgnoreCase = t.optBool(join(path, "ignoreCase"), m["ignoreCase"])
	if b, ok := m["boundary"]; ok {
		f.Boundary = t.boundary(join(path, "boundary"), b)
	}
	if s := t.str(join(path, "scope"), m["scope"]); s != "" {
		f.Scope = ReplaceScope(s)
	}
	f.Occurrences = t.ranges(join(path, "occurrences"), m["occurrences"])
	if rr, ok := m["requestResponse"]; ok {
		f.RequestResponse = t.requestResponse(join(path, "requestResponse"), rr)
	}
	return f
}

func (t *transformer) requestResponse(path string, v any) *RequestResponseFilter {
	f := &RequestResponseFilter{Target: TargetAll}
	m := t.object(path, v)
	if m == nil {
		return f
	}
	t.keys(path, m, "target", "method", "url", "headers", "body", "action", "status", "occurrences")
	if s := t.str(join(path, "target"), m["target"]); s != "" {
		f.Target = FilterTarget(s)
	}
	for i, it := range t.items(m["method"]) {
		f.Methods = append(f.Methods, t.method(index(join(path, "method"), i), it))
	}
	f.URL = t.textFilter(join(path, "url"), m["url"], "url")
	f.Headers = t.textFilter(join(path, "headers"), m["headers"], "headers")
	f.Body = t.textFilter(join(path, "body"), m["body"], "body")
	f.Action = t.textFilter(join(path, "action"), m["action"], "action")
	f.Status = t.ranges(join(path, "status"), m["status"])
	f.Occurrences = t.ranges(join(path, "occurrences"), m["occurrences"])
	return f
}

func (t *transformer) method(path string, v any) MethodFilter {
	if s, ok := v.(string); ok {
		if strings.HasPrefix(s, "!") {
			return MethodFilter{Method: s[1:], Exclude: true}
		}
		return MethodFilter{Method: s}
	}
	m := t.object(path, v)
	if m == nil {
		return MethodFilter{}
	}
	t.keys(path, m, "method", "exclude")
	return MethodFilter{
		Method:  t.str(join(path, "method"), m["method"]),
		Exclude: t.boolean(join(path, "exclude"), m["exclude"]),
	}
}

func (t *transformer) textFilter(path string, v any, key string) *TextFilter {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return &TextFilter{Pattern: x}
	default:
		m := t.object(path, v)
		if m == nil {
			return nil
		}
		t.keys(path, m, key, "regex", "exclude")
		return &TextFilter{
			Pattern: t.str(join(path, key), m[key]),
			Regex:   t.boolean(join(path, "regex"), m["regex"]),
			Exclude: t.boolean(join(path, "exclude"), m["exclude"]),
		}
	}
}

// ranges 支持 2、"2-5"、"!2-5" 与 {from, to, exclude} 三种写法
func (t *transformer) ranges(path string, v any) []Range {
	var out []Range
	for i, it := range t.items(v) {
		p := index(path, i)
		switch x := it.(type) {
		case int, int64, float64:
			out = append(out, Range{From: t.integer(p, x)})
		case string:
			out = append(out, t.rangeString(p, x))
		default:
			m := t.object(p, it)
			if m == nil {
				continue
			}
			t.keys(p, m, "from", "to", "exclude")
			out = append(out, Range{
				From:    t.integer(join(p, "from"), m["from"]),
				To:      t.integer(join(p, "to"), m["to"]),
				Exclude: t.boolean(join(p, "exclude"), m["exclude"]),
			})
		}
	}
	return out
}

func (t *transformer) rangeString(path, s string) Range {
	var r Range
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "!") {
		r.Exclude = true
		s = s[1:]
	}
	from, to, found := strings.Cut(s, "-")
	r.From = t.integer(path, from)
	if found {
		r.To = t.integer(path, to)
	}
	return r
}

func (t *transformer) parameter(path string, v any) *ParameterRule {
	p := &ParameterRule{UpdateValueOn: UpdateOnIteration}
	m := t.object(path, v)
	if m == nil {
		return p
	}
	t.keys(path, m, "name", "replace", "file", "date", "updateValueOn", "profiles")
	p.Name = t.str(join(path, "name"), m["name"])
	p.Profiles = t.strs(join(path, "profiles"), m["profiles"])
	if u := t.str(join(path, "updateValueOn"), m["updateValueOn"]); u != "" {
		p.UpdateValueOn = UpdateValueOn(u)
	}
	for i, it := range t.items(m["replace"]) {
		p.Replace = append(p.Replace, t.replace(index(join(path, "replace"), i), it))
	}

	file, hasFile := m["file"]
	date, hasDate := m["date"]
	switch {
	case hasFile && hasDate:
		t.fail(path, "file and date are mutually exclusive")
	case hasFile:
		p.Source = ParamSource{Kind: SourceFile, File: t.fileSource(join(path, "file"), file)}
	case hasDate:
		ds := t.dateSource(join(path, "date"), date)
		p.Source = ParamSource{Kind: SourceDate, Date: ds}
		if len(p.Replace) == 0 {
			p.Replace = []*Replace{{
				Kind: ReplaceDate,
				Date: &DateTemplate{Format: ds.Format, OffsetAmount: ds.Offset, OffsetUnit: UnitDays, WorkingDaysOnly: ds.WorkingDays},
			}}
		}
	}
	return p
}

func (t *transformer) replace(path string, v any) *Replace {
	if s, ok := v.(string); ok {
		return &Replace{Kind: ReplaceText, Text: s}
	}
	r := &Replace{Kind: ReplaceText}
	m := t.object(path, v)
	if m == nil {
		return r
	}
	t.keys(path, m, "text", "date", "ignoreCase", "filters")
	r.Text = t.str(join(path, "text"), m["text"])
	r.IgnoreCase = t.optBool(join(path, "ignoreCase"), m["ignoreCase"])
	if d, ok := m["date"]; ok {
		if _, hasText := m["text"]; hasText {
			t.fail(path, "text and date are mutually exclusive")
		}
		r.Kind = ReplaceDate
		r.Date = t.dateTemplate(join(path, "date"), d)
	}
	for i, it := range t.items(m["filters"]) {
		r.Filters = append(r.Filters, t.replaceFilter(index(join(path, "filters"), i), it))
	}
	return r
}

func (t *transformer) dateTemplate(path string, v any) *DateTemplate {
	d := &DateTemplate{OffsetUnit: UnitDays}
	if s, ok := v.(string); ok {
		d.Format = s
		return d
	}
	m := t.object(path, v)
	if m == nil {
		return d
	}
	t.keys(path, m, "format", "offset", "unit", "workingDays")
	d.Format = t.str(join(path, "format"), m["format"])
	d.OffsetAmount = t.integer(join(path, "offset"), m["offset"])
	if u := t.str(join(path, "unit"), m["unit"]); u != "" {
		d.OffsetUnit = TimeUnit(u)
	}
	d.WorkingDaysOnly = t.boolean(join(path, "workingDays"), m["workingDays"])
	return d
}

func (t *transformer) dateSource(path string, v any) *DateSource {
	d := &DateSource{}
	if s, ok := v.(string); ok {
		d.Format = s
		return d
	}
	m := t.object(path, v)
	if m == nil {
		return d
	}
	t.keys(path, m, "format", "offset", "workingDays")
	d.Format = t.str(join(path, "format"), m["format"])
	d.Offset = t.integer(join(path, "offset"), m["offset"])
	d.WorkingDays = t.boolean(join(path, "workingDays"), m["workingDays"])
	return d
}

func (t *transformer) fileSource(path string, v any) *FileSource {
	f := &FileSource{Delimiter: ",", FirstDataLine: 1, SelectNextRow: RowSequential, WhenOutOfValues: OutOfValuesNone}
	if s, ok := v.(string); ok {
		f.Name = s
		return f
	}
	m := t.object(path, v)
	if m == nil {
		return f
	}
	t.keys(path, m, "name", "column", "delimiter", "sameLineAs", "firstDataLine", "selectNextRow", "whenOutOfValues")
	f.Name = t.str(join(path, "name"), m["name"])
	f.Column = t.str(join(path, "column"), m["column"])
	f.SameLineAs = t.str(join(path, "sameLineAs"), m["sameLineAs"])
	if d := t.str(join(path, "delimiter"), m["delimiter"]); d != "" {
		f.Delimiter = d
	}
	if n := t.integer(join(path, "firstDataLine"), m["firstDataLine"]); n != 0 {
		f.FirstDataLine = n
	}
	if s := t.str(join(path, "selectNextRow"), m["selectNextRow"]); s != "" {
		f.SelectNextRow = SelectNextRow(s)
	}
	if w := t.str(join(path, "whenOutOfValues"), m["whenOutOfValues"]); w != "" {
		f.WhenOutOfValues = WhenOutOfValues(w)
	}
	return f
}

func (t *transformer) excludeURL(path string, v any) *ExcludeURL {
	if s, ok := v.(string); ok {
		return &ExcludeURL{URL: s}
	}
	e := &ExcludeURL{}
	m := t.object(path, v)
	if m == nil {
		return e
	}
	t.keys(path, m, "url", "profiles")
	e.URL = t.str(join(path, "url"), m["url"])
	e.Profiles = t.strs(join(path, "profiles"), m["profiles"])
	return e
}

func (t *transformer) excludeHeader(path string, v any) *ExcludeHeader {
	if s, ok := v.(string); ok {
		return &ExcludeHeader{Header: s}
	}
	e := &ExcludeHeader{}
	m := t.object(path, v)
	if m == nil {
		return e
	}
	t.keys(path, m, "header", "url", "profiles")
	e.Header = t.str(join(path, "header"), m["header"])
	e.URL = t.str(join(path, "url"), m["url"])
	e.Profiles = t.strs(join(path, "profiles"), m["profiles"])
	return e
}

func (t *transformer) file(path string, v any) *File {
	if s, ok := v.(string); ok {
		return &File{Name: filepath.Base(s), SourcePath: s, TargetPath: filepath.Base(s)}
	}
	f := &File{}
	m := t.object(path, v)
	if m == nil {
		return f
	}
	t.keys(path, m, "name", "sourcePath", "targetPath", "profiles")
	f.Name = t.str(join(path, "name"), m["name"])
	f.SourcePath = t.str(join(path, "sourcePath"), m["sourcePath"])
	f.TargetPath = t.str(join(path, "targetPath"), m["targetPath"])
	f.Profiles = t.strs(join(path, "profiles"), m["profiles"])
	if f.TargetPath == "" && f.SourcePath != "" {
		f.TargetPath = filepath.Base(f.SourcePath)
	}
	return f
}
