package render

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"harscript/internal/rules"
	"harscript/pkg/model"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"

	"github.com/tidwall/sjson"
)

// DefaultExcludedHeaders 默认不写入脚本的请求头，由回放工具自行生成
var DefaultExcludedHeaders = []string{
	"accept",
	"accept-encoding",
	"accept-language",
	"cache-control",
	"connection",
	"content-length",
	"content-type",
	"cookie",
	"host",
	"referer",
	"referrer",
	"x-requested-with",
	"upgrade-insecure-requests",
	"user-agent",
}

// Options 渲染选项
type Options struct {
	// ExcludeHeaders 蓝图中的头部排除规则，与默认列表合并
	ExcludeHeaders []*rulespec.ExcludeHeader
	GeneratedAt    time.Time
}

var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "DELETE": true}

// ActionFile 将脚本渲染为 Action 函数源码
func ActionFile(s *model.Script, opts Options) string {
	r := &actionRenderer{excludes: excludeRules(opts.ExcludeHeaders)}
	b := &r.b

	b.WriteString("/*\n")
	fmt.Fprintf(b, " * Script: %s\n", s.Name)
	if !opts.GeneratedAt.IsZero() {
		fmt.Fprintf(b, " * Generated: %s\n", opts.GeneratedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString(" */\n\nAction()\n{\n\n")

	for _, el := range s.Elements {
		switch el.Kind {
		case model.ElementStartTransaction:
			fmt.Fprintf(b, "\tlr_start_transaction(\"%s\");\n\n", Escape(el.Transaction))
		case model.ElementEndTransaction:
			fmt.Fprintf(b, "\tlr_end_transaction(\"%s\", LR_AUTO);\n\n", Escape(el.Transaction))
		case model.ElementThinkTime:
			fmt.Fprintf(b, "\tlr_think_time(%d);\n\n", int(el.ThinkTime/time.Second))
		case model.ElementGroup:
			r.group(el.Group)
		}
	}

	b.WriteString("\treturn 0;\n}\n")
	return b.String()
}

type actionRenderer struct {
	b        strings.Builder
	excludes []*rulespec.ExcludeHeader
}

func excludeRules(extra []*rulespec.ExcludeHeader) []*rulespec.ExcludeHeader {
	out := make([]*rulespec.ExcludeHeader, 0, len(DefaultExcludedHeaders)+len(extra))
	for _, h := range DefaultExcludedHeaders {
		out = append(out, &rulespec.ExcludeHeader{Header: h})
	}
	return append(out, extra...)
}

// IncludeHeader 判断请求头是否写入脚本，url 为空的规则对所有请求生效
func IncludeHeader(name, requestURL string, excludes []*rulespec.ExcludeHeader) bool {
	for _, ex := range excludes {
		if rules.WildcardFold(requestURL, ex.URL) && rules.WildcardFold(name, ex.Header) {
			return false
		}
	}
	return true
}

func (r *actionRenderer) group(g *model.RequestGroup) {
	r.request(g.Primary)
	if len(g.Children) == 0 {
		return
	}
	r.b.WriteString("\tweb_concurrent_start(NULL);\n\n")
	for _, c := range g.Children {
		r.request(c)
	}
	r.b.WriteString("\tweb_concurrent_end(NULL);\n\n")
}

func (r *actionRenderer) request(sr *model.ScriptRequest) {
	b := &r.b
	req := sr.Request
	resp := sr.Response
	if resp == nil {
		resp = traffic.NewResponse(0)
	}

	for _, m := range sr.Correlations {
		r.saveParam(m)
	}
	for _, h := range req.Headers {
		if IncludeHeader(h.Name, sr.URL(), r.excludes) {
			fmt.Fprintf(b, "\tweb_add_header(\"%s\", \"%s\");\n\n", Escape(h.Name), Escape(h.Value))
		}
	}

	method := strings.ToUpper(req.Method)
	resource := 1
	switch strings.ToLower(resp.MimeType) {
	case "text/html", "application/json":
		resource = 0
	}

	fmt.Fprintf(b, "\tweb_custom_request(\"%s\",\n", requestName(sr.URL()))
	arg(b, "URL", req.URL)
	arg(b, "Method", method)
	arg(b, "Resource", strconv.Itoa(resource))
	arg(b, "RecContentType", resp.MimeType)
	if ref := req.Headers.Get("Referer"); ref != "" {
		arg(b, "Referer", ref)
	}
	arg(b, "Snapshot", "t"+strconv.Itoa(sr.EntryIndex+1)+".inf")
	arg(b, "Mode", "HTTP")
	if bodyMethods[method] {
		arg(b, "EncType", req.Headers.Get("Content-Type"))
		writeBody(b, req)
	}
	b.WriteString("\t\tLAST);\n\n")

	for _, m := range sr.Correlations {
		for _, name := range m.Names() {
			fmt.Fprintf(b, "\tweb_convert_param(\"%s\", \"SourceEncoding=HTML\", \"TargetEncoding=URL\", LAST);\n\n", name)
		}
	}
}

// saveParam 输出请求前的提取指令
func (r *actionRenderer) saveParam(m *model.MatchedCorrelation) {
	b := &r.b
	rule := m.Rule

	comment, _ := sjson.Set("", "type", "correlation")
	comment, _ = sjson.Set(comment, "name", rule.Name)
	comment, _ = sjson.Set(comment, "capturedValues", m.Values)
	fmt.Fprintf(b, "\t// APPLY RULE: %s\n", comment)

	switch rule.Extractor.Kind {
	case rulespec.ExtractorBoundary:
		bd := rule.Extractor.Boundary
		b.WriteString("\tweb_reg_save_param_ex(\n")
		arg(b, "ParamName", m.ParamName)
		if bd.Left != nil {
			arg(b, boundaryKey("LB", bd.Left.IgnoreCase), Escape(bd.Left.Text))
		}
		if bd.Right != nil {
			arg(b, boundaryKey("RB", bd.Right.IgnoreCase), Escape(bd.Right.Text))
		}
	case rulespec.ExtractorRegex:
		b.WriteString("\tweb_reg_save_param_regexp(\n")
		arg(b, "ParamName", m.ParamName)
		arg(b, "RegExp", Escape(rule.Extractor.Regex.Pattern))
		arg(b, "Group", strconv.Itoa(rule.Extractor.Regex.Group))
	default:
		fmt.Fprintf(b, "\t// unsupported extractor %s for %s\n\n", rule.Extractor.Kind, m.ParamName)
		return
	}

	switch rule.Selection {
	case rulespec.SelectOrdinal:
		arg(b, "Ordinal", strconv.Itoa(rule.Ordinal))
	case rulespec.SelectAll:
		arg(b, "Ordinal", "All")
	case rulespec.SelectLast:
		arg(b, "Ordinal", "Last")
	case rulespec.SelectFirst:
	}

	b.WriteString("\t\tSEARCH_FILTERS,\n")
	scope := string(rule.Scope)
	if scope == "" {
		scope = string(rulespec.ScopeAll)
	}
	arg(b, "Scope", strings.ToUpper(scope[:1])+scope[1:])
	if rule.URL != "" {
		arg(b, "RequestUrl", rule.URL)
	}
	b.WriteString("\t\tLAST);\n\n")
}

func boundaryKey(key string, ignoreCase bool) string {
	if ignoreCase {
		return key + "/IC"
	}
	return key
}

func arg(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "\t\t\"%s=%s\",\n", key, value)
}

// writeBody 表单参数逐行输出，其余按原文输出
func writeBody(b *strings.Builder, req *traffic.Request) {
	pd := req.PostData
	if pd == nil || (pd.Text == "" && len(pd.Params) == 0) {
		return
	}
	if pd.Text != "" {
		arg(b, "Body", Escape(pd.Text))
		return
	}
	b.WriteString("\t\t\"Body=\"\n")
	for i, p := range pd.Params {
		sep := "&"
		if i == len(pd.Params)-1 {
			sep = ""
		}
		fmt.Fprintf(b, "\t\t\"%s=%s%s\"", Escape(p.Name), Escape(p.Value), sep)
		if i == len(pd.Params)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
}

// requestName 取路径最后一段作为步骤名，路径为空时使用主机名
func requestName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	name := strings.TrimSpace(u.Path[strings.LastIndex(u.Path, "/")+1:])
	if name == "" {
		return u.Hostname()
	}
	if dec, err := url.PathUnescape(name); err == nil {
		return dec
	}
	return name
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
)

// Escape 转义 C 字符串字面量中的特殊字符
func Escape(s string) string {
	return escaper.Replace(s)
}
