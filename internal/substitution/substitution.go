package substitution

import (
	"regexp"
	"strings"

	"harscript/internal/rules"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

// Options 替换选项
type Options struct {
	// Response 当前请求对应的响应，供请求/响应过滤器使用
	Response *traffic.Response
	// Original 替换前的原始请求，为空时使用被改写的请求本身
	Original *traffic.Request
	// Eval 过滤器求值上下文（当前事务与出现次数计数器）
	Eval *rules.EvalContext
	// IgnoreCase 过滤器未指定时的默认大小写策略
	IgnoreCase bool
	// Counters 替换过滤器的出现次数计数器，以过滤器指针为键
	Counters map[*rulespec.ReplaceFilter]int
}

var defaultFilter = &rulespec.ReplaceFilter{Scope: rulespec.ReplaceAll}

// Substitute 将请求中的字面值替换为 {paramName} 占位符。
// 没有过滤器时按一个无边界、全范围的默认过滤器处理。
func Substitute(req *traffic.Request, paramName, value string, filters []*rulespec.ReplaceFilter, opts Options) {
	if value == "" {
		return
	}
	if len(filters) == 0 {
		filters = []*rulespec.ReplaceFilter{defaultFilter}
	}
	original := opts.Original
	if original == nil {
		original = req
	}

	for _, f := range filters {
		if f.RequestResponse != nil && !rules.Match(original, opts.Response, f.RequestResponse, opts.Eval) {
			continue
		}

		prefix, suffix := f.Boundary.LeftText(), f.Boundary.RightText()
		key := prefix + value + suffix
		replacement := prefix + "{" + paramName + "}" + suffix
		ignoreCase := opts.IgnoreCase
		if f.IgnoreCase != nil {
			ignoreCase = *f.IgnoreCase
		}
		r := newReplacer(key, replacement, ignoreCase)

		if len(f.Occurrences) > 0 {
			if !r.contains(scopeText(req, f.Scope)) {
				continue
			}
			n := 1
			if opts.Counters != nil {
				opts.Counters[f]++
				n = opts.Counters[f]
			}
			if !rules.Grant(n, f.Occurrences) {
				continue
			}
		}

		apply(req, f.Scope, r)
	}
}

func inScope(scope, want rulespec.ReplaceScope) bool {
	return scope == "" || scope == rulespec.ReplaceAll || scope == want
}

func scopeText(req *traffic.Request, scope rulespec.ReplaceScope) string {
	var b strings.Builder
	if inScope(scope, rulespec.ReplaceURL) {
		b.WriteString(req.URL)
	}
	if inScope(scope, rulespec.ReplaceHeaders) {
		b.WriteString(req.Headers.String())
	}
	if inScope(scope, rulespec.ReplaceBody) {
		b.WriteString(req.Body())
	}
	return b.String()
}

func apply(req *traffic.Request, scope rulespec.ReplaceScope, r *replacer) {
	if inScope(scope, rulespec.ReplaceURL) {
		req.URL = r.replace(req.URL)
	}
	if inScope(scope, rulespec.ReplaceHeaders) {
		block := req.Headers.String()
		if rewritten := r.replace(block); rewritten != block {
			req.Headers = traffic.ParseHeaders(rewritten)
		}
	}
	if inScope(scope, rulespec.ReplaceBody) {
		req.RewriteBody(r.replace)
	}
}

type replacer struct {
	key, value string
	re         *regexp.Regexp
}

func newReplacer(key, value string, ignoreCase bool) *replacer {
	r := &replacer{key: key, value: value}
	if ignoreCase {
		r.re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(key))
	}
	return r
}

func (r *replacer) replace(s string) string {
	if r.re != nil {
		return r.re.ReplaceAllLiteralString(s, r.value)
	}
	return strings.ReplaceAll(s, r.key, r.value)
}

func (r *replacer) contains(s string) bool {
	if r.re != nil {
		return r.re.MatchString(s)
	}
	return strings.Contains(s, r.key)
}
