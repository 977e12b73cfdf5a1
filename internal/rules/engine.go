package rules

import (
	"strings"

	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

// EvalContext 过滤器求值上下文。Occurrences 以过滤器指针为键记录已匹配次数，由调用方在整个运行期内持有。
type EvalContext struct {
	Actions     []string
	Occurrences map[*rulespec.RequestResponseFilter]int
}

// NewEvalContext 创建带空计数器的上下文
func NewEvalContext(actions []string) *EvalContext {
	return &EvalContext{Actions: actions, Occurrences: map[*rulespec.RequestResponseFilter]int{}}
}

// Match 判断请求/响应是否满足复合过滤器，各维度之间为与关系。
// 出现次数最后判断，只有其余维度全部通过时才会计数。
func Match(req *traffic.Request, resp *traffic.Response, f *rulespec.RequestResponseFilter, ctx *EvalContext) bool {
	if f == nil {
		return true
	}
	if ctx == nil {
		ctx = &EvalContext{}
	}
	if resp == nil {
		resp = traffic.NewResponse(0)
	}
	return matchMethod(req, f) &&
		matchURL(req, f) &&
		matchCandidates(headerCandidates(req, resp, f.Target), f.Headers) &&
		matchCandidates(bodyCandidates(req, resp, f.Target), f.Body) &&
		matchStatus(resp, f) &&
		matchCandidates(ctx.Actions, f.Action) &&
		matchOccurrences(f, ctx)
}

func matchMethod(req *traffic.Request, f *rulespec.RequestResponseFilter) bool {
	if len(f.Methods) == 0 {
		return true
	}
	var acceptList, denyList []string
	for _, m := range f.Methods {
		if m.Exclude {
			denyList = append(denyList, strings.ToLower(m.Method))
		} else {
			acceptList = append(acceptList, strings.ToLower(m.Method))
		}
	}
	return accept(strings.ToLower(req.Method), acceptList, denyList)
}

func matchURL(req *traffic.Request, f *rulespec.RequestResponseFilter) bool {
	if f.URL == nil {
		return true
	}
	return MatchString(req.URL, f.URL.Pattern, f.URL.Regex) == !f.URL.Exclude
}

func headerCandidates(req *traffic.Request, resp *traffic.Response, target rulespec.FilterTarget) []string {
	var out []string
	if target != rulespec.TargetResponse {
		out = append(out, req.Headers.String())
	}
	if target != rulespec.TargetRequest {
		out = append(out, resp.Headers.String())
	}
	return out
}

func bodyCandidates(req *traffic.Request, resp *traffic.Response, target rulespec.FilterTarget) []string {
	var out []string
	if target != rulespec.TargetResponse {
		out = append(out, req.Body())
	}
	if target != rulespec.TargetRequest {
		out = append(out, resp.Body)
	}
	return out
}

// matchCandidates 任一候选命中时由 exclude 决定结果；全部未命中时仅 exclude 过滤器通过
func matchCandidates(candidates []string, f *rulespec.TextFilter) bool {
	if f == nil {
		return true
	}
	for _, c := range candidates {
		if MatchString(c, f.Pattern, f.Regex) {
			return !f.Exclude
		}
	}
	return f.Exclude
}

func matchStatus(resp *traffic.Response, f *rulespec.RequestResponseFilter) bool {
	if len(f.Status) == 0 {
		return true
	}
	return grant(resp.Status, f.Status)
}

func matchOccurrences(f *rulespec.RequestResponseFilter, ctx *EvalContext) bool {
	ok := true
	if len(f.Occurrences) > 0 {
		ok = grant(ctx.Occurrences[f]+1, f.Occurrences)
	}
	if ok && ctx.Occurrences != nil {
		ctx.Occurrences[f]++
	}
	return ok
}

// MatchString 子串或正则匹配
func MatchString(s, pattern string, regex bool) bool {
	if !regex {
		return strings.Contains(s, pattern)
	}
	return matchRegex(s, pattern)
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func accept(v string, acceptList, denyList []string) bool {
	for _, d := range denyList {
		if d == v {
			return false
		}
	}
	if len(acceptList) == 0 {
		return true
	}
	for _, a := range acceptList {
		if a == v {
			return true
		}
	}
	return false
}

// grant 区间版本的 accept：exclude 区间一票否决，存在非 exclude 区间时作为白名单
func grant(v int, ranges []rulespec.Range) bool {
	allowed := false
	hasAccept := false
	for _, r := range ranges {
		if r.Exclude {
			if r.Contains(v) {
				return false
			}
			continue
		}
		hasAccept = true
		if r.Contains(v) {
			allowed = true
		}
	}
	return !hasAccept || allowed
}

// Grant 导出区间判断，供替换过滤器的出现次数使用
func Grant(v int, ranges []rulespec.Range) bool { return grant(v, ranges) }
