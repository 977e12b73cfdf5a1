package parameter

import (
	"time"

	"harscript/internal/substitution"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

// Replacement 解析后的单个替换输入
type Replacement struct {
	Text       string
	IgnoreCase *bool
	Filters    []*rulespec.ReplaceFilter
}

// Resolved 解析后的参数：名称与具体的替换文本
type Resolved struct {
	Rule         *rulespec.ParameterRule
	Replacements []Replacement
}

// Resolve 将参数定义解析为本次运行的替换输入，日期模板以 now 为基准格式化
func Resolve(params []*rulespec.ParameterRule, now time.Time) []Resolved {
	out := make([]Resolved, 0, len(params))
	for _, p := range params {
		r := Resolved{Rule: p}
		for _, rep := range p.Replace {
			text := rep.Text
			if rep.Kind == rulespec.ReplaceDate && rep.Date != nil {
				d := OffsetDate(now, rep.Date.OffsetAmount, rep.Date.OffsetUnit, rep.Date.WorkingDaysOnly)
				text = FormatDate(d, rep.Date.Format)
			}
			r.Replacements = append(r.Replacements, Replacement{Text: text, IgnoreCase: rep.IgnoreCase, Filters: rep.Filters})
		}
		out = append(out, r)
	}
	return out
}

// Substitute 依次把每个参数的替换文本改写为 {参数名}
func Substitute(req *traffic.Request, params []Resolved, opts substitution.Options) {
	for _, p := range params {
		for _, rep := range p.Replacements {
			o := opts
			if rep.IgnoreCase != nil {
				o.IgnoreCase = *rep.IgnoreCase
			}
			substitution.Substitute(req, p.Rule.Name, rep.Text, rep.Filters, o)
		}
	}
}

// Values 返回参数名到解析后首个替换文本的映射
func Values(params []Resolved) map[string]string {
	out := map[string]string{}
	for _, p := range params {
		if len(p.Replacements) > 0 {
			out[p.Rule.Name] = p.Replacements[0].Text
		}
	}
	return out
}
