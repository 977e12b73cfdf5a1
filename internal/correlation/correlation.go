package correlation

import (
	"errors"

	"harscript/internal/rules"
	"harscript/internal/substitution"
	"harscript/pkg/model"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

// Search 按规则扫描响应，返回应用选择策略后的捕获值。
// requestURL 为产生该响应的请求地址，规则带 url 过滤且不匹配时返回空。
func Search(resp *traffic.Response, requestURL string, rule *rulespec.CorrelationRule) ([]string, error) {
	if !rules.Wildcard(requestURL, rule.URL) {
		return nil, nil
	}
	text, err := scopeText(resp, rule)
	if err != nil {
		return nil, err
	}

	var matches []string
	switch rule.Extractor.Kind {
	case rulespec.ExtractorBoundary:
		all, err := rules.BoundarySearch(text, rule.Extractor.Boundary)
		if err != nil {
			return nil, withRule(err, rule.Name)
		}
		matches = rules.Window(all, rule.Count())
	case rulespec.ExtractorRegex:
		re := rule.Extractor.Regex
		matches, err = rules.RegexSearch(text, re.Pattern, re.Group, rule.Count())
		if err != nil {
			return nil, withRule(err, rule.Name)
		}
	case rulespec.ExtractorJSON:
		return nil, &model.NotImplementedError{Rule: rule.Name, Feature: "json correlation extraction"}
	default:
		return nil, &model.ConfigurationError{Rule: rule.Name, Reason: "exactly one of boundary, regex or json is required"}
	}
	return rules.Select(matches, rule.All()), nil
}

func scopeText(resp *traffic.Response, rule *rulespec.CorrelationRule) (string, error) {
	if resp == nil {
		return "", nil
	}
	switch rule.Scope {
	case rulespec.ScopeHeaders:
		return resp.Headers.String(), nil
	case rulespec.ScopeBody:
		return resp.Body, nil
	case rulespec.ScopeAll, "":
		return resp.Headers.String() + resp.Body, nil
	default:
		return "", &model.ConfigurationError{Rule: rule.Name, Reason: "unknown correlation scope " + string(rule.Scope)}
	}
}

func withRule(err error, name string) error {
	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Rule == "" {
		cfgErr.Rule = name
	}
	var cgErr *model.CaptureGroupError
	if errors.As(err, &cgErr) && cgErr.Rule == "" {
		cgErr.Rule = name
	}
	return err
}

// Scan 依次用全部规则扫描响应，生成参数名并登记捕获值。
// 非 all 规则每次命中只生成一个参数名；all 规则的每个值各自取一个新序号。
func Scan(resp *traffic.Response, requestURL string, rs []*rulespec.CorrelationRule, indexes Indexes, bindings *Bindings) ([]*model.MatchedCorrelation, error) {
	var out []*model.MatchedCorrelation
	for _, rule := range rs {
		values, err := Search(resp, requestURL, rule)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			continue
		}
		m := &model.MatchedCorrelation{Rule: rule, Values: values}
		if rule.All() {
			for _, v := range values {
				name := indexes.Next(rule.Name)
				m.ParamNames = append(m.ParamNames, name)
				bind(bindings, v, name, rule)
			}
			m.ParamName = m.ParamNames[0]
		} else {
			m.ParamName = indexes.Next(rule.Name)
			for _, v := range values {
				bind(bindings, v, m.ParamName, rule)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// bind 空值不参与替换
func bind(bindings *Bindings, value, name string, rule *rulespec.CorrelationRule) {
	if value != "" {
		bindings.Set(value, name, rule)
	}
}

// Substitute 将已绑定的全部捕获值替换进请求
func Substitute(req *traffic.Request, bindings *Bindings, opts substitution.Options) {
	for _, b := range bindings.All() {
		substitution.Substitute(req, b.ParamName, b.Value, b.Rule.ReplaceFilters, opts)
	}
}
