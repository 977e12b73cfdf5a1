package rulespec

import (
	"fmt"
	"strings"
)

// MatchProfile 判断带 profiles 列表的规则是否适用于给定 profile。
// 列表为空时总是适用；"!name" 表示排除该 profile；
// 只要列表中存在排除项，未被排除的 profile 都适用。
func MatchProfile(profiles []string, profile string) bool {
	if len(profiles) == 0 {
		return true
	}
	if profile == "" {
		return false
	}
	negated := false
	for _, p := range profiles {
		if p == "!"+profile {
			return false
		}
		if strings.HasPrefix(p, "!") {
			negated = true
		}
	}
	if negated {
		return true
	}
	for _, p := range profiles {
		if p == profile {
			return true
		}
	}
	return false
}

// Resolve 按 profile 合并基础脚本与 profile 专属脚本，得到最终规则集
func Resolve(bp *Blueprint, profile string) (*RuleSet, error) {
	rs := &RuleSet{Name: bp.Name}
	rs.add(bp.Script, profile)
	if profile != "" {
		s, ok := bp.Profiles[profile]
		if !ok {
			return nil, fmt.Errorf("unknown profile %q", profile)
		}
		rs.add(s, profile)
	}
	return rs, nil
}

func (rs *RuleSet) add(s Script, profile string) {
	for _, r := range s.Correlations {
		if MatchProfile(r.Profiles, profile) {
			rs.Correlations = append(rs.Correlations, r)
		}
	}
	for _, r := range s.Parameters {
		if MatchProfile(r.Profiles, profile) {
			rs.Parameters = append(rs.Parameters, r)
		}
	}
	for _, e := range s.ExcludeURLs {
		if MatchProfile(e.Profiles, profile) {
			rs.ExcludeURLs = append(rs.ExcludeURLs, e)
		}
	}
	for _, e := range s.ExcludeHeaders {
		if MatchProfile(e.Profiles, profile) {
			rs.ExcludeHeaders = append(rs.ExcludeHeaders, e)
		}
	}
	for _, f := range s.Files {
		if MatchProfile(f.Profiles, profile) {
			rs.Files = append(rs.Files, f)
		}
	}
}
