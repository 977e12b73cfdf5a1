package rules

import (
	"strings"

	"harscript/pkg/model"
	"harscript/pkg/rulespec"
)

// Wildcard 通配符匹配，* 匹配零个或多个字符，空模式匹配一切。区分大小写。
func Wildcard(s, pattern string) bool {
	if pattern == "" {
		return true
	}
	m, n := len(s), len(pattern)
	// dp[i][j]: s[:i] 是否匹配 pattern[:j]
	dp := make([][]bool, m+1)
	for i := range dp {
		dp[i] = make([]bool, n+1)
	}
	dp[0][0] = true
	for j := 1; j <= n; j++ {
		if pattern[j-1] == '*' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case pattern[j-1] == '*':
				dp[i][j] = dp[i][j-1] || dp[i-1][j]
			case s[i-1] == pattern[j-1]:
				dp[i][j] = dp[i-1][j-1]
			}
		}
	}
	return dp[m][n]
}

// WildcardFold 大小写不敏感的通配符匹配
func WildcardFold(s, pattern string) bool {
	return Wildcard(strings.ToLower(s), strings.ToLower(pattern))
}

// BoundarySearch 按左右边界提取全部不重叠的子串。
// 左右都存在时取左边界之后到最近右边界之前的内容，下一轮从右边界之后继续；
// 仅左边界时取到文本末尾；仅右边界时从文本开头取起。
func BoundarySearch(text string, b *rulespec.Boundary) ([]string, error) {
	if b == nil || (b.Left == nil && b.Right == nil) {
		return nil, &model.ConfigurationError{Reason: "left or right boundary must be defined"}
	}
	if (b.Left != nil && b.Left.Text == "") || (b.Right != nil && b.Right.Text == "") {
		return nil, &model.ConfigurationError{Reason: "boundary must not be empty"}
	}
	var out []string
	switch {
	case b.Left != nil && b.Right != nil:
		lb, rb := b.Left.Text, b.Right.Text
		start := 0
		for {
			left := indexFrom(text, lb, start, b.Left.IgnoreCase)
			if left < 0 {
				break
			}
			right := indexFrom(text, rb, left+len(lb), b.Right.IgnoreCase)
			if right < 0 {
				break
			}
			out = append(out, text[left+len(lb):right])
			start = right + len(rb)
		}
	case b.Left != nil:
		lb := b.Left.Text
		start := 0
		for {
			left := indexFrom(text, lb, start, b.Left.IgnoreCase)
			if left < 0 {
				break
			}
			out = append(out, text[left+len(lb):])
			start = left + len(lb)
		}
	default:
		rb := b.Right.Text
		start := 0
		for {
			right := indexFrom(text, rb, start, b.Right.IgnoreCase)
			if right < 0 {
				break
			}
			out = append(out, text[:right])
			start = right + len(rb)
		}
	}
	return out, nil
}

// indexFrom 从 from 开始查找子串位置，未找到返回 -1
func indexFrom(s, sub string, from int, ignoreCase bool) int {
	if from > len(s) {
		return -1
	}
	if sub == "" {
		return from
	}
	if !ignoreCase {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return -1
		}
		return from + i
	}
	for i := from; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// RegexSearch 从上次匹配结束处继续执行正则，最多 count 次（0 表示不限），
// 返回指定捕获组的内容。捕获组越界时返回 CaptureGroupError。
func RegexSearch(text, pattern string, group, count int) ([]string, error) {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return nil, &model.ConfigurationError{Reason: "invalid regex: " + err.Error()}
	}
	n := count
	if n <= 0 {
		n = -1
	}
	var out []string
	for _, loc := range re.FindAllStringSubmatchIndex(text, n) {
		groups := len(loc)/2 - 1
		if group > groups {
			return nil, &model.CaptureGroupError{Group: group, Groups: groups}
		}
		start, end := loc[2*group], loc[2*group+1]
		if start < 0 {
			out = append(out, "")
			continue
		}
		out = append(out, text[start:end])
	}
	return out, nil
}

// Window 截取前 count 个匹配，0 表示不限
func Window(matches []string, count int) []string {
	if count > 0 && len(matches) > count {
		return matches[:count]
	}
	return matches
}

// Select 应用选择策略：all 返回全部，否则只返回最后一个
func Select(matches []string, all bool) []string {
	if len(matches) == 0 {
		return nil
	}
	if all {
		return matches
	}
	return matches[len(matches)-1:]
}
