package parameter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"harscript/pkg/rulespec"
)

// dateTokens 按长度降序排列，保证最长匹配优先
var dateTokens = []string{
	"YYYY", "MMMM", "dddd", "DDDD",
	"MMM", "ddd", "DDD", "SSS",
	"YY", "MM", "Do", "DD", "dd", "HH", "hh", "kk", "mm", "ss", "SS", "ZZ", "WW",
	"Q", "M", "D", "d", "H", "h", "k", "m", "s", "S", "A", "a", "Z", "X", "x", "W",
}

// FormatDate 按 moment 风格的格式串格式化时间，[...] 内为原样输出的文字
func FormatDate(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		tok := ""
		for _, candidate := range dateTokens {
			if strings.HasPrefix(format[i:], candidate) {
				tok = candidate
				break
			}
		}
		if tok == "" {
			b.WriteByte(format[i])
			i++
			continue
		}
		b.WriteString(formatToken(t, tok))
		i += len(tok)
	}
	return b.String()
}

func formatToken(t time.Time, tok string) string {
	switch tok {
	case "YYYY":
		return fmt.Sprintf("%04d", t.Year())
	case "YY":
		return fmt.Sprintf("%02d", t.Year()%100)
	case "Q":
		return strconv.Itoa((int(t.Month())-1)/3 + 1)
	case "MMMM":
		return t.Month().String()
	case "MMM":
		return t.Month().String()[:3]
	case "MM":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "DDDD":
		return fmt.Sprintf("%03d", t.YearDay())
	case "DDD":
		return strconv.Itoa(t.YearDay())
	case "DD":
		return fmt.Sprintf("%02d", t.Day())
	case "D":
		return strconv.Itoa(t.Day())
	case "Do":
		return ordinal(t.Day())
	case "dddd":
		return t.Weekday().String()
	case "ddd":
		return t.Weekday().String()[:3]
	case "dd":
		return t.Weekday().String()[:2]
	case "d":
		return strconv.Itoa(int(t.Weekday()))
	case "HH":
		return fmt.Sprintf("%02d", t.Hour())
	case "H":
		return strconv.Itoa(t.Hour())
	case "hh":
		return fmt.Sprintf("%02d", hour12(t))
	case "h":
		return strconv.Itoa(hour12(t))
	case "kk":
		return fmt.Sprintf("%02d", hour24(t))
	case "k":
		return strconv.Itoa(hour24(t))
	case "mm":
		return fmt.Sprintf("%02d", t.Minute())
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return fmt.Sprintf("%02d", t.Second())
	case "s":
		return strconv.Itoa(t.Second())
	case "SSS":
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	case "SS":
		return fmt.Sprintf("%02d", t.Nanosecond()/int(10*time.Millisecond))
	case "S":
		return strconv.Itoa(t.Nanosecond() / int(100*time.Millisecond))
	case "A":
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case "a":
		if t.Hour() < 12 {
			return "am"
		}
		return "pm"
	case "Z":
		return t.Format("-07:00")
	case "ZZ":
		return t.Format("-0700")
	case "X":
		return strconv.FormatInt(t.Unix(), 10)
	case "x":
		return strconv.FormatInt(t.UnixMilli(), 10)
	case "WW":
		_, w := t.ISOWeek()
		return fmt.Sprintf("%02d", w)
	case "W":
		_, w := t.ISOWeek()
		return strconv.Itoa(w)
	}
	return tok
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

func hour24(t time.Time) int {
	if t.Hour() == 0 {
		return 24
	}
	return t.Hour()
}

func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// OffsetDate 按单位偏移时间。仅工作日时按天计数跳过周六周日，
// 其他单位偏移后若落在周末则顺延到偏移方向上最近的工作日。
func OffsetDate(t time.Time, amount int, unit rulespec.TimeUnit, workingDays bool) time.Time {
	if workingDays && (unit == rulespec.UnitDays || unit == "") {
		return addWorkingDays(t, amount)
	}

	var out time.Time
	switch unit {
	case rulespec.UnitSeconds:
		out = t.Add(time.Duration(amount) * time.Second)
	case rulespec.UnitMinutes:
		out = t.Add(time.Duration(amount) * time.Minute)
	case rulespec.UnitHours:
		out = t.Add(time.Duration(amount) * time.Hour)
	case rulespec.UnitWeeks:
		out = t.AddDate(0, 0, 7*amount)
	case rulespec.UnitMonths:
		out = t.AddDate(0, amount, 0)
	case rulespec.UnitYears:
		out = t.AddDate(amount, 0, 0)
	default:
		out = t.AddDate(0, 0, amount)
	}
	if workingDays {
		step := 1
		if amount < 0 {
			step = -1
		}
		for isWeekend(out) {
			out = out.AddDate(0, 0, step)
		}
	}
	return out
}

func addWorkingDays(t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	for n > 0 {
		t = t.AddDate(0, 0, step)
		if !isWeekend(t) {
			n--
		}
	}
	return t
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
