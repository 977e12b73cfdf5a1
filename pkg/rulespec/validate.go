package rulespec

import (
	"fmt"
	"regexp"
	"sort"
)

// Validate 对规范化后的蓝图做语义校验，返回全部发现的问题
func Validate(bp *Blueprint) Errors {
	v := &validator{files: map[string]bool{}}
	for _, f := range bp.Script.Files {
		v.files[f.Name] = true
	}
	for _, s := range bp.Profiles {
		for _, f := range s.Files {
			v.files[f.Name] = true
		}
	}

	v.script("script", bp.Script)
	names := make([]string, 0, len(bp.Profiles))
	for name := range bp.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v.script(join(join("profiles", name), "script"), bp.Profiles[name])
	}
	return v.errs
}

type validator struct {
	errs  Errors
	files map[string]bool
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) script(path string, s Script) {
	seen := map[string]bool{}
	for i, r := range s.Correlations {
		p := index(join(path, "correlations"), i)
		if r.Name != "" {
			if seen[r.Name] {
				v.fail(join(p, "name"), "duplicate correlation name %q", r.Name)
			}
			seen[r.Name] = true
		}
		v.correlation(p, r)
	}

	seen = map[string]bool{}
	for i, r := range s.Parameters {
		p := index(join(path, "parameters"), i)
		if r.Name != "" {
			if seen[r.Name] {
				v.fail(join(p, "name"), "duplicate parameter name %q", r.Name)
			}
			seen[r.Name] = true
		}
		v.parameter(p, r)
	}

	for i, e := range s.ExcludeURLs {
		if e.URL == "" {
			v.fail(join(index(join(path, "excludeUrls"), i), "url"), "must not be empty")
		}
	}
	for i, e := range s.ExcludeHeaders {
		if e.Header == "" {
			v.fail(join(index(join(path, "excludeHeaders"), i), "header"), "must not be empty")
		}
	}
	for i, f := range s.Files {
		p := index(join(path, "files"), i)
		if f.Name == "" {
			v.fail(join(p, "name"), "must not be empty")
		}
		if f.SourcePath == "" {
			v.fail(join(p, "sourcePath"), "must not be empty")
		}
	}
}

func (v *validator) correlation(path string, r *CorrelationRule) {
	if r.Name == "" {
		v.fail(join(path, "name"), "must not be empty")
	}

	n := 0
	if r.Extractor.Boundary != nil {
		n++
		v.boundary(join(path, "boundary"), r.Extractor.Boundary)
	}
	if re := r.Extractor.Regex; re != nil {
		n++
		v.regex(join(path, "regex"), re)
	}
	if j := r.Extractor.JSON; j != nil {
		n++
		if j.Path == "" {
			v.fail(join(join(path, "json"), "path"), "must not be empty")
		}
	}
	if n != 1 {
		v.fail(path, "exactly one of boundary, regex or json is required, got %d", n)
	}

	if r.Selection == SelectOrdinal && r.Ordinal < 1 {
		v.fail(join(path, "ordinal"), "must be at least 1, got %d", r.Ordinal)
	}
	switch r.Scope {
	case ScopeAll, ScopeHeaders, ScopeBody:
	default:
		v.fail(join(path, "scope"), "unknown scope %q", r.Scope)
	}
	for i, f := range r.ReplaceFilters {
		v.replaceFilter(index(join(path, "replaceFilters"), i), f)
	}
}

func (v *validator) boundary(path string, b *Boundary) {
	if b.Left == nil && b.Right == nil {
		v.fail(path, "left or right boundary is required")
	}
	if b.Left != nil && b.Left.Text == "" {
		v.fail(join(path, "left"), "must not be empty")
	}
	if b.Right != nil && b.Right.Text == "" {
		v.fail(join(path, "right"), "must not be empty")
	}
}

func (v *validator) regex(path string, re *Regex) {
	if re.Pattern == "" {
		v.fail(join(path, "pattern"), "must not be empty")
	} else if _, err := regexp.Compile(re.Pattern); err != nil {
		v.fail(join(path, "pattern"), "invalid regular expression: %v", err)
	}
	if re.Group < 0 {
		v.fail(join(path, "group"), "must not be negative, got %d", re.Group)
	}
}

func (v *validator) ranges(path string, rs []Range, min int) {
	for i, r := range rs {
		p := index(path, i)
		if r.From < min {
			v.fail(join(p, "from"), "must be at least %d, got %d", min, r.From)
		}
		if r.To != 0 && r.To < r.From {
			v.fail(join(p, "to"), "must not be less than from (%d), got %d", r.From, r.To)
		}
	}
}

func (v *validator) replaceFilter(path string, f *ReplaceFilter) {
	switch f.Scope {
	case ReplaceAll, ReplaceURL, ReplaceHeaders, ReplaceBody:
	default:
		v.fail(join(path, "scope"), "unknown scope %q", f.Scope)
	}
	if f.Boundary != nil {
		v.boundary(join(path, "boundary"), f.Boundary)
	}
	v.ranges(join(path, "occurrences"), f.Occurrences, 1)
	if f.RequestResponse != nil {
		v.requestResponse(join(path, "requestResponse"), f.RequestResponse)
	}
}

func (v *validator) requestResponse(path string, f *RequestResponseFilter) {
	switch f.Target {
	case TargetAll, TargetRequest, TargetResponse:
	default:
		v.fail(join(path, "target"), "unknown target %q", f.Target)
	}
	for i, m := range f.Methods {
		if m.Method == "" {
			v.fail(index(join(path, "method"), i), "must not be empty")
		}
	}
	v.textFilter(join(path, "url"), f.URL)
	v.textFilter(join(path, "headers"), f.Headers)
	v.textFilter(join(path, "body"), f.Body)
	v.textFilter(join(path, "action"), f.Action)
	v.ranges(join(path, "status"), f.Status, 100)
	v.ranges(join(path, "occurrences"), f.Occurrences, 1)
}

func (v *validator) textFilter(path string, f *TextFilter) {
	if f == nil {
		return
	}
	if f.Pattern == "" {
		v.fail(path, "must not be empty")
		return
	}
	if f.Regex {
		if _, err := regexp.Compile(f.Pattern); err != nil {
			v.fail(path, "invalid regular expression: %v", err)
		}
	}
}

func (v *validator) parameter(path string, r *ParameterRule) {
	if r.Name == "" {
		v.fail(join(path, "name"), "must not be empty")
	}
	switch r.UpdateValueOn {
	case UpdateOnIteration, UpdateOnOccurrence, UpdateOnce:
	default:
		v.fail(join(path, "updateValueOn"), "unknown value %q", r.UpdateValueOn)
	}

	dates := 0
	for i, rep := range r.Replace {
		p := index(join(path, "replace"), i)
		switch rep.Kind {
		case ReplaceText:
			if rep.Text == "" {
				v.fail(join(p, "text"), "must not be empty")
			}
		case ReplaceDate:
			dates++
			v.dateTemplate(join(p, "date"), rep.Date)
		}
		for j, f := range rep.Filters {
			v.replaceFilter(index(join(p, "filters"), j), f)
		}
	}

	switch r.Source.Kind {
	case SourceFile:
		v.fileSource(join(path, "file"), r.Source.File)
		if dates > 0 {
			v.fail(join(path, "replace"), "date replacements require a date source")
		}
	case SourceDate:
		if r.Source.Date == nil || r.Source.Date.Format == "" {
			v.fail(join(join(path, "date"), "format"), "must not be empty")
		}
		if len(r.Replace) != 1 || dates != 1 {
			v.fail(join(path, "replace"), "a date parameter needs exactly one date replacement")
		}
	default:
		if dates > 0 {
			v.fail(join(path, "replace"), "date replacements require a date source")
		}
	}
}

func (v *validator) dateTemplate(path string, d *DateTemplate) {
	if d == nil || d.Format == "" {
		v.fail(join(path, "format"), "must not be empty")
		return
	}
	switch d.OffsetUnit {
	case UnitSeconds, UnitMinutes, UnitHours, UnitDays, UnitWeeks, UnitMonths, UnitYears:
	default:
		v.fail(join(path, "unit"), "unknown unit %q", d.OffsetUnit)
	}
}

func (v *validator) fileSource(path string, f *FileSource) {
	if f == nil {
		v.fail(path, "is required")
		return
	}
	if f.Name == "" {
		v.fail(join(path, "name"), "must not be empty")
	} else if !v.files[f.Name] {
		v.fail(join(path, "name"), "references unknown file %q", f.Name)
	}
	if f.Column == "" {
		v.fail(join(path, "column"), "must not be empty")
	}
	if f.FirstDataLine < 1 {
		v.fail(join(path, "firstDataLine"), "must be at least 1, got %d", f.FirstDataLine)
	}
	switch f.SelectNextRow {
	case RowSequential, RowRandom, RowUnique:
	default:
		v.fail(join(path, "selectNextRow"), "unknown value %q", f.SelectNextRow)
	}
	switch f.WhenOutOfValues {
	case OutOfValuesNone, OutOfValuesAbortUser, OutOfValuesCycle, OutOfValuesRepeatLast:
	default:
		v.fail(join(path, "whenOutOfValues"), "unknown value %q", f.WhenOutOfValues)
	}
}
