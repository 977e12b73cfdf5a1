package render

import (
	"fmt"
	"strings"

	"harscript/pkg/model"
	"harscript/pkg/rulespec"
)

// ParameterFile 渲染参数定义文件：文件参数为 Table 类型，日期参数为 Time 类型
func ParameterFile(tables []model.ParameterTable) string {
	var b strings.Builder
	for _, t := range tables {
		p := t.Rule
		switch p.Source.Kind {
		case rulespec.SourceFile:
			writeTable(&b, t)
		case rulespec.SourceDate:
			writeTime(&b, p)
		case rulespec.SourceNone:
		}
	}
	return b.String()
}

func writeTable(b *strings.Builder, t model.ParameterTable) {
	p := t.Rule
	src := p.Source.File
	column := src.Column
	if column == "" {
		column = p.Name
	}
	delimiter := src.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	startRow := src.FirstDataLine
	if startRow < 1 {
		startRow = 1
	}
	table := ""
	if t.File != nil {
		table = t.File.TargetPath
	}

	fmt.Fprintf(b, "[parameter:%s]\n", p.Name)
	kv(b, "ColumnName", column)
	kv(b, "Delimiter", delimiter)
	kv(b, "GenerateNewVal", generateNewVal(p.UpdateValueOn))
	kv(b, "OriginalValue", "")
	kv(b, "OutOfRangePolicy", outOfRangePolicy(src.WhenOutOfValues))
	kv(b, "ParamName", p.Name)
	kv(b, "SelectNextRow", selectNextRow(src))
	kv(b, "StartRow", fmt.Sprint(startRow))
	kv(b, "Table", table)
	kv(b, "TableLocation", "Local")
	kv(b, "TotalRecords", fmt.Sprint(t.TotalRecords))
	kv(b, "Type", "Table")
	kv(b, "auto_allocate_block_size", "1")
	kv(b, "value_for_each_vuser", "1")
}

func writeTime(b *strings.Builder, p *rulespec.ParameterRule) {
	src := p.Source.Date
	working := "0"
	if src.WorkingDays {
		working = "1"
	}
	fmt.Fprintf(b, "[parameter:%s]\n", p.Name)
	kv(b, "Format", src.Format)
	kv(b, "GenerateNewVal", generateNewVal(p.UpdateValueOn))
	kv(b, "Offset", fmt.Sprint(src.Offset))
	kv(b, "OffsetUI", fmt.Sprint(src.Offset))
	kv(b, "OriginalValue", "")
	kv(b, "ParamName", p.Name)
	kv(b, "Type", "Time")
	kv(b, "WorkingDaysOn", working)
}

func kv(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s=\"%s\"\n", key, value)
}

func generateNewVal(u rulespec.UpdateValueOn) string {
	switch u {
	case rulespec.UpdateOnIteration:
		return "EachIteration"
	case rulespec.UpdateOnOccurrence:
		return "EachOccurrence"
	case rulespec.UpdateOnce:
		return "Once"
	default:
		return ""
	}
}

func outOfRangePolicy(w rulespec.WhenOutOfValues) string {
	switch w {
	case rulespec.OutOfValuesCycle:
		return "ContinueCyclic"
	case rulespec.OutOfValuesRepeatLast:
		return "ContinueWithLast"
	case rulespec.OutOfValuesAbortUser:
		return "AbortVuser"
	case rulespec.OutOfValuesNone:
		return "None"
	default:
		return ""
	}
}

func selectNextRow(src *rulespec.FileSource) string {
	if src.SameLineAs != "" {
		return "Same line as " + src.SameLineAs
	}
	switch src.SelectNextRow {
	case rulespec.RowSequential:
		return "Sequential"
	case rulespec.RowRandom:
		return "Random"
	case rulespec.RowUnique:
		return "Unique"
	default:
		return ""
	}
}
