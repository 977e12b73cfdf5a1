package parameter

import (
	"bufio"
	"fmt"
	"os"

	"harscript/pkg/model"
	"harscript/pkg/rulespec"
)

// CountRecords 统计数据文件的记录数（总行数减去表头行）
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read data file: %w", err)
	}
	if lines == 0 {
		return 0, nil
	}
	return lines - 1, nil
}

// Tables 为文件与日期参数生成参数表描述。counter 为空时记录数为 0。
func Tables(rs *rulespec.RuleSet, counter func(path string) (int, error)) ([]model.ParameterTable, error) {
	var out []model.ParameterTable
	counts := map[string]int{}
	for _, p := range rs.Parameters {
		switch p.Source.Kind {
		case rulespec.SourceFile:
			f := rs.FileByName(p.Source.File.Name)
			if f == nil {
				return nil, &model.ConfigurationError{Rule: p.Name, Reason: "unknown data file " + p.Source.File.Name}
			}
			n, ok := counts[f.Name]
			if !ok && counter != nil {
				var err error
				if n, err = counter(f.SourcePath); err != nil {
					return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
				}
				counts[f.Name] = n
			}
			out = append(out, model.ParameterTable{Rule: p, File: f, TotalRecords: n})
		case rulespec.SourceDate:
			out = append(out, model.ParameterTable{Rule: p})
		case rulespec.SourceNone:
		}
	}
	return out, nil
}
