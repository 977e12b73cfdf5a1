package rulespec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load 从文件读取并解析蓝图
func Load(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blueprint: %w", err)
	}
	return Parse(data)
}

// Parse 解析蓝图 YAML（JSON 亦可），先转换为规范化模型再做语义校验
func Parse(data []byte) (*Blueprint, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode blueprint: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	t := &transformer{}
	bp := t.blueprint(raw)
	if err := t.errs.Err(); err != nil {
		return nil, err
	}
	if err := Validate(bp).Err(); err != nil {
		return nil, err
	}
	return bp, nil
}
