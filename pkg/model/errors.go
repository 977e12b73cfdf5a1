package model

import "fmt"

// ConfigurationError 规则结构无效
type ConfigurationError struct {
	Rule   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Rule == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in rule %q: %s", e.Rule, e.Reason)
}

// CaptureGroupError 正则捕获组越界
type CaptureGroupError struct {
	Rule   string
	Group  int
	Groups int
}

func (e *CaptureGroupError) Error() string {
	return fmt.Sprintf("rule %q: capture group %d out of range, pattern has %d groups", e.Rule, e.Group, e.Groups)
}

// ProcessingError 分组状态机内部不变量被破坏
type ProcessingError struct {
	EntryIndex int
	URL        string
	Reason     string
	Err        error
}

func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("processing entry %d (%s): %s", e.EntryIndex, e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// NotImplementedError 尚未实现的扩展点
type NotImplementedError struct {
	Rule    string
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("rule %q: %s is not implemented", e.Rule, e.Feature)
}
