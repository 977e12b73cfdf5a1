package rulespec

import "strings"

// FieldError 字段级校验错误
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Errors 校验错误列表
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}
	return "invalid blueprint: " + strings.Join(msgs, "; ")
}

// Err 无错误时返回 nil
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
