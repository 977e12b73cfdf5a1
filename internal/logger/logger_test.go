package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With("runId", "r1")
	l.Info("扫描完成", "entry", 3, "url", "https://a.test/")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["message"] != "扫描完成" || rec["runId"] != "r1" || rec["entry"] != float64(3) || rec["level"] != "info" {
		t.Errorf("record = %v", rec)
	}
}

func TestLoggerLevelAndErr(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("records below level were written: %q", buf.String())
	}
	l.Err(errors.New("boom"), "生成失败")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["error"] != "boom" || rec["level"] != "error" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew(t *testing.T) {
	// 无输出配置时退化为空日志器
	l := New(Options{Level: "debug"})
	l.Info("ignored")
	l.With("k", "v").Warn("ignored")

	path := t.TempDir() + "/out.log"
	fl := New(Options{Level: "info", Writers: []string{"file"}, File: FileOptions{Path: path, MaxSizeMB: 1}})
	fl.Info("写入文件")
	NewNop().Err(errors.New("x"), "nop")
}
