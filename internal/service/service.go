package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"harscript/internal/adapter/har"
	"harscript/internal/config"
	"harscript/internal/handler"
	"harscript/internal/logger"
	"harscript/internal/parameter"
	"harscript/internal/render"
	"harscript/internal/session"
	"harscript/internal/storage"
	"harscript/pkg/model"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"

	"github.com/tidwall/sjson"
)

// 输出文件名
const (
	ActionFileName  = "Action.c"
	SummaryFileName = "run.json"
)

// GenerateRequest 生成请求
type GenerateRequest struct {
	CapturePath   string
	BlueprintPath string
	// ActionsPath 动作时间线文件，可为空
	ActionsPath string
	Profile     string
	OutputDir   string
	// Now 日期参数的基准时间，为零值时取当前时间
	Now time.Time
}

// GenerateResult 生成结果
type GenerateResult struct {
	RunID  model.RunID
	Script *model.Script
	Stats  model.RunStats
	// Files 写出的文件路径，相对 OutputDir
	Files []string
}

// Service 编排生成流水线：加载输入、运行处理器、渲染并写出结果
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	sessions *session.Manager
	store    *storage.Store
}

// New 创建服务，启用 sqlite 时打开运行记录库
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	svc := &Service{cfg: cfg, log: l, sessions: session.NewManager(l)}
	if cfg.Sqlite.Enabled {
		store, err := storage.Open(storage.Options{Dsn: cfg.Sqlite.Dsn, Prefix: cfg.Sqlite.Prefix, Logger: l})
		if err != nil {
			return nil, err
		}
		svc.store = store
	}
	return svc, nil
}

// Close 释放资源
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Sessions 返回运行注册表
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Store 返回运行记录库，未启用时为 nil
func (s *Service) Store() *storage.Store { return s.store }

// Runs 列出运行记录
func (s *Service) Runs(ctx context.Context, limit int) ([]storage.Run, error) {
	if s.store == nil {
		return nil, errors.New("run log is disabled")
	}
	return s.store.ListRuns(ctx, limit)
}

// Validate 加载蓝图并按 profile 解析规则集
func (s *Service) Validate(path, profile string) (*rulespec.RuleSet, error) {
	bp, err := rulespec.Load(path)
	if err != nil {
		return nil, err
	}
	return rulespec.Resolve(bp, profile)
}

// Generate 执行一次完整生成
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	rs, err := s.Validate(req.BlueprintPath, req.Profile)
	if err != nil {
		return nil, fmt.Errorf("load blueprint: %w", err)
	}
	capture, err := har.LoadCapture(req.CapturePath)
	if err != nil {
		return nil, err
	}
	var actions []traffic.RecordedAction
	if req.ActionsPath != "" {
		if actions, err = har.LoadActions(req.ActionsPath); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess := s.sessions.Create(rs.Name)
	log := s.log.With("runId", string(sess.ID))
	baseDir := filepath.Dir(req.BlueprintPath)

	result, err := s.generate(ctx, sess.ID, req, rs, capture, actions, baseDir, log)
	stats := model.RunStats{}
	if result != nil {
		stats = result.Stats
	}
	finished, _ := s.sessions.Finish(sess.ID, stats, err)

	if recErr := s.record(ctx, finished, req, result); recErr != nil {
		log.Err(recErr, "写入运行记录失败")
		if err == nil {
			err = recErr
		}
	}
	if err != nil {
		log.Err(err, "生成失败")
		return nil, err
	}
	return result, nil
}

func (s *Service) generate(ctx context.Context, id model.RunID, req GenerateRequest, rs *rulespec.RuleSet, capture *traffic.Capture,
	actions []traffic.RecordedAction, baseDir string, log logger.Logger) (*GenerateResult, error) {
	h := handler.New(handler.Config{
		Rules:            rs,
		Now:              req.Now,
		ThinkTime:        s.cfg.ThinkTime(),
		RedirectStatuses: s.cfg.Script.RedirectStatuses,
		IgnoreCase:       s.cfg.Script.IgnoreCase,
		Logger:           log,
	})
	script, err := h.Run(capture, actions)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	tables, err := parameter.Tables(rs, func(p string) (int, error) {
		return parameter.CountRecords(source(p))
	})
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{RunID: id, Script: script, Stats: h.Context().Stats}
	w := &writer{dir: req.OutputDir}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	w.file(ActionFileName, render.ActionFile(script, render.Options{ExcludeHeaders: rs.ExcludeHeaders, GeneratedAt: req.Now}))
	w.file(ParameterFileName(script.Name), render.ParameterFile(tables))
	for _, f := range rs.Files {
		w.copy(f.TargetPath, source(f.SourcePath))
	}
	if w.err != nil {
		return nil, w.err
	}
	res.Files = w.written

	summary, err := Summary(res, req.Profile)
	if err != nil {
		return nil, err
	}
	w.file(SummaryFileName, summary)
	if w.err != nil {
		return nil, w.err
	}
	res.Files = w.written
	log.Info("输出已写入", "dir", req.OutputDir, "files", len(res.Files))
	return res, nil
}

// ParameterFileName 参数文件名为去除空白的脚本名
func ParameterFileName(name string) string {
	name = strings.Join(strings.Fields(name), "")
	if name == "" {
		name = "script"
	}
	return name + ".prm"
}

// Summary 生成运行摘要 JSON
func Summary(res *GenerateResult, profile string) (string, error) {
	out := "{}"
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.Set(out, path, v)
		}
	}
	set("runId", string(res.RunID))
	set("name", res.Script.Name)
	set("profile", profile)
	set("stats", res.Stats)
	set("bindings", res.Script.Bindings)
	set("files", res.Files)
	return out, err
}

func (s *Service) record(ctx context.Context, sess session.Session, req GenerateRequest, res *GenerateResult) error {
	if s.store == nil {
		return nil
	}
	run := &storage.Run{
		ID:            string(sess.ID),
		Name:          sess.Name,
		Profile:       req.Profile,
		CapturePath:   req.CapturePath,
		BlueprintPath: req.BlueprintPath,
		OutputDir:     req.OutputDir,
		Status:        storage.RunSucceeded,
		StartedAt:     sess.StartedAt,
		FinishedAt:    sess.FinishedAt,
	}
	run.SetStats(sess.Stats)
	var script *model.Script
	if res != nil {
		script = res.Script
	}
	if sess.Err != nil {
		run.Status = storage.RunFailed
		run.Error = sess.Err.Error()
	}
	return s.store.Record(context.WithoutCancel(ctx), run, script)
}

// writer 写出文件，记录首个错误
type writer struct {
	dir     string
	written []string
	err     error
}

func (w *writer) file(name, content string) {
	if w.err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), []byte(content), 0o644); err != nil {
		w.err = fmt.Errorf("write %s: %w", name, err)
		return
	}
	w.written = append(w.written, name)
}

func (w *writer) copy(target, source string) {
	if w.err != nil {
		return
	}
	dst := filepath.Join(w.dir, target)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		w.err = fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		return
	}
	in, err := os.Open(source)
	if err != nil {
		w.err = fmt.Errorf("open data file: %w", err)
		return
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		w.err = fmt.Errorf("create %s: %w", target, err)
		return
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		w.err = fmt.Errorf("copy %s: %w", target, err)
		return
	}
	if err := out.Close(); err != nil {
		w.err = fmt.Errorf("close %s: %w", target, err)
		return
	}
	w.written = append(w.written, filepath.ToSlash(target))
}
