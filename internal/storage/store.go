package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"harscript/internal/logger"
	"harscript/pkg/model"

	"github.com/glebarez/sqlite"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// 运行状态
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run 一次脚本生成的记录
type Run struct {
	ID            string `gorm:"primaryKey;size:36"`
	Name          string
	Profile       string
	CapturePath   string
	BlueprintPath string
	OutputDir     string
	Status        string `gorm:"index"`
	Error         string
	Entries       int
	Excluded      int
	Groups        int
	Requests      int
	Correlations  int
	Promotions    int
	Transactions  int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SetStats 写入统计信息
func (r *Run) SetStats(s model.RunStats) {
	r.Entries = s.Entries
	r.Excluded = s.Excluded
	r.Groups = s.Groups
	r.Requests = s.Requests
	r.Correlations = s.Correlations
	r.Promotions = s.Promotions
	r.Transactions = s.Transactions
}

// Correlation 一次关联匹配，Values 为 JSON 数组
type Correlation struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:36"`
	EntryIndex int
	Rule       string
	ParamName  string
	Values     string
}

// ValueList 解码捕获值列表
func (c *Correlation) ValueList() []string {
	var out []string
	for _, v := range gjson.Parse(c.Values).Array() {
		out = append(out, v.String())
	}
	return out
}

// Binding 生成结束时参数名到录制值的绑定
type Binding struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"index;size:36"`
	Name  string
	Value string
}

// Options 数据库选项
type Options struct {
	Dsn    string
	Prefix string
	Logger logger.Logger
}

// Store 运行记录存储
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开数据库并迁移表结构
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(opts.Dsn), &gorm.Config{
		Logger:         NewGormLogger(opts.Logger),
		NamingStrategy: schema.NamingStrategy{TablePrefix: opts.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite 单写者
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Run{}, &Correlation{}, &Binding{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	opts.Logger.Debug("运行记录库已打开", "dsn", opts.Dsn)
	return &Store{db: db, log: opts.Logger}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record 在一个事务中写入运行记录、关联匹配与绑定。script 为空时只写运行记录。
func (s *Store) Record(ctx context.Context, run *Run, script *model.Script) error {
	ctx = WithRunID(ctx, run.ID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if script == nil {
			return nil
		}

		var corrs []Correlation
		for _, g := range script.Groups() {
			for _, sr := range g.Requests() {
				for _, m := range sr.Correlations {
					values, err := encodeValues(m.Values)
					if err != nil {
						return err
					}
					corrs = append(corrs, Correlation{
						RunID:      run.ID,
						EntryIndex: sr.EntryIndex,
						Rule:       m.Rule.Name,
						ParamName:  m.ParamName,
						Values:     values,
					})
				}
			}
		}
		if len(corrs) > 0 {
			if err := tx.Create(&corrs).Error; err != nil {
				return err
			}
		}

		bindings := make([]Binding, 0, len(script.Bindings))
		for name, v := range script.Bindings {
			bindings = append(bindings, Binding{RunID: run.ID, Name: name, Value: v})
		}
		if len(bindings) > 0 {
			return tx.Create(&bindings).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	s.log.Debug("运行记录已写入", "runId", run.ID, "status", run.Status)
	return nil
}

func encodeValues(values []string) (string, error) {
	out := "[]"
	for i, v := range values {
		var err error
		if out, err = sjson.Set(out, strconv.Itoa(i), v); err != nil {
			return "", err
		}
	}
	return out, nil
}

// GetRun 按ID查询运行记录
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := s.db.WithContext(WithRunID(ctx, id)).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 按开始时间倒序返回最近的运行记录，limit 不大于 0 时不限制
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Correlations 返回运行的关联匹配，按条目顺序
func (s *Store) Correlations(ctx context.Context, runID string) ([]Correlation, error) {
	var out []Correlation
	err := s.db.WithContext(WithRunID(ctx, runID)).
		Where("run_id = ?", runID).
		Order("entry_index, id").
		Find(&out).Error
	return out, err
}

// Bindings 返回运行的参数绑定
func (s *Store) Bindings(ctx context.Context, runID string) (map[string]string, error) {
	var rows []Binding
	if err := s.db.WithContext(WithRunID(ctx, runID)).Where("run_id = ?", runID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, b := range rows {
		out[b.Name] = b.Value
	}
	return out, nil
}
