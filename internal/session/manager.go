package session

import (
	"sort"
	"sync"
	"time"

	"harscript/internal/logger"
	"harscript/pkg/model"
)

// State 运行状态
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Session 一次生成运行的状态快照
type Session struct {
	ID         model.RunID
	Name       string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      model.RunStats
	Err        error
}

// Manager 运行注册表
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.RunID]*Session
	log      logger.Logger
	now      func() time.Time
}

// NewManager 创建运行注册表
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.RunID]*Session),
		log:      l,
		now:      time.Now,
	}
}

// Create 创建并注册新运行
func (m *Manager) Create(name string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{ID: model.NewRunID(), Name: name, State: StateRunning, StartedAt: m.now()}
	m.sessions[s.ID] = s
	m.log.Info("开始生成", "runId", string(s.ID), "name", name)
	return s
}

// Finish 记录运行结果，err 非空时标记为失败
func (m *Manager) Finish(id model.RunID, stats model.RunStats, err error) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	s.FinishedAt = m.now()
	s.Stats = stats
	s.Err = err
	s.State = StateSucceeded
	if err != nil {
		s.State = StateFailed
	}
	m.log.Info("生成结束", "runId", string(id), "state", string(s.State), "elapsedMs", s.FinishedAt.Sub(s.StartedAt).Milliseconds())
	return *s, true
}

// Get 获取运行快照
func (m *Manager) Get(id model.RunID) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Delete 移除运行
func (m *Manager) Delete(id model.RunID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	m.log.Debug("移除运行记录", "runId", string(id))
}

// List 按开始时间返回全部运行快照
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
	return list
}

// Running 返回仍在运行中的数量
func (m *Manager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.State == StateRunning {
			n++
		}
	}
	return n
}
