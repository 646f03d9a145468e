package appstate

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

const (
	schemaVersion = 1
	stateFileName = "admin_state.json"

	// DefaultSaveDelay 合并连续修改的防抖时长
	DefaultSaveDelay = time.Second
)

// ErrNotLoaded Load 之前不允许读写
var ErrNotLoaded = errors.New("admin state not loaded")

// AdminState 某个管理员最近选择的学术上下文
type AdminState struct {
	Context   model.AcademicContext `json:"context"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

type stateFile struct {
	SchemaVersion int                   `json:"schemaVersion"`
	LastAdminID   string                `json:"lastAdminId,omitempty"`
	Admins        map[string]AdminState `json:"admins"`
}

// Manager 进程级管理员状态：启动时 Load，修改后防抖保存，退出前 SaveNow
// 通过句柄传递，不使用全局变量
type Manager struct {
	dataDir   string
	saveDelay time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	loaded    bool
	dirty     bool
	state     stateFile
	saveTimer *time.Timer
}

// Options 管理器选项
type Options struct {
	SaveDelay time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewManager 创建管理器，不读取磁盘
func NewManager(dataDir string, opts Options) (*Manager, error) {
	if dataDir == "" {
		return nil, errors.New("dataDir is required")
	}
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		dataDir:   dataDir,
		saveDelay: opts.SaveDelay,
		logger:    opts.Logger,
		now:       opts.Now,
		state:     stateFile{SchemaVersion: schemaVersion, Admins: map[string]AdminState{}},
	}, nil
}

// Path 状态文件路径
func (m *Manager) Path() string {
	return filepath.Join(m.dataDir, stateFileName)
}

// Load 从磁盘加载；文件不存在时写入空状态
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.Path()
	if !fileExists(path) {
		m.loaded = true
		return writeJSONAtomic(path, m.state)
	}

	var st stateFile
	if err := readJSON(path, &st); err != nil {
		return fmt.Errorf("read admin state: %w", err)
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = schemaVersion
	}
	if st.Admins == nil {
		st.Admins = map[string]AdminState{}
	}
	m.state = st
	m.loaded = true
	m.dirty = false
	m.logger.Debug("admin state loaded", "path", path, "admins", len(st.Admins))
	return nil
}

// Context 管理员上次选择的上下文
func (m *Manager) Context(adminID string) (model.AcademicContext, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return model.AcademicContext{}, false, ErrNotLoaded
	}
	st, ok := m.state.Admins[adminID]
	return st.Context, ok, nil
}

// SetContext 记录管理员的上下文并安排保存
func (m *Manager) SetContext(adminID string, ctx model.AcademicContext) error {
	if adminID == "" {
		return errors.New("adminId is required")
	}

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	prev, ok := m.state.Admins[adminID]
	if ok && prev.Context == ctx && m.state.LastAdminID == adminID {
		m.mu.Unlock()
		return nil
	}
	m.state.Admins[adminID] = AdminState{Context: ctx, UpdatedAt: m.now().UTC()}
	m.state.LastAdminID = adminID
	m.dirty = true
	m.mu.Unlock()

	m.ScheduleSave()
	return nil
}

// ClearContext 删除管理员的上下文
func (m *Manager) ClearContext(adminID string) error {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	if _, ok := m.state.Admins[adminID]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.state.Admins, adminID)
	if m.state.LastAdminID == adminID {
		m.state.LastAdminID = ""
	}
	m.dirty = true
	m.mu.Unlock()

	m.ScheduleSave()
	return nil
}

// Admins 已记录的管理员 ID（排序）
func (m *Manager) Admins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.state.Admins))
	for id := range m.state.Admins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LastAdminID 最近一次修改上下文的管理员
func (m *Manager) LastAdminID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastAdminID
}

// SaveNow 立即保存（无修改时跳过）
func (m *Manager) SaveNow() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveNowLocked()
}

func (m *Manager) saveNowLocked() error {
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	if !m.loaded || !m.dirty {
		return nil
	}
	if err := writeJSONAtomic(m.Path(), m.state); err != nil {
		return fmt.Errorf("write admin state: %w", err)
	}
	m.dirty = false
	return nil
}

// ScheduleSave 防抖保存
func (m *Manager) ScheduleSave() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return
	}
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.saveDelay, func() {
		if err := m.SaveNow(); err != nil {
			m.logger.Warn("admin state autosave failed", "error", err)
		}
	})
}
