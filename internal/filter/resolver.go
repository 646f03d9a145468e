package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

var (
	ErrUnknownField  = errors.New("unknown filter field")
	ErrPrefixUnset   = errors.New("previous filter field is not set")
	ErrUnknownOption = errors.New("value is not in the current option set")
	ErrClosed        = errors.New("filter resolver is closed")
	ErrNoProvider    = errors.New("no master data provider")
)

// MasterDataProvider 主数据来源（通常是 masterdata.Cache）
type MasterDataProvider interface {
	MasterData(ctx context.Context) (*model.MasterData, error)
}

// EventType 状态变更事件类型
type EventType string

const (
	EventLoaded   EventType = "loaded"   // 主数据加载完成（或失败）
	EventChanged  EventType = "changed"  // 某字段被设置/清空
	EventComplete EventType = "complete" // 上下文进入完整状态
)

// Event 订阅者收到的事件
type Event struct {
	Type     EventType             `json:"type"`
	Field    model.ContextField    `json:"field,omitempty"`
	Context  model.AcademicContext `json:"context"`
	Complete bool                  `json:"complete"`
}

// Options 创建选择器的参数
type Options struct {
	// Fields 必选字段，必须是 school/programme/year/semester 的前缀；为空时取前三个
	Fields     []model.ContextField
	Master     MasterDataProvider
	OnComplete func(model.AcademicContext)
}

// State 选择器快照
type State struct {
	Fields      []model.ContextField                  `json:"fields"`
	Context     model.AcademicContext                 `json:"context"`
	Options     map[model.ContextField][]model.Option `json:"options"`
	Complete    bool                                  `json:"complete"`
	Loaded      bool                                  `json:"loaded"`
	Completions int                                   `json:"completions"`
}

// Resolver 级联筛选器：school → programme → year (→ semester)
// 上游字段变化时清空所有下游字段并重新计算下游可选项
type Resolver struct {
	mu          sync.Mutex
	fields      []model.ContextField
	master      MasterDataProvider
	data        *model.MasterData
	current     model.AcademicContext
	options     map[model.ContextField][]model.Option
	fired       *model.AcademicContext
	completions int
	onComplete  func(model.AcademicContext)
	subs        map[int]func(Event)
	nextSub     int
	closed      bool

	// 待投递事件，按状态变更顺序排队；delivering 表示已有 goroutine 在投递
	pending    []Event
	delivering bool
}

// New 创建选择器，初始状态所有字段为空
func New(opts Options) (*Resolver, error) {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = model.ContextFieldOrder[:3]
	}
	if len(fields) > len(model.ContextFieldOrder) {
		return nil, fmt.Errorf("too many filter fields: %d", len(fields))
	}
	for i, f := range fields {
		if model.ContextFieldOrder[i] != f {
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownField, f, i)
		}
	}

	r := &Resolver{
		fields:     append([]model.ContextField(nil), fields...),
		master:     opts.Master,
		onComplete: opts.OnComplete,
		options:    make(map[model.ContextField][]model.Option),
		subs:       make(map[int]func(Event)),
	}
	r.recomputeFrom(0)
	return r, nil
}

// Load 拉取主数据并重算全部可选项
// 失败时可选项为空，已选值被清空，完成回调不会触发
func (r *Resolver) Load(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	master := r.master
	r.mu.Unlock()

	if master == nil {
		r.applyMasterData(nil)
		return ErrNoProvider
	}

	data, err := master.MasterData(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		data = nil
	}

	if applied := r.applyMasterData(data); !applied {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("load master data: %w", err)
	}
	return nil
}

func (r *Resolver) applyMasterData(data *model.MasterData) bool {
	r.mu.Lock()
	// 已关闭的选择器丢弃迟到的结果
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.data = data
	r.recomputeFrom(0)
	r.pruneStale()
	r.pending = append(r.pending, Event{Type: EventLoaded, Context: r.current, Complete: r.isComplete()})
	r.pending = append(r.pending, r.transition()...)
	r.mu.Unlock()

	r.flush()
	return true
}

// SetField 设置字段值；空字符串表示清空
// 无论值是否与当前相同，都会清空其后所有字段并重算其后可选项
func (r *Resolver) SetField(field model.ContextField, value string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	idx := r.indexOf(field)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	value = strings.TrimSpace(value)
	if value != "" {
		for _, prev := range r.fields[:idx] {
			if r.current.Get(prev) == "" {
				r.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrPrefixUnset, prev)
			}
		}
		if !containsOption(r.options[field], value) {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s=%q", ErrUnknownOption, field, value)
		}
	}

	r.current = r.current.With(field, value)
	for _, next := range r.fields[idx+1:] {
		r.current = r.current.With(next, "")
	}
	r.recomputeFrom(idx + 1)

	r.pending = append(r.pending, Event{Type: EventChanged, Field: field, Context: r.current, Complete: r.isComplete()})
	r.pending = append(r.pending, r.transition()...)
	r.mu.Unlock()

	r.flush()
	return nil
}

// Restore 按顺序恢复一个已保存的上下文，遇到无效值即停止
func (r *Resolver) Restore(saved model.AcademicContext) error {
	for _, f := range r.Fields() {
		v := saved.Get(f)
		if v == "" {
			return nil
		}
		if err := r.SetField(f, v); err != nil {
			return err
		}
	}
	return nil
}

// Reset 清空所有字段，可选项回到初始状态
func (r *Resolver) Reset() error {
	return r.SetField(model.FieldSchool, "")
}

// Fields 必选字段
func (r *Resolver) Fields() []model.ContextField {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ContextField(nil), r.fields...)
}

// Context 当前上下文
func (r *Resolver) Context() model.AcademicContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Complete 是否所有必选字段都已设置
func (r *Resolver) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isComplete()
}

// Options 字段当前可选项（副本）
func (r *Resolver) Options(field model.ContextField) []model.Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Option(nil), r.options[field]...)
}

// Snapshot 当前状态快照
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := make(map[model.ContextField][]model.Option, len(r.fields))
	for _, f := range r.fields {
		opts[f] = append([]model.Option{}, r.options[f]...)
	}
	return State{
		Fields:      append([]model.ContextField(nil), r.fields...),
		Context:     r.current,
		Options:     opts,
		Complete:    r.isComplete(),
		Loaded:      r.data != nil,
		Completions: r.completions,
	}
}

// Subscribe 订阅状态变更，返回取消函数
func (r *Resolver) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Close 结束生命周期：之后的 Load 结果被丢弃，订阅全部清除
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.subs = make(map[int]func(Event))
	r.onComplete = nil
	r.pending = nil
}

func (r *Resolver) indexOf(field model.ContextField) int {
	for i, f := range r.fields {
		if f == field {
			return i
		}
	}
	return -1
}

func (r *Resolver) isComplete() bool {
	for _, f := range r.fields {
		if r.current.Get(f) == "" {
			return false
		}
	}
	return true
}

// transition 检查是否进入完整状态；同一上下文只通知一次
func (r *Resolver) transition() []Event {
	if !r.isComplete() {
		r.fired = nil
		return nil
	}
	if r.fired != nil && *r.fired == r.current {
		return nil
	}
	snapshot := r.current
	r.fired = &snapshot
	r.completions++
	return []Event{{Type: EventComplete, Context: snapshot, Complete: true}}
}

// recomputeFrom 重算 fields[start:] 的可选项
func (r *Resolver) recomputeFrom(start int) {
	for i := start; i < len(r.fields); i++ {
		f := r.fields[i]
		r.options[f] = deriveOptions(f, r.current, r.data)
	}
}

// pruneStale 主数据刷新后，清掉不再出现在可选项中的已选值及其下游
func (r *Resolver) pruneStale() {
	for i, f := range r.fields {
		v := r.current.Get(f)
		if v == "" || containsOption(r.options[f], v) {
			continue
		}
		for _, next := range r.fields[i:] {
			r.current = r.current.With(next, "")
		}
		r.recomputeFrom(i + 1)
		return
	}
}

// flush 投递排队的事件
// 同一时刻只有一个 goroutine 投递，并发的 SetField 只入队，
// 因此回调看到的顺序与状态变更顺序一致
func (r *Resolver) flush() {
	r.mu.Lock()
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true
	for len(r.pending) > 0 {
		events := r.pending
		r.pending = nil
		subs := make([]func(Event), 0, len(r.subs))
		for _, fn := range r.subs {
			subs = append(subs, fn)
		}
		onComplete := r.onComplete
		r.mu.Unlock()

		for _, ev := range events {
			if ev.Type == EventComplete && onComplete != nil {
				onComplete(ev.Context)
			}
			for _, fn := range subs {
				fn(ev)
			}
		}
		r.mu.Lock()
	}
	r.delivering = false
	r.mu.Unlock()
}

func containsOption(options []model.Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
