package masterdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

const (
	// DefaultTTL 缓存有效期
	DefaultTTL = 5 * time.Minute
	// DefaultFetchTimeout 单次拉取超时
	DefaultFetchTimeout = 15 * time.Second

	flightKey = "master-data"
)

// ErrNoSource 未配置数据源
var ErrNoSource = errors.New("master data source not configured")

// Source 主数据来源（通常是后端客户端）
type Source interface {
	MasterData(ctx context.Context) (*model.MasterData, error)
}

// SourceFunc 函数适配
type SourceFunc func(ctx context.Context) (*model.MasterData, error)

// MasterData 实现 Source
func (f SourceFunc) MasterData(ctx context.Context) (*model.MasterData, error) {
	return f(ctx)
}

// Options 缓存选项
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Cache 进程内共享的主数据缓存
// 并发请求合并为一次拉取；失败不缓存；写操作后调用 Invalidate
type Cache struct {
	src     Source
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.RWMutex
	data       *model.MasterData
	fetchedAt  time.Time
	generation uint64

	group singleflight.Group

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New 创建缓存
func New(src Source, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		src:     src,
		ttl:     opts.TTL,
		timeout: opts.FetchTimeout,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// MasterData 返回缓存的主数据，过期或为空时拉取
// 返回值为共享只读数据，调用方不得修改
func (c *Cache) MasterData(ctx context.Context) (*model.MasterData, error) {
	if data, ok := c.fresh(); ok {
		return data, nil
	}
	return c.load(ctx)
}

// Refresh 忽略 TTL 强制拉取
func (c *Cache) Refresh(ctx context.Context) error {
	c.group.Forget(flightKey)
	_, err := c.load(ctx)
	return err
}

// Invalidate 丢弃缓存，正在进行的拉取结果也不会写入
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.data = nil
	c.fetchedAt = time.Time{}
	c.generation++
	c.mu.Unlock()
	c.group.Forget(flightKey)
	c.logger.Debug("master data invalidated")
}

// Age 距上次成功拉取的时长；无缓存时返回 0, false
func (c *Cache) Age() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		return 0, false
	}
	return c.now().Sub(c.fetchedAt), true
}

func (c *Cache) fresh() (*model.MasterData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.data, true
}

func (c *Cache) load(ctx context.Context) (*model.MasterData, error) {
	if c.src == nil {
		return nil, ErrNoSource
	}

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.fetch(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.MasterData), nil
	}
}

// fetch 与发起者的取消解耦，其他等待者仍可拿到结果
func (c *Cache) fetch(parent context.Context) (*model.MasterData, error) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	start := c.now()
	data, err := c.src.MasterData(ctx)
	if err != nil {
		c.logger.Warn("master data fetch failed", "error", err)
		return nil, fmt.Errorf("fetch master data: %w", err)
	}
	if data == nil {
		data = &model.MasterData{}
	}

	c.mu.Lock()
	if c.generation == gen {
		c.data = data
		c.fetchedAt = c.now()
	}
	c.mu.Unlock()

	c.logger.Debug("master data fetched",
		"schools", len(data.Schools),
		"programmes", len(data.Programmes),
		"years", len(data.AcademicYears),
		"elapsed", c.now().Sub(start),
	)
	return data, nil
}

// StartRefresh 按 cron 表达式定时刷新，表达式为空则不启动
func (c *Cache) StartRefresh(schedule string) error {
	if schedule == "" {
		return nil
	}

	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		return errors.New("refresh already started")
	}

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sched.AddFunc(schedule, func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.Warn("scheduled master data refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	sched.Start()
	c.cron = sched
	c.logger.Info("master data refresh scheduled", "schedule", schedule)
	return nil
}

// Stop 停止定时刷新并等待正在执行的任务
func (c *Cache) Stop() {
	c.cronMu.Lock()
	sched := c.cron
	c.cron = nil
	c.cronMu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
}
