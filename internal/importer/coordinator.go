package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/purposesproject7/vista-sub001/internal/ingest"
	"github.com/purposesproject7/vista-sub001/internal/model"
	"github.com/purposesproject7/vista-sub001/internal/store"
)

var (
	// ErrUnknownEntity 不支持的上传实体
	ErrUnknownEntity = errors.New("unknown upload entity")
	// ErrBatchNotFound 批次不存在或已过期
	ErrBatchNotFound = errors.New("upload batch not found")
	// ErrBatchNotReady 批次当前状态不允许提交
	ErrBatchNotReady = errors.New("upload batch is not ready for submission")
)

// DefaultBatchTTL 预览批次在内存中保留的时长
const DefaultBatchTTL = 30 * time.Minute

// RequiredContext 上传批次必须设置的上下文字段，学期可选
var RequiredContext = []model.ContextField{model.FieldSchool, model.FieldProgramme, model.FieldYear}

// SubmitPolicy 批次含无效行时的提交策略
type SubmitPolicy string

const (
	// PolicyValidOnly 只提交有效行，无效行留在预览里
	PolicyValidOnly SubmitPolicy = "valid_only"
	// PolicyAllOrNothing 存在无效行时拒绝提交
	PolicyAllOrNothing SubmitPolicy = "all_or_nothing"
)

// ParsePolicy 解析策略字符串，空值取默认
func ParsePolicy(s string) (SubmitPolicy, error) {
	switch SubmitPolicy(s) {
	case "", PolicyValidOnly:
		return PolicyValidOnly, nil
	case PolicyAllOrNothing:
		return PolicyAllOrNothing, nil
	default:
		return "", fmt.Errorf("unknown submit policy %q", s)
	}
}

// BatchLog 上传记录持久化
type BatchLog interface {
	CreateUploadLog(ctx context.Context, l store.UploadLog) error
	UpdateUploadLog(ctx context.Context, l store.UploadLog) error
}

// Options 协调器选项
type Options struct {
	Creator   ingest.BulkCreator
	Log       BatchLog
	FileRules ingest.FileRules
	BatchTTL  time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// Coordinator 上传批次协调器：校验 -> 解析 -> 行校验 -> 预览 -> 提交
type Coordinator struct {
	creator ingest.BulkCreator
	log     BatchLog
	rules   ingest.FileRules
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	batches map[string]*batchEntry
}

type batchEntry struct {
	batch   *model.UploadBatch
	adminID string
	expires time.Time
}

// NewCoordinator 创建协调器
func NewCoordinator(opts Options) *Coordinator {
	if opts.FileRules.MaxBytes <= 0 && len(opts.FileRules.AllowedTypes) == 0 {
		opts.FileRules = ingest.DefaultFileRules()
	}
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = DefaultBatchTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		creator: opts.Creator,
		log:     opts.Log,
		rules:   opts.FileRules,
		ttl:     opts.BatchTTL,
		logger:  opts.Logger,
		now:     opts.Now,
		batches: make(map[string]*batchEntry),
	}
}

// FileRules 当前生效的文件规则
func (c *Coordinator) FileRules() ingest.FileRules {
	return c.rules
}

// PrepareOptions 预览选项
type PrepareOptions struct {
	Entity  string
	File    *ingest.FileInfo
	Reader  io.Reader
	Context model.AcademicContext
	AdminID string
}

// Prepare 校验并解析上传文件，返回预览批次
// 文件或行校验失败以批次状态与错误信息返回，不作为 error
func (c *Coordinator) Prepare(ctx context.Context, opts PrepareOptions) (*model.UploadBatch, error) {
	schema, ok := ingest.Lookup(opts.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, opts.Entity)
	}

	now := c.now()
	batch := &model.UploadBatch{
		ID:        uuid.NewString(),
		Entity:    schema.Entity,
		Context:   opts.Context,
		Status:    model.BatchIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.File != nil {
		batch.FileName = opts.File.Name
		batch.FileSize = opts.File.Size
	}

	// 上下文与文件问题一并报告
	problems := opts.Context.Problems(RequiredContext)
	if res := ingest.ValidateFile(opts.File, c.rules); !res.IsValid {
		problems = append(problems, res.Errors...)
	}
	if len(problems) > 0 {
		c.fail(batch, problems...)
		c.remember(ctx, batch, opts.AdminID)
		return batch.Clone(), nil
	}
	if opts.Reader == nil {
		return nil, errors.New("no file content")
	}

	batch.Status = model.BatchParsing
	out, err := ingest.Parse(ctx, opts.Reader, schema)
	if err != nil {
		var pe *ingest.ParseError
		if !errors.As(err, &pe) {
			return nil, err
		}
		c.fail(batch, pe.Error())
		c.remember(ctx, batch, opts.AdminID)
		return batch.Clone(), nil
	}

	report := ingest.ValidateRows(out.Rows, schema.RowRules())
	batch.Rows = ingest.Preview(out.Rows, report)
	batch.ValidRows = report.Valid
	batch.InvalidRows = len(report.Invalid)
	batch.Status = model.BatchPreviewing
	batch.Progress = 0
	batch.UpdatedAt = c.now()
	if len(out.Unknown) > 0 {
		batch.Warnings = append(batch.Warnings, fmt.Sprintf("Ignored columns: %v", out.Unknown))
	}

	c.logger.Info("upload previewed",
		"batch", batch.ID,
		"entity", batch.Entity,
		"file", batch.FileName,
		"rows", len(batch.Rows),
		"invalid", batch.InvalidRows,
	)
	c.remember(ctx, batch, opts.AdminID)
	return batch.Clone(), nil
}

// Get 返回批次快照
func (c *Coordinator) Get(id string) (*model.UploadBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	e, ok := c.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return e.batch.Clone(), nil
}

// Submit 提交预览批次，返回进度通道
// 提交与请求方的取消解耦：已开始的 bulk 请求会完成并记录结果
func (c *Coordinator) Submit(ctx context.Context, id string, policy SubmitPolicy) (<-chan ProgressEvent, error) {
	c.mu.Lock()
	c.sweepLocked()
	e, ok := c.batches[id]
	if !ok {
		c.mu.Unlock()
		return nil, ErrBatchNotFound
	}
	if !submittable(e.batch) {
		status := e.batch.Status
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (status %s)", ErrBatchNotReady, status)
	}

	rows, err := selectRows(e.batch, policy)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	e.batch.Status = model.BatchUploading
	e.batch.Progress = 0
	e.batch.Errors = nil
	e.batch.UpdatedAt = c.now()
	e.expires = c.now().Add(c.ttl)
	batch := e.batch.Clone()
	adminID := e.adminID
	c.mu.Unlock()

	progressChan := make(chan ProgressEvent, 16)
	go func() {
		defer close(progressChan)
		c.doSubmit(context.WithoutCancel(ctx), batch, rows, adminID, progressChan)
	}()
	return progressChan, nil
}

func submittable(b *model.UploadBatch) bool {
	switch b.Status {
	case model.BatchPreviewing:
		return true
	case model.BatchError:
		// 提交阶段失败（网络等）可以重试；文件/解析失败不行
		return len(b.Rows) > 0 && b.Result == nil
	default:
		return false
	}
}

func selectRows(b *model.UploadBatch, policy SubmitPolicy) ([]model.UploadRow, error) {
	switch policy {
	case PolicyAllOrNothing:
		if b.InvalidRows > 0 {
			return nil, fmt.Errorf("%w: %d invalid rows must be fixed first", ErrBatchNotReady, b.InvalidRows)
		}
		return b.Rows, nil
	case PolicyValidOnly, "":
		rows := ingest.ValidOnly(b.Rows)
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: no valid rows", ErrBatchNotReady)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unknown submit policy %q", policy)
	}
}

// doSubmit 执行提交逻辑
func (c *Coordinator) doSubmit(ctx context.Context, batch *model.UploadBatch, rows []model.UploadRow, adminID string, progressChan chan ProgressEvent) {
	schema, _ := ingest.Lookup(batch.Entity)

	c.sendProgress(progressChan, ProgressEvent{
		Type:      EventStart,
		Message:   fmt.Sprintf("Uploading %d %s records", len(rows), batch.Entity),
		Progress:  0,
		Data:      map[string]interface{}{"batchId": batch.ID, "rows": len(rows), "skipped": len(batch.Rows) - len(rows)},
		Timestamp: c.now(),
	})
	c.setProgress(batch.ID, 10)
	c.sendProgress(progressChan, ProgressEvent{
		Type:      EventProgress,
		Message:   "Sending bulk request",
		Progress:  10,
		Timestamp: c.now(),
	})

	result, err := ingest.Submit(ctx, schema, rows, batch.Context, c.creator)
	if err != nil {
		c.logger.Warn("bulk submit failed", "batch", batch.ID, "entity", batch.Entity, "error", err)
		final := c.finish(ctx, batch.ID, adminID, nil, err)
		c.sendProgress(progressChan, ProgressEvent{
			Type:      EventError,
			Message:   err.Error(),
			Progress:  final.Progress,
			Data:      final,
			Timestamp: c.now(),
		})
		return
	}

	final := c.finish(ctx, batch.ID, adminID, &result, nil)
	c.sendProgress(progressChan, ProgressEvent{
		Type:      EventDone,
		Message:   fmt.Sprintf("Created %d, failed %d", result.Created, result.Failed),
		Progress:  100,
		Data:      final,
		Timestamp: c.now(),
	})
}

func (c *Coordinator) setProgress(id string, progress int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.batches[id]; ok {
		e.batch.Progress = progress
		e.batch.UpdatedAt = c.now()
	}
}

// finish 写入终态并更新上传记录
func (c *Coordinator) finish(ctx context.Context, id, adminID string, result *model.SubmitResult, submitErr error) *model.UploadBatch {
	c.mu.Lock()
	e, ok := c.batches[id]
	if !ok {
		c.mu.Unlock()
		return &model.UploadBatch{ID: id, Status: model.BatchError}
	}
	b := e.batch
	b.UpdatedAt = c.now()
	if submitErr != nil {
		b.Status = model.BatchError
		b.Errors = []string{submitErr.Error()}
	} else {
		b.Status = model.BatchSuccess
		b.Progress = 100
		b.Result = result
	}
	snapshot := b.Clone()
	c.mu.Unlock()

	if c.log != nil {
		if err := c.log.UpdateUploadLog(ctx, store.LogFromBatch(snapshot, adminID)); err != nil {
			c.logger.Warn("update upload log failed", "batch", id, "error", err)
		}
	}
	return snapshot
}

func (c *Coordinator) fail(batch *model.UploadBatch, messages ...string) {
	batch.Status = model.BatchError
	batch.Errors = append(batch.Errors, messages...)
	batch.UpdatedAt = c.now()
}

// remember 保存批次并写入上传记录
func (c *Coordinator) remember(ctx context.Context, batch *model.UploadBatch, adminID string) {
	c.mu.Lock()
	c.sweepLocked()
	c.batches[batch.ID] = &batchEntry{
		batch:   batch,
		adminID: adminID,
		expires: c.now().Add(c.ttl),
	}
	c.mu.Unlock()

	if c.log != nil {
		if err := c.log.CreateUploadLog(ctx, store.LogFromBatch(batch, adminID)); err != nil {
			c.logger.Warn("create upload log failed", "batch", batch.ID, "error", err)
		}
	}
}

func (c *Coordinator) sweepLocked() {
	now := c.now()
	for id, e := range c.batches {
		if e.batch.Status != model.BatchUploading && now.After(e.expires) {
			delete(c.batches, id)
		}
	}
}

// sendProgress 发送进度事件
func (c *Coordinator) sendProgress(ch chan ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
	default:
		// 通道已满，丢弃事件
	}
}
