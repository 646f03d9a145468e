package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// UploadLog 一次上传批次的记录
type UploadLog struct {
	ID           string                `json:"id"`
	Entity       string                `json:"entity"`
	FileName     string                `json:"fileName"`
	FileSize     int64                 `json:"fileSize"`
	AdminID      string                `json:"adminId,omitempty"`
	Context      model.AcademicContext `json:"context"`
	Status       model.BatchStatus     `json:"status"`
	TotalRows    int                   `json:"totalRows"`
	ValidRows    int                   `json:"validRows"`
	InvalidRows  int                   `json:"invalidRows"`
	Created      int                   `json:"created"`
	Failed       int                   `json:"failed"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
}

// LogFromBatch 从批次生成记录
func LogFromBatch(b *model.UploadBatch, adminID string) UploadLog {
	l := UploadLog{
		ID:          b.ID,
		Entity:      b.Entity,
		FileName:    b.FileName,
		FileSize:    b.FileSize,
		AdminID:     adminID,
		Context:     b.Context,
		Status:      b.Status,
		TotalRows:   len(b.Rows),
		ValidRows:   b.ValidRows,
		InvalidRows: b.InvalidRows,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	if len(b.Errors) > 0 {
		l.ErrorMessage = strings.Join(b.Errors, "; ")
	}
	if b.Result != nil {
		l.Created = b.Result.Created
		l.Failed = b.Result.Failed
	}
	return l
}

// CreateUploadLog 写入新记录
func (s *Store) CreateUploadLog(ctx context.Context, l UploadLog) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_logs (
			id, entity, file_name, file_size, admin_id,
			school, programme, academic_year, semester,
			status, total_rows, valid_rows, invalid_rows,
			created_count, failed_count, error_message,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.Entity, l.FileName, l.FileSize, l.AdminID,
		l.Context.School, l.Context.Programme, l.Context.Year, l.Context.Semester,
		string(l.Status), l.TotalRows, l.ValidRows, l.InvalidRows,
		l.Created, l.Failed, l.ErrorMessage,
		l.CreatedAt.UTC(), l.UpdatedAt.UTC(), completedAt(l.Status, l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create upload log: %w", err)
	}
	return nil
}

// UpdateUploadLog 更新状态与统计；终态时写入 completed_at
func (s *Store) UpdateUploadLog(ctx context.Context, l UploadLog) error {
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE upload_logs SET
			status = ?,
			total_rows = ?,
			valid_rows = ?,
			invalid_rows = ?,
			created_count = ?,
			failed_count = ?,
			error_message = ?,
			updated_at = ?,
			completed_at = COALESCE(?, completed_at)
		WHERE id = ?
	`, string(l.Status), l.TotalRows, l.ValidRows, l.InvalidRows,
		l.Created, l.Failed, l.ErrorMessage,
		l.UpdatedAt.UTC(), completedAt(l.Status, l.UpdatedAt), l.ID)
	if err != nil {
		return fmt.Errorf("failed to update upload log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUploadLog 按批次 ID 查询
func (s *Store) GetUploadLog(ctx context.Context, id string) (*UploadLog, error) {
	row := s.db.QueryRowContext(ctx, selectUploadLog+` WHERE id = ?`, id)
	l, err := scanUploadLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload log: %w", err)
	}
	return l, nil
}

// ListFilter 查询条件
type ListFilter struct {
	Entity string
	Limit  int
}

// ListUploadLogs 最近的上传记录，按创建时间倒序
func (s *Store) ListUploadLogs(ctx context.Context, f ListFilter) ([]UploadLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}

	query := selectUploadLog
	args := make([]interface{}, 0, 2)
	if f.Entity != "" {
		query += ` WHERE entity = ?`
		args = append(args, f.Entity)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	defer rows.Close()

	out := make([]UploadLog, 0)
	for rows.Next() {
		l, err := scanUploadLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload log: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// PruneUploadLogs 删除早于 before 的记录，返回删除条数
func (s *Store) PruneUploadLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upload_logs WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune upload logs: %w", err)
	}
	return res.RowsAffected()
}

const selectUploadLog = `
	SELECT id, entity, file_name, file_size, admin_id,
		school, programme, academic_year, semester,
		status, total_rows, valid_rows, invalid_rows,
		created_count, failed_count, error_message,
		created_at, updated_at, completed_at
	FROM upload_logs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUploadLog(sc scanner) (*UploadLog, error) {
	var (
		l         UploadLog
		status    string
		completed sql.NullTime
	)
	err := sc.Scan(
		&l.ID, &l.Entity, &l.FileName, &l.FileSize, &l.AdminID,
		&l.Context.School, &l.Context.Programme, &l.Context.Year, &l.Context.Semester,
		&status, &l.TotalRows, &l.ValidRows, &l.InvalidRows,
		&l.Created, &l.Failed, &l.ErrorMessage,
		&l.CreatedAt, &l.UpdatedAt, &completed,
	)
	if err != nil {
		return nil, err
	}
	l.Status = model.BatchStatus(status)
	if completed.Valid {
		t := completed.Time
		l.CompletedAt = &t
	}
	return &l, nil
}

func completedAt(status model.BatchStatus, at time.Time) interface{} {
	if status == model.BatchSuccess || status == model.BatchError {
		return at.UTC()
	}
	return nil
}
