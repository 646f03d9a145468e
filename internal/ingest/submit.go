package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// ErrNothingToSubmit 没有可提交的行
var ErrNothingToSubmit = errors.New("no rows to submit")

// BulkCreator 后端批量创建接口
type BulkCreator interface {
	BulkCreate(ctx context.Context, entity string, records []map[string]any) (model.SubmitResult, error)
}

// Submit 把整批数据作为一次 bulk 请求提交；不做重试
// 后端按记录 key 返回的错误会回填对应的表格行号
func Submit(ctx context.Context, schema Schema, rows []model.UploadRow, academic model.AcademicContext, target BulkCreator) (model.SubmitResult, error) {
	if len(rows) == 0 {
		return model.SubmitResult{}, ErrNothingToSubmit
	}
	if target == nil {
		return model.SubmitResult{}, errors.New("no bulk target configured")
	}

	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		records = append(records, schema.Record(row, academic))
	}

	result, err := target.BulkCreate(ctx, schema.Entity, records)
	if err != nil {
		return model.SubmitResult{}, err
	}

	attachRowNumbers(&result, schema, rows)
	return result, nil
}

func attachRowNumbers(result *model.SubmitResult, schema Schema, rows []model.UploadRow) {
	if schema.KeyColumn == "" {
		return
	}
	byKey := make(map[string]int, len(rows))
	for _, row := range rows {
		if k := strings.ToLower(strings.TrimSpace(row.Value(schema.KeyColumn))); k != "" {
			byKey[k] = row.RowNumber
		}
	}
	for i := range result.Errors {
		e := &result.Errors[i]
		if e.RowNumber != 0 || e.Key == "" {
			continue
		}
		if n, ok := byKey[strings.ToLower(strings.TrimSpace(e.Key))]; ok {
			e.RowNumber = n
		}
	}
}
