package model

import "time"

// ValidationResult 校验结果，错误以数据形式返回
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// UploadRow 表格中解析出的一行
type UploadRow struct {
	RowNumber int                 `json:"rowNumber"` // 表格行号（表头为第 1 行）
	Values    map[string]string   `json:"values"`    // 列名 -> 单元格值
	Lists     map[string][]string `json:"lists,omitempty"`
	Valid     bool                `json:"valid"`
	Errors    []string            `json:"errors,omitempty"`
}

// Value 读取列值
func (r UploadRow) Value(column string) string {
	return r.Values[column]
}

// List 读取多值列
func (r UploadRow) List(column string) []string {
	return r.Lists[column]
}

// BatchStatus 上传批次状态
type BatchStatus string

const (
	BatchIdle       BatchStatus = "idle"
	BatchParsing    BatchStatus = "parsing"
	BatchPreviewing BatchStatus = "previewing"
	BatchUploading  BatchStatus = "uploading"
	BatchSuccess    BatchStatus = "success"
	BatchError      BatchStatus = "error"
)

// UploadBatch 一次上传的全部行及其状态
type UploadBatch struct {
	ID          string          `json:"id"`
	Entity      string          `json:"entity"`
	FileName    string          `json:"fileName"`
	FileSize    int64           `json:"fileSize"`
	Context     AcademicContext `json:"context"`
	Status      BatchStatus     `json:"status"`
	Progress    int             `json:"progress"` // 0-100
	Rows        []UploadRow     `json:"rows"`
	ValidRows   int             `json:"validRows"`
	InvalidRows int             `json:"invalidRows"`
	Errors      []string        `json:"errors,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	Result      *SubmitResult   `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Clone 拷贝批次；行数据解析后不再修改，只复制切片
func (b *UploadBatch) Clone() *UploadBatch {
	out := *b
	out.Rows = append([]UploadRow(nil), b.Rows...)
	out.Errors = append([]string(nil), b.Errors...)
	out.Warnings = append([]string(nil), b.Warnings...)
	if b.Result != nil {
		r := *b.Result
		r.Errors = append([]SubmitError(nil), b.Result.Errors...)
		out.Result = &r
	}
	return &out
}

// SubmitError 后端返回的单条失败记录
type SubmitError struct {
	RowNumber int    `json:"rowNumber,omitempty"`
	Key       string `json:"key,omitempty"`
	Message   string `json:"message"`
}

// SubmitResult 批量提交结果（由后端统计）
type SubmitResult struct {
	Created int           `json:"created"`
	Failed  int           `json:"failed"`
	Errors  []SubmitError `json:"errors"`
}
