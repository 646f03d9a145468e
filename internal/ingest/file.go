package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

const (
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS  = "application/vnd.ms-excel"

	// DefaultMaxBytes 默认上传上限 5 MB
	DefaultMaxBytes int64 = 5 * 1024 * 1024
)

// FileInfo 上传文件的元信息
type FileInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// FileRules 文件级校验规则，由调用方提供
type FileRules struct {
	AllowedTypes []string `json:"allowedTypes" toml:"allowed_types"`
	// AllowedExtensions 浏览器只给出通用类型（空或 octet-stream）时按扩展名判断
	AllowedExtensions []string `json:"allowedExtensions" toml:"allowed_extensions"`
	MaxBytes          int64    `json:"maxBytes" toml:"max_bytes"`
}

// DefaultFileRules .xlsx/.xls，5 MB
func DefaultFileRules() FileRules {
	return FileRules{
		AllowedTypes:      []string{MimeXLSX, MimeXLS},
		AllowedExtensions: []string{".xlsx", ".xls"},
		MaxBytes:          DefaultMaxBytes,
	}
}

// ValidateFile 校验文件类型和大小；两类错误同时报告
func ValidateFile(f *FileInfo, rules FileRules) model.ValidationResult {
	if f == nil {
		return model.ValidationResult{IsValid: false, Errors: []string{"No file selected"}}
	}

	errs := make([]string, 0, 2)
	if !typeAllowed(f, rules) {
		errs = append(errs, fmt.Sprintf("Invalid file type. Please upload %s", describeExtensions(rules)))
	}
	if rules.MaxBytes > 0 && f.Size > rules.MaxBytes {
		errs = append(errs, fmt.Sprintf("File size must be less than %s", formatBytes(rules.MaxBytes)))
	}

	return model.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func typeAllowed(f *FileInfo, rules FileRules) bool {
	if len(rules.AllowedTypes) == 0 && len(rules.AllowedExtensions) == 0 {
		return true
	}

	ct := strings.ToLower(strings.TrimSpace(f.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, t := range rules.AllowedTypes {
		if strings.EqualFold(ct, t) {
			return true
		}
	}

	if ct != "" && ct != "application/octet-stream" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	for _, e := range rules.AllowedExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func describeExtensions(rules FileRules) string {
	if len(rules.AllowedExtensions) == 0 {
		return "a supported file"
	}
	return "an Excel file (" + strings.Join(rules.AllowedExtensions, " or ") + ")"
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	const kb = 1024
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= mb:
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%dKB", n/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
