package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

var validate = validator.New()

// Rule 行校验规则；返回 行下标 -> 原因
type Rule interface {
	Check(rows []model.UploadRow) map[int][]string
}

// RowFunc 单行规则
type RowFunc func(row model.UploadRow) []string

// Check 实现 Rule
func (f RowFunc) Check(rows []model.UploadRow) map[int][]string {
	out := make(map[int][]string)
	for i, row := range rows {
		if reasons := f(row); len(reasons) > 0 {
			out[i] = reasons
		}
	}
	return out
}

// Required 必填列
func Required(columns ...string) Rule {
	return RowFunc(func(row model.UploadRow) []string {
		var reasons []string
		for _, c := range columns {
			if strings.TrimSpace(row.Value(c)) == "" {
				reasons = append(reasons, fmt.Sprintf("%s is required", c))
			}
		}
		return reasons
	})
}

// Email 邮箱格式（空值由 Required 负责）
func Email(column string) Rule {
	return tagRule(column, "email", "%s must be a valid email address")
}

// Digits 只允许数字（空值跳过）
func Digits(column string) Rule {
	return tagRule(column, "number", "%s must contain digits only")
}

func tagRule(column, tag, message string) Rule {
	return RowFunc(func(row model.UploadRow) []string {
		v := strings.TrimSpace(row.Value(column))
		if v == "" {
			return nil
		}
		if err := validate.Var(v, tag); err != nil {
			return []string{fmt.Sprintf(message, column)}
		}
		return nil
	})
}

// MinItems 多值列至少 n 个值
func MinItems(column string, n int) Rule {
	return RowFunc(func(row model.UploadRow) []string {
		if got := len(row.List(column)); got < n {
			return []string{fmt.Sprintf("%s must contain at least %d comma-separated values (found %d)", column, n, got)}
		}
		return nil
	})
}

// MaxItems 多值列至多 n 个值
func MaxItems(column string, n int) Rule {
	return RowFunc(func(row model.UploadRow) []string {
		if got := len(row.List(column)); got > n {
			return []string{fmt.Sprintf("%s must contain at most %d comma-separated values (found %d)", column, n, got)}
		}
		return nil
	})
}

// OneOf 取值范围（大小写不敏感，空值跳过）
func OneOf(column string, allowed ...string) Rule {
	return RowFunc(func(row model.UploadRow) []string {
		v := strings.TrimSpace(row.Value(column))
		if v == "" {
			return nil
		}
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s must be one of: %s", column, strings.Join(allowed, ", "))}
	})
}

type distinctRule struct {
	column string
}

// Distinct 同一文件内该列不允许重复（大小写不敏感）
func Distinct(column string) Rule {
	return distinctRule{column: column}
}

func (r distinctRule) Check(rows []model.UploadRow) map[int][]string {
	first := make(map[string]int)
	out := make(map[int][]string)
	for i, row := range rows {
		key := strings.ToLower(strings.TrimSpace(row.Value(r.column)))
		if key == "" {
			continue
		}
		if j, ok := first[key]; ok {
			out[i] = append(out[i], fmt.Sprintf("%s %q duplicates row %d", r.column, row.Value(r.column), rows[j].RowNumber))
			continue
		}
		first[key] = i
	}
	return out
}

// RowIssue 某一行的全部问题
type RowIssue struct {
	RowNumber int      `json:"rowNumber"`
	Reasons   []string `json:"reasons"`
}

// RowReport 行校验报告
type RowReport struct {
	Total   int        `json:"total"`
	Valid   int        `json:"valid"`
	Invalid []RowIssue `json:"invalid"`
}

// InvalidRowNumbers 无效行号（升序）
func (r RowReport) InvalidRowNumbers() []int {
	out := make([]int, 0, len(r.Invalid))
	for _, issue := range r.Invalid {
		out = append(out, issue.RowNumber)
	}
	return out
}

// Reasons 某行的问题，无问题返回 nil
func (r RowReport) Reasons(rowNumber int) []string {
	for _, issue := range r.Invalid {
		if issue.RowNumber == rowNumber {
			return issue.Reasons
		}
	}
	return nil
}

// ValidateRows 对每行应用规则，不修改输入
func ValidateRows(rows []model.UploadRow, rules []Rule) RowReport {
	byIndex := make(map[int][]string)
	for _, rule := range rules {
		for i, reasons := range rule.Check(rows) {
			byIndex[i] = append(byIndex[i], reasons...)
		}
	}

	indexes := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	report := RowReport{Total: len(rows), Invalid: make([]RowIssue, 0, len(indexes))}
	for _, i := range indexes {
		report.Invalid = append(report.Invalid, RowIssue{RowNumber: rows[i].RowNumber, Reasons: byIndex[i]})
	}
	report.Valid = report.Total - len(report.Invalid)
	return report
}

// Preview 返回带有效性标记的副本；无效行保留
func Preview(rows []model.UploadRow, report RowReport) []model.UploadRow {
	out := make([]model.UploadRow, len(rows))
	for i, row := range rows {
		row.Errors = report.Reasons(row.RowNumber)
		row.Valid = len(row.Errors) == 0
		out[i] = row
	}
	return out
}

// ValidOnly 仅保留有效行
func ValidOnly(rows []model.UploadRow) []model.UploadRow {
	out := make([]model.UploadRow, 0, len(rows))
	for _, row := range rows {
		if row.Valid {
			out = append(out, row)
		}
	}
	return out
}
