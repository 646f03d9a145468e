package ingest

import (
	"strings"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// Column 模板中的一列
type Column struct {
	Name     string   `json:"name"`              // 表头名
	Key      string   `json:"key"`               // 提交给后端的字段名
	Aliases  []string `json:"aliases,omitempty"` // 可识别的别名
	Required bool     `json:"required"`
	Multi    bool     `json:"multi"` // 逗号分隔的多值列
	Hint     string   `json:"hint,omitempty"`
}

// Schema 一类实体的批量上传格式
type Schema struct {
	Entity    string     `json:"entity"`
	Title     string     `json:"title"`
	Sheet     string     `json:"sheet"`
	KeyColumn string     `json:"keyColumn"` // 用于把后端错误定位到行
	Columns   []Column   `json:"columns"`
	Examples  [][]string `json:"examples"`
	Rules     []Rule     `json:"-"`
}

// Columns 以列名快速构造一组必填列
func Columns(names ...string) []Column {
	out := make([]Column, 0, len(names))
	for _, n := range names {
		out = append(out, Column{Name: n, Key: fieldKey(n), Required: true})
	}
	return out
}

// RequiredColumns 必填列名（按模板顺序）
func (s Schema) RequiredColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Required {
			out = append(out, c.Name)
		}
	}
	return out
}

// Header 模板表头
func (s Schema) Header() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// RowRules 必填检查 + 实体自定义规则
func (s Schema) RowRules() []Rule {
	rules := make([]Rule, 0, len(s.Rules)+1)
	if req := s.RequiredColumns(); len(req) > 0 {
		rules = append(rules, Required(req...))
	}
	return append(rules, s.Rules...)
}

// Record 把一行转换成后端 bulk 接口需要的对象
func (s Schema) Record(row model.UploadRow, academic model.AcademicContext) map[string]any {
	rec := make(map[string]any, len(s.Columns)+4)
	for _, c := range s.Columns {
		if c.Multi {
			if items := row.List(c.Name); len(items) > 0 {
				rec[c.Key] = items
			}
			continue
		}
		if v := row.Value(c.Name); v != "" {
			rec[c.Key] = v
		}
	}

	if academic.School != "" {
		rec["school"] = academic.School
	}
	if academic.Programme != "" {
		rec["program"] = academic.Programme
	}
	if academic.Year != "" {
		rec["academicYear"] = academic.Year
	}
	if academic.Semester != "" {
		rec["semester"] = academic.Semester
	}
	return rec
}

// fieldKey "Employee ID" -> "employeeId"
func fieldKey(name string) string {
	parts := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	var b strings.Builder
	for i, p := range parts {
		if i == 0 {
			b.WriteString(strings.ToLower(p))
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}
