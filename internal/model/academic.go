package model

import "fmt"

// ContextField 学术上下文字段，按 school → programme → year → semester 排序
type ContextField string

const (
	FieldSchool    ContextField = "school"
	FieldProgramme ContextField = "programme"
	FieldYear      ContextField = "year"
	FieldSemester  ContextField = "semester"
)

// ContextFieldOrder 完整字段顺序
var ContextFieldOrder = []ContextField{FieldSchool, FieldProgramme, FieldYear, FieldSemester}

var fieldLabels = map[ContextField]string{
	FieldSchool:    "School",
	FieldProgramme: "Programme",
	FieldYear:      "Year",
	FieldSemester:  "Semester",
}

// Label 字段显示名
func (f ContextField) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

// AcademicContext 页面当前操作的学术上下文
// 约束：某字段非空时，其左侧所有字段必须非空
type AcademicContext struct {
	School    string `json:"school"`
	Programme string `json:"programme"`
	Year      string `json:"year"`
	Semester  string `json:"semester,omitempty"`
}

// Get 读取字段值
func (c AcademicContext) Get(field ContextField) string {
	switch field {
	case FieldSchool:
		return c.School
	case FieldProgramme:
		return c.Programme
	case FieldYear:
		return c.Year
	case FieldSemester:
		return c.Semester
	}
	return ""
}

// With 返回设置了指定字段的副本
func (c AcademicContext) With(field ContextField, value string) AcademicContext {
	switch field {
	case FieldSchool:
		c.School = value
	case FieldProgramme:
		c.Programme = value
	case FieldYear:
		c.Year = value
	case FieldSemester:
		c.Semester = value
	}
	return c
}

// Problems 检查上下文：required 中的字段必须非空，已设置字段左侧的字段也必须已设置
// 返回可读的错误信息，无问题返回 nil
func (c AcademicContext) Problems(required []ContextField) []string {
	var out []string
	for _, f := range required {
		if c.Get(f) == "" {
			out = append(out, f.Label()+" is required")
		}
	}
	for i, f := range ContextFieldOrder {
		if c.Get(f) == "" {
			continue
		}
		for _, prev := range ContextFieldOrder[:i] {
			if c.Get(prev) == "" {
				out = append(out, fmt.Sprintf("%s is set but %s is not", f.Label(), prev.Label()))
				break
			}
		}
	}
	return out
}

// Option 下拉可选项
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// School 学院
type School struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Programme 专业，归属于某个学院
type Programme struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	School string `json:"school"`
}

// AcademicYear 学年，如 "2024-25"
type AcademicYear struct {
	ID   string `json:"id"`
	Year string `json:"year"`
}

// Semester 学期
type Semester struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MasterData 主数据：学院/专业/学年/学期
type MasterData struct {
	Schools       []School       `json:"schools"`
	Programmes    []Programme    `json:"programs"`
	AcademicYears []AcademicYear `json:"academicYears"`
	Semesters     []Semester     `json:"semesters"`
}

// DefaultSemesters 后端未返回学期时使用的固定列表
func DefaultSemesters() []Semester {
	return []Semester{
		{ID: "FALL", Name: "Fall Semester"},
		{ID: "WINTER", Name: "Winter Semester"},
	}
}
