package filter

import "github.com/purposesproject7/vista-sub001/internal/model"

// deriveOptions 根据上游选择计算字段可选项
//
// 专业按学院过滤；学年、学期只要求上一字段已选，不按其取值过滤。
func deriveOptions(field model.ContextField, current model.AcademicContext, data *model.MasterData) []model.Option {
	if data == nil {
		return []model.Option{}
	}

	switch field {
	case model.FieldSchool:
		out := make([]model.Option, 0, len(data.Schools))
		for _, s := range data.Schools {
			out = append(out, model.Option{Value: s.Code, Label: labelOr(s.Name, s.Code)})
		}
		return out

	case model.FieldProgramme:
		if current.School == "" {
			return []model.Option{}
		}
		out := make([]model.Option, 0)
		for _, p := range data.Programmes {
			if p.School != current.School {
				continue
			}
			out = append(out, model.Option{Value: p.Code, Label: labelOr(p.Name, p.Code)})
		}
		return out

	case model.FieldYear:
		if current.Programme == "" {
			return []model.Option{}
		}
		out := make([]model.Option, 0, len(data.AcademicYears))
		for _, y := range data.AcademicYears {
			out = append(out, model.Option{Value: y.Year, Label: y.Year})
		}
		return out

	case model.FieldSemester:
		if current.Year == "" {
			return []model.Option{}
		}
		semesters := data.Semesters
		if len(semesters) == 0 {
			semesters = model.DefaultSemesters()
		}
		out := make([]model.Option, 0, len(semesters))
		for _, s := range semesters {
			out = append(out, model.Option{Value: s.ID, Label: labelOr(s.Name, s.ID)})
		}
		return out
	}
	return []model.Option{}
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
