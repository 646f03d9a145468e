package model

import (
	"reflect"
	"testing"
)

func TestContextProblems(t *testing.T) {
	required := []ContextField{FieldSchool, FieldProgramme, FieldYear}
	tests := []struct {
		name string
		ctx  AcademicContext
		want []string
	}{
		{"complete", AcademicContext{School: "SCOPE", Programme: "BCE", Year: "2024-25"}, nil},
		{"with semester", AcademicContext{School: "SCOPE", Programme: "BCE", Year: "2024-25", Semester: "Fall"}, nil},
		{"year only", AcademicContext{Year: "2024-25"}, []string{
			"School is required",
			"Programme is required",
			"Year is set but School is not",
		}},
		{"semester without year", AcademicContext{School: "SCOPE", Programme: "BCE", Semester: "Fall"}, []string{
			"Year is required",
			"Semester is set but Year is not",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.Problems(required); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Problems()=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestProblemsWithoutRequiredOnlyChecksOrder(t *testing.T) {
	if got := (AcademicContext{}).Problems(nil); got != nil {
		t.Fatalf("empty context: %q", got)
	}
	got := AcademicContext{Programme: "BCE"}.Problems(nil)
	if len(got) != 1 || got[0] != "Programme is set but School is not" {
		t.Fatalf("got %q", got)
	}
}
