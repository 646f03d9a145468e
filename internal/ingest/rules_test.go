package ingest_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/purposesproject7/vista-sub001/internal/ingest"
	"github.com/purposesproject7/vista-sub001/internal/model"
)

func panelRows(t *testing.T) []model.UploadRow {
	t.Helper()

	schema, _ := ingest.Lookup(ingest.EntityPanels)
	r := buildSheetBytes(t, []string{"Panel Name", "Faculty Employee IDs", "Venue"}, [][]string{
		{"Panel 1", "50392, 50418", "SJT 501"},
		{"Panel 2", "50501, 50522", "SJT 502"},
		{"Panel 3", "50530", "SJT 503"},
		{"Panel 4", "50540, 50541, 50542", "TT 101"},
		{"Panel 5", "50550, 50551", "TT 102"},
	})
	out, err := ingest.Parse(context.Background(), r, schema)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return out.Rows
}

func TestPanelRowWithSingleMemberFlagged(t *testing.T) {
	schema, _ := ingest.Lookup(ingest.EntityPanels)
	rows := panelRows(t)

	report := ingest.ValidateRows(rows, schema.RowRules())
	if got := report.InvalidRowNumbers(); !reflect.DeepEqual(got, []int{4}) {
		t.Fatalf("invalid rows=%v, want [4]", got)
	}
	if report.Valid != 4 || report.Total != 5 {
		t.Fatalf("report=%+v", report)
	}
	if reasons := report.Reasons(4); len(reasons) != 1 || !strings.Contains(reasons[0], "at least 2") {
		t.Fatalf("reasons=%v", reasons)
	}

	preview := ingest.Preview(rows, report)
	if len(preview) != 5 {
		t.Fatalf("preview rows=%d, want 5", len(preview))
	}
	for _, row := range preview {
		if want := row.RowNumber != 4; row.Valid != want {
			t.Fatalf("row %d valid=%v, want %v", row.RowNumber, row.Valid, want)
		}
	}
	if got := len(ingest.ValidOnly(preview)); got != 4 {
		t.Fatalf("valid rows=%d, want 4", got)
	}
}

func TestValidateRowsDoesNotMutateInput(t *testing.T) {
	schema, _ := ingest.Lookup(ingest.EntityPanels)
	rows := panelRows(t)
	before := make([]model.UploadRow, len(rows))
	copy(before, rows)

	_ = ingest.ValidateRows(rows, schema.RowRules())
	if !reflect.DeepEqual(rows, before) {
		t.Fatalf("input rows mutated")
	}
}

func TestRequiredEmailAndDistinct(t *testing.T) {
	rows := []model.UploadRow{
		{RowNumber: 2, Values: map[string]string{"Employee ID": "1", "Email": "a@vit.ac.in"}},
		{RowNumber: 3, Values: map[string]string{"Employee ID": "", "Email": "not-an-email"}},
		{RowNumber: 4, Values: map[string]string{"Employee ID": "1", "Email": "b@vit.ac.in"}},
	}
	rules := []ingest.Rule{
		ingest.Required("Employee ID"),
		ingest.Email("Email"),
		ingest.Distinct("Employee ID"),
	}

	report := ingest.ValidateRows(rows, rules)
	if got := report.InvalidRowNumbers(); !reflect.DeepEqual(got, []int{3, 4}) {
		t.Fatalf("invalid=%v, want [3 4]", got)
	}
	if got := report.Reasons(3); len(got) != 2 {
		t.Fatalf("row 3 reasons=%v, want required + email", got)
	}
	if got := report.Reasons(4); len(got) != 1 || !strings.Contains(got[0], "duplicates row 2") {
		t.Fatalf("row 4 reasons=%v", got)
	}
}

func TestOneOfAndDigits(t *testing.T) {
	rows := []model.UploadRow{
		{RowNumber: 2, Values: map[string]string{"Type": "Software", "Phone Number": "98765"}},
		{RowNumber: 3, Values: map[string]string{"Type": "research", "Phone Number": "98-765"}},
	}
	report := ingest.ValidateRows(rows, []ingest.Rule{
		ingest.OneOf("Type", "hardware", "software"),
		ingest.Digits("Phone Number"),
	})
	if got := report.InvalidRowNumbers(); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("invalid=%v", got)
	}
	if got := report.Reasons(3); len(got) != 2 {
		t.Fatalf("reasons=%v", got)
	}
}
