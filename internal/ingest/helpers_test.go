package ingest_test

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildSheetBytes 构造只有一个 sheet 的 xlsx
func buildSheetBytes(t *testing.T, header []string, rows [][]string) *bytes.Reader {
	t.Helper()

	wb := excelize.NewFile()
	defer wb.Close()

	if len(header) > 0 {
		if err := wb.SetSheetRow("Sheet1", "A1", &header); err != nil {
			t.Fatalf("SetSheetRow header failed: %v", err)
		}
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("CoordinatesToCellName failed: %v", err)
		}
		row := r
		if err := wb.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow failed: %v", err)
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}
