package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const instructionsSheet = "Instructions"

// GenerateTemplate 生成上传模板：表头 + 示例行，另附说明页
func GenerateTemplate(schema Schema) (*excelize.File, error) {
	if len(schema.Columns) == 0 {
		return nil, errors.New("schema has no columns")
	}

	sheet := schema.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}

	wb := excelize.NewFile()
	if err := wb.SetSheetName("Sheet1", sheet); err != nil {
		wb.Close()
		return nil, err
	}

	header := schema.Header()
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		wb.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	examples := schema.Examples
	if len(examples) > 5 {
		examples = examples[:5]
	}
	for i, ex := range examples {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			wb.Close()
			return nil, err
		}
		row := make([]interface{}, len(header))
		for j := range header {
			if j < len(ex) {
				row[j] = ex[j]
			}
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			wb.Close()
			return nil, fmt.Errorf("write example row %d: %w", i+2, err)
		}
	}

	if err := styleHeader(wb, sheet, len(header)); err != nil {
		wb.Close()
		return nil, err
	}
	if err := writeInstructions(wb, schema); err != nil {
		wb.Close()
		return nil, err
	}

	idx, err := wb.GetSheetIndex(sheet)
	if err == nil {
		wb.SetActiveSheet(idx)
	}
	return wb, nil
}

// WriteTemplate 生成模板并写出
func WriteTemplate(w io.Writer, schema Schema) error {
	wb, err := GenerateTemplate(schema)
	if err != nil {
		return err
	}
	defer wb.Close()
	return wb.Write(w)
}

// TemplateFileName 模板下载文件名
func TemplateFileName(schema Schema) string {
	return fmt.Sprintf("%s_template.xlsx", strings.ToLower(schema.Entity))
}

func styleHeader(wb *excelize.File, sheet string, n int) error {
	style, err := wb.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(n)
	if err != nil {
		return err
	}
	if err := wb.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return err
	}
	return wb.SetColWidth(sheet, "A", last, 24)
}

func writeInstructions(wb *excelize.File, schema Schema) error {
	if _, err := wb.NewSheet(instructionsSheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Column", "Required", "Format"},
	}
	for _, c := range schema.Columns {
		required := "No"
		if c.Required {
			required = "Yes"
		}
		format := c.Hint
		if format == "" {
			format = "text"
		}
		rows = append(rows, []interface{}{c.Name, required, format})
	}
	rows = append(rows,
		[]interface{}{},
		[]interface{}{"Keep the header row unchanged. Fill one record per row on the first sheet."},
	)

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := r
		if err := wb.SetSheetRow(instructionsSheet, cell, &row); err != nil {
			return err
		}
	}
	return wb.SetColWidth(instructionsSheet, "A", "C", 28)
}
