package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// ParseErrorKind 解析失败类型
type ParseErrorKind string

const (
	ParseEmptySheet     ParseErrorKind = "empty_sheet"
	ParseMissingColumns ParseErrorKind = "missing_columns"
	ParseUnreadable     ParseErrorKind = "unreadable"
)

// ParseError 解析失败（表为空 / 缺少必填列 / 文件无法打开）
type ParseError struct {
	Kind    ParseErrorKind
	Missing []string
	Err     error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ParseEmptySheet:
		return "The uploaded sheet is empty"
	case ParseMissingColumns:
		return "Missing required columns: " + strings.Join(e.Missing, ", ")
	default:
		if e.Err != nil {
			return "Unable to read the spreadsheet: " + e.Err.Error()
		}
		return "Unable to read the spreadsheet"
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseOutput 解析产物
type ParseOutput struct {
	Sheet   string            `json:"sheet"`
	Header  []string          `json:"header"`
	Matched map[string]string `json:"matched"` // 模板列名 -> 实际表头
	Unknown []string          `json:"unknown"` // 未识别的表头
	Rows    []model.UploadRow `json:"rows"`
}

// Parse 读取整份文件后解析第一个 sheet
// 第一行为表头，其后每行一条记录；行号 = 下标 + 2
func Parse(ctx context.Context, r io.Reader, schema Schema) (*ParseOutput, error) {
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ParseError{Kind: ParseUnreadable, Err: err}
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Kind: ParseUnreadable, Err: err}
	}
	defer wb.Close()

	return ParseWorkbook(ctx, wb, schema)
}

// ParseWorkbook 解析已打开的工作簿
func ParseWorkbook(ctx context.Context, wb *excelize.File, schema Schema) (*ParseOutput, error) {
	if wb == nil {
		return nil, &ParseError{Kind: ParseUnreadable, Err: errors.New("workbook is nil")}
	}
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Kind: ParseEmptySheet}
	}
	sheet := sheets[0]

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Kind: ParseUnreadable, Err: err}
	}
	if len(rows) == 0 || isBlankRow(rows[0]) {
		return nil, &ParseError{Kind: ParseEmptySheet}
	}

	header := rows[0]
	colIndex, missing := matchColumns(header, schema.Columns)
	if len(missing) > 0 {
		return nil, &ParseError{Kind: ParseMissingColumns, Missing: missing}
	}

	out := &ParseOutput{
		Sheet:   sheet,
		Header:  header,
		Matched: make(map[string]string, len(colIndex)),
		Unknown: unknownHeaders(header, colIndex),
		Rows:    make([]model.UploadRow, 0, len(rows)-1),
	}
	for name, idx := range colIndex {
		out.Matched[name] = strings.TrimSpace(header[idx])
	}

	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isBlankRow(row) {
			continue
		}
		out.Rows = append(out.Rows, buildRow(row, i+2, schema.Columns, colIndex))
	}

	if len(out.Rows) == 0 {
		return nil, &ParseError{Kind: ParseEmptySheet}
	}
	return out, nil
}

func buildRow(cells []string, rowNumber int, columns []Column, colIndex map[string]int) model.UploadRow {
	row := model.UploadRow{
		RowNumber: rowNumber,
		Values:    make(map[string]string, len(columns)),
	}
	for _, c := range columns {
		idx, ok := colIndex[c.Name]
		if !ok {
			continue
		}
		v := getCell(cells, idx)
		row.Values[c.Name] = v
		if c.Multi {
			if row.Lists == nil {
				row.Lists = make(map[string][]string)
			}
			row.Lists[c.Name] = SplitList(v)
		}
	}
	return row
}

// SplitList 逗号分隔的多值单元格
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// matchColumns 先精确匹配列名/别名，再做大小写、空白不敏感匹配
func matchColumns(header []string, columns []Column) (map[string]int, []string) {
	colIndex := make(map[string]int, len(columns))
	used := make(map[int]bool, len(header))
	var missing []string

	for _, c := range columns {
		idx := findExactCol(header, used, append([]string{c.Name}, c.Aliases...))
		if idx < 0 {
			idx = findNormalizedCol(header, used, append([]string{c.Name}, c.Aliases...))
		}
		if idx < 0 {
			if c.Required {
				missing = append(missing, c.Name)
			}
			continue
		}
		colIndex[c.Name] = idx
		used[idx] = true
	}
	return colIndex, missing
}

func findExactCol(headers []string, used map[int]bool, wants []string) int {
	for _, want := range wants {
		for i, h := range headers {
			if !used[i] && strings.TrimSpace(h) == want {
				return i
			}
		}
	}
	return -1
}

func findNormalizedCol(headers []string, used map[int]bool, wants []string) int {
	for _, want := range wants {
		w := NormalizeHeader(want)
		for i, h := range headers {
			if !used[i] && NormalizeHeader(h) == w {
				return i
			}
		}
	}
	return -1
}

var headerNoiseRe = regexp.MustCompile(`[\s_*]+`)

// NormalizeHeader 规范化表头：去空白、下划线、必填星号，转小写
func NormalizeHeader(name string) string {
	return strings.ToLower(headerNoiseRe.ReplaceAllString(strings.TrimSpace(name), ""))
}

func unknownHeaders(header []string, colIndex map[string]int) []string {
	matched := make(map[int]bool, len(colIndex))
	for _, idx := range colIndex {
		matched[idx] = true
	}
	out := make([]string, 0)
	for i, h := range header {
		if h = strings.TrimSpace(h); h != "" && !matched[i] {
			out = append(out, h)
		}
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ctxReader 读取过程中响应取消
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if c.r == nil {
		return 0, fmt.Errorf("no file selected")
	}
	return c.r.Read(p)
}
