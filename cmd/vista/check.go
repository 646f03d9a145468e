package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/purposesproject7/vista-sub001/internal/ingest"
)

// errInvalidRows 表格中存在无效行
var errInvalidRows = errors.New("spreadsheet has invalid rows")

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <entity> <file>",
		Short: "Validate a spreadsheet locally without uploading",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.loadConfig()
			if err != nil {
				return err
			}
			report, err := checkFile(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], cfg.UploadRules())
			if err != nil {
				return err
			}
			if len(report.Invalid) > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidRows, len(report.Invalid), report.Total)
			}
			return nil
		},
	}
}

// checkFile 文件校验 -> 解析 -> 行校验，并打印报告
func checkFile(ctx context.Context, w io.Writer, entity, path string, rules ingest.FileRules) (ingest.RowReport, error) {
	schema, ok := ingest.Lookup(entity)
	if !ok {
		return ingest.RowReport{}, fmt.Errorf("unknown entity %q (one of %s)", entity, strings.Join(ingest.Entities(), ", "))
	}

	out, err := parseLocalFile(ctx, path, schema, rules)
	if err != nil {
		return ingest.RowReport{}, err
	}
	if len(out.Unknown) > 0 {
		printWarning(w, "ignored columns: %s", strings.Join(out.Unknown, ", "))
	}

	report := ingest.ValidateRows(out.Rows, schema.RowRules())
	printReport(w, filepath.Base(path), report)
	return report, nil
}

// parseLocalFile 本地文件按上传同样的规则校验并解析
func parseLocalFile(ctx context.Context, path string, schema ingest.Schema, rules ingest.FileRules) (*ingest.ParseOutput, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	// 浏览器会给出 MIME 类型；本地文件按扩展名判断
	info := &ingest.FileInfo{Name: filepath.Base(path), Size: st.Size()}
	if res := ingest.ValidateFile(info, rules); !res.IsValid {
		return nil, errors.New(strings.Join(res.Errors, "; "))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.Parse(ctx, f, schema)
}

func printReport(w io.Writer, name string, report ingest.RowReport) {
	printBold(w, "%s: %d rows", name, report.Total)
	if len(report.Invalid) == 0 {
		printSuccess(w, "all %d rows are valid", report.Valid)
		return
	}
	printInfo(w, "%d valid, %d invalid", report.Valid, len(report.Invalid))
	for _, issue := range report.Invalid {
		printError(w, "row %d: %s", issue.RowNumber, strings.Join(issue.Reasons, "; "))
	}
}
