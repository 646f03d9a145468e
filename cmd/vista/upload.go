package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/purposesproject7/vista-sub001/internal/backend"
	"github.com/purposesproject7/vista-sub001/internal/config"
	"github.com/purposesproject7/vista-sub001/internal/importer"
	"github.com/purposesproject7/vista-sub001/internal/ingest"
	"github.com/purposesproject7/vista-sub001/internal/logger"
	"github.com/purposesproject7/vista-sub001/internal/model"
	"github.com/purposesproject7/vista-sub001/internal/store"
)

type uploadOptions struct {
	academic model.AcademicContext
	adminID  string
	policy   string
	dryRun   bool
	noLog    bool
}

func newUploadCmd(root *rootOptions) *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload <entity> <file>",
		Short: "Validate a spreadsheet and submit it to the backend in one bulk request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.loadConfig()
			if err != nil {
				return err
			}
			if opts.policy == "" {
				opts.policy = cfg.Upload.DefaultPolicy
			}
			return runUpload(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVar(&opts.academic.School, "school", "", "school code (required)")
	cmd.Flags().StringVar(&opts.academic.Programme, "programme", "", "programme code (required)")
	cmd.Flags().StringVar(&opts.academic.Year, "year", "", "academic year, e.g. 2024-25 (required)")
	cmd.Flags().StringVar(&opts.academic.Semester, "semester", "", "semester")
	cmd.Flags().StringVar(&opts.adminID, "admin", "", "admin id recorded in the upload log")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "valid_only or all_or_nothing (default from config)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "stop after the preview")
	cmd.Flags().BoolVar(&opts.noLog, "no-log", false, "do not record the upload in the local database")
	_ = cmd.MarkFlagRequired("school")
	_ = cmd.MarkFlagRequired("programme")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func runUpload(ctx context.Context, w io.Writer, cfg *config.AppConfig, entity, path string, opts uploadOptions) error {
	policy, err := importer.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}

	log, closer, err := logger.Setup(config.LogConfig{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	defer closer.Close()

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.BackendTimeout(),
		Logger:  log,
	})
	if err != nil && !(opts.dryRun && errors.Is(err, backend.ErrNotConfigured)) {
		return fmt.Errorf("backend: %w", err)
	}

	coordOpts := importer.Options{
		FileRules: cfg.UploadRules(),
		Logger:    log,
	}
	if client != nil {
		coordOpts.Creator = client
	}
	if !opts.noLog {
		if _, err := config.EnsureDataDir(cfg); err != nil {
			return err
		}
		st, err := store.New(config.DatabasePath(cfg))
		if err != nil {
			return err
		}
		defer st.Close()
		coordOpts.Log = st
	}
	coord := importer.NewCoordinator(coordOpts)

	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	batch, err := coord.Prepare(ctx, importer.PrepareOptions{
		Entity:  entity,
		File:    &ingest.FileInfo{Name: filepath.Base(path), Size: st.Size()},
		Reader:  f,
		Context: opts.academic,
		AdminID: opts.adminID,
	})
	if err != nil {
		return err
	}
	if batch.Status == model.BatchError {
		for _, msg := range batch.Errors {
			printError(w, "%s", msg)
		}
		return errors.New("upload rejected")
	}
	printPreview(w, batch)
	if opts.dryRun {
		return nil
	}

	events, err := coord.Submit(ctx, batch.ID, policy)
	if err != nil {
		return err
	}
	var last importer.ProgressEvent
	for evt := range events {
		last = evt
		if evt.Type == importer.EventProgress {
			printInfo(w, "%3d%% %s", evt.Progress, evt.Message)
		}
	}

	final, err := coord.Get(batch.ID)
	if err != nil {
		return err
	}
	if final.Status != model.BatchSuccess || final.Result == nil {
		return fmt.Errorf("upload failed: %s", last.Message)
	}
	printResult(w, final.Result)
	if final.Result.Failed > 0 {
		return fmt.Errorf("%d records rejected by the backend", final.Result.Failed)
	}
	return nil
}

func printPreview(w io.Writer, b *model.UploadBatch) {
	printBold(w, "%s: %d rows for %s / %s / %s", b.FileName, len(b.Rows), b.Context.School, b.Context.Programme, b.Context.Year)
	for _, warn := range b.Warnings {
		printWarning(w, "%s", warn)
	}
	for _, row := range b.Rows {
		if !row.Valid {
			printError(w, "row %d skipped: %v", row.RowNumber, row.Errors)
		}
	}
	printInfo(w, "%d valid, %d invalid", b.ValidRows, b.InvalidRows)
}

func printResult(w io.Writer, r *model.SubmitResult) {
	printSuccess(w, "created %d", r.Created)
	if r.Failed == 0 {
		return
	}
	printError(w, "failed %d", r.Failed)
	for _, e := range r.Errors {
		switch {
		case e.RowNumber > 0:
			printError(w, "row %d (%s): %s", e.RowNumber, e.Key, e.Message)
		case e.Key != "":
			printError(w, "%s: %s", e.Key, e.Message)
		default:
			printError(w, "%s", e.Message)
		}
	}
}
