package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/purposesproject7/vista-sub001/internal/logger"
	"github.com/purposesproject7/vista-sub001/internal/server"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	port    int
	devMode bool
	dataDir string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (only used when config.toml does not set server.port)")
	cmd.Flags().BoolVar(&opts.devMode, "dev", false, "development mode")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides config)")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts serveOptions) error {
	cfg, info, err := root.loadConfig()
	if err != nil {
		return err
	}

	// 命令行参数覆盖配置
	if opts.port > 0 && !info.PortSpecified {
		cfg.Server.Port = opts.port
	}
	if opts.devMode {
		cfg.Server.DevMode = true
	}
	if opts.dataDir != "" {
		cfg.Data.DataDir = opts.dataDir
	}

	log, closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if info.Found {
		log.Info("config loaded", "path", info.Path)
	} else {
		log.Info("config file not found, using defaults", "path", info.Path)
	}
	if info.EnvFile != "" {
		log.Info("env file loaded", "path", info.EnvFile)
	}

	srv, err := server.New(cfg, log, version)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		// 启动失败（端口占用等）
		srv.Close()
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
		return err
	}
	return nil
}
