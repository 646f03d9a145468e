package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/purposesproject7/vista-sub001/internal/config"
)

// Setup 初始化日志并设置为默认 logger
// 返回的 closer 在输出为文件时关闭文件
func Setup(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	var (
		writer io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("log file path is required when output is 'file'")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer, closer = file, file
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	handler, err := newHandler(writer, cfg.Format, level, cfg.AddSource)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	l.Debug("logger initialized", "level", cfg.Level, "format", cfg.Format, "output", cfg.Output)
	return l, closer, nil
}

// New 不修改全局默认 logger，CLI 子命令与测试使用
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	h, err := newHandler(w, format, lvl, false)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

// Discard 丢弃所有输出
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(w io.Writer, format string, level slog.Level, addSource bool) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String("time", a.Value.Time().Format("2006-01-02T15:04:05.000Z07:00"))
			}
			return a
		},
	}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
