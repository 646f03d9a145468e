package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VISTA_PORT", "VISTA_HOST", "VISTA_BACKEND_URL", "VISTA_BACKEND_TOKEN", "VISTA_BACKEND_TIMEOUT",
		"VISTA_UPLOAD_MAX_BYTES", "VISTA_UPLOAD_POLICY", "VISTA_MASTERDATA_REFRESH",
		"VISTA_LOG_LEVEL", "VISTA_LOG_FORMAT", "VISTA_LOG_OUTPUT", "VISTA_LOG_FILE", "VISTA_DATA_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, info, err := LoadConfigWithInfo(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadConfigWithInfo failed: %v", err)
	}
	if info.Found || info.PortSpecified {
		t.Fatalf("info=%+v", info)
	}
	if cfg.Server.Port != 20261 || cfg.Upload.MaxBytes != 5*1024*1024 || cfg.Filter.DefaultFields != 3 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestTomlAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
[server]
port = 8088

[backend]
base_url = "http://portal.local/api"
timeout_seconds = 10

[upload]
max_bytes = 1048576
default_policy = "all_or_nothing"

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VISTA_BACKEND_TOKEN=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("VISTA_LOG_LEVEL", "warn")
	// .env 不覆盖已存在的变量；t.Setenv 的清理会恢复原值
	os.Unsetenv("VISTA_BACKEND_TOKEN")

	cfg, info, err := LoadConfigWithInfo(path)
	if err != nil {
		t.Fatalf("LoadConfigWithInfo failed: %v", err)
	}
	if !info.Found || !info.PortSpecified || info.EnvFile == "" {
		t.Fatalf("info=%+v", info)
	}
	if cfg.Server.Port != 8088 || cfg.Backend.BaseURL != "http://portal.local/api" || cfg.Upload.MaxBytes != 1048576 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Backend.Token != "from-dotenv" {
		t.Fatalf("token=%q", cfg.Backend.Token)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Fatalf("log=%+v", cfg.Log)
	}
	if cfg.Upload.DefaultPolicy != "all_or_nothing" {
		t.Fatalf("policy=%q", cfg.Upload.DefaultPolicy)
	}
	// 未在文件中出现的字段保持默认值
	if cfg.Data.DatabaseFile != "vista.db" {
		t.Fatalf("database file=%q", cfg.Data.DatabaseFile)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[log]\noutput = \"file\"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := LoadConfigWithInfo(path)
	if err == nil || !strings.Contains(err.Error(), "FilePath") {
		t.Fatalf("err=%v, want FilePath validation error", err)
	}

	t.Setenv("VISTA_PORT", "not-a-number")
	if _, _, err := LoadConfigWithInfo(filepath.Join(t.TempDir(), "config.toml")); err == nil {
		t.Fatalf("expected VISTA_PORT parse error")
	}
}

func TestPathsAndDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.DataDir = t.TempDir()
	if got := DatabasePath(cfg); got != filepath.Join(cfg.Data.DataDir, "vista.db") {
		t.Fatalf("db path=%q", got)
	}
	if cfg.MasterDataTTL().Seconds() != 300 || cfg.BatchTTL().Minutes() != 30 {
		t.Fatalf("durations: %v %v", cfg.MasterDataTTL(), cfg.BatchTTL())
	}
	if cfg.Addr() != ":20261" {
		t.Fatalf("addr=%q", cfg.Addr())
	}
}

func TestUploadRules(t *testing.T) {
	cfg := DefaultConfig()
	rules := cfg.UploadRules()
	if rules.MaxBytes != 5*1024*1024 || len(rules.AllowedExtensions) != 2 {
		t.Fatalf("default rules=%+v", rules)
	}

	cfg.Upload.MaxBytes = 1024
	cfg.Upload.AllowedExtensions = []string{".xlsx"}
	rules = cfg.UploadRules()
	if rules.MaxBytes != 1024 || len(rules.AllowedExtensions) != 1 || len(rules.AllowedTypes) != 2 {
		t.Fatalf("rules=%+v", rules)
	}
}
