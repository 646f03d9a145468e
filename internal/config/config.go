package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/purposesproject7/vista-sub001/internal/ingest"
)

// FileName 默认配置文件名
const FileName = "config.toml"

// AppConfig 应用配置
type AppConfig struct {
	Server     ServerConfig     `toml:"server"`
	Backend    BackendConfig    `toml:"backend"`
	Upload     UploadConfig     `toml:"upload"`
	MasterData MasterDataConfig `toml:"masterdata"`
	Filter     FilterConfig     `toml:"filter"`
	Log        LogConfig        `toml:"log"`
	Data       DataConfig       `toml:"data"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port" validate:"min=1,max=65535"`
	DevMode     bool     `toml:"dev_mode"`
	CORSOrigins []string `toml:"cors_origins"`
}

// BackendConfig 门户后端
type BackendConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=0"`
}

// UploadConfig 上传规则
type UploadConfig struct {
	MaxBytes          int64    `toml:"max_bytes" validate:"min=1"`
	AllowedTypes      []string `toml:"allowed_types"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	BatchTTLMinutes   int      `toml:"batch_ttl_minutes" validate:"min=0"`
	DefaultPolicy     string   `toml:"default_policy" validate:"omitempty,oneof=valid_only all_or_nothing"`
}

// MasterDataConfig 主数据缓存
type MasterDataConfig struct {
	TTLSeconds      int    `toml:"ttl_seconds" validate:"min=0"`
	RefreshSchedule string `toml:"refresh_schedule"`
}

// FilterConfig 筛选会话
type FilterConfig struct {
	SessionTTLMinutes int `toml:"session_ttl_minutes" validate:"min=0"`
	DefaultFields     int `toml:"default_fields" validate:"oneof=3 4"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level     string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format    string `toml:"format" validate:"oneof=text json"`
	Output    string `toml:"output" validate:"oneof=stdout stderr file"`
	FilePath  string `toml:"file_path" validate:"required_if=Output file"`
	AddSource bool   `toml:"add_source"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir          string `toml:"data_dir" validate:"required"`
	DatabaseFile     string `toml:"database_file" validate:"required"`
	LogRetentionDays int    `toml:"log_retention_days" validate:"min=0"`
	PruneSchedule    string `toml:"prune_schedule"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	Found         bool
	PortSpecified bool
	EnvFile       string
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port: 20261,
		},
		Backend: BackendConfig{
			TimeoutSeconds: 30,
		},
		Upload: UploadConfig{
			MaxBytes:        5 * 1024 * 1024,
			BatchTTLMinutes: 30,
			DefaultPolicy:   "valid_only",
		},
		MasterData: MasterDataConfig{
			TTLSeconds: 300,
		},
		Filter: FilterConfig{
			SessionTTLMinutes: 60,
			DefaultFields:     3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Data: DataConfig{
			DataDir:          "data",
			DatabaseFile:     "vista.db",
			LogRetentionDays: 90,
			PruneSchedule:    "@daily",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}
	serverMap, ok := raw["server"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultPath 可执行文件同目录下的 config.toml
func DefaultPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return filepath.Join(exeDir, FileName)
}

// LoadConfigWithInfo 加载配置：默认值 -> config.toml -> .env -> VISTA_* 环境变量
// path 为空时使用可执行文件同目录下的 config.toml
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	if path == "" {
		path = DefaultPath()
	}
	info := LoadConfigInfo{Path: path}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.Found = true
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, info, err
	}

	// .env 与配置文件同目录；已存在的环境变量不会被覆盖
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err == nil {
		info.EnvFile = envPath
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, info, fmt.Errorf("load %s: %w", envPath, err)
	}

	if err := applyEnv(cfg, &info); err != nil {
		return nil, info, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, info, err
	}
	return cfg, info, nil
}

// LoadConfig 加载配置
func LoadConfig(path string) (*AppConfig, error) {
	cfg, _, err := LoadConfigWithInfo(path)
	return cfg, err
}

// applyEnv 环境变量覆盖（部署 / 本地运行）
func applyEnv(cfg *AppConfig, info *LoadConfigInfo) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := os.LookupEnv("VISTA_PORT"); ok && v != "" {
		if err := num("VISTA_PORT", &cfg.Server.Port); err != nil {
			return err
		}
		info.PortSpecified = true
	}
	str("VISTA_HOST", &cfg.Server.Host)
	str("VISTA_BACKEND_URL", &cfg.Backend.BaseURL)
	str("VISTA_BACKEND_TOKEN", &cfg.Backend.Token)
	if err := num("VISTA_BACKEND_TIMEOUT", &cfg.Backend.TimeoutSeconds); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("VISTA_UPLOAD_MAX_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("VISTA_UPLOAD_MAX_BYTES: %w", err)
		}
		cfg.Upload.MaxBytes = n
	}
	str("VISTA_UPLOAD_POLICY", &cfg.Upload.DefaultPolicy)
	str("VISTA_MASTERDATA_REFRESH", &cfg.MasterData.RefreshSchedule)
	str("VISTA_LOG_LEVEL", &cfg.Log.Level)
	str("VISTA_LOG_FORMAT", &cfg.Log.Format)
	str("VISTA_LOG_OUTPUT", &cfg.Log.Output)
	str("VISTA_LOG_FILE", &cfg.Log.FilePath)
	str("VISTA_DATA_DIR", &cfg.Data.DataDir)
	return nil
}

var validate = validator.New()

// Validate 校验配置
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SaveConfig 保存配置
func SaveConfig(path string, cfg *AppConfig) error {
	if path == "" {
		path = DefaultPath()
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolveDataDir 数据目录；相对路径以可执行文件目录为基准
func ResolveDataDir(cfg *AppConfig) string {
	if filepath.IsAbs(cfg.Data.DataDir) {
		return cfg.Data.DataDir
	}
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, cfg.Data.DataDir)
}

// EnsureDataDir 确保数据目录存在
func EnsureDataDir(cfg *AppConfig) (string, error) {
	dataDir := ResolveDataDir(cfg)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// DatabasePath SQLite 文件路径
func DatabasePath(cfg *AppConfig) string {
	if filepath.IsAbs(cfg.Data.DatabaseFile) {
		return cfg.Data.DatabaseFile
	}
	return filepath.Join(ResolveDataDir(cfg), cfg.Data.DatabaseFile)
}

// BackendTimeout 后端请求超时
func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// MasterDataTTL 主数据缓存有效期
func (c *AppConfig) MasterDataTTL() time.Duration {
	return time.Duration(c.MasterData.TTLSeconds) * time.Second
}

// BatchTTL 预览批次保留时长
func (c *AppConfig) BatchTTL() time.Duration {
	return time.Duration(c.Upload.BatchTTLMinutes) * time.Minute
}

// UploadRules 上传文件规则，未配置的项使用默认值
func (c *AppConfig) UploadRules() ingest.FileRules {
	rules := ingest.DefaultFileRules()
	if c.Upload.MaxBytes > 0 {
		rules.MaxBytes = c.Upload.MaxBytes
	}
	if len(c.Upload.AllowedTypes) > 0 {
		rules.AllowedTypes = c.Upload.AllowedTypes
	}
	if len(c.Upload.AllowedExtensions) > 0 {
		rules.AllowedExtensions = c.Upload.AllowedExtensions
	}
	return rules
}

// SessionTTL 筛选会话空闲过期时长
func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.Filter.SessionTTLMinutes) * time.Minute
}

// Addr 监听地址
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
