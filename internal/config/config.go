package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"harscript/internal/logger"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite SqliteConfig `yaml:"sqlite"`
	Log    LogConfig    `yaml:"log"`
	Script ScriptConfig `yaml:"script"`
}

// SqliteConfig 运行记录数据库
type SqliteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dsn     string `yaml:"dsn"`
	Prefix  string `yaml:"prefix"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string        `yaml:"level"`
	Writer []string      `yaml:"writer"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig 滚动日志文件
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// ScriptConfig 脚本生成
type ScriptConfig struct {
	ThinkTimeSeconds int   `yaml:"thinkTimeSeconds"`
	RedirectStatuses []int `yaml:"redirectStatuses"`
	IgnoreCase       bool  `yaml:"ignoreCase"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Sqlite: SqliteConfig{
			Enabled: false,
			Dsn:     "harscript.sqlite3",
			Prefix:  "harscript_",
		},
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"console"},
			File: LogFileConfig{
				Path:       "logs/harscript.log",
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
		Script: ScriptConfig{
			ThinkTimeSeconds: 10,
			RedirectStatuses: []int{301, 302, 303, 307, 308},
		},
	}
}

// Load 读取配置文件并覆盖默认值，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	for _, w := range c.Log.Writer {
		if w != "console" && w != "file" {
			return fmt.Errorf("invalid log writer %q", w)
		}
	}
	if c.Script.ThinkTimeSeconds < 0 {
		return fmt.Errorf("script.thinkTimeSeconds must not be negative")
	}
	for _, s := range c.Script.RedirectStatuses {
		if s < 300 || s > 399 {
			return fmt.Errorf("redirect status %d is not a 3xx code", s)
		}
	}
	if c.Sqlite.Enabled && c.Sqlite.Dsn == "" {
		return fmt.Errorf("sqlite.dsn is required when sqlite is enabled")
	}
	return nil
}

// IsRedirect 判断状态码是否视为重定向
func (c *Config) IsRedirect(status int) bool {
	for _, s := range c.Script.RedirectStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// LoggerOptions 转换为日志器配置
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:   c.Log.Level,
		Writers: c.Log.Writer,
		File: logger.FileOptions{
			Path:       c.Log.File.Path,
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxBackups: c.Log.File.MaxBackups,
			MaxAgeDays: c.Log.File.MaxAgeDays,
		},
	}
}

// ThinkTime 事务之间的思考时间
func (c *Config) ThinkTime() time.Duration {
	return time.Duration(c.Script.ThinkTimeSeconds) * time.Second
}
