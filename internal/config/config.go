package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/csvchat/internal/utils"
)

// Global configuration structure.
type Global struct {
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel string  `mapstructure:"default_model" yaml:"default_model"`
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url"`
	Stream       bool    `mapstructure:"stream" yaml:"stream"`
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Web server
	ListenAddr     string  `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxUploadMB    int     `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	GridMaxRows    int     `mapstructure:"grid_max_rows" yaml:"grid_max_rows"`
	SessionTTLMin  int     `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	Production     bool    `mapstructure:"production" yaml:"production"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// APIKeySource records where APIKey came from. It is never persisted.
	APIKeySource KeySource `mapstructure:"-" yaml:"-"`
}

// DefaultPath returns ~/.csvchat/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".csvchat", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.csvchat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// the file may hold an API key
	if err := utils.SafeWriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. GROQ_API_KEY is honoured for api_key
// when CSVCHAT_API_KEY is not set.
func Load(cfgFile string) (*Global, error) {
	return load(cfgFile, true)
}

// LoadFile loads the config file over the defaults and ignores the
// environment. It is the base for edits that are written back to disk.
func LoadFile(cfgFile string) (*Global, error) {
	return load(cfgFile, false)
}

func load(cfgFile string, withEnv bool) (*Global, error) {
	v := viper.New()
	if withEnv {
		v.SetEnvPrefix("CSVCHAT")
		v.AutomaticEnv()
		if err := v.BindEnv("api_key", "CSVCHAT_API_KEY", EnvAPIKey); err != nil {
			return nil, fmt.Errorf("bind env: %w", err)
		}
	}

	// Defaults
	v.SetDefault("default_model", DefaultModel)
	v.SetDefault("base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("stream", true)
	v.SetDefault("max_tokens", 0)
	v.SetDefault("temperature", 0.0)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Web defaults
	v.SetDefault("listen_addr", "127.0.0.1:8501")
	v.SetDefault("max_upload_mb", 200)
	v.SetDefault("grid_max_rows", 1000)
	v.SetDefault("session_ttl_min", 120)
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("production", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".csvchat"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.DefaultModel = ResolveModel(c.DefaultModel, "")
	if c.APIKey != "" {
		c.APIKeySource = SourceConfig
		if withEnv && envKeySet() {
			c.APIKeySource = SourceEnv
		}
	}
	return &c, nil
}

func envKeySet() bool {
	for _, name := range []string{"CSVCHAT_API_KEY", EnvAPIKey} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// LoadDotEnv copies the variables of a dotenv file into the process
// environment. Variables already present in the environment win. A missing
// file is not an error. It returns the number of variables applied.
func LoadDotEnv(path string) (int, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat dotenv: %w", err)
	}
	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return 0, fmt.Errorf("read dotenv: %w", err)
	}
	applied := 0
	for _, key := range dv.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, dv.GetString(key)); err != nil {
			return applied, fmt.Errorf("set %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}

// SlogLevel maps LogLevel to an slog.Level.
func (c *Global) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
