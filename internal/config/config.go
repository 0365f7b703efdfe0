package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"digest-relay-go/internal/publisher"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Digest     DigestConfig     `mapstructure:"digest"`
	Publish    PublishConfig    `mapstructure:"publish"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// TelegramConfig holds platform client configuration
type TelegramConfig struct {
	BotToken          string        `mapstructure:"bot_token"`
	APIBase           string        `mapstructure:"api_base"`
	PreviewBase       string        `mapstructure:"preview_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// IngestConfig holds ingestion cycle configuration
type IngestConfig struct {
	Sources             []string      `mapstructure:"sources"`
	InitialLimit        int           `mapstructure:"initial_limit"`
	RegularLimit        int           `mapstructure:"regular_limit"`
	MinTextLength       int           `mapstructure:"min_text_length"`
	Concurrency         int           `mapstructure:"concurrency"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
	MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries"`
	MaxRateLimitWait    time.Duration `mapstructure:"max_rate_limit_wait"`
	RetentionDays       int           `mapstructure:"retention_days"`
	ChannelInfoTTL      time.Duration `mapstructure:"channel_info_ttl"`
}

// ClassifierConfig holds classifier rule table configuration
type ClassifierConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// DigestConfig holds digest builder configuration
type DigestConfig struct {
	FallbackThreshold   int                 `mapstructure:"fallback_threshold"`
	HistoryLimit        int                 `mapstructure:"history_limit"`
	MaxItemsPerCategory int                 `mapstructure:"max_items_per_category"`
	MaxHighlights       int                 `mapstructure:"max_highlights"`
	KeyPointRunes       int                 `mapstructure:"key_point_runes"`
	Advisories          map[string][]string `mapstructure:"advisories"`
}

// PublishConfig holds publisher configuration
type PublishConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Target          string        `mapstructure:"target"`
	MaxMessageSize  int           `mapstructure:"max_message_size"`
	SafetyMargin    int           `mapstructure:"safety_margin"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	CycleSpec     string `mapstructure:"cycle_spec"`
	RetentionSpec string `mapstructure:"retention_spec"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from defaults, an optional config file and environment variables.
// An empty path searches for config.yaml in . and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("error binding env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Env lists arrive comma separated, possibly with padding
	cfg.Ingest.Sources = splitList(strings.Join(cfg.Ingest.Sources, ","))

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.path", "digest-relay.db")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.preview_base", "https://t.me")
	v.SetDefault("telegram.requests_per_second", 1.0)
	v.SetDefault("telegram.timeout", "20s")

	v.SetDefault("ingest.sources", []string{})
	v.SetDefault("ingest.initial_limit", 10)
	v.SetDefault("ingest.regular_limit", 20)
	v.SetDefault("ingest.min_text_length", 15)
	v.SetDefault("ingest.concurrency", 1)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_backoff", "2s")
	v.SetDefault("ingest.max_rate_limit_retries", 2)
	v.SetDefault("ingest.max_rate_limit_wait", "5m")
	v.SetDefault("ingest.retention_days", 30)
	v.SetDefault("ingest.channel_info_ttl", "1h")

	v.SetDefault("classifier.rules_file", "")

	v.SetDefault("digest.fallback_threshold", 3)
	v.SetDefault("digest.history_limit", 10)
	v.SetDefault("digest.max_items_per_category", 3)
	v.SetDefault("digest.max_highlights", 2)
	v.SetDefault("digest.key_point_runes", 160)

	v.SetDefault("publish.enabled", true)
	v.SetDefault("publish.max_message_size", 4096)
	v.SetDefault("publish.safety_margin", 100)
	v.SetDefault("publish.duplicate_window", "24h")

	v.SetDefault("scheduler.cycle_spec", "0 0 10 * * MON")
	v.SetDefault("scheduler.retention_spec", "0 30 3 * * *")

	v.SetDefault("log.level", "info")
}

// bindEnvVars binds environment variables that do not follow the DIGEST_ prefix
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		// Server
		"server.port": "SERVER_PORT",

		// Database
		"database.driver":   "DB_DRIVER",
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.dbname":   "DB_NAME",
		"database.path":     "DB_PATH",

		// Telegram
		"telegram.bot_token": "TELEGRAM_BOT_TOKEN",
		"publish.target":     "TELEGRAM_TARGET_CHANNEL",
	}
	for key, env := range bindings {
		// The prefixed name stays usable next to the legacy one
		if err := v.BindEnv(key, "DIGEST_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if len(c.Ingest.Sources) == 0 {
		return fmt.Errorf("at least one ingest source is required")
	}
	if c.Ingest.InitialLimit <= 0 || c.Ingest.RegularLimit <= 0 {
		return fmt.Errorf("ingest limits must be greater than 0")
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest concurrency must be at least 1")
	}
	if c.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("ingest max attempts must be at least 1")
	}
	if c.Ingest.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be greater than 0")
	}

	if c.Publish.Enabled {
		if c.Telegram.BotToken == "" || c.Publish.Target == "" {
			return fmt.Errorf("telegram bot token and publish target are required when publishing is enabled")
		}
	}
	if c.Publish.SafetyMargin < 0 {
		return fmt.Errorf("publish safety margin must not be negative")
	}
	if minSize := publisher.MinMessageSize(c.Publish.SafetyMargin); c.Publish.MaxMessageSize < minSize {
		return fmt.Errorf("publish max message size must be at least %d for a safety margin of %d", minSize, c.Publish.SafetyMargin)
	}

	if c.Scheduler.CycleSpec == "" {
		return fmt.Errorf("scheduler cycle spec is required")
	}

	return nil
}

// Retention returns the fingerprint retention period
func (c *IngestConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
