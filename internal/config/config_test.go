package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digest-relay-go/internal/publisher"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Ingest.InitialLimit)
	assert.Equal(t, 20, cfg.Ingest.RegularLimit)
	assert.Equal(t, 15, cfg.Ingest.MinTextLength)
	assert.Equal(t, 3, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Ingest.RetryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.MaxRateLimitWait)
	assert.Equal(t, 30*24*time.Hour, cfg.Ingest.Retention())
	assert.Equal(t, 3, cfg.Digest.FallbackThreshold)
	assert.Equal(t, 4096, cfg.Publish.MaxMessageSize)
	assert.Equal(t, 24*time.Hour, cfg.Publish.DuplicateWindow)
	assert.Equal(t, "0 0 10 * * MON", cfg.Scheduler.CycleSpec)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ingest:
  sources: ["ozon_news", "wb_sellers"]
  regular_limit: 50
publish:
  target: "@digest"
digest:
  advisories:
    OZON: ["Check the seller dashboard"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DIGEST_INGEST_CONCURRENCY", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ozon_news", "wb_sellers"}, cfg.Ingest.Sources)
	assert.Equal(t, 50, cfg.Ingest.RegularLimit)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "@digest", cfg.Publish.Target)
	assert.Equal(t, []string{"Check the seller dashboard"}, cfg.Digest.Advisories["ozon"])
	assert.NoError(t, cfg.Validate())
}

func TestLoadSourcesFromEnvList(t *testing.T) {
	t.Setenv("DIGEST_INGEST_SOURCES", "a, b ,c")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Ingest.Sources)
}

func validConfig() Config {
	return Config{
		Server:    ServerConfig{Port: "8080"},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "test.db"},
		Telegram:  TelegramConfig{BotToken: "token"},
		Ingest:    IngestConfig{Sources: []string{"a"}, InitialLimit: 10, RegularLimit: 20, Concurrency: 1, MaxAttempts: 3, RetentionDays: 30},
		Publish:   PublishConfig{Enabled: true, Target: "@t", MaxMessageSize: 4096, SafetyMargin: 100},
		Scheduler: SchedulerConfig{CycleSpec: "0 0 10 * * MON"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"mysql without host", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"no sources", func(c *Config) { c.Ingest.Sources = nil }, true},
		{"zero concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }, true},
		{"publish without token", func(c *Config) { c.Telegram.BotToken = "" }, true},
		{"dry run without token", func(c *Config) { c.Telegram.BotToken = ""; c.Publish.Enabled = false }, false},
		{"margin too large", func(c *Config) { c.Publish.SafetyMargin = 5000 }, true},
		{"negative margin", func(c *Config) { c.Publish.SafetyMargin = -1 }, true},
		{"size without room for marker", func(c *Config) { c.Publish.MaxMessageSize = 120 }, true},
		{"smallest usable size", func(c *Config) { c.Publish.MaxMessageSize = publisher.MinMessageSize(100) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	mysql := DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "h", Port: 3306, DBName: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=UTC", mysql.GetDSN())

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	assert.Equal(t, "/tmp/x.db", sqlite.GetDSN())
}
