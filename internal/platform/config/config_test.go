package config

import (
	"os"
	"testing"
	"time"
)

// clearEnv unsets all LEARN_ environment variables for a clean test.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"LEARN_SERVER_PORT",
		"LEARN_SERVER_HOST",
		"LEARN_SERVER_SHUTDOWN_TIMEOUT",
		"LEARN_STORE_DRIVER",
		"LEARN_STORE_WRITE_TIMEOUT",
		"LEARN_DATABASE_URL",
		"LEARN_DATABASE_MAX_CONNS",
		"LEARN_DATABASE_MIN_CONNS",
		"LEARN_DATABASE_MIGRATE",
		"LEARN_CACHE_URL",
		"LEARN_CACHE_TTL",
		"LEARN_REALTIME_CHANNEL",
		"LEARN_TELEGRAM_BOT_TOKEN",
		"LEARN_TELEGRAM_CHAT_ID",
		"LEARN_TRACKER_COMPLETION_DELAY",
		"LEARN_TRACKER_QUIZ_COMPLETION_DELAY",
		"LEARN_TRACKER_DEFAULT_PASSING_SCORE",
		"LEARN_LOG_LEVEL",
		"LEARN_LOG_FORMAT",
		"LEARN_CATALOG_PATH",
	}
	for _, v := range envVars {
		_ = os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want 0.0.0.0:8080", cfg.Server.Addr())
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Database.MaxConns != 25 || cfg.Database.MinConns != 5 {
		t.Errorf("Database conns = %d/%d, want 25/5", cfg.Database.MaxConns, cfg.Database.MinConns)
	}
	if cfg.UseCache() {
		t.Error("UseCache() = true, want false without LEARN_CACHE_URL")
	}
	if cfg.Tracker.CompletionDelay != 1500*time.Millisecond {
		t.Errorf("CompletionDelay = %v, want 1.5s", cfg.Tracker.CompletionDelay)
	}
	if cfg.Tracker.QuizCompletionDelay != 3*time.Second {
		t.Errorf("QuizCompletionDelay = %v, want 3s", cfg.Tracker.QuizCompletionDelay)
	}
	if cfg.Tracker.DefaultPassingScore != 70 {
		t.Errorf("DefaultPassingScore = %d, want 70", cfg.Tracker.DefaultPassingScore)
	}
	if cfg.Realtime.Channel != "tracker-events" {
		t.Errorf("Realtime.Channel = %q, want tracker-events", cfg.Realtime.Channel)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("LEARN_SERVER_PORT", "9090")
	t.Setenv("LEARN_STORE_DRIVER", "Postgres")
	t.Setenv("LEARN_DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("LEARN_DATABASE_MIGRATE", "false")
	t.Setenv("LEARN_CACHE_URL", "redis://cache:6379")
	t.Setenv("LEARN_CACHE_TTL", "30s")
	t.Setenv("LEARN_TRACKER_COMPLETION_DELAY", "250")
	t.Setenv("LEARN_TRACKER_QUIZ_COMPLETION_DELAY", "2s")
	t.Setenv("LEARN_TRACKER_DEFAULT_PASSING_SCORE", "80")
	t.Setenv("LEARN_LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.UsePostgres() {
		t.Error("UsePostgres() = false, want true")
	}
	if cfg.Database.Migrate {
		t.Error("Database.Migrate = true, want false")
	}
	if !cfg.UseCache() || cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache = %+v, want redis with 30s TTL", cfg.Cache)
	}
	if cfg.Tracker.CompletionDelay != 250*time.Millisecond {
		t.Errorf("CompletionDelay = %v, want 250ms", cfg.Tracker.CompletionDelay)
	}
	if cfg.Tracker.QuizCompletionDelay != 2*time.Second {
		t.Errorf("QuizCompletionDelay = %v, want 2s", cfg.Tracker.QuizCompletionDelay)
	}
	if cfg.Tracker.DefaultPassingScore != 80 {
		t.Errorf("DefaultPassingScore = %d, want 80", cfg.Tracker.DefaultPassingScore)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEARN_SERVER_PORT", "http")
	t.Setenv("LEARN_STORE_WRITE_TIMEOUT", "soon")

	cfg, _ := Load()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want fallback 8080", cfg.Server.Port)
	}
	if cfg.Store.WriteTimeout != 10*time.Second {
		t.Errorf("Store.WriteTimeout = %v, want fallback 10s", cfg.Store.WriteTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, true},
		{"postgres without url", func(c *Config) { c.Store.Driver = StorePostgres; c.Database.URL = "" }, true},
		{"zero delay", func(c *Config) { c.Tracker.CompletionDelay = 0 }, true},
		{"passing score above 100", func(c *Config) { c.Tracker.DefaultPassingScore = 101 }, true},
		{"telegram without chat", func(c *Config) { c.Telegram.BotToken = "123:abc" }, true},
		{"telegram with chat", func(c *Config) { c.Telegram.BotToken = "123:abc"; c.Telegram.ChatID = "-100" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, _ := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
