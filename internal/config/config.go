// Package config loads the runtime's process-wide configuration from a
// YAML or JSON5 file (with $include resolution, see loader.go) overlaid
// with environment variables, matching §6 of the specification.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the runtime's top-level process configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Observability ObservabilityConfig `yaml:"observability"`
	Events        EventsConfig        `yaml:"events"`
}

// ServerConfig controls the HTTP listener (C15).
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// DatabaseConfig controls the Postgres connection pool (C13).
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LLMConfig controls the LLM client and the circuit breaker wrapping it (C7, C16).
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RateLimit   float64       `yaml:"rate_limit"`   // requests/min per (bot,user)
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// TelegramConfig controls the single outbound Telegram transport (C14)
// shared by every tenant hosted in this process.
type TelegramConfig struct {
	BotToken  string  `yaml:"bot_token"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// ObservabilityConfig controls structured logging and metrics exposition.
type ObservabilityConfig struct {
	LogLevel          string `yaml:"log_level"`
	Format            string `yaml:"format"` // "json" | "text"
	MetricsEnabled    bool   `yaml:"metrics_enabled"`
	MaskSensitiveData bool   `yaml:"mask_sensitive_data"`
}

// EventsConfig controls the append-only event sink's retention.
type EventsConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Default returns a Config populated with the runtime's baseline defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		LLM: LLMConfig{
			Enabled:    false,
			Model:      "gpt-4o-mini",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RateLimit:  10,
			CacheTTL:   15 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			Format:            "json",
			MetricsEnabled:    true,
			MaskSensitiveData: true,
		},
		Telegram: TelegramConfig{RateLimit: 30, RateBurst: 20},
		Events:   EventsConfig{RetentionDays: 90},
	}
}

// Load reads path (YAML or JSON5, resolving $include and ${ENV} expansion),
// decodes it strictly into a Config seeded with defaults, then overlays the
// process environment per §6's variable list.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		decoded, err := decodeRawConfig(raw)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		cfg = mergeDefaults(Default(), decoded)
	}
	applyEnv(cfg)
	return cfg, nil
}

// mergeDefaults overlays the file-decoded config's non-zero fields onto the
// defaults, so an omitted section in the file keeps its default.
func mergeDefaults(defaults, file *Config) *Config {
	if file.Server.Host != "" {
		defaults.Server.Host = file.Server.Host
	}
	if file.Server.HTTPPort != 0 {
		defaults.Server.HTTPPort = file.Server.HTTPPort
	}
	if file.Database.DSN != "" {
		defaults.Database.DSN = file.Database.DSN
	}
	if file.Database.MaxOpenConns != 0 {
		defaults.Database.MaxOpenConns = file.Database.MaxOpenConns
	}
	if file.Database.MaxIdleConns != 0 {
		defaults.Database.MaxIdleConns = file.Database.MaxIdleConns
	}
	if file.Database.ConnMaxLifetime != 0 {
		defaults.Database.ConnMaxLifetime = file.Database.ConnMaxLifetime
	}
	defaults.LLM.Enabled = defaults.LLM.Enabled || file.LLM.Enabled
	if file.LLM.BaseURL != "" {
		defaults.LLM.BaseURL = file.LLM.BaseURL
	}
	if file.LLM.Model != "" {
		defaults.LLM.Model = file.LLM.Model
	}
	if file.LLM.Timeout != 0 {
		defaults.LLM.Timeout = file.LLM.Timeout
	}
	if file.LLM.MaxRetries != 0 {
		defaults.LLM.MaxRetries = file.LLM.MaxRetries
	}
	if file.LLM.RateLimit != 0 {
		defaults.LLM.RateLimit = file.LLM.RateLimit
	}
	if file.LLM.CacheTTL != 0 {
		defaults.LLM.CacheTTL = file.LLM.CacheTTL
	}
	if file.Observability.LogLevel != "" {
		defaults.Observability.LogLevel = file.Observability.LogLevel
	}
	if file.Observability.Format != "" {
		defaults.Observability.Format = file.Observability.Format
	}
	defaults.Observability.MetricsEnabled = file.Observability.MetricsEnabled || defaults.Observability.MetricsEnabled
	defaults.Observability.MaskSensitiveData = file.Observability.MaskSensitiveData || defaults.Observability.MaskSensitiveData
	if file.Telegram.BotToken != "" {
		defaults.Telegram.BotToken = file.Telegram.BotToken
	}
	if file.Telegram.RateLimit != 0 {
		defaults.Telegram.RateLimit = file.Telegram.RateLimit
	}
	if file.Telegram.RateBurst != 0 {
		defaults.Telegram.RateBurst = file.Telegram.RateBurst
	}
	if file.Events.RetentionDays != 0 {
		defaults.Events.RetentionDays = file.Events.RetentionDays
	}
	return defaults
}

// applyEnv overlays the environment variables named in §6 onto cfg,
// environment always wins over file config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LLM_ENABLED"); v != "" {
		cfg.LLM.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxRetries = n
		}
	}
	if v := os.Getenv("LLM_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.RateLimit = f
		}
	}
	if v := os.Getenv("LLM_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.CacheTTL = d
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("EVENTS_DB_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Events.RetentionDays = n
		}
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Observability.MetricsEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MASK_SENSITIVE_DATA"); v != "" {
		cfg.Observability.MaskSensitiveData = strings.EqualFold(v, "true") || v == "1"
	}
}
