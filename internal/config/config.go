// Package config defines the top-level configuration for the spread bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPREADBOT_* environment variables.
type Config struct {
	Gate       GateConfig       `toml:"gate"`
	Trading    TradingConfig    `toml:"trading"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Recorder   RecorderConfig   `toml:"recorder"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Report     ReportConfig     `toml:"report"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// GateConfig holds Gate.io API endpoints and credentials.
type GateConfig struct {
	BaseURL     string `toml:"base_url"`
	WsURL       string `toml:"ws_url"`
	ApiKey      string `toml:"api_key"`
	ApiSecret   string `toml:"api_secret"`
	Settle      string `toml:"settle"`
	CrossMargin bool   `toml:"cross_margin"`
}

// TradingConfig holds signal, sizing, and exit parameters.
type TradingConfig struct {
	// MinThreshold is the spread percentage that qualifies as an entry.
	MinThreshold float64 `toml:"min_threshold"`
	// ExitThreshold is the spread percentage at or below which positions
	// close.
	ExitThreshold  float64  `toml:"exit_threshold"`
	SignalCooldown duration `toml:"signal_cooldown"`
	MarginUSD      float64  `toml:"margin_usd"`
	Leverage       int      `toml:"leverage"`
	MaxPositions   int      `toml:"max_positions"`
	// PartialROIThreshold is the leveraged ROI percentage triggering the
	// one-shot partial take-profit.
	PartialROIThreshold float64 `toml:"partial_roi_threshold"`
	// PartialPercent is the share of the position the take-profit closes.
	PartialPercent    int      `toml:"partial_percent"`
	SnapshotTTL       duration `toml:"snapshot_ttl"`
	GatewayTimeout    duration `toml:"gateway_timeout"`
	ReconcileInterval duration `toml:"reconcile_interval"`
	// Symbols restricts trading to the listed contracts. Empty means every
	// contract on the feed is eligible.
	Symbols []string `toml:"symbols"`
}

// DispatcherConfig holds feed fan-out parameters.
type DispatcherConfig struct {
	Workers int `toml:"workers"`
	Buffer  int `toml:"buffer"`
}

// RecorderConfig holds trade history output paths.
type RecorderConfig struct {
	TradesPath string `toml:"trades_path"`
	StatsDir   string `toml:"stats_dir"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// PostgresConfig holds the optional trade archive database.
type PostgresConfig struct {
	Enabled      bool     `toml:"enabled"`
	DSN          string   `toml:"dsn"`
	PoolMaxConns int      `toml:"pool_max_conns"`
	ConnLifetime duration `toml:"conn_lifetime"`
}

// S3Config holds object storage parameters for trade archival.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken         string `toml:"telegram_token"`
	TelegramChatID        int64  `toml:"telegram_chat_id"`
	TelegramAllowedUserID int64  `toml:"telegram_allowed_user_id"`
	DiscordWebhookURL     string `toml:"discord_webhook_url"`
}

// ReportConfig holds the periodic report schedule.
type ReportConfig struct {
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Gate: GateConfig{
			BaseURL: "https://api.gateio.ws",
			WsURL:   "wss://fx-ws.gateio.ws/v4/ws",
			Settle:  "usdt",
		},
		Trading: TradingConfig{
			MinThreshold:        7.0,
			ExitThreshold:       0.5,
			SignalCooldown:      duration{60 * time.Second},
			MarginUSD:           10,
			Leverage:            20,
			MaxPositions:        5,
			PartialROIThreshold: 50,
			PartialPercent:      50,
			SnapshotTTL:         duration{30 * time.Second},
			GatewayTimeout:      duration{5 * time.Second},
			ReconcileInterval:   duration{60 * time.Second},
		},
		Dispatcher: DispatcherConfig{
			Workers: 4,
			Buffer:  256,
		},
		Recorder: RecorderConfig{
			TradesPath: "data/trades.csv",
			StatsDir:   "data/stats",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Postgres: PostgresConfig{
			PoolMaxConns: 10,
			ConnLifetime: duration{30 * time.Minute},
		},
		S3: S3Config{
			Region:          "us-east-1",
			Bucket:          "spreadbot-data",
			Prefix:          "trades",
			ArchiveInterval: duration{24 * time.Hour},
		},
		Report: ReportConfig{
			Interval: duration{8 * time.Hour},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Gate credentials are only needed when orders can be placed.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Gate.ApiKey == "" {
			errs = append(errs, "gate: api_key is required for trade mode")
		}
		if c.Gate.ApiSecret == "" {
			errs = append(errs, "gate: api_secret is required for trade mode")
		}
	}
	if c.Gate.BaseURL == "" {
		errs = append(errs, "gate: base_url must not be empty")
	}
	if c.Gate.WsURL == "" {
		errs = append(errs, "gate: ws_url must not be empty")
	}
	if c.Gate.Settle == "" {
		errs = append(errs, "gate: settle must not be empty")
	}

	if c.Trading.MinThreshold <= 0 {
		errs = append(errs, "trading: min_threshold must be positive")
	}
	if c.Trading.ExitThreshold < 0 {
		errs = append(errs, "trading: exit_threshold must not be negative")
	}
	if c.Trading.ExitThreshold >= c.Trading.MinThreshold {
		errs = append(errs, fmt.Sprintf("trading: exit_threshold (%.2f) must be below min_threshold (%.2f)",
			c.Trading.ExitThreshold, c.Trading.MinThreshold))
	}
	if c.Trading.MarginUSD <= 0 {
		errs = append(errs, "trading: margin_usd must be positive")
	}
	if c.Trading.Leverage < 1 {
		errs = append(errs, "trading: leverage must be >= 1")
	}
	if c.Trading.MaxPositions < 1 {
		errs = append(errs, "trading: max_positions must be >= 1")
	}
	if c.Trading.PartialPercent < 1 || c.Trading.PartialPercent > 99 {
		errs = append(errs, fmt.Sprintf("trading: partial_percent must be 1-99, got %d", c.Trading.PartialPercent))
	}
	if c.Trading.SignalCooldown.Duration < 0 {
		errs = append(errs, "trading: signal_cooldown must not be negative")
	}

	if c.Dispatcher.Workers < 1 {
		errs = append(errs, "dispatcher: workers must be >= 1")
	}
	if c.Dispatcher.Buffer < 1 {
		errs = append(errs, "dispatcher: buffer must be >= 1")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, "postgres: dsn must not be empty when enabled")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: trade archival requires postgres to be enabled")
		}
	}

	// Telegram fields travel together.
	tg := c.Notify.TelegramToken != ""
	if tg && c.Notify.TelegramChatID == 0 {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}
	if !tg && c.Notify.TelegramChatID != 0 {
		errs = append(errs, "notify: telegram_token is required when telegram_chat_id is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
