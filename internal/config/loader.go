package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPREADBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPREADBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Gate ──
	setStr(&cfg.Gate.BaseURL, "SPREADBOT_GATE_BASE_URL")
	setStr(&cfg.Gate.WsURL, "SPREADBOT_GATE_WS_URL")
	setStr(&cfg.Gate.ApiKey, "SPREADBOT_GATE_API_KEY")
	setStr(&cfg.Gate.ApiSecret, "SPREADBOT_GATE_API_SECRET")
	setStr(&cfg.Gate.Settle, "SPREADBOT_GATE_SETTLE")
	setBool(&cfg.Gate.CrossMargin, "SPREADBOT_GATE_CROSS_MARGIN")

	// ── Trading ──
	setFloat64(&cfg.Trading.MinThreshold, "SPREADBOT_TRADING_MIN_THRESHOLD")
	setFloat64(&cfg.Trading.ExitThreshold, "SPREADBOT_TRADING_EXIT_THRESHOLD")
	setDuration(&cfg.Trading.SignalCooldown, "SPREADBOT_TRADING_SIGNAL_COOLDOWN")
	setFloat64(&cfg.Trading.MarginUSD, "SPREADBOT_TRADING_MARGIN_USD")
	setInt(&cfg.Trading.Leverage, "SPREADBOT_TRADING_LEVERAGE")
	setInt(&cfg.Trading.MaxPositions, "SPREADBOT_TRADING_MAX_POSITIONS")
	setFloat64(&cfg.Trading.PartialROIThreshold, "SPREADBOT_TRADING_PARTIAL_ROI_THRESHOLD")
	setInt(&cfg.Trading.PartialPercent, "SPREADBOT_TRADING_PARTIAL_PERCENT")
	setDuration(&cfg.Trading.SnapshotTTL, "SPREADBOT_TRADING_SNAPSHOT_TTL")
	setDuration(&cfg.Trading.GatewayTimeout, "SPREADBOT_TRADING_GATEWAY_TIMEOUT")
	setDuration(&cfg.Trading.ReconcileInterval, "SPREADBOT_TRADING_RECONCILE_INTERVAL")
	setStrSlice(&cfg.Trading.Symbols, "SPREADBOT_TRADING_SYMBOLS")

	// ── Dispatcher ──
	setInt(&cfg.Dispatcher.Workers, "SPREADBOT_DISPATCHER_WORKERS")
	setInt(&cfg.Dispatcher.Buffer, "SPREADBOT_DISPATCHER_BUFFER")

	// ── Recorder ──
	setStr(&cfg.Recorder.TradesPath, "SPREADBOT_RECORDER_TRADES_PATH")
	setStr(&cfg.Recorder.StatsDir, "SPREADBOT_RECORDER_STATS_DIR")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SPREADBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SPREADBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPREADBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPREADBOT_REDIS_DB")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SPREADBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SPREADBOT_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "SPREADBOT_POSTGRES_POOL_MAX_CONNS")
	setDuration(&cfg.Postgres.ConnLifetime, "SPREADBOT_POSTGRES_CONN_LIFETIME")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SPREADBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SPREADBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPREADBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPREADBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SPREADBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPREADBOT_S3_SECRET_KEY")
	setStr(&cfg.S3.Prefix, "SPREADBOT_S3_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "SPREADBOT_S3_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPREADBOT_NOTIFY_TELEGRAM_TOKEN")
	setInt64(&cfg.Notify.TelegramChatID, "SPREADBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setInt64(&cfg.Notify.TelegramAllowedUserID, "SPREADBOT_NOTIFY_TELEGRAM_ALLOWED_USER_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPREADBOT_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Report ──
	setDuration(&cfg.Report.Interval, "SPREADBOT_REPORT_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SPREADBOT_MODE")
	setStr(&cfg.LogLevel, "SPREADBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
