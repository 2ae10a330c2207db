package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"

[trading]
min_threshold = 5.0
leverage = 10
signal_cooldown = "90s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.InDelta(t, 5.0, cfg.Trading.MinThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Trading.Leverage)
	assert.Equal(t, 90*time.Second, cfg.Trading.SignalCooldown.Duration)

	// Untouched fields keep their defaults.
	assert.Equal(t, 5, cfg.Trading.MaxPositions)
	assert.Equal(t, "usdt", cfg.Gate.Settle)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "monitor"`)

	t.Setenv("SPREADBOT_GATE_API_KEY", "env-key")
	t.Setenv("SPREADBOT_TRADING_MAX_POSITIONS", "7")
	t.Setenv("SPREADBOT_TRADING_GATEWAY_TIMEOUT", "2s")
	t.Setenv("SPREADBOT_REDIS_ENABLED", "true")
	t.Setenv("SPREADBOT_TRADING_SYMBOLS", "BTC_USDT, ETH_USDT")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Gate.ApiKey)
	assert.Equal(t, 7, cfg.Trading.MaxPositions)
	assert.Equal(t, 2*time.Second, cfg.Trading.GatewayTimeout.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, cfg.Trading.Symbols)
}

func TestValidateDefaultsInMonitorMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresCredentialsForTrade(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
	assert.Contains(t, err.Error(), "api_secret is required")

	cfg.Gate.ApiKey = "k"
	cfg.Gate.ApiSecret = "s"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "fly"
	cfg.LogLevel = "loud"
	cfg.Trading.MarginUSD = 0
	cfg.Trading.Leverage = 0
	cfg.Trading.ExitThreshold = 10 // above min_threshold

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "fly"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "margin_usd must be positive")
	assert.Contains(t, msg, "leverage must be >= 1")
	assert.Contains(t, msg, "exit_threshold")
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Notify.TelegramToken = "token"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_chat_id is required")

	cfg.Notify.TelegramChatID = 12345
	assert.NoError(t, cfg.Validate())
}

func TestValidateS3NeedsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.S3.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires postgres")

	cfg.Postgres.Enabled = true
	cfg.Postgres.DSN = "postgres://localhost/spreadbot"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Gate.ApiKey = "key"
	cfg.Gate.ApiSecret = "secret"
	cfg.Notify.TelegramToken = "token"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Gate.ApiKey)
	assert.Equal(t, "***", red.Gate.ApiSecret)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "key", cfg.Gate.ApiKey)

	// Empty secrets stay empty rather than becoming "***".
	assert.Empty(t, red.Redis.Password)
}
