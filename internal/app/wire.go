package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/nfoxdev/spreadbot/internal/blob/s3"
	"github.com/nfoxdev/spreadbot/internal/cache/memory"
	"github.com/nfoxdev/spreadbot/internal/cache/redis"
	"github.com/nfoxdev/spreadbot/internal/config"
	"github.com/nfoxdev/spreadbot/internal/domain"
	"github.com/nfoxdev/spreadbot/internal/notify"
	"github.com/nfoxdev/spreadbot/internal/platform/gate"
	"github.com/nfoxdev/spreadbot/internal/recorder"
	"github.com/nfoxdev/spreadbot/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Venue
	Gateway domain.Gateway

	// Caches and events
	PriceCache domain.PriceCache
	Bus        domain.EventBus // nil without redis

	// Trade history
	TradeStore domain.TradeStore // nil without postgres
	Recorder   *recorder.Recorder
	Archiver   *s3blob.Archiver // nil without s3

	// Notifications
	Notifier *notify.Notifier
	Telegram *notify.Telegram // nil without a bot token
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	deps := &Dependencies{}

	// ── Venue client ──
	gateClient := gate.NewClient(gate.Config{
		BaseURL:     cfg.Gate.BaseURL,
		WSBaseURL:   cfg.Gate.WsURL,
		APIKey:      cfg.Gate.ApiKey,
		APISecret:   cfg.Gate.ApiSecret,
		Settle:      cfg.Gate.Settle,
		CrossMargin: cfg.Gate.CrossMargin,
	}, logger)
	deps.Gateway = gate.NewGateway(gateClient)

	// ── Redis (optional): price cache + event bus ──
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire redis: %w", err))
		}
		closers = append(closers, func() { redisClient.Close() })
		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.Bus = redis.NewBus(redisClient)
	} else {
		deps.PriceCache = memory.NewPriceCache()
	}

	// ── Postgres (optional): durable trade mirror ──
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.NewClient(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        int32(cfg.Postgres.PoolMaxConns),
			ConnMaxLifetime: cfg.Postgres.ConnLifetime.Duration,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire postgres: %w", err))
		}
		closers = append(closers, func() { pgClient.Close() })
		deps.TradeStore = postgres.NewTradeStore(pgClient)
	}

	// ── Recorder ──
	rec, err := recorder.New(recorder.Config{
		TradesPath: cfg.Recorder.TradesPath,
		StatsDir:   cfg.Recorder.StatsDir,
	}, deps.TradeStore, logger)
	if err != nil {
		return fail(fmt.Errorf("wire recorder: %w", err))
	}
	closers = append(closers, func() { rec.Close() })
	deps.Recorder = rec

	// ── S3 (optional): trade archival, reads from the postgres mirror ──
	if cfg.S3.Enabled && deps.TradeStore != nil {
		s3Client, err := s3blob.NewClient(ctx, s3blob.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return fail(fmt.Errorf("wire s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
			Interval: cfg.S3.ArchiveInterval.Duration,
			Prefix:   cfg.S3.Prefix,
		}, deps.TradeStore, s3blob.NewWriter(s3Client), logger)
	}

	// ── Notifications ──
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		deps.Telegram = notify.NewTelegram(notify.TelegramConfig{
			BotToken:      cfg.Notify.TelegramToken,
			ChatID:        cfg.Notify.TelegramChatID,
			AllowedUserID: cfg.Notify.TelegramAllowedUserID,
		})
		senders = append(senders, deps.Telegram)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(logger, senders...)

	return deps, cleanup, nil
}
