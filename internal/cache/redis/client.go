// Package redis provides the shared redis client plus the price cache and
// event bus built on it.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps the go-redis client with a verified connection.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient connects and pings; a redis that cannot be reached at startup is
// a configuration error, not something to limp past.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	logger.InfoContext(ctx, "redis connected",
		slog.String("component", "redis"),
		slog.String("addr", cfg.Addr),
	)
	return &Client{rdb: rdb, logger: logger}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
