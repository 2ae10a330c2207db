package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// streamMaxLen caps event streams so they never grow unbounded.
const streamMaxLen = 10000

// Bus publishes position events over pub/sub for live consumers and appends
// them to a capped stream for late readers.
type Bus struct {
	client *Client
}

var _ domain.EventBus = (*Bus)(nil)

// NewBus creates a Bus on the shared client.
func NewBus(client *Client) *Bus {
	return &Bus{client: client}
}

// Publish broadcasts payload on channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends payload to the stream named after the channel,
// trimming to the configured cap.
func (b *Bus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := b.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream + ":stream",
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}
