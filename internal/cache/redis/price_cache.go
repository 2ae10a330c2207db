package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

const (
	priceKeyPrefix = "spread:"
	priceTTL       = 5 * time.Minute
)

// PriceCache stores the latest sample per symbol as a redis hash. Entries
// expire so a symbol that stops ticking disappears from the display surfaces.
type PriceCache struct {
	client *Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache on the shared client.
func NewPriceCache(client *Client) *PriceCache {
	return &PriceCache{client: client}
}

// SetSample upserts the sample for its symbol.
func (p *PriceCache) SetSample(ctx context.Context, sample domain.SpreadSample) error {
	key := priceKeyPrefix + sample.Symbol
	pipe := p.client.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"reference_price": sample.ReferencePrice,
		"trade_price":     sample.TradePrice,
		"observed_at":     sample.ObservedAt.UnixMilli(),
	})
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set sample %s: %w", sample.Symbol, err)
	}
	return nil
}

// Sample returns the latest sample for symbol, or ErrNotFound.
func (p *PriceCache) Sample(ctx context.Context, symbol string) (domain.SpreadSample, error) {
	fields, err := p.client.rdb.HGetAll(ctx, priceKeyPrefix+symbol).Result()
	if err != nil {
		return domain.SpreadSample{}, fmt.Errorf("redis: get sample %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return domain.SpreadSample{}, fmt.Errorf("redis: get sample %s: %w", symbol, domain.ErrNotFound)
	}
	return parseSample(symbol, fields)
}

// Samples returns the latest sample for each requested symbol; symbols
// without a cached sample are omitted.
func (p *PriceCache) Samples(ctx context.Context, symbols []string) (map[string]domain.SpreadSample, error) {
	out := make(map[string]domain.SpreadSample, len(symbols))
	for _, symbol := range symbols {
		sample, err := p.Sample(ctx, symbol)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[symbol] = sample
	}
	return out, nil
}

func parseSample(symbol string, fields map[string]string) (domain.SpreadSample, error) {
	ref, err := strconv.ParseFloat(fields["reference_price"], 64)
	if err != nil {
		return domain.SpreadSample{}, fmt.Errorf("redis: sample %s: bad reference_price: %w", symbol, err)
	}
	trade, err := strconv.ParseFloat(fields["trade_price"], 64)
	if err != nil {
		return domain.SpreadSample{}, fmt.Errorf("redis: sample %s: bad trade_price: %w", symbol, err)
	}
	ms, err := strconv.ParseInt(fields["observed_at"], 10, 64)
	if err != nil {
		return domain.SpreadSample{}, fmt.Errorf("redis: sample %s: bad observed_at: %w", symbol, err)
	}
	return domain.SpreadSample{
		Symbol:         symbol,
		ReferencePrice: ref,
		TradePrice:     trade,
		ObservedAt:     time.UnixMilli(ms),
	}, nil
}
