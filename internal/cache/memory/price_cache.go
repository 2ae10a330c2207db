// Package memory is the in-process fallback price cache used when no redis
// is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// PriceCache holds the latest sample per symbol in a map.
type PriceCache struct {
	mu      sync.RWMutex
	samples map[string]domain.SpreadSample
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{samples: make(map[string]domain.SpreadSample)}
}

// SetSample upserts the sample for its symbol.
func (p *PriceCache) SetSample(_ context.Context, sample domain.SpreadSample) error {
	p.mu.Lock()
	p.samples[sample.Symbol] = sample
	p.mu.Unlock()
	return nil
}

// Sample returns the latest sample for symbol, or ErrNotFound.
func (p *PriceCache) Sample(_ context.Context, symbol string) (domain.SpreadSample, error) {
	p.mu.RLock()
	sample, ok := p.samples[symbol]
	p.mu.RUnlock()
	if !ok {
		return domain.SpreadSample{}, fmt.Errorf("memory: sample %s: %w", symbol, domain.ErrNotFound)
	}
	return sample, nil
}

// Samples returns the latest sample for each requested symbol; symbols
// without a sample are omitted.
func (p *PriceCache) Samples(_ context.Context, symbols []string) (map[string]domain.SpreadSample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]domain.SpreadSample, len(symbols))
	for _, symbol := range symbols {
		if sample, ok := p.samples[symbol]; ok {
			out[symbol] = sample
		}
	}
	return out, nil
}
