// Package signal implements the spread threshold detector with a per-symbol
// cooldown window.
package signal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Config holds evaluator parameters.
type Config struct {
	// MinThreshold is the minimum spread percent that emits an opportunity.
	MinThreshold float64
	// Cooldown suppresses repeat emissions per symbol. It bounds alert and
	// order-submission volume on a flapping signal; duplicate-position safety
	// lives in the ledger, not here.
	Cooldown time.Duration
}

// Evaluator turns spread samples into opportunities. Safe for concurrent use
// across feed partitions.
type Evaluator struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	lastEmission map[string]time.Time

	now func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg Config, logger *slog.Logger) *Evaluator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	return &Evaluator{
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "signal_evaluator")),
		lastEmission: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Evaluate inspects one sample and returns an opportunity when the directional
// spread reaches the threshold and the symbol is out of cooldown. Non-positive
// prices are rejected silently: upstream feed glitches must not crash or spam
// the evaluator.
func (e *Evaluator) Evaluate(sample domain.SpreadSample) *domain.Opportunity {
	spread, dir := domain.SpreadPercent(sample.ReferencePrice, sample.TradePrice)
	if dir == "" || spread < e.cfg.MinThreshold {
		return nil
	}

	now := e.now()
	e.mu.Lock()
	if last, ok := e.lastEmission[sample.Symbol]; ok && now.Sub(last) < e.cfg.Cooldown {
		e.mu.Unlock()
		return nil
	}
	e.lastEmission[sample.Symbol] = now
	e.mu.Unlock()

	e.logger.Debug("opportunity detected",
		slog.String("symbol", sample.Symbol),
		slog.Float64("spread_pct", spread),
		slog.String("direction", string(dir)),
	)

	return &domain.Opportunity{
		Symbol:         sample.Symbol,
		ReferencePrice: sample.ReferencePrice,
		TradePrice:     sample.TradePrice,
		SpreadPercent:  spread,
		Direction:      dir,
		DetectedAt:     now,
	}
}
