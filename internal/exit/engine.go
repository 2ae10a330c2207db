// Package exit decides when tracked positions are reduced or closed.
package exit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfoxdev/spreadbot/internal/domain"
	"github.com/nfoxdev/spreadbot/internal/ledger"
)

// Config holds exit policy parameters.
type Config struct {
	// ExitThreshold is the spread percentage at or below which a position is
	// closed in full. A direction reversal counts as spread zero and always
	// closes.
	ExitThreshold float64
	// PartialROIThreshold is the leveraged return-on-margin percentage at
	// which the one-shot partial take-profit fires.
	PartialROIThreshold float64
	// PartialPercent is the share of the position closed by the partial
	// take-profit.
	PartialPercent int
}

func (c *Config) withDefaults() {
	if c.PartialROIThreshold <= 0 {
		c.PartialROIThreshold = 50
	}
	if c.PartialPercent <= 0 {
		c.PartialPercent = 50
	}
}

// Engine evaluates exit conditions against fresh price samples.
type Engine struct {
	cfg    Config
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewEngine creates an exit Engine bound to a ledger.
func NewEngine(cfg Config, l *ledger.Ledger, logger *slog.Logger) *Engine {
	cfg.withDefaults()
	return &Engine{
		cfg:    cfg,
		ledger: l,
		logger: logger.With(slog.String("component", "exit")),
	}
}

// Check runs the exit policy for the sample's symbol. Evaluation order per
// tick: partial take-profit first (once per position), then the spread-based
// full close. Records for every close executed during the call are returned;
// a sample for an untracked symbol returns nil.
func (e *Engine) Check(ctx context.Context, sample domain.SpreadSample) ([]domain.TradeRecord, error) {
	pos, ok := e.ledger.Position(sample.Symbol)
	if !ok {
		return nil, nil
	}

	spread, reversed := pos.CurrentSpread(sample.ReferencePrice, sample.TradePrice)
	pnl, roi := pos.UnrealizedPnl(sample.TradePrice)

	var records []domain.TradeRecord

	if !pos.PartialTaken && roi >= e.cfg.PartialROIThreshold {
		rec, err := e.partialTakeProfit(ctx, pos, sample, spread, pnl, roi)
		if err != nil {
			if errors.Is(err, domain.ErrNoPosition) {
				return records, nil
			}
			return records, err
		}
		records = append(records, rec)

		// Re-read: the partial close changed the tracked size and may have
		// dropped the position entirely.
		pos, ok = e.ledger.Position(sample.Symbol)
		if !ok {
			return records, nil
		}
	}

	if reversed || spread <= e.cfg.ExitThreshold {
		reason := "spread_collapsed"
		if reversed {
			reason = "spread_reversed"
		}
		e.logger.Info("exit condition met",
			slog.String("symbol", pos.Symbol),
			slog.String("reason", reason),
			slog.Float64("spread_pct", spread),
			slog.Float64("unrealized_pnl_usd", pnl),
		)
		rec, err := e.ledger.ClosePosition(ctx, sample.Symbol, sample.TradePrice, spread)
		if err != nil {
			if errors.Is(err, domain.ErrNoPosition) {
				return records, nil
			}
			return records, fmt.Errorf("exit: close %s: %w", sample.Symbol, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func (e *Engine) partialTakeProfit(ctx context.Context, pos domain.Position, sample domain.SpreadSample, spread, pnl, roi float64) (domain.TradeRecord, error) {
	e.logger.Info("partial take-profit triggered",
		slog.String("symbol", pos.Symbol),
		slog.Float64("roi_pct", roi),
		slog.Float64("unrealized_pnl_usd", pnl),
	)

	rec, err := e.ledger.PartialClose(ctx, pos.Symbol, sample.TradePrice, spread, e.cfg.PartialPercent)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("exit: partial close %s: %w", pos.Symbol, err)
	}

	// The stop is protection for the remainder, not a precondition for the
	// partial close: failure here leaves the position unprotected but does
	// not undo anything.
	if err := e.ledger.ArmProtectiveStop(ctx, pos.Symbol); err != nil {
		e.logger.Warn("protective stop placement failed, position unprotected",
			slog.String("symbol", pos.Symbol),
			slog.String("error", err.Error()),
		)
	}

	return rec, nil
}
