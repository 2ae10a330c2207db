package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nfoxdev/spreadbot/internal/domain"
	"github.com/nfoxdev/spreadbot/internal/exit"
	"github.com/nfoxdev/spreadbot/internal/ledger"
	"github.com/nfoxdev/spreadbot/internal/signal"
)

// Events receives trading milestones for outbound notification.
type Events interface {
	OpportunityDetected(ctx context.Context, opp domain.Opportunity)
	PositionOpened(ctx context.Context, pos domain.Position, opp domain.Opportunity)
	TradeClosed(ctx context.Context, rec domain.TradeRecord)
}

// Pipeline is the per-tick decision path: a symbol with an open position is
// checked for exit, any other symbol is evaluated for entry. Every sample is
// also written to the price cache for the display surfaces.
type Pipeline struct {
	evaluator *signal.Evaluator
	ledger    *ledger.Ledger
	exit      *exit.Engine
	cache     domain.PriceCache // optional
	events    Events            // optional
	logger    *slog.Logger
}

// NewPipeline wires the decision path. Cache and events may be nil.
func NewPipeline(evaluator *signal.Evaluator, l *ledger.Ledger, engine *exit.Engine, cache domain.PriceCache, events Events, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		evaluator: evaluator,
		ledger:    l,
		exit:      engine,
		cache:     cache,
		events:    events,
		logger:    logger.With(slog.String("component", "pipeline")),
	}
}

// Handle processes one sample. It is the Dispatcher's Handler; samples for a
// given symbol arrive here in order.
func (p *Pipeline) Handle(ctx context.Context, sample domain.SpreadSample) {
	if p.cache != nil {
		if err := p.cache.SetSample(ctx, sample); err != nil {
			p.logger.Debug("price cache write failed",
				slog.String("symbol", sample.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.ledger.HasPosition(sample.Symbol) {
		p.checkExit(ctx, sample)
		return
	}
	p.tryEnter(ctx, sample)
}

func (p *Pipeline) checkExit(ctx context.Context, sample domain.SpreadSample) {
	records, err := p.exit.Check(ctx, sample)
	if err != nil {
		p.logger.Warn("exit check failed",
			slog.String("symbol", sample.Symbol),
			slog.String("error", err.Error()),
		)
	}
	if p.events == nil {
		return
	}
	for _, rec := range records {
		p.events.TradeClosed(ctx, rec)
	}
}

func (p *Pipeline) tryEnter(ctx context.Context, sample domain.SpreadSample) {
	opp := p.evaluator.Evaluate(sample)
	if opp == nil {
		return
	}

	// The detection is announced regardless of whether the open goes through;
	// a capped or paused book still wants eyes on the spread.
	if p.events != nil {
		p.events.OpportunityDetected(ctx, *opp)
	}

	pos, err := p.ledger.TryOpen(ctx, *opp)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTradingDisabled),
			errors.Is(err, domain.ErrMaxPositions),
			errors.Is(err, domain.ErrSymbolOpen),
			errors.Is(err, domain.ErrSizeTooSmall):
			p.logger.Debug("signal skipped",
				slog.String("symbol", opp.Symbol),
				slog.String("reason", err.Error()),
			)
		default:
			p.logger.Warn("open failed",
				slog.String("symbol", opp.Symbol),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if p.events != nil {
		p.events.PositionOpened(ctx, pos, *opp)
	}
}
