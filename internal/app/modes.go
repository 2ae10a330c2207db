package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nfoxdev/spreadbot/internal/domain"
	"github.com/nfoxdev/spreadbot/internal/exit"
	"github.com/nfoxdev/spreadbot/internal/feed"
	"github.com/nfoxdev/spreadbot/internal/ledger"
	"github.com/nfoxdev/spreadbot/internal/notify"
	"github.com/nfoxdev/spreadbot/internal/platform/gate"
	"github.com/nfoxdev/spreadbot/internal/report"
	"github.com/nfoxdev/spreadbot/internal/signal"
)

// TradeMode runs the full trading loop: ticker feed, decision pipeline,
// position reconciliation, remote commands, and reporting.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	book := ledger.New(ledger.Config{
		MarginUSD:      a.cfg.Trading.MarginUSD,
		Leverage:       a.cfg.Trading.Leverage,
		MaxPositions:   a.cfg.Trading.MaxPositions,
		SnapshotTTL:    a.cfg.Trading.SnapshotTTL.Duration,
		GatewayTimeout: a.cfg.Trading.GatewayTimeout.Duration,
	}, deps.Gateway, deps.Recorder, deps.Bus, a.logger)

	// Adopt whatever survived the previous run before any trading decision.
	if err := book.Reconcile(ctx); err != nil {
		return fmt.Errorf("app: startup reconcile: %w", err)
	}
	if adopted := book.OpenPositions(); len(adopted) > 0 {
		a.logger.InfoContext(ctx, "resumed with open positions", slog.Int("count", len(adopted)))
		deps.Notifier.Alert(ctx, "Resumed with open positions",
			fmt.Sprintf("%d position(s) adopted from the exchange", len(adopted)))
	}

	evaluator := signal.NewEvaluator(signal.Config{
		MinThreshold: a.cfg.Trading.MinThreshold,
		Cooldown:     a.cfg.Trading.SignalCooldown.Duration,
	}, a.logger)

	engine := exit.NewEngine(exit.Config{
		ExitThreshold:       a.cfg.Trading.ExitThreshold,
		PartialROIThreshold: a.cfg.Trading.PartialROIThreshold,
		PartialPercent:      a.cfg.Trading.PartialPercent,
	}, book, a.logger)

	pipeline := feed.NewPipeline(evaluator, book, engine, deps.PriceCache, deps.Notifier, a.logger)
	dispatcher := feed.NewDispatcher(feed.Config{
		Workers: a.cfg.Dispatcher.Workers,
		Buffer:  a.cfg.Dispatcher.Buffer,
	}, feed.FilterSymbols(a.cfg.Trading.Symbols, pipeline.Handle), a.logger)

	tickerFeed := gate.NewTickerFeed(gate.Config{
		WSBaseURL: a.cfg.Gate.WsURL,
		Settle:    a.cfg.Gate.Settle,
	}, dispatcher.Offer, a.logger)

	reporter := report.New(report.Config{
		Interval: a.cfg.Report.Interval.Duration,
	}, book, deps.Recorder, deps.Notifier, a.logger)

	deps.Notifier.Notify(ctx, fmt.Sprintf(
		"🤖 Spread bot started\nMode: trade\nEntry: %.1f%%  Exit: %.1f%%\nMargin: %.0f USDT x%d",
		a.cfg.Trading.MinThreshold, a.cfg.Trading.ExitThreshold,
		a.cfg.Trading.MarginUSD, a.cfg.Trading.Leverage,
	))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return tickerFeed.Run(ctx) })
	g.Go(func() error { return a.reconcileLoop(ctx, book) })
	g.Go(func() error { return reporter.Run(ctx) })
	if deps.Telegram != nil {
		listener := notify.NewCommandListener(deps.Telegram, book, deps.Recorder,
			deps.PriceCache, a.cfg.Trading.MaxPositions, a.logger)
		g.Go(func() error { return listener.Run(ctx) })
	}
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}

	return g.Wait()
}

// MonitorMode streams tickers and reports qualifying spreads without placing
// any orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	evaluator := signal.NewEvaluator(signal.Config{
		MinThreshold: a.cfg.Trading.MinThreshold,
		Cooldown:     a.cfg.Trading.SignalCooldown.Duration,
	}, a.logger)

	handle := func(ctx context.Context, sample domain.SpreadSample) {
		if err := deps.PriceCache.SetSample(ctx, sample); err != nil {
			a.logger.Debug("price cache write failed", slog.String("error", err.Error()))
		}
		opp := evaluator.Evaluate(sample)
		if opp == nil {
			return
		}
		a.logger.InfoContext(ctx, "spread opportunity",
			slog.String("symbol", opp.Symbol),
			slog.String("direction", string(opp.Direction)),
			slog.Float64("spread_pct", opp.SpreadPercent),
			slog.Float64("reference_price", opp.ReferencePrice),
			slog.Float64("trade_price", opp.TradePrice),
		)
		deps.Notifier.OpportunityDetected(ctx, *opp)
	}

	dispatcher := feed.NewDispatcher(feed.Config{
		Workers: a.cfg.Dispatcher.Workers,
		Buffer:  a.cfg.Dispatcher.Buffer,
	}, feed.FilterSymbols(a.cfg.Trading.Symbols, handle), a.logger)

	tickerFeed := gate.NewTickerFeed(gate.Config{
		WSBaseURL: a.cfg.Gate.WsURL,
		Settle:    a.cfg.Gate.Settle,
	}, dispatcher.Offer, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return tickerFeed.Run(ctx) })
	return g.Wait()
}

// reconcileLoop periodically re-syncs the ledger against the exchange so
// manual interventions and fired trigger orders are picked up.
func (a *App) reconcileLoop(ctx context.Context, book *ledger.Ledger) error {
	interval := a.cfg.Trading.ReconcileInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := book.Reconcile(ctx); err != nil {
				a.logger.Warn("periodic reconcile failed", slog.String("error", err.Error()))
			}
		}
	}
}
