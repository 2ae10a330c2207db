// Package report emits scheduled summaries: a periodic session report over
// the notification channels and a daily statistics file.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
	"github.com/nfoxdev/spreadbot/internal/ledger"
	"github.com/nfoxdev/spreadbot/internal/notify"
	"github.com/nfoxdev/spreadbot/internal/recorder"
)

// Config holds scheduling parameters.
type Config struct {
	// Interval between session reports.
	Interval time.Duration
}

func (c *Config) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = 8 * time.Hour
	}
}

// Reporter pushes a summary every Interval and writes the previous day's
// stats file shortly after midnight.
type Reporter struct {
	cfg      Config
	ledger   *ledger.Ledger
	recorder *recorder.Recorder
	notifier *notify.Notifier
	logger   *slog.Logger
}

// New creates a Reporter.
func New(cfg Config, l *ledger.Ledger, r *recorder.Recorder, n *notify.Notifier, logger *slog.Logger) *Reporter {
	cfg.withDefaults()
	return &Reporter{
		cfg:      cfg,
		ledger:   l,
		recorder: r,
		notifier: n,
		logger:   logger.With(slog.String("component", "report")),
	}
}

// Run blocks until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) error {
	reportTicker := time.NewTicker(r.cfg.Interval)
	defer reportTicker.Stop()

	midnight := time.NewTimer(untilNextMidnight(time.Now()))
	defer midnight.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reportTicker.C:
			r.sendReport(ctx)
		case <-midnight.C:
			yesterday := time.Now().AddDate(0, 0, -1)
			if err := r.recorder.WriteDailyStats(yesterday); err != nil {
				r.logger.Warn("daily stats failed", slog.String("error", err.Error()))
			}
			midnight.Reset(untilNextMidnight(time.Now()))
		}
	}
}

func (r *Reporter) sendReport(ctx context.Context) {
	stats := r.recorder.Statistics()
	positions := r.ledger.OpenPositions()

	msg := fmt.Sprintf(
		"🕐 Session report\nOpen positions: %d\nClosed trades: %d\nSession P&L: %+.2f USDT",
		len(positions), stats.TotalTrades, stats.TotalPnlUSD,
	)
	if stats.TotalTrades > 0 {
		msg += fmt.Sprintf("\nWin rate: %.1f%%", stats.WinRate)
	}
	for _, pos := range positions {
		msg += "\n" + describePosition(pos)
	}

	r.notifier.Notify(ctx, msg)
	r.logger.Info("session report sent",
		slog.Int("positions", len(positions)),
		slog.Int("trades", stats.TotalTrades),
	)
}

func describePosition(pos domain.Position) string {
	return fmt.Sprintf("%s %s x%d @ %.6g", pos.Side, pos.Symbol, pos.SizeContracts, pos.EntryPrice)
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 5, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}
