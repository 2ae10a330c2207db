// Package recorder turns executed closes into immutable trade records and
// aggregate statistics.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Config holds recorder parameters.
type Config struct {
	// TradesPath is the CSV file appended to on every close. Empty disables
	// the file log.
	TradesPath string
	// StatsDir receives one summary file per day. Empty disables daily
	// stats files.
	StatsDir string
}

// Recorder accumulates closed trades. It keeps an in-memory history for
// statistics, appends each close to a CSV file, and optionally mirrors
// records to a durable store.
type Recorder struct {
	cfg    Config
	store  domain.TradeStore // optional
	logger *slog.Logger

	mu     sync.Mutex
	trades []domain.TradeRecord

	csv *csvLog

	now func() time.Time
}

var _ domain.TradeSink = (*Recorder)(nil)

// New creates a Recorder. The store may be nil.
func New(cfg Config, store domain.TradeStore, logger *slog.Logger) (*Recorder, error) {
	r := &Recorder{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("component", "recorder")),
		now:    time.Now,
	}
	if cfg.TradesPath != "" {
		log, err := newCSVLog(cfg.TradesPath)
		if err != nil {
			return nil, fmt.Errorf("recorder: open trade log: %w", err)
		}
		r.csv = log
	}
	return r, nil
}

// Record derives a TradeRecord from the close and persists it. The
// venue-reported realized P&L is used when present; otherwise P&L is
// recomputed from prices and the record is flagged degraded.
func (r *Recorder) Record(ctx context.Context, close domain.TradeClose) (domain.TradeRecord, error) {
	pnl, degraded := realizedPnl(close)

	margin := float64(close.SizeContracts) * close.EntryPrice * close.QuantoMultiplier / float64(close.Leverage)
	var pnlPercent float64
	if margin > 0 {
		pnlPercent = pnl / margin * 100
	}

	rec := domain.TradeRecord{
		ID:            uuid.NewString(),
		Symbol:        close.Symbol,
		Side:          close.Side,
		EntryPrice:    close.EntryPrice,
		ExitPrice:     close.ExitPrice,
		SizeContracts: close.SizeContracts,
		Leverage:      close.Leverage,
		EntrySpread:   close.EntrySpread,
		ExitSpread:    close.ExitSpread,
		PnlUSD:        pnl,
		PnlPercent:    pnlPercent,
		HoldTime:      close.ExitTime.Sub(close.EntryTime),
		Partial:       close.Partial,
		DegradedPnl:   degraded,
		ClosedAt:      close.ExitTime,
	}

	r.mu.Lock()
	r.trades = append(r.trades, rec)
	r.mu.Unlock()

	if degraded {
		r.logger.Warn("recorded trade with recomputed pnl",
			slog.String("symbol", rec.Symbol),
			slog.Float64("pnl_usd", rec.PnlUSD),
		)
	}

	if r.csv != nil {
		if err := r.csv.append(rec); err != nil {
			r.logger.Warn("trade log append failed", slog.String("error", err.Error()))
		}
	}
	if r.store != nil {
		if err := r.store.Insert(ctx, rec); err != nil {
			r.logger.Warn("trade store insert failed", slog.String("error", err.Error()))
		}
	}

	return rec, nil
}

// Trades returns a copy of all recorded trades in close order.
func (r *Recorder) Trades() []domain.TradeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TradeRecord, len(r.trades))
	copy(out, r.trades)
	return out
}

// Statistics aggregates all recorded trades. A zero-trade session returns a
// zero-valued Statistics, never a division error.
func (r *Recorder) Statistics() domain.Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return statsFor(r.trades)
}

// StatisticsSince aggregates trades closed at or after cutoff.
func (r *Recorder) StatisticsSince(cutoff time.Time) domain.Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	var subset []domain.TradeRecord
	for _, t := range r.trades {
		if !t.ClosedAt.Before(cutoff) {
			subset = append(subset, t)
		}
	}
	return statsFor(subset)
}

// PerformanceBySymbol breaks recorded trades down per symbol, sorted by total
// P&L descending.
func (r *Recorder) PerformanceBySymbol() []domain.SymbolPerformance {
	r.mu.Lock()
	defer r.mu.Unlock()

	bySymbol := make(map[string]*domain.SymbolPerformance)
	for _, t := range r.trades {
		perf, ok := bySymbol[t.Symbol]
		if !ok {
			perf = &domain.SymbolPerformance{Symbol: t.Symbol}
			bySymbol[t.Symbol] = perf
		}
		perf.Trades++
		if t.PnlUSD > 0 {
			perf.Wins++
		}
		perf.TotalPnlUSD += t.PnlUSD
	}

	out := make([]domain.SymbolPerformance, 0, len(bySymbol))
	for _, perf := range bySymbol {
		if perf.Trades > 0 {
			perf.WinRate = float64(perf.Wins) / float64(perf.Trades) * 100
		}
		out = append(out, *perf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPnlUSD > out[j].TotalPnlUSD })
	return out
}

// WriteDailyStats writes the day's summary file for the given date.
func (r *Recorder) WriteDailyStats(date time.Time) error {
	if r.cfg.StatsDir == "" {
		return nil
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	stats := r.StatisticsSince(day)
	if err := writeDailyStats(r.cfg.StatsDir, day, stats); err != nil {
		return fmt.Errorf("recorder: daily stats: %w", err)
	}
	r.logger.Info("daily stats written",
		slog.String("date", day.Format("2006-01-02")),
		slog.Int("trades", stats.TotalTrades),
		slog.Float64("total_pnl_usd", stats.TotalPnlUSD),
	)
	return nil
}

// Close flushes and closes the trade log file.
func (r *Recorder) Close() error {
	if r.csv == nil {
		return nil
	}
	return r.csv.close()
}

// realizedPnl prefers the venue-reported figure and falls back to the price
// formula, flagging the fallback.
func realizedPnl(close domain.TradeClose) (pnl float64, degraded bool) {
	if close.RealPnlUSD != nil {
		return *close.RealPnlUSD, false
	}
	diff := close.ExitPrice - close.EntryPrice
	if close.Side == domain.DirectionShort {
		diff = -diff
	}
	return float64(close.SizeContracts) * diff * close.QuantoMultiplier, true
}

func statsFor(trades []domain.TradeRecord) domain.Statistics {
	stats := domain.Statistics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return stats
	}

	var totalHold time.Duration
	for i := range trades {
		t := &trades[i]
		stats.TotalPnlUSD += t.PnlUSD
		totalHold += t.HoldTime
		if t.PnlUSD > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		if stats.BestTrade == nil || t.PnlUSD > stats.BestTrade.PnlUSD {
			stats.BestTrade = t
		}
		if stats.WorstTrade == nil || t.PnlUSD < stats.WorstTrade.PnlUSD {
			stats.WorstTrade = t
		}
	}
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	stats.AvgPnlUSD = stats.TotalPnlUSD / float64(stats.TotalTrades)
	stats.AvgHoldTime = totalHold / time.Duration(stats.TotalTrades)
	return stats
}
