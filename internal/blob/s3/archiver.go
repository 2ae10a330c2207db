package s3

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// ArchiverConfig holds archival scheduling.
type ArchiverConfig struct {
	// Interval between archive runs.
	Interval time.Duration
	// MinAge keeps recent trades out of the archive so the latest snapshot
	// is stable.
	MinAge time.Duration
	// Prefix is the object key prefix inside the bucket.
	Prefix string
	// BatchLimit caps trades per archive object.
	BatchLimit int
}

func (c *ArchiverConfig) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = 24 * time.Hour
	}
	if c.MinAge <= 0 {
		c.MinAge = time.Hour
	}
	if c.Prefix == "" {
		c.Prefix = "trades"
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 10000
	}
}

// Archiver periodically snapshots closed trades from the store to object
// storage. The store keeps its rows; objects are an additional copy, never a
// replacement.
type Archiver struct {
	cfg    ArchiverConfig
	store  domain.TradeStore
	writer domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiverConfig, store domain.TradeStore, writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	cfg.withDefaults()
	return &Archiver{
		cfg:    cfg,
		store:  store,
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run archives on the configured interval until ctx is canceled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Warn("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce uploads one snapshot of trades older than MinAge.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	cutoff := a.now().Add(-a.cfg.MinAge)
	trades, err := a.store.ListBefore(ctx, cutoff, a.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("archiver: list trades: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	body, err := encodeTrades(trades)
	if err != nil {
		return fmt.Errorf("archiver: encode: %w", err)
	}

	key := fmt.Sprintf("%s/%s/trades_%s.csv",
		a.cfg.Prefix,
		a.now().UTC().Format("2006/01"),
		a.now().UTC().Format("20060102T150405Z"),
	)
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "text/csv"); err != nil {
		return fmt.Errorf("archiver: upload: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("key", key),
		slog.Int("trades", len(trades)),
	)
	return nil
}

func encodeTrades(trades []domain.TradeRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{{
		"closed_at", "id", "symbol", "side",
		"entry_price", "exit_price", "contracts", "leverage",
		"entry_spread_pct", "exit_spread_pct",
		"pnl_usd", "pnl_pct", "hold_seconds", "partial", "degraded_pnl",
	}}
	for _, t := range trades {
		rows = append(rows, []string{
			t.ClosedAt.UTC().Format(time.RFC3339),
			t.ID,
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatInt(t.SizeContracts, 10),
			strconv.Itoa(t.Leverage),
			strconv.FormatFloat(t.EntrySpread, 'f', -1, 64),
			strconv.FormatFloat(t.ExitSpread, 'f', -1, 64),
			strconv.FormatFloat(t.PnlUSD, 'f', -1, 64),
			strconv.FormatFloat(t.PnlPercent, 'f', -1, 64),
			strconv.FormatInt(int64(t.HoldTime.Seconds()), 10),
			strconv.FormatBool(t.Partial),
			strconv.FormatBool(t.DegradedPnl),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
