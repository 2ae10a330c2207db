package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// TradeStore persists closed trades.
type TradeStore struct {
	client *Client
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a TradeStore on the shared client.
func NewTradeStore(client *Client) *TradeStore {
	return &TradeStore{client: client}
}

// Insert writes one trade record. The table is append-only; a duplicate ID is
// an error.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.client.pool.Exec(ctx, `
		INSERT INTO trades (
			id, symbol, side, entry_price, exit_price, contracts, leverage,
			entry_spread_pct, exit_spread_pct, pnl_usd, pnl_pct,
			hold_seconds, partial, degraded_pnl, closed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		rec.ID, rec.Symbol, string(rec.Side),
		rec.EntryPrice, rec.ExitPrice, rec.SizeContracts, rec.Leverage,
		rec.EntrySpread, rec.ExitSpread, rec.PnlUSD, rec.PnlPercent,
		int64(rec.HoldTime.Seconds()), rec.Partial, rec.DegradedPnl, rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListBefore returns up to limit trades closed before cutoff, oldest first.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradeRecord, error) {
	rows, err := s.client.pool.Query(ctx, `
		SELECT id, symbol, side, entry_price, exit_price, contracts, leverage,
		       entry_spread_pct, exit_spread_pct, pnl_usd, pnl_pct,
		       hold_seconds, partial, degraded_pnl, closed_at
		FROM trades
		WHERE closed_at < $1
		ORDER BY closed_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var side string
		var holdSeconds int64
		if err := rows.Scan(
			&rec.ID, &rec.Symbol, &side, &rec.EntryPrice, &rec.ExitPrice,
			&rec.SizeContracts, &rec.Leverage, &rec.EntrySpread, &rec.ExitSpread,
			&rec.PnlUSD, &rec.PnlPercent, &holdSeconds, &rec.Partial,
			&rec.DegradedPnl, &rec.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		rec.Side = domain.Direction(side)
		rec.HoldTime = time.Duration(holdSeconds) * time.Second
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	return out, nil
}
