package domain

import "context"

// TriggerRule selects when a price-triggered order fires.
type TriggerRule int

const (
	// TriggerAtOrAbove fires when the price rises to or above the trigger
	// (protects a short at its entry).
	TriggerAtOrAbove TriggerRule = 1
	// TriggerAtOrBelow fires when the price falls to or below the trigger
	// (protects a long at its entry).
	TriggerAtOrBelow TriggerRule = 2
)

// OrderAck is the exchange acknowledgment of a submitted order.
type OrderAck struct {
	OrderID string
}

// Gateway is the order execution boundary. Sizes are signed: positive long,
// negative short. Implementations must honor reduceOnly so closes can never
// flip a position into the opposite direction. All calls are synchronous and
// expected to respect the deadline on ctx.
type Gateway interface {
	// SubmitOrder places a market order for signedSize contracts.
	SubmitOrder(ctx context.Context, symbol string, signedSize int64, reduceOnly bool) (OrderAck, error)

	// ListPositions returns the exchange-reported open positions. This is the
	// source of truth the ledger reconciles against.
	ListPositions(ctx context.Context) ([]RemotePosition, error)

	// PlaceTriggerOrder arms a reduce-only order for closeSize contracts that
	// fires when the given rule is met at triggerPrice.
	PlaceTriggerOrder(ctx context.Context, symbol string, triggerPrice float64, rule TriggerRule, closeSize int64) (OrderAck, error)

	// LastRealizedPnl fetches the realized P&L of the most recent close on
	// symbol. Returns ErrNotFound when the venue has no close to report yet.
	LastRealizedPnl(ctx context.Context, symbol string) (float64, error)

	// Contract returns the contract metadata used for sizing.
	Contract(ctx context.Context, symbol string) (Contract, error)

	// SetLeverage configures leverage for the contract. Best-effort: the
	// ledger logs failures and proceeds.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
