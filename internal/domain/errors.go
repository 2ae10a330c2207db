package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxPositions rejects an open when the concurrent position cap is hit.
	ErrMaxPositions = errors.New("max positions reached")
	// ErrSymbolOpen rejects an open when the symbol already has a position,
	// either locally tracked or in the forced remote snapshot.
	ErrSymbolOpen = errors.New("symbol already has an open position")
	// ErrSizeTooSmall rejects an open whose computed contract count is below
	// the exchange minimum.
	ErrSizeTooSmall = errors.New("position size below exchange minimum")
	// ErrTradingDisabled rejects an open while the trading flag is off.
	ErrTradingDisabled = errors.New("trading is disabled")
	// ErrNoPosition is returned by close/partial-close when no position is
	// tracked (or remains on the exchange) for the symbol.
	ErrNoPosition = errors.New("no open position")

	ErrNotFound     = errors.New("not found")
	ErrWSDisconnect = errors.New("websocket disconnected")
)

// GatewayError is a typed failure from the order execution gateway: a venue
// rejection, a transport error, or a timed-out call. The ledger leaves its
// state unchanged when it sees one.
type GatewayError struct {
	Label   string // venue error label, e.g. "INSUFFICIENT_AVAILABLE"
	Message string
}

func (e *GatewayError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Label, e.Message)
	}
	return "gateway: " + e.Message
}

// IsGatewayError reports whether err wraps a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
