package domain

import "time"

// Phase is the exit-policy state of a tracked position.
type Phase string

const (
	// PhaseOpen is the initial state entered on a successful open.
	PhaseOpen Phase = "open"
	// PhasePartialTaken means the one-shot partial take-profit has fired.
	PhasePartialTaken Phase = "partial_taken"
	// PhaseProtected means a protective stop is armed on the remainder.
	PhaseProtected Phase = "protected"
)

// Position is a tracked position on one contract. The ledger holds at most one
// Position per symbol and mutates it only under its lock.
type Position struct {
	Symbol           string
	Side             Direction
	SizeContracts    int64 // always positive; sign is applied at the gateway boundary
	EntryPrice       float64
	EntrySpread      float64
	EntryTime        time.Time
	QuantoMultiplier float64
	Leverage         int
	Phase            Phase
	PartialTaken     bool
	ProtectiveStopID string
	OrderID          string
	// Adopted marks positions recovered from a remote snapshot whose local
	// provenance (entry spread, entry time) is unknown.
	Adopted bool
}

// SignedSize returns the size in exchange convention: positive long,
// negative short.
func (p *Position) SignedSize() int64 {
	if p.Side == DirectionShort {
		return -p.SizeContracts
	}
	return p.SizeContracts
}

// UnrealizedPnl returns the unrealized P&L in USD and the ROI percentage
// against the margin committed (notional / leverage) at currentPrice.
func (p *Position) UnrealizedPnl(currentPrice float64) (pnlUSD, roiPercent float64) {
	priceDiff := currentPrice - p.EntryPrice
	if p.Side == DirectionShort {
		priceDiff = p.EntryPrice - currentPrice
	}
	pnlUSD = float64(p.SizeContracts) * priceDiff * p.QuantoMultiplier
	margin := float64(p.SizeContracts) * p.EntryPrice * p.QuantoMultiplier / float64(p.Leverage)
	if margin > 0 {
		roiPercent = pnlUSD / margin * 100
	}
	return pnlUSD, roiPercent
}

// CurrentSpread returns the live spread in the direction the position was
// entered. When the mark/last relationship has flipped against the position's
// side the spread is forced to zero, which drives the exit policy to close
// immediately.
func (p *Position) CurrentSpread(referencePrice, tradePrice float64) (spread float64, reversed bool) {
	spread, dir := SpreadPercent(referencePrice, tradePrice)
	if dir != p.Side {
		return 0, dir != ""
	}
	return spread, false
}

// RemotePosition is one entry of the exchange-reported position snapshot.
// Size is signed: positive long, negative short.
type RemotePosition struct {
	Symbol     string
	Size       int64
	EntryPrice float64
	MarkPrice  float64
}

// Side derives the position direction from the signed size.
func (r RemotePosition) Side() Direction {
	if r.Size < 0 {
		return DirectionShort
	}
	return DirectionLong
}

// AbsSize returns the unsigned contract count.
func (r RemotePosition) AbsSize() int64 {
	if r.Size < 0 {
		return -r.Size
	}
	return r.Size
}

// Contract holds the exchange contract metadata needed for position sizing.
type Contract struct {
	Symbol           string
	QuantoMultiplier float64
	OrderSizeMin     int64
}
