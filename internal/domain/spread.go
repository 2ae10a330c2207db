// Package domain defines the core types shared across the spreadbot: spread
// samples and opportunities, tracked positions, trade records, and the
// interfaces the position ledger and its collaborators are wired through.
package domain

import "time"

// Direction is the side of an opportunity or position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// SpreadSample is a single mark/last price observation for one contract.
// Samples are produced per ticker update and consumed immediately; they are
// never persisted.
type SpreadSample struct {
	Symbol         string
	ReferencePrice float64 // mark (fair) price
	TradePrice     float64 // last traded price
	ObservedAt     time.Time
}

// Opportunity is a directional spread signal emitted by the evaluator when the
// mark/last divergence crosses the configured threshold. It is an immutable
// value: created once, handed to the ledger, then discarded.
type Opportunity struct {
	Symbol         string
	ReferencePrice float64
	TradePrice     float64
	SpreadPercent  float64
	Direction      Direction
	DetectedAt     time.Time
}

// SpreadPercent computes the directional spread between a reference (mark)
// price and a trade (last) price:
//
//	reference > trade: long signal, spread relative to the trade price
//	reference < trade: short signal, spread relative to the reference price
//
// Equal or non-positive prices yield a zero spread and an empty direction.
func SpreadPercent(referencePrice, tradePrice float64) (float64, Direction) {
	if referencePrice <= 0 || tradePrice <= 0 {
		return 0, ""
	}
	switch {
	case referencePrice > tradePrice:
		return (referencePrice - tradePrice) / tradePrice * 100, DirectionLong
	case referencePrice < tradePrice:
		return (tradePrice - referencePrice) / referencePrice * 100, DirectionShort
	default:
		return 0, ""
	}
}
