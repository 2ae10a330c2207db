package domain

import "time"

// TradeClose carries everything the recorder needs to log one completed
// (full or partial) close.
type TradeClose struct {
	Symbol           string
	Side             Direction
	EntryPrice       float64
	ExitPrice        float64
	SizeContracts    int64
	Leverage         int
	EntrySpread      float64
	ExitSpread       float64
	QuantoMultiplier float64
	EntryTime        time.Time
	ExitTime         time.Time
	OrderID          string
	Partial          bool
	// RealPnlUSD is the exchange-reported realized P&L for this close when it
	// could be fetched; nil triggers the manual fallback computation.
	RealPnlUSD *float64
}

// TradeRecord is one immutable row of the append-only trade log.
type TradeRecord struct {
	ID            string
	Symbol        string
	Side          Direction
	EntryPrice    float64
	ExitPrice     float64
	SizeContracts int64
	Leverage      int
	EntrySpread   float64
	ExitSpread    float64
	PnlUSD        float64
	PnlPercent    float64
	HoldTime      time.Duration
	Partial       bool
	// DegradedPnl marks records whose P&L came from the manual formula because
	// the exchange-reported value was unavailable.
	DegradedPnl bool
	ClosedAt    time.Time
}

// Statistics are running aggregates over all recorded trades.
type Statistics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent
	TotalPnlUSD   float64
	AvgPnlUSD     float64
	BestTrade     *TradeRecord
	WorstTrade    *TradeRecord
	AvgHoldTime   time.Duration
}

// SymbolPerformance aggregates recorded trades for one contract.
type SymbolPerformance struct {
	Symbol      string
	Trades      int
	Wins        int
	WinRate     float64 // percent
	TotalPnlUSD float64
}
