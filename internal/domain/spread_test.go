package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpreadPercent(t *testing.T) {
	tests := []struct {
		name       string
		reference  float64
		trade      float64
		wantSpread float64
		wantDir    Direction
	}{
		{"mark above last is long", 107, 100, 7.0, DirectionLong},
		{"mark below last is short", 100, 107, 6.5420560747663545, DirectionShort},
		{"equal prices no signal", 100, 100, 0, ""},
		{"zero reference", 0, 100, 0, ""},
		{"zero trade", 100, 0, 0, ""},
		{"negative price", -5, 100, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spread, dir := SpreadPercent(tt.reference, tt.trade)
			assert.InDelta(t, tt.wantSpread, spread, 1e-9)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}

func TestSpreadPercentDenominators(t *testing.T) {
	// Long divides by the trade price, short by the reference price. The
	// same absolute gap therefore yields different magnitudes.
	longSpread, dir := SpreadPercent(110, 100)
	assert.Equal(t, DirectionLong, dir)
	assert.InDelta(t, 10.0, longSpread, 1e-9)

	shortSpread, dir := SpreadPercent(100, 110)
	assert.Equal(t, DirectionShort, dir)
	assert.InDelta(t, 10.0, shortSpread, 1e-9)
}

func TestPositionUnrealizedPnl(t *testing.T) {
	pos := Position{
		Symbol:           "BTC_USDT",
		Side:             DirectionLong,
		SizeContracts:    1000,
		EntryPrice:       100,
		QuantoMultiplier: 0.0001,
		Leverage:         20,
	}

	// margin = 1000 * 100 * 0.0001 / 20 = 0.5 USDT
	pnl, roi := pos.UnrealizedPnl(110)
	assert.InDelta(t, 1.0, pnl, 1e-9)
	assert.InDelta(t, 200.0, roi, 1e-9)

	pnl, roi = pos.UnrealizedPnl(95)
	assert.InDelta(t, -0.5, pnl, 1e-9)
	assert.InDelta(t, -100.0, roi, 1e-9)

	pos.Side = DirectionShort
	pnl, _ = pos.UnrealizedPnl(110)
	assert.InDelta(t, -1.0, pnl, 1e-9)
}

func TestPositionCurrentSpread(t *testing.T) {
	pos := Position{
		Symbol:      "ETH_USDT",
		Side:        DirectionLong,
		EntryTime:   time.Now(),
		EntrySpread: 7,
	}

	spread, reversed := pos.CurrentSpread(103, 100)
	assert.False(t, reversed)
	assert.InDelta(t, 3.0, spread, 1e-9)

	// Direction flipped: the divergence now points short, so the long
	// position's edge is gone.
	spread, reversed = pos.CurrentSpread(100, 103)
	assert.True(t, reversed)
	assert.Zero(t, spread)
}

func TestRemotePositionSides(t *testing.T) {
	long := RemotePosition{Symbol: "BTC_USDT", Size: 500}
	assert.Equal(t, DirectionLong, long.Side())
	assert.Equal(t, int64(500), long.AbsSize())

	short := RemotePosition{Symbol: "BTC_USDT", Size: -500}
	assert.Equal(t, DirectionShort, short.Side())
	assert.Equal(t, int64(500), short.AbsSize())
}
