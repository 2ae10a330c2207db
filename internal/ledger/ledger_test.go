package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type submittedOrder struct {
	symbol     string
	signedSize int64
	reduceOnly bool
}

// fakeGateway simulates the venue: non-reduce orders create remote exposure,
// reduce-only orders shrink it.
type fakeGateway struct {
	mu        sync.Mutex
	remote    map[string]int64
	entries   map[string]float64
	contracts map[string]domain.Contract
	pnl       map[string]float64

	submitted []submittedOrder
	triggers  []string
	leverage  map[string]int
	nextID    int64

	submitErr  error
	listErr    error
	triggerErr error
	listCalls  int
}

var _ domain.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		remote:    make(map[string]int64),
		entries:   make(map[string]float64),
		contracts: make(map[string]domain.Contract),
		pnl:       make(map[string]float64),
		leverage:  make(map[string]int),
	}
}

func (f *fakeGateway) SubmitOrder(_ context.Context, symbol string, signedSize int64, reduceOnly bool) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return domain.OrderAck{}, f.submitErr
	}
	f.submitted = append(f.submitted, submittedOrder{symbol, signedSize, reduceOnly})
	f.remote[symbol] += signedSize
	if f.remote[symbol] == 0 {
		delete(f.remote, symbol)
	}
	f.nextID++
	return domain.OrderAck{OrderID: fmt.Sprintf("%d", f.nextID)}, nil
}

func (f *fakeGateway) ListPositions(context.Context) ([]domain.RemotePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.RemotePosition, 0, len(f.remote))
	for symbol, size := range f.remote {
		out = append(out, domain.RemotePosition{
			Symbol:     symbol,
			Size:       size,
			EntryPrice: f.entries[symbol],
		})
	}
	return out, nil
}

func (f *fakeGateway) PlaceTriggerOrder(_ context.Context, symbol string, _ float64, _ domain.TriggerRule, _ int64) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.triggerErr != nil {
		return domain.OrderAck{}, f.triggerErr
	}
	f.triggers = append(f.triggers, symbol)
	f.nextID++
	return domain.OrderAck{OrderID: fmt.Sprintf("trigger-%d", f.nextID)}, nil
}

func (f *fakeGateway) LastRealizedPnl(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pnl, ok := f.pnl[symbol]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return pnl, nil
}

func (f *fakeGateway) Contract(_ context.Context, symbol string) (domain.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.contracts[symbol]; ok {
		return c, nil
	}
	return domain.Contract{Symbol: symbol, QuantoMultiplier: 0.0001, OrderSizeMin: 1}, nil
}

func (f *fakeGateway) SetLeverage(_ context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage[symbol] = leverage
	return nil
}

func (f *fakeGateway) openOrders() []submittedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []submittedOrder
	for _, o := range f.submitted {
		if !o.reduceOnly {
			out = append(out, o)
		}
	}
	return out
}

// fakeSink records the closes handed to it.
type fakeSink struct {
	mu     sync.Mutex
	closes []domain.TradeClose
}

var _ domain.TradeSink = (*fakeSink)(nil)

func (s *fakeSink) Record(_ context.Context, close domain.TradeClose) (domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, close)

	var pnl float64
	if close.RealPnlUSD != nil {
		pnl = *close.RealPnlUSD
	}
	return domain.TradeRecord{
		Symbol:        close.Symbol,
		Side:          close.Side,
		EntryPrice:    close.EntryPrice,
		ExitPrice:     close.ExitPrice,
		SizeContracts: close.SizeContracts,
		PnlUSD:        pnl,
		Partial:       close.Partial,
		ClosedAt:      close.ExitTime,
	}, nil
}

func newTestLedger(gw *fakeGateway, sink *fakeSink) *Ledger {
	return New(Config{
		MarginUSD:    10,
		Leverage:     20,
		MaxPositions: 3,
	}, gw, sink, nil, testLogger())
}

func longOpp(symbol string, price float64) domain.Opportunity {
	return domain.Opportunity{
		Symbol:         symbol,
		ReferencePrice: price * 1.08,
		TradePrice:     price,
		SpreadPercent:  8.0,
		Direction:      domain.DirectionLong,
		DetectedAt:     time.Now(),
	}
}

func TestTryOpenSizesAndSubmits(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	pos, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	// contracts = 10 * 20 / (100 * 0.0001) = 20000
	assert.Equal(t, int64(20000), pos.SizeContracts)
	assert.Equal(t, domain.DirectionLong, pos.Side)
	assert.Equal(t, domain.PhaseOpen, pos.Phase)
	assert.InDelta(t, 8.0, pos.EntrySpread, 1e-9)
	assert.False(t, pos.Adopted)

	orders := gw.openOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, int64(20000), orders[0].signedSize)
	assert.False(t, orders[0].reduceOnly)
	assert.Equal(t, 20, gw.leverage["BTC_USDT"])
	assert.True(t, book.HasPosition("BTC_USDT"))
}

func TestTryOpenShortSendsNegativeSize(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	opp := longOpp("ETH_USDT", 100)
	opp.Direction = domain.DirectionShort

	pos, err := book.TryOpen(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), pos.SizeContracts)

	orders := gw.openOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, int64(-20000), orders[0].signedSize)
}

func TestTryOpenClampsToMinimumOrderSize(t *testing.T) {
	gw := newFakeGateway()
	gw.contracts["DOGE_USDT"] = domain.Contract{
		Symbol: "DOGE_USDT", QuantoMultiplier: 0.01, OrderSizeMin: 100,
	}
	book := New(Config{MarginUSD: 10, Leverage: 1, MaxPositions: 3}, gw, &fakeSink{}, nil, testLogger())

	// computed = 10 * 1 / (500 * 0.01) = 2, below the venue minimum
	pos, err := book.TryOpen(context.Background(), longOpp("DOGE_USDT", 500))
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.SizeContracts)
}

func TestTryOpenRejectsZeroContracts(t *testing.T) {
	gw := newFakeGateway()
	gw.contracts["BTC_USDT"] = domain.Contract{
		Symbol: "BTC_USDT", QuantoMultiplier: 0.01, OrderSizeMin: 1,
	}
	book := New(Config{MarginUSD: 10, Leverage: 1, MaxPositions: 3}, gw, &fakeSink{}, nil, testLogger())

	// computed = 10 / (2000 * 0.01) = 0.5 -> floor 0
	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 2000))
	assert.ErrorIs(t, err, domain.ErrSizeTooSmall)
	assert.Empty(t, gw.openOrders())
}

func TestTryOpenEnforcesMaxPositions(t *testing.T) {
	gw := newFakeGateway()
	book := New(Config{MarginUSD: 10, Leverage: 20, MaxPositions: 1}, gw, &fakeSink{}, nil, testLogger())

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	_, err = book.TryOpen(context.Background(), longOpp("ETH_USDT", 100))
	assert.ErrorIs(t, err, domain.ErrMaxPositions)
	assert.Equal(t, 1, book.Count())
}

func TestTryOpenRejectsDuplicateSymbol(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	_, err = book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	assert.ErrorIs(t, err, domain.ErrSymbolOpen)
	assert.Len(t, gw.openOrders(), 1)
}

func TestTryOpenChecksRemoteNotJustLocal(t *testing.T) {
	gw := newFakeGateway()
	// Exposure exists on the exchange that the ledger does not know about.
	gw.remote["BTC_USDT"] = 5000
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	assert.ErrorIs(t, err, domain.ErrSymbolOpen)
	assert.Empty(t, gw.openOrders())
}

func TestTryOpenWhileDisabled(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})
	book.SetTradingEnabled(false)

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	assert.ErrorIs(t, err, domain.ErrTradingDisabled)

	book.SetTradingEnabled(true)
	_, err = book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	assert.NoError(t, err)
}

func TestTryOpenGatewayFailureLeavesLedgerUnchanged(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr = &domain.GatewayError{Label: "INSUFFICIENT_AVAILABLE", Message: "not enough margin"}
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.Error(t, err)
	assert.True(t, domain.IsGatewayError(err))
	assert.Zero(t, book.Count())
}

func TestConcurrentOpensRespectCap(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{}) // cap 3

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			symbol := fmt.Sprintf("SYM%d_USDT", i)
			book.TryOpen(context.Background(), longOpp(symbol, 100))
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, book.Count())
	assert.Len(t, gw.openOrders(), 3)
}

func TestReconcileAdoptsRemote(t *testing.T) {
	gw := newFakeGateway()
	gw.remote["BTC_USDT"] = -7000
	gw.entries["BTC_USDT"] = 42000
	book := newTestLedger(gw, &fakeSink{})

	require.NoError(t, book.Reconcile(context.Background()))

	pos, ok := book.Position("BTC_USDT")
	require.True(t, ok)
	assert.True(t, pos.Adopted)
	assert.Equal(t, domain.DirectionShort, pos.Side)
	assert.Equal(t, int64(7000), pos.SizeContracts)
	assert.Equal(t, 42000.0, pos.EntryPrice)
	assert.Zero(t, pos.EntrySpread)
}

func TestReconcileDropsVanished(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	// Flattened out-of-band (trigger fired, manual close).
	gw.mu.Lock()
	delete(gw.remote, "BTC_USDT")
	gw.mu.Unlock()

	require.NoError(t, book.Reconcile(context.Background()))
	assert.False(t, book.HasPosition("BTC_USDT"))
}

func TestReconcileCorrectsSize(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	gw.mu.Lock()
	gw.remote["BTC_USDT"] = 12345
	gw.mu.Unlock()

	require.NoError(t, book.Reconcile(context.Background()))
	pos, _ := book.Position("BTC_USDT")
	assert.Equal(t, int64(12345), pos.SizeContracts)
}

func TestReconcileIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.remote["BTC_USDT"] = 5000
	book := newTestLedger(gw, &fakeSink{})

	require.NoError(t, book.Reconcile(context.Background()))
	first, _ := book.Position("BTC_USDT")

	require.NoError(t, book.Reconcile(context.Background()))
	second, _ := book.Position("BTC_USDT")

	assert.Equal(t, 1, book.Count())
	assert.Equal(t, first.SizeContracts, second.SizeContracts)
	assert.Equal(t, first.EntryPrice, second.EntryPrice)
}

func TestClosePositionFullFlow(t *testing.T) {
	gw := newFakeGateway()
	sink := &fakeSink{}
	book := newTestLedger(gw, sink)

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)
	gw.pnl["BTC_USDT"] = 1.23

	rec, err := book.ClosePosition(context.Background(), "BTC_USDT", 110, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 1.23, rec.PnlUSD, 1e-9)
	assert.False(t, book.HasPosition("BTC_USDT"))

	// Last order is the reduce-only close for the full size.
	last := gw.submitted[len(gw.submitted)-1]
	assert.True(t, last.reduceOnly)
	assert.Equal(t, int64(-20000), last.signedSize)

	require.Len(t, sink.closes, 1)
	require.NotNil(t, sink.closes[0].RealPnlUSD)
	assert.InDelta(t, 1.23, *sink.closes[0].RealPnlUSD, 1e-9)
}

func TestClosePositionMissingRemote(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	gw.mu.Lock()
	delete(gw.remote, "BTC_USDT")
	gw.mu.Unlock()

	_, err = book.ClosePosition(context.Background(), "BTC_USDT", 110, 0.3)
	assert.ErrorIs(t, err, domain.ErrNoPosition)
	assert.False(t, book.HasPosition("BTC_USDT"))
}

func TestPartialClose(t *testing.T) {
	gw := newFakeGateway()
	sink := &fakeSink{}
	book := newTestLedger(gw, sink)

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	rec, err := book.PartialClose(context.Background(), "BTC_USDT", 108, 1.0, 50)
	require.NoError(t, err)
	assert.True(t, rec.Partial)
	assert.Equal(t, int64(10000), rec.SizeContracts)

	pos, ok := book.Position("BTC_USDT")
	require.True(t, ok)
	assert.Equal(t, int64(10000), pos.SizeContracts)
	assert.True(t, pos.PartialTaken)
	assert.Equal(t, domain.PhasePartialTaken, pos.Phase)

	last := gw.submitted[len(gw.submitted)-1]
	assert.True(t, last.reduceOnly)
	assert.Equal(t, int64(-10000), last.signedSize)
}

func TestArmProtectiveStop(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.NoError(t, err)

	// The stop requires the take-profit to have fired first.
	err = book.ArmProtectiveStop(context.Background(), "BTC_USDT")
	require.Error(t, err)

	_, err = book.PartialClose(context.Background(), "BTC_USDT", 108, 1.0, 50)
	require.NoError(t, err)

	require.NoError(t, book.ArmProtectiveStop(context.Background(), "BTC_USDT"))
	pos, _ := book.Position("BTC_USDT")
	assert.Equal(t, domain.PhaseProtected, pos.Phase)
	assert.NotEmpty(t, pos.ProtectiveStopID)
	assert.Equal(t, []string{"BTC_USDT"}, gw.triggers)
}

func TestSnapshotFailureAbortsDecision(t *testing.T) {
	gw := newFakeGateway()
	book := newTestLedger(gw, &fakeSink{})

	gw.listErr = errors.New("gateway down")
	_, err := book.TryOpen(context.Background(), longOpp("BTC_USDT", 100))
	require.Error(t, err)
	assert.Zero(t, book.Count())
	assert.Empty(t, gw.openOrders())
}

func TestRemotePositionsServedFromSnapshotCache(t *testing.T) {
	gw := newFakeGateway()
	gw.remote["BTC_USDT"] = 100
	gw.entries["BTC_USDT"] = 50000
	book := newTestLedger(gw, &fakeSink{})

	base := time.Now()
	book.now = func() time.Time { return base }

	first, err := book.RemotePositions(context.Background(), false)
	require.NoError(t, err)
	require.Contains(t, first, "BTC_USDT")
	assert.EqualValues(t, 100, first["BTC_USDT"].Size)
	calls := gw.listCalls

	// Within the TTL the snapshot is reused without touching the venue.
	_, err = book.RemotePositions(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, calls, gw.listCalls)

	// Force bypasses the cache.
	_, err = book.RemotePositions(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, calls+1, gw.listCalls)

	// Past the TTL the next read refreshes.
	base = base.Add(time.Minute)
	_, err = book.RemotePositions(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, calls+2, gw.listCalls)
}

func TestRemotePositionsReturnsStaleOnGatewayFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.remote["BTC_USDT"] = 100
	book := newTestLedger(gw, &fakeSink{})

	base := time.Now()
	book.now = func() time.Time { return base }

	_, err := book.RemotePositions(context.Background(), false)
	require.NoError(t, err)

	base = base.Add(time.Minute)
	gw.listErr = errors.New("gateway down")

	stale, err := book.RemotePositions(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, stale, "BTC_USDT")
}
