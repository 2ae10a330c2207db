// Package ledger is the authoritative local record of tracked positions. All
// mutation goes through one lock, and every decision that risks capital is
// double-checked against a forced remote snapshot: the exchange, not the local
// map, is the source of truth.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// eventChannel is the bus channel and stream position events are published on.
const eventChannel = "positions"

// defaultQuanto is assumed for adopted positions whose contract metadata
// cannot be fetched.
const defaultQuanto = 0.0001

// Config holds ledger parameters.
type Config struct {
	// MarginUSD is the margin committed per position; notional is
	// MarginUSD * Leverage.
	MarginUSD    float64
	Leverage     int
	MaxPositions int
	// SnapshotTTL bounds REST volume on display-path reads. Decision paths
	// always force a fresh remote read.
	SnapshotTTL time.Duration
	// GatewayTimeout caps every gateway call made under the ledger lock. A
	// timed-out call surfaces as a GatewayError and leaves the ledger
	// unchanged.
	GatewayTimeout time.Duration
	// ContractTTL bounds contract metadata lookups.
	ContractTTL time.Duration
}

func (c *Config) withDefaults() {
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 30 * time.Second
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 5 * time.Second
	}
	if c.ContractTTL <= 0 {
		c.ContractTTL = 10 * time.Minute
	}
}

type cachedContract struct {
	contract  domain.Contract
	fetchedAt time.Time
}

// Ledger tracks open positions against one venue account.
type Ledger struct {
	cfg      Config
	gateway  domain.Gateway
	recorder domain.TradeSink
	bus      domain.EventBus // optional
	logger   *slog.Logger

	mu        sync.Mutex
	positions map[string]*domain.Position

	// Display-path snapshot cache. Protected by mu as well: snapshot refreshes
	// happen inside mutating operations.
	snapshot   map[string]domain.RemotePosition
	snapshotAt time.Time

	contracts map[string]cachedContract

	enabled atomic.Bool

	now func() time.Time
}

// New creates a Ledger. The bus may be nil; event publication is then skipped.
func New(cfg Config, gateway domain.Gateway, recorder domain.TradeSink, bus domain.EventBus, logger *slog.Logger) *Ledger {
	cfg.withDefaults()
	l := &Ledger{
		cfg:       cfg,
		gateway:   gateway,
		recorder:  recorder,
		bus:       bus,
		logger:    logger.With(slog.String("component", "ledger")),
		positions: make(map[string]*domain.Position),
		contracts: make(map[string]cachedContract),
		now:       time.Now,
	}
	l.enabled.Store(true)
	return l
}

// SetTradingEnabled toggles whether TryOpen accepts new positions. Existing
// positions keep being managed regardless.
func (l *Ledger) SetTradingEnabled(enabled bool) {
	l.enabled.Store(enabled)
	l.logger.Info("trading flag changed", slog.Bool("enabled", enabled))
}

// TradingEnabled reports the current flag.
func (l *Ledger) TradingEnabled() bool {
	return l.enabled.Load()
}

// TryOpen opens a position for the given opportunity. It enforces the
// position-count cap and symbol uniqueness under the ledger lock, checking
// uniqueness against a forced remote snapshot so a stale local cache can never
// double up after a restart. Typed rejections: ErrTradingDisabled,
// ErrMaxPositions, ErrSymbolOpen, ErrSizeTooSmall, or a GatewayError.
func (l *Ledger) TryOpen(ctx context.Context, opp domain.Opportunity) (domain.Position, error) {
	if !l.enabled.Load() {
		return domain.Position{}, domain.ErrTradingDisabled
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.positions) >= l.cfg.MaxPositions {
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", opp.Symbol, domain.ErrMaxPositions)
	}
	if _, ok := l.positions[opp.Symbol]; ok {
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", opp.Symbol, domain.ErrSymbolOpen)
	}

	remote, err := l.refreshSnapshotLocked(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("ledger: open %s: snapshot: %w", opp.Symbol, err)
	}
	if existing, ok := remote[opp.Symbol]; ok {
		l.logger.Warn("open blocked: symbol already open on exchange",
			slog.String("symbol", opp.Symbol),
			slog.String("side", string(existing.Side())),
			slog.Int64("size", existing.AbsSize()),
		)
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", opp.Symbol, domain.ErrSymbolOpen)
	}

	contract, err := l.contractLocked(ctx, opp.Symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("ledger: open %s: contract: %w", opp.Symbol, err)
	}

	entryPrice := opp.TradePrice
	contracts := l.contractsFor(entryPrice, contract.QuantoMultiplier)
	if contracts < 1 {
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", opp.Symbol, domain.ErrSizeTooSmall)
	}
	if min := contract.OrderSizeMin; min > 0 && contracts < min {
		contracts = min
	}

	// Best-effort leverage setup; the venue remembers it per contract.
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		return l.gateway.SetLeverage(gctx, opp.Symbol, l.cfg.Leverage)
	}); err != nil {
		l.logger.Warn("set leverage failed",
			slog.String("symbol", opp.Symbol),
			slog.String("error", err.Error()),
		)
	}

	signed := contracts
	if opp.Direction == domain.DirectionShort {
		signed = -contracts
	}

	var ack domain.OrderAck
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		var submitErr error
		ack, submitErr = l.gateway.SubmitOrder(gctx, opp.Symbol, signed, false)
		return submitErr
	}); err != nil {
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", opp.Symbol, err)
	}

	pos := &domain.Position{
		Symbol:           opp.Symbol,
		Side:             opp.Direction,
		SizeContracts:    contracts,
		EntryPrice:       entryPrice,
		EntrySpread:      opp.SpreadPercent,
		EntryTime:        l.now(),
		QuantoMultiplier: contract.QuantoMultiplier,
		Leverage:         l.cfg.Leverage,
		Phase:            domain.PhaseOpen,
		OrderID:          ack.OrderID,
	}
	l.positions[opp.Symbol] = pos

	l.logger.Info("position opened",
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.Int64("contracts", pos.SizeContracts),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("entry_spread_pct", pos.EntrySpread),
		slog.String("order_id", ack.OrderID),
	)
	l.publish(ctx, "position_opened", map[string]any{
		"symbol":      pos.Symbol,
		"side":        string(pos.Side),
		"contracts":   pos.SizeContracts,
		"entry_price": pos.EntryPrice,
		"spread_pct":  pos.EntrySpread,
	})

	return *pos, nil
}

// Reconcile merges the exchange-reported positions into the ledger:
//
//   - local positions absent remotely are removed (canceled or liquidated),
//   - remote positions absent locally are adopted with zero entry spread and
//     entry time now (provenance unknown after a restart),
//   - size mismatches are corrected to the remote value.
//
// Applying the same snapshot twice is a no-op.
func (l *Ledger) Reconcile(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	remote, err := l.refreshSnapshotLocked(ctx)
	if err != nil {
		return fmt.Errorf("ledger: reconcile: %w", err)
	}

	for symbol, pos := range l.positions {
		rp, ok := remote[symbol]
		if !ok {
			l.logger.Warn("reconcile: position gone on exchange, dropping",
				slog.String("symbol", symbol),
				slog.String("side", string(pos.Side)),
			)
			delete(l.positions, symbol)
			continue
		}
		if size := rp.AbsSize(); size != pos.SizeContracts {
			l.logger.Warn("reconcile: size divergence, remote wins",
				slog.String("symbol", symbol),
				slog.Int64("local", pos.SizeContracts),
				slog.Int64("remote", size),
			)
			pos.SizeContracts = size
		}
	}

	for symbol, rp := range remote {
		if _, ok := l.positions[symbol]; ok {
			continue
		}
		quanto := defaultQuanto
		if contract, err := l.contractLocked(ctx, symbol); err == nil {
			quanto = contract.QuantoMultiplier
		}
		l.positions[symbol] = &domain.Position{
			Symbol:           symbol,
			Side:             rp.Side(),
			SizeContracts:    rp.AbsSize(),
			EntryPrice:       rp.EntryPrice,
			EntrySpread:      0, // unknown
			EntryTime:        l.now(),
			QuantoMultiplier: quanto,
			Leverage:         l.cfg.Leverage,
			Phase:            domain.PhaseOpen,
			Adopted:          true,
		}
		l.logger.Info("reconcile: adopted remote position",
			slog.String("symbol", symbol),
			slog.String("side", string(rp.Side())),
			slog.Int64("contracts", rp.AbsSize()),
		)
	}

	return nil
}

// ClosePosition submits a reduce-only market order for the full remaining
// remote size opposite the tracked side, removes the position, and forwards
// the close to the recorder.
func (l *Ledger) ClosePosition(ctx context.Context, symbol string, exitPrice, exitSpread float64) (domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return domain.TradeRecord{}, fmt.Errorf("ledger: close %s: %w", symbol, domain.ErrNoPosition)
	}

	remote, err := l.refreshSnapshotLocked(ctx)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: close %s: snapshot: %w", symbol, err)
	}
	rp, ok := remote[symbol]
	if !ok {
		// The exchange already flattened it (trigger order fired,
		// liquidation); nothing left to close.
		l.logger.Warn("close: position not found on exchange, dropping local",
			slog.String("symbol", symbol),
		)
		delete(l.positions, symbol)
		return domain.TradeRecord{}, fmt.Errorf("ledger: close %s: %w", symbol, domain.ErrNoPosition)
	}

	size := rp.AbsSize()
	closeSigned := -size
	if pos.Side == domain.DirectionShort {
		closeSigned = size
	}

	var ack domain.OrderAck
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		var submitErr error
		ack, submitErr = l.gateway.SubmitOrder(gctx, symbol, closeSigned, true)
		return submitErr
	}); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: close %s: %w", symbol, err)
	}

	closed := *pos
	delete(l.positions, symbol)

	rec, err := l.record(ctx, closed, exitPrice, exitSpread, size, ack.OrderID, false)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: close %s: %w", symbol, err)
	}

	l.logger.Info("position closed",
		slog.String("symbol", symbol),
		slog.Int64("contracts", size),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl_usd", rec.PnlUSD),
		slog.String("order_id", ack.OrderID),
	)
	l.publish(ctx, "position_closed", map[string]any{
		"symbol":     symbol,
		"exit_price": exitPrice,
		"pnl_usd":    rec.PnlUSD,
		"contracts":  size,
	})

	return rec, nil
}

// PartialClose submits a reduce-only order for floor(remoteSize * percent/100)
// contracts, reduces the tracked size, and marks the partial take-profit as
// taken. The position stays in the ledger.
func (l *Ledger) PartialClose(ctx context.Context, symbol string, exitPrice, exitSpread float64, percent int) (domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return domain.TradeRecord{}, fmt.Errorf("ledger: partial close %s: %w", symbol, domain.ErrNoPosition)
	}

	remote, err := l.refreshSnapshotLocked(ctx)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: partial close %s: snapshot: %w", symbol, err)
	}
	rp, ok := remote[symbol]
	if !ok {
		l.logger.Warn("partial close: position not found on exchange, dropping local",
			slog.String("symbol", symbol),
		)
		delete(l.positions, symbol)
		return domain.TradeRecord{}, fmt.Errorf("ledger: partial close %s: %w", symbol, domain.ErrNoPosition)
	}

	total := rp.AbsSize()
	partial := total * int64(percent) / 100
	if partial < 1 {
		return domain.TradeRecord{}, fmt.Errorf("ledger: partial close %s: %w", symbol, domain.ErrSizeTooSmall)
	}

	closeSigned := -partial
	if pos.Side == domain.DirectionShort {
		closeSigned = partial
	}

	var ack domain.OrderAck
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		var submitErr error
		ack, submitErr = l.gateway.SubmitOrder(gctx, symbol, closeSigned, true)
		return submitErr
	}); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: partial close %s: %w", symbol, err)
	}

	rec, err := l.record(ctx, *pos, exitPrice, exitSpread, partial, ack.OrderID, true)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: partial close %s: %w", symbol, err)
	}

	pos.SizeContracts = total - partial
	pos.PartialTaken = true
	pos.Phase = domain.PhasePartialTaken

	l.logger.Info("partial close",
		slog.String("symbol", symbol),
		slog.Int64("closed", partial),
		slog.Int64("remaining", pos.SizeContracts),
		slog.Float64("pnl_usd", rec.PnlUSD),
		slog.String("order_id", ack.OrderID),
	)
	l.publish(ctx, "position_partial_close", map[string]any{
		"symbol":    symbol,
		"closed":    partial,
		"remaining": pos.SizeContracts,
		"pnl_usd":   rec.PnlUSD,
	})

	return rec, nil
}

// ArmProtectiveStop places a reduce-only trigger order at the position's entry
// price for the remaining remote size, making the residual position
// (ideally) break-even. Requires a prior partial take-profit.
func (l *Ledger) ArmProtectiveStop(ctx context.Context, symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("ledger: arm stop %s: %w", symbol, domain.ErrNoPosition)
	}
	if !pos.PartialTaken {
		return fmt.Errorf("ledger: arm stop %s: partial take-profit has not fired", symbol)
	}

	remote, err := l.refreshSnapshotLocked(ctx)
	if err != nil {
		return fmt.Errorf("ledger: arm stop %s: snapshot: %w", symbol, err)
	}
	rp, ok := remote[symbol]
	if !ok {
		delete(l.positions, symbol)
		return fmt.Errorf("ledger: arm stop %s: %w", symbol, domain.ErrNoPosition)
	}

	remaining := rp.AbsSize()
	rule := domain.TriggerAtOrBelow
	closeSigned := -remaining
	if pos.Side == domain.DirectionShort {
		rule = domain.TriggerAtOrAbove
		closeSigned = remaining
	}

	var ack domain.OrderAck
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		var placeErr error
		ack, placeErr = l.gateway.PlaceTriggerOrder(gctx, symbol, pos.EntryPrice, rule, closeSigned)
		return placeErr
	}); err != nil {
		return fmt.Errorf("ledger: arm stop %s: %w", symbol, err)
	}

	pos.ProtectiveStopID = ack.OrderID
	pos.Phase = domain.PhaseProtected

	l.logger.Info("protective stop armed",
		slog.String("symbol", symbol),
		slog.Float64("trigger_price", pos.EntryPrice),
		slog.Int64("contracts", remaining),
		slog.String("order_id", ack.OrderID),
	)
	return nil
}

// Position returns a copy of the tracked position for symbol.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// HasPosition reports whether symbol is tracked.
func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[symbol]
	return ok
}

// Count returns the number of tracked positions.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// OpenPositions returns copies of all tracked positions, sorted by symbol.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// RemotePositions returns the exchange snapshot, served from the TTL cache on
// the display path. Pass force to bypass the cache.
func (l *Ledger) RemotePositions(ctx context.Context, force bool) (map[string]domain.RemotePosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !force && l.snapshot != nil && l.now().Sub(l.snapshotAt) < l.cfg.SnapshotTTL {
		return copySnapshot(l.snapshot), nil
	}
	snap, err := l.refreshSnapshotLocked(ctx)
	if err != nil {
		if l.snapshot != nil {
			// Stale data beats none for display.
			return copySnapshot(l.snapshot), nil
		}
		return nil, err
	}
	return copySnapshot(snap), nil
}

// ---------------------------------------------------------------------------
// internals (callers hold l.mu)
// ---------------------------------------------------------------------------

// refreshSnapshotLocked forces a fresh remote position read.
func (l *Ledger) refreshSnapshotLocked(ctx context.Context) (map[string]domain.RemotePosition, error) {
	var listed []domain.RemotePosition
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		var listErr error
		listed, listErr = l.gateway.ListPositions(gctx)
		return listErr
	}); err != nil {
		return nil, err
	}

	snap := make(map[string]domain.RemotePosition, len(listed))
	for _, rp := range listed {
		if rp.Size == 0 {
			continue
		}
		snap[rp.Symbol] = rp
	}
	l.snapshot = snap
	l.snapshotAt = l.now()
	return snap, nil
}

func (l *Ledger) contractLocked(ctx context.Context, symbol string) (domain.Contract, error) {
	if cached, ok := l.contracts[symbol]; ok && l.now().Sub(cached.fetchedAt) < l.cfg.ContractTTL {
		return cached.contract, nil
	}
	var contract domain.Contract
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		var cErr error
		contract, cErr = l.gateway.Contract(gctx, symbol)
		return cErr
	}); err != nil {
		return domain.Contract{}, err
	}
	if contract.QuantoMultiplier <= 0 {
		contract.QuantoMultiplier = defaultQuanto
	}
	l.contracts[symbol] = cachedContract{contract: contract, fetchedAt: l.now()}
	return contract, nil
}

// contractsFor sizes a position: floor(margin * leverage / (price * quanto)).
func (l *Ledger) contractsFor(price, quanto float64) int64 {
	if price <= 0 || quanto <= 0 {
		return 0
	}
	return int64(l.cfg.MarginUSD * float64(l.cfg.Leverage) / (price * quanto))
}

// record fetches the venue-reported realized P&L for the close (falling back
// to nil when unavailable) and hands the trade to the recorder.
func (l *Ledger) record(ctx context.Context, pos domain.Position, exitPrice, exitSpread float64, size int64, orderID string, partial bool) (domain.TradeRecord, error) {
	var realPnl *float64
	if err := l.gatewayCall(ctx, func(gctx context.Context) error {
		pnl, pnlErr := l.gateway.LastRealizedPnl(gctx, pos.Symbol)
		if pnlErr != nil {
			return pnlErr
		}
		realPnl = &pnl
		return nil
	}); err != nil && !errors.Is(err, domain.ErrNotFound) {
		l.logger.Warn("realized pnl fetch failed, recorder will fall back",
			slog.String("symbol", pos.Symbol),
			slog.String("error", err.Error()),
		)
	}

	return l.recorder.Record(ctx, domain.TradeClose{
		Symbol:           pos.Symbol,
		Side:             pos.Side,
		EntryPrice:       pos.EntryPrice,
		ExitPrice:        exitPrice,
		SizeContracts:    size,
		Leverage:         pos.Leverage,
		EntrySpread:      pos.EntrySpread,
		ExitSpread:       exitSpread,
		QuantoMultiplier: pos.QuantoMultiplier,
		EntryTime:        pos.EntryTime,
		ExitTime:         l.now(),
		OrderID:          orderID,
		Partial:          partial,
		RealPnlUSD:       realPnl,
	})
}

// gatewayCall runs fn under the configured gateway timeout.
func (l *Ledger) gatewayCall(ctx context.Context, fn func(context.Context) error) error {
	gctx, cancel := context.WithTimeout(ctx, l.cfg.GatewayTimeout)
	defer cancel()
	return fn(gctx)
}

func (l *Ledger) publish(ctx context.Context, event string, fields map[string]any) {
	if l.bus == nil {
		return
	}
	fields["event"] = event
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, eventChannel, payload); err != nil {
		l.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := l.bus.StreamAppend(ctx, eventChannel, payload); err != nil {
		l.logger.Warn("event stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func copySnapshot(in map[string]domain.RemotePosition) map[string]domain.RemotePosition {
	out := make(map[string]domain.RemotePosition, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
