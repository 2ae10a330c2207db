package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
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

type fakeController struct {
	mu        sync.Mutex
	enabled   bool
	positions []domain.Position
	remote    map[string]domain.RemotePosition
	remoteErr error
}

func (c *fakeController) SetTradingEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

func (c *fakeController) TradingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *fakeController) OpenPositions() []domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positions
}

func (c *fakeController) RemotePositions(ctx context.Context, force bool) (map[string]domain.RemotePosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote, c.remoteErr
}

func (c *fakeController) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.positions)
}

type fakeStats struct{}

func (fakeStats) Statistics() domain.Statistics {
	return domain.Statistics{TotalTrades: 3, WinningTrades: 2, LosingTrades: 1, WinRate: 66.7, TotalPnlUSD: 4.2, AvgPnlUSD: 1.4}
}

func (fakeStats) PerformanceBySymbol() []domain.SymbolPerformance { return nil }

func (fakeStats) Trades() []domain.TradeRecord {
	return []domain.TradeRecord{
		{Symbol: "BTC_USDT", PnlUSD: 2.1},
		{Symbol: "ETH_USDT", PnlUSD: -0.4},
	}
}

// botServer simulates the Bot API: one batch of updates, then empty polls,
// capturing every sendMessage call.
type botServer struct {
	mu      sync.Mutex
	updates []telegramUpdate
	sent    []string
	served  bool
}

func (b *botServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			b.mu.Lock()
			var result []telegramUpdate
			if !b.served {
				result = b.updates
				b.served = true
			}
			b.mu.Unlock()
			if result == nil {
				// Empty long poll; keep it slow so the test does not spin.
				time.Sleep(50 * time.Millisecond)
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload struct {
				Text string `json:"text"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			b.mu.Lock()
			b.sent = append(b.sent, payload.Text)
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (b *botServer) sentMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	copy(out, b.sent)
	return out
}

func update(id, userID int64, text string) telegramUpdate {
	var u telegramUpdate
	u.UpdateID = id
	raw := fmt.Sprintf(`{"update_id":%d,"message":{"text":%q,"from":{"id":%d},"chat":{"id":777}}}`, id, text, userID)
	json.Unmarshal([]byte(raw), &u)
	return u
}

func runListener(t *testing.T, bot *botServer, ctrl *fakeController) {
	t.Helper()
	srv := httptest.NewServer(bot.handler())
	t.Cleanup(srv.Close)

	tg := NewTelegram(TelegramConfig{
		BotToken:      "test-token",
		ChatID:        777,
		AllowedUserID: 1001,
		BaseURL:       srv.URL,
	})
	listener := NewCommandListener(tg, ctrl, fakeStats{}, nil, 5, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(bot.sentMessages()) > 0 || ctx.Err() != nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestStopCommandDisablesTrading(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{update(1, 1001, "/stop")}}
	ctrl := &fakeController{enabled: true}

	runListener(t, bot, ctrl)

	assert.False(t, ctrl.TradingEnabled())
	sent := bot.sentMessages()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0], "paused")
}

func TestStartTradingCommand(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{update(1, 1001, "/start_trading")}}
	ctrl := &fakeController{enabled: false}

	runListener(t, bot, ctrl)

	assert.True(t, ctrl.TradingEnabled())
}

func TestStatusCommand(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{update(1, 1001, "/status")}}
	ctrl := &fakeController{enabled: true, positions: []domain.Position{{Symbol: "BTC_USDT"}}}

	runListener(t, bot, ctrl)

	sent := bot.sentMessages()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0], "1/5")
	assert.Contains(t, sent[0], "trading")
}

func TestUnauthorizedUserIgnored(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{
		update(1, 9999, "/stop"), // wrong user
		update(2, 1001, "/status"),
	}}
	ctrl := &fakeController{enabled: true}

	runListener(t, bot, ctrl)

	// The intruder's /stop had no effect; only the authorized /status is
	// answered.
	assert.True(t, ctrl.TradingEnabled())
	sent := bot.sentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Positions")
}

func TestStatsCommand(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{update(1, 1001, "/stats")}}
	ctrl := &fakeController{}

	runListener(t, bot, ctrl)

	sent := bot.sentMessages()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0], "Trades: 3")
	assert.Contains(t, sent[0], "+4.20 USDT")
	assert.Contains(t, sent[0], "Recent closes:")
	assert.Contains(t, sent[0], "ETH_USDT -0.40 USDT")
}

func TestPositionsCommandFlagsExchangeMismatch(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{update(1, 1001, "/positions")}}
	ctrl := &fakeController{
		enabled: true,
		positions: []domain.Position{
			{Symbol: "BTC_USDT", Side: domain.DirectionLong, SizeContracts: 100, EntryPrice: 50000},
			{Symbol: "ETH_USDT", Side: domain.DirectionShort, SizeContracts: 40, EntryPrice: 3000},
		},
		remote: map[string]domain.RemotePosition{
			"BTC_USDT": {Symbol: "BTC_USDT", Size: 100},
			"ETH_USDT": {Symbol: "ETH_USDT", Size: -25},
		},
	}

	runListener(t, bot, ctrl)

	sent := bot.sentMessages()
	require.NotEmpty(t, sent)
	// BTC matches the exchange and carries no warning; ETH is short 40
	// locally but the exchange only reports 25.
	assert.Contains(t, sent[0], "BTC_USDT")
	assert.Contains(t, sent[0], "exchange reports -25 contracts")
	assert.NotContains(t, sent[0], "not reported by exchange")
}

func TestPositionsCommandSurvivesSnapshotFailure(t *testing.T) {
	bot := &botServer{updates: []telegramUpdate{update(1, 1001, "/positions")}}
	ctrl := &fakeController{
		enabled:   true,
		positions: []domain.Position{{Symbol: "BTC_USDT", Side: domain.DirectionLong, SizeContracts: 100, EntryPrice: 50000}},
		remoteErr: fmt.Errorf("gate: HTTP_503"),
	}

	runListener(t, bot, ctrl)

	sent := bot.sentMessages()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0], "BTC_USDT")
	assert.NotContains(t, sent[0], "⚠️")
}
