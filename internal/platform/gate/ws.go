package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

const (
	defaultWSBaseURL = "wss://fx-ws.gateio.ws/v4/ws"

	channelTickers = "futures.tickers"
	channelPing    = "futures.ping"

	// subscribeAll is the wildcard payload for every contract's ticker.
	subscribeAll = "!all"

	readWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
	reconnectDelay = 5 * time.Second
)

// SampleSink receives parsed price samples.
type SampleSink func(ctx context.Context, sample domain.SpreadSample) error

// TickerFeed maintains the futures ticker stream. It reconnects forever with
// a fixed delay; gaps during an outage are simply missed, the decision paths
// re-verify state against REST.
type TickerFeed struct {
	cfg    Config
	sink   SampleSink
	logger *slog.Logger
}

// NewTickerFeed creates a TickerFeed delivering samples to sink.
func NewTickerFeed(cfg Config, sink SampleSink, logger *slog.Logger) *TickerFeed {
	cfg.withDefaults()
	return &TickerFeed{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With(slog.String("component", "ticker_feed")),
	}
}

// Run blocks, streaming tickers until ctx is canceled.
func (f *TickerFeed) Run(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", f.cfg.WSBaseURL, f.cfg.Settle)
	for {
		if err := f.runConn(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("stream interrupted, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", reconnectDelay),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *TickerFeed) runConn(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("gate: dial %s: %w", url, err)
	}
	defer conn.Close()

	if err := f.send(conn, wsRequest{
		Time:    time.Now().Unix(),
		Channel: channelTickers,
		Event:   "subscribe",
		Payload: []string{subscribeAll},
	}); err != nil {
		return fmt.Errorf("gate: subscribe tickers: %w", err)
	}
	f.logger.InfoContext(ctx, "ticker stream connected", slog.String("url", url))

	// Writer side: application-level pings keep the venue from idling the
	// connection out. A separate goroutine so a blocked read cannot starve
	// the pings.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	pingErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := f.send(conn, wsRequest{Time: time.Now().Unix(), Channel: channelPing}); err != nil {
					pingErr <- err
					return
				}
			}
		}
	}()

	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		select {
		case err := <-pingErr:
			return fmt.Errorf("gate: ping: %w: %v", domain.ErrWSDisconnect, err)
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gate: read: %w: %v", domain.ErrWSDisconnect, err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			f.logger.Debug("unparseable frame", slog.String("error", err.Error()))
			continue
		}
		if env.Error != nil {
			return fmt.Errorf("gate: stream error %d: %s: %w", env.Error.Code, env.Error.Message, domain.ErrWSDisconnect)
		}
		if env.Channel != channelTickers || env.Event != "update" {
			continue
		}

		var tickers []tickerUpdate
		if err := json.Unmarshal(env.Result, &tickers); err != nil {
			f.logger.Debug("unparseable ticker result", slog.String("error", err.Error()))
			continue
		}

		observed := time.Now()
		if env.Time > 0 {
			observed = time.Unix(env.Time, 0)
		}
		for _, t := range tickers {
			if t.Last <= 0 || t.MarkPrice <= 0 {
				continue
			}
			sample := domain.SpreadSample{
				Symbol:         t.Contract,
				ReferencePrice: float64(t.MarkPrice),
				TradePrice:     float64(t.Last),
				ObservedAt:     observed,
			}
			if err := f.sink(ctx, sample); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Warn("sample delivery failed",
					slog.String("symbol", t.Contract),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (f *TickerFeed) send(conn *websocket.Conn, req wsRequest) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(req)
}
