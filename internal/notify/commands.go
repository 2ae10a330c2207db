package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Controller is the trading state the command surface reads and toggles.
type Controller interface {
	SetTradingEnabled(enabled bool)
	TradingEnabled() bool
	OpenPositions() []domain.Position
	RemotePositions(ctx context.Context, force bool) (map[string]domain.RemotePosition, error)
	Count() int
}

// StatsProvider exposes session statistics for /stats.
type StatsProvider interface {
	Statistics() domain.Statistics
	PerformanceBySymbol() []domain.SymbolPerformance
	Trades() []domain.TradeRecord
}

// CommandListener long-polls the Telegram Bot API and executes operator
// commands. Only the configured user is honored; everything else is ignored
// silently.
type CommandListener struct {
	telegram   *Telegram
	controller Controller
	stats      StatsProvider
	prices     domain.PriceCache // optional
	maxPos     int
	logger     *slog.Logger

	startedAt time.Time
}

// NewCommandListener wires the command surface.
func NewCommandListener(telegram *Telegram, controller Controller, stats StatsProvider, prices domain.PriceCache, maxPositions int, logger *slog.Logger) *CommandListener {
	return &CommandListener{
		telegram:   telegram,
		controller: controller,
		stats:      stats,
		prices:     prices,
		maxPos:     maxPositions,
		logger:     logger.With(slog.String("component", "commands")),
		startedAt:  time.Now(),
	}
}

// Run polls for commands until ctx is canceled. Poll errors back off briefly
// and retry; the listener never gives up on a transient API failure.
func (c *CommandListener) Run(ctx context.Context) error {
	if c.telegram.cfg.AllowedUserID == 0 {
		c.logger.Info("no allowed user configured, command listener idle")
		<-ctx.Done()
		return ctx.Err()
	}

	var offset int64
	for {
		updates, err := c.telegram.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("update poll failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			if update.Message.From.ID != c.telegram.cfg.AllowedUserID {
				c.logger.Warn("command from unauthorized user ignored",
					slog.Int64("user_id", update.Message.From.ID),
				)
				continue
			}
			c.handle(ctx, update.Message.Chat.ID, update.Message.Text)
		}
	}
}

func (c *CommandListener) handle(ctx context.Context, chatID int64, text string) {
	cmd := strings.ToLower(strings.TrimSpace(text))
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	var reply string
	switch cmd {
	case "/stop":
		c.controller.SetTradingEnabled(false)
		reply = "⏸ New entries paused. Open positions keep being managed."
	case "/start_trading":
		c.controller.SetTradingEnabled(true)
		reply = "▶️ New entries resumed."
	case "/status":
		reply = formatStatus(c.controller.TradingEnabled(), c.controller.Count(), c.maxPos, time.Since(c.startedAt))
	case "/positions":
		// Served from the snapshot cache so a chatty operator cannot hammer
		// the exchange; stale within the TTL is fine for display.
		remote, err := c.controller.RemotePositions(ctx, false)
		if err != nil {
			c.logger.Warn("remote position read failed", slog.String("error", err.Error()))
		}
		reply = formatPositions(c.controller.OpenPositions(), c.currentPrices(ctx), remote)
	case "/stats":
		reply = formatStatistics(c.stats.Statistics(), c.stats.PerformanceBySymbol(), c.stats.Trades())
	case "/help", "/start":
		reply = formatHelp()
	default:
		return
	}

	c.logger.Info("command handled", slog.String("command", cmd))
	if err := c.telegram.sendTo(ctx, chatID, reply); err != nil {
		c.logger.Warn("command reply failed", slog.String("error", err.Error()))
	}
}

func (c *CommandListener) currentPrices(ctx context.Context) map[string]domain.SpreadSample {
	prices := make(map[string]domain.SpreadSample)
	if c.prices == nil {
		return prices
	}
	for _, pos := range c.controller.OpenPositions() {
		sample, err := c.prices.Sample(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		prices[pos.Symbol] = sample
	}
	return prices
}
