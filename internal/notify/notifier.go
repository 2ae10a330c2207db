// Package notify delivers trading events to outbound channels and hosts the
// remote command surface.
package notify

import (
	"context"
	"log/slog"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Sender delivers one plain-text message to a channel.
type Sender interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Notifier fans messages out to all configured senders. Delivery failures are
// logged and never propagate into the trading path.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over the given senders. An empty sender list
// is valid; every notification becomes a no-op.
func NewNotifier(logger *slog.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify sends text to every channel.
func (n *Notifier) Notify(ctx context.Context, text string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, text); err != nil {
			n.logger.Warn("notification failed",
				slog.String("channel", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// OpportunityDetected announces a qualifying spread before any trading
// decision is taken on it.
func (n *Notifier) OpportunityDetected(ctx context.Context, opp domain.Opportunity) {
	n.Notify(ctx, formatOpportunity(opp))
}

// PositionOpened announces a fill.
func (n *Notifier) PositionOpened(ctx context.Context, pos domain.Position, opp domain.Opportunity) {
	n.Notify(ctx, formatOpened(pos, opp))
}

// TradeClosed announces a full or partial close.
func (n *Notifier) TradeClosed(ctx context.Context, rec domain.TradeRecord) {
	n.Notify(ctx, formatClosed(rec))
}

// Alert announces an operational problem.
func (n *Notifier) Alert(ctx context.Context, title, detail string) {
	n.Notify(ctx, formatAlert(title, detail))
}
