package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Gateway adapts the futures APIv4 to the domain order/position interface.
type Gateway struct {
	client *Client
}

var _ domain.Gateway = (*Gateway)(nil)

// NewGateway creates a Gateway over an existing client.
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// SubmitOrder places a market IOC order. signedSize follows the venue
// convention: positive buys, negative sells. reduceOnly restricts the order
// to closing exposure.
func (g *Gateway) SubmitOrder(ctx context.Context, symbol string, signedSize int64, reduceOnly bool) (domain.OrderAck, error) {
	req := futuresOrderRequest{
		Contract:   symbol,
		Size:       signedSize,
		Price:      "0", // market
		TIF:        "ioc",
		ReduceOnly: reduceOnly,
		Text:       "t-" + uuid.NewString()[:18],
	}

	var resp futuresOrderResponse
	path := fmt.Sprintf("/futures/%s/orders", g.client.cfg.Settle)
	if err := g.client.doSigned(ctx, http.MethodPost, path, "", req, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("gate: submit order %s: %w", symbol, err)
	}
	return domain.OrderAck{OrderID: strconv.FormatInt(resp.ID, 10)}, nil
}

// ListPositions returns all non-flat positions on the account.
func (g *Gateway) ListPositions(ctx context.Context) ([]domain.RemotePosition, error) {
	var resp []futuresPosition
	path := fmt.Sprintf("/futures/%s/positions", g.client.cfg.Settle)
	if err := g.client.doSigned(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, fmt.Errorf("gate: list positions: %w", err)
	}

	out := make([]domain.RemotePosition, 0, len(resp))
	for _, p := range resp {
		if p.Size == 0 {
			continue
		}
		out = append(out, domain.RemotePosition{
			Symbol:     p.Contract,
			Size:       p.Size,
			EntryPrice: float64(p.EntryPrice),
			MarkPrice:  float64(p.MarkPrice),
		})
	}
	return out, nil
}

// PlaceTriggerOrder registers a price-triggered reduce-only market order.
// rule follows the venue semantics: 1 fires at or above the trigger price,
// 2 at or below.
func (g *Gateway) PlaceTriggerOrder(ctx context.Context, symbol string, triggerPrice float64, rule domain.TriggerRule, closeSize int64) (domain.OrderAck, error) {
	req := triggerOrderRequest{
		Initial: triggerInitial{
			Contract:   symbol,
			Size:       closeSize,
			Price:      "0",
			TIF:        "ioc",
			ReduceOnly: true,
		},
		Trigger: triggerRule{
			StrategyType: 0, // price trigger
			PriceType:    0, // last price
			Price:        strconv.FormatFloat(triggerPrice, 'f', -1, 64),
			Rule:         int(rule),
		},
	}

	var resp triggerOrderResponse
	path := fmt.Sprintf("/futures/%s/price_orders", g.client.cfg.Settle)
	if err := g.client.doSigned(ctx, http.MethodPost, path, "", req, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("gate: place trigger order %s: %w", symbol, err)
	}
	return domain.OrderAck{OrderID: strconv.FormatInt(resp.ID, 10)}, nil
}

// LastRealizedPnl returns the venue-reported P&L of the most recent closed
// position for symbol. ErrNotFound means the venue has no close on record
// yet; the caller falls back to a computed figure.
func (g *Gateway) LastRealizedPnl(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("contract", symbol)
	query.Set("limit", "1")

	var resp []positionClose
	path := fmt.Sprintf("/futures/%s/position_close", g.client.cfg.Settle)
	if err := g.client.doSigned(ctx, http.MethodGet, path, query.Encode(), nil, &resp); err != nil {
		return 0, fmt.Errorf("gate: position close history %s: %w", symbol, err)
	}
	if len(resp) == 0 {
		return 0, fmt.Errorf("gate: position close history %s: %w", symbol, domain.ErrNotFound)
	}
	return float64(resp[0].Pnl), nil
}

// Contract fetches contract metadata for sizing.
func (g *Gateway) Contract(ctx context.Context, symbol string) (domain.Contract, error) {
	var resp futuresContract
	path := fmt.Sprintf("/futures/%s/contracts/%s", g.client.cfg.Settle, symbol)
	if err := g.client.doPublic(ctx, path, "", &resp); err != nil {
		return domain.Contract{}, fmt.Errorf("gate: contract %s: %w", symbol, err)
	}
	return domain.Contract{
		Symbol:           resp.Name,
		QuantoMultiplier: float64(resp.QuantoMultiplier),
		OrderSizeMin:     resp.OrderSizeMin,
	}, nil
}

// SetLeverage configures leverage for symbol. In cross-margin mode the venue
// expects leverage zero plus a cross leverage limit.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	query := url.Values{}
	if g.client.cfg.CrossMargin {
		query.Set("leverage", "0")
		query.Set("cross_leverage_limit", strconv.Itoa(leverage))
	} else {
		query.Set("leverage", strconv.Itoa(leverage))
	}

	path := fmt.Sprintf("/futures/%s/positions/%s/leverage", g.client.cfg.Settle, symbol)
	if err := g.client.doSigned(ctx, http.MethodPost, path, query.Encode(), nil, nil); err != nil {
		return fmt.Errorf("gate: set leverage %s: %w", symbol, err)
	}
	return nil
}
