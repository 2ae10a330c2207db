package gate

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Wire types for the futures APIv4. Gate serializes most numeric fields as
// strings.

// jsonNum decodes a float that Gate may send either quoted or bare.
type jsonNum float64

func (n *jsonNum) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*n = jsonNum(v)
	return nil
}

type apiError struct {
	Label   string `json:"label"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

type futuresOrderRequest struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`
	TIF        string `json:"tif"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	Text       string `json:"text,omitempty"`
}

type futuresOrderResponse struct {
	ID       int64  `json:"id"`
	Contract string `json:"contract"`
	Size     int64  `json:"size"`
	Status   string `json:"status"`
}

type futuresPosition struct {
	Contract   string  `json:"contract"`
	Size       int64   `json:"size"`
	EntryPrice jsonNum `json:"entry_price"`
	MarkPrice  jsonNum `json:"mark_price"`
	Leverage   jsonNum `json:"leverage"`
}

type futuresContract struct {
	Name             string  `json:"name"`
	QuantoMultiplier jsonNum `json:"quanto_multiplier"`
	OrderSizeMin     int64   `json:"order_size_min"`
}

type positionClose struct {
	Contract string  `json:"contract"`
	Pnl      jsonNum `json:"pnl"`
	Time     float64 `json:"time"`
}

type triggerOrderRequest struct {
	Initial triggerInitial `json:"initial"`
	Trigger triggerRule    `json:"trigger"`
}

type triggerInitial struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`
	TIF        string `json:"tif"`
	ReduceOnly bool   `json:"reduce_only"`
}

type triggerRule struct {
	StrategyType int    `json:"strategy_type"`
	PriceType    int    `json:"price_type"`
	Price        string `json:"price"`
	Rule         int    `json:"rule"`
}

type triggerOrderResponse struct {
	ID int64 `json:"id"`
}

type tickerUpdate struct {
	Contract  string  `json:"contract"`
	Last      jsonNum `json:"last"`
	MarkPrice jsonNum `json:"mark_price"`
}

type wsEnvelope struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *wsError        `json:"error"`
	Result  json.RawMessage `json:"result"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsRequest struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event,omitempty"`
	Payload []string `json:"payload,omitempty"`
}
