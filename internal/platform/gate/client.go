// Package gate implements the Gate.io USDT-settled perpetual futures APIv4:
// a signed REST client for account operations and a websocket feed for
// tickers.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

const (
	defaultBaseURL = "https://api.gateio.ws"
	apiPrefix      = "/api/v4"
	defaultSettle  = "usdt"
)

// Config holds venue credentials and endpoints.
type Config struct {
	BaseURL   string
	WSBaseURL string
	APIKey    string
	APISecret string
	// Settle is the settlement currency segment in futures paths.
	Settle string
	// CrossMargin selects cross-margin mode when setting leverage.
	CrossMargin bool
}

func (c *Config) withDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.WSBaseURL == "" {
		c.WSBaseURL = defaultWSBaseURL
	}
	if c.Settle == "" {
		c.Settle = defaultSettle
	}
}

// Client is a minimal signed HTTP client for the futures APIv4.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.withDefaults()
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "gate")),
		now:    time.Now,
	}
}

// doSigned issues an authenticated request. path is relative to the API
// prefix; body may be nil. The decoded response is written into out when out
// is non-nil.
func (c *Client) doSigned(ctx context.Context, method, path, query string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gate: encode request: %w", err)
		}
	}

	fullPath := apiPrefix + path
	url := c.cfg.BaseURL + fullPath
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("gate: build request: %w", err)
	}

	ts := c.now().Unix()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("KEY", c.cfg.APIKey)
	req.Header.Set("Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("SIGN", signRequest(c.cfg.APISecret, method, fullPath, query, string(bodyBytes), ts))

	return c.execute(req, out)
}

// doPublic issues an unauthenticated request.
func (c *Client) doPublic(ctx context.Context, path, query string, out any) error {
	url := c.cfg.BaseURL + apiPrefix + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("gate: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.execute(req, out)
}

func (c *Client) execute(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gate: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gate: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Label != "" {
			msg := apiErr.Message
			if msg == "" {
				msg = apiErr.Detail
			}
			return &domain.GatewayError{Label: apiErr.Label, Message: msg}
		}
		return &domain.GatewayError{
			Label:   fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: string(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gate: decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
