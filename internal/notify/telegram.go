package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramConfig holds bot credentials and the authorized chat.
type TelegramConfig struct {
	BotToken string
	// ChatID receives outbound notifications.
	ChatID int64
	// AllowedUserID is the only account whose commands are honored. Zero
	// disables the command listener.
	AllowedUserID int64
	BaseURL       string
}

// Telegram sends messages through the Bot API and serves as the transport for
// the command listener.
type Telegram struct {
	cfg        TelegramConfig
	httpClient *http.Client
}

var _ Sender = (*Telegram)(nil)

// NewTelegram creates a Telegram sender.
func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = telegramAPIBase
	}
	return &Telegram{
		cfg: cfg,
		httpClient: &http.Client{
			// Long polls run up to 30s; leave headroom.
			Timeout: 40 * time.Second,
		},
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts text to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	return t.sendTo(ctx, t.cfg.ChatID, text)
}

func (t *Telegram) sendTo(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	var resp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := t.call(ctx, "sendMessage", payload, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("telegram: sendMessage: %s", resp.Description)
	}
	return nil
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// getUpdates long-polls for new updates past offset.
func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]telegramUpdate, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message"},
	}
	var resp struct {
		OK          bool             `json:"ok"`
		Description string           `json:"description"`
		Result      []telegramUpdate `json:"result"`
	}
	if err := t.call(ctx, "getUpdates", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("telegram: getUpdates: %s", resp.Description)
	}
	return resp.Result, nil
}

func (t *Telegram) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: encode %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.cfg.BaseURL, t.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read %s: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("telegram: decode %s: %w", method, err)
	}
	return nil
}
