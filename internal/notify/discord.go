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

// Discord posts messages to a webhook.
type Discord struct {
	webhookURL string
	httpClient *http.Client
}

var _ Sender = (*Discord)(nil)

// NewDiscord creates a Discord webhook sender.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) Name() string { return "discord" }

// Send posts text as the webhook message content.
func (d *Discord) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("discord: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: webhook returned %d", resp.StatusCode)
	}
	return nil
}
