package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldpost/nflbot/safeurl"
	"github.com/fieldpost/nflbot/scoreboard"
)

// Webhook POSTs one change event per Send as JSON. Deliberately
// single-attempt: the dispatcher owns retry and outcome recording.
type Webhook struct {
	name   string
	url    string
	client *http.Client
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*webhookConfig)

type webhookConfig struct {
	validate func(string) error
}

// WithURLValidator overrides endpoint validation (default: safeurl.Validate).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) WebhookOption {
	return func(c *webhookConfig) { c.validate = fn }
}

// NewWebhook creates a Webhook sink after validating the endpoint URL.
func NewWebhook(name, url string, timeout time.Duration, opts ...WebhookOption) (*Webhook, error) {
	cfg := webhookConfig{validate: safeurl.Validate}
	for _, o := range opts {
		o(&cfg)
	}

	if url == "" {
		return nil, fmt.Errorf("sink: webhook %q has no url", name)
	}
	if err := cfg.validate(url); err != nil {
		return nil, fmt.Errorf("sink: webhook %q: %w", name, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Send(ctx context.Context, ev scoreboard.ChangeEvent) error {
	body, err := json.Marshal(envelope{Type: "change_event", Data: ev})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error { return nil }
