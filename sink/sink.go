// Package sink defines notification targets for change events. A sink makes
// exactly one delivery attempt per Send call; retry policy belongs to the
// dispatcher, which needs to record per-sink attempt outcomes.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldpost/nflbot/scoreboard"
)

// Sink delivers change events to one backend (stdout, webhook, log).
type Sink interface {
	// Name identifies the sink in dispatch records and logs. Unique per
	// configured sink.
	Name() string
	Send(ctx context.Context, ev scoreboard.ChangeEvent) error
	Close() error
}

// Config defines one configured sink.
type Config struct {
	// Type is one of "stdout", "webhook", "log".
	Type string `yaml:"type"`
	// Name overrides the record name; defaults to Type (or Type plus a
	// counter when several sinks share a type).
	Name string `yaml:"name"`
	// URL is the webhook endpoint (webhook type only).
	URL string `yaml:"url" env:"NFLBOT_WEBHOOK_URL"`
	// Timeout bounds one delivery attempt. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// envelope is the JSON wire format shared by stdout and webhook sinks.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Build constructs sinks from configuration. Webhook URLs are validated
// against SSRF before any network use; webhookOpts are forwarded to every
// webhook sink (tests use WithURLValidator here).
func Build(cfgs []Config, logger *slog.Logger, webhookOpts ...WebhookOption) ([]Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sinks := make([]Sink, 0, len(cfgs))
	names := make(map[string]bool, len(cfgs))
	for i, cfg := range cfgs {
		name := cfg.Name
		if name == "" {
			name = cfg.Type
		}
		if names[name] {
			return nil, fmt.Errorf("sink: duplicate sink name %q", name)
		}
		names[name] = true

		var (
			s   Sink
			err error
		)
		switch cfg.Type {
		case "stdout":
			s = NewStdout(name, nil)
		case "webhook":
			s, err = NewWebhook(name, cfg.URL, cfg.Timeout, webhookOpts...)
		case "log":
			s = NewLog(name, logger)
		default:
			err = fmt.Errorf("sink: unknown sink type %q (index %d)", cfg.Type, i)
		}
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
