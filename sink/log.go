package sink

import (
	"context"
	"log/slog"

	"github.com/fieldpost/nflbot/scoreboard"
)

// Log emits one structured log line per change event. Useful as an
// always-on local sink alongside webhooks.
type Log struct {
	name   string
	logger *slog.Logger
}

// NewLog creates a Log sink.
func NewLog(name string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{name: name, logger: logger}
}

func (l *Log) Name() string { return l.name }

func (l *Log) Send(_ context.Context, ev scoreboard.ChangeEvent) error {
	l.logger.Info("change event",
		"entity_id", ev.EntityID,
		"kind", ev.Kind,
		"field", ev.Field,
		"prev", ev.Prev,
		"new", ev.New)
	return nil
}

func (l *Log) Close() error { return nil }
