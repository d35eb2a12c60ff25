package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldpost/nflbot/scoreboard"
	"github.com/fieldpost/nflbot/sink"
	"github.com/fieldpost/nflbot/store"
)

// Dispatcher fans change events out to the configured sinks. It owns dedup
// and retry: each event is checked against the dispatch record log before
// delivery, each sink gets a bounded number of attempts with exponential
// backoff, and one DispatchRecord is written per handled event after every
// sink has settled.
type Dispatcher struct {
	store       *store.Store
	sinks       []sink.Sink
	config      DispatchConfig
	dedupWindow time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(st *store.Store, sinks []sink.Sink, cfg DispatchConfig, dedupWindow time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:       st,
		sinks:       sinks,
		config:      cfg,
		dedupWindow: dedupWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// DispatchResult summarises one Dispatch call.
type DispatchResult struct {
	// Delivered counts events accepted by every sink.
	Delivered int
	// Partial counts events where at least one sink exhausted its attempts
	// while another succeeded or the event was attempted at all.
	Partial int
	// Skipped counts events suppressed by fingerprint dedup.
	Skipped int
}

// Dispatch delivers events in order. A failing sink never blocks delivery
// to the others. Returns an error only when the dispatch record log cannot
// be read or written; delivery failures are recorded, not raised.
func (d *Dispatcher) Dispatch(ctx context.Context, events []scoreboard.ChangeEvent) (*DispatchResult, error) {
	res := &DispatchResult{}
	cutoff := d.now().Add(-d.dedupWindow).UnixMilli()

	for i := range events {
		ev := &events[i]
		fp := ev.Fingerprint()

		seen, err := d.store.HasDispatch(ctx, fp, cutoff)
		if err != nil {
			return res, fmt.Errorf("tracker: dedup lookup: %w", err)
		}
		if seen {
			res.Skipped++
			d.logger.Debug("tracker: event already dispatched",
				"entity_id", ev.EntityID, "field", ev.Field, "fingerprint", fp)
			continue
		}

		outcomes := make(map[string]store.SinkOutcome, len(d.sinks))
		allOK := true
		for _, s := range d.sinks {
			out := d.deliver(ctx, s, ev)
			outcomes[s.Name()] = out
			if !out.Delivered {
				allOK = false
			}
		}

		outcomesJSON, err := json.Marshal(outcomes)
		if err != nil {
			return res, fmt.Errorf("tracker: encode outcomes: %w", err)
		}
		rec := &store.DispatchRecord{
			Fingerprint:  fp,
			EntityID:     ev.EntityID,
			Kind:         string(ev.Kind),
			Field:        ev.Field,
			NewValue:     ev.New,
			OutcomesJSON: string(outcomesJSON),
			DispatchedAt: d.now().UnixMilli(),
		}
		if err := d.store.InsertDispatch(ctx, rec); err != nil {
			return res, fmt.Errorf("tracker: record dispatch: %w", err)
		}

		if allOK {
			res.Delivered++
		} else {
			res.Partial++
		}
	}
	return res, nil
}

// deliver makes up to MaxAttempts delivery attempts against one sink.
func (d *Dispatcher) deliver(ctx context.Context, s sink.Sink, ev *scoreboard.ChangeEvent) store.SinkOutcome {
	out := store.SinkOutcome{}
	var lastErr error

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.backoff(ctx, attempt); err != nil {
				break
			}
		}
		out.Attempts = attempt

		sendCtx, cancel := context.WithTimeout(ctx, d.config.SinkTimeout)
		err := s.Send(sendCtx, *ev)
		cancel()
		if err == nil {
			out.Delivered = true
			return out
		}
		lastErr = err
		d.logger.Warn("tracker: sink delivery failed",
			"sink", s.Name(), "entity_id", ev.EntityID, "field", ev.Field,
			"attempt", attempt, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		out.Error = lastErr.Error()
	} else if ctx.Err() != nil {
		out.Error = ctx.Err().Error()
	}
	return out
}

func (d *Dispatcher) backoff(ctx context.Context, attempt int) error {
	delay := d.config.Backoff << (attempt - 2)
	if delay > d.config.MaxBackoff {
		delay = d.config.MaxBackoff
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close closes every sink, returning the first error.
func (d *Dispatcher) Close() error {
	var first error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
