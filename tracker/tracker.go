// Package tracker orchestrates the poll cycle: fetch the current scoreboard,
// diff it against the last committed snapshot, dispatch change events to the
// configured sinks, then commit the new snapshot. Dispatch runs before
// commit so a crash between the two re-detects the same changes on restart
// and fingerprint dedup suppresses the duplicates.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldpost/nflbot/espn"
	"github.com/fieldpost/nflbot/idgen"
	"github.com/fieldpost/nflbot/observability"
	"github.com/fieldpost/nflbot/scoreboard"
	"github.com/fieldpost/nflbot/store"
)

// ErrCycleInProgress indicates a cycle was requested while another was
// still running. The request is skipped, never queued.
var ErrCycleInProgress = errors.New("tracker: cycle already in progress")

// Service runs poll cycles against one source and one state store.
type Service struct {
	config     *Config
	client     *espn.Client
	store      *store.Store
	dispatcher *Dispatcher
	events     *observability.EventLogger
	logger     *slog.Logger
	newID      idgen.Generator
	now        func() time.Time

	// cycleMu enforces non-overlap: held for the duration of a cycle.
	cycleMu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventLogger enables business event recording to the observability
// database.
func WithEventLogger(l *observability.EventLogger) ServiceOption {
	return func(s *Service) { s.events = l }
}

// WithClock overrides the time source. Tests use this to control dedup
// cutoffs and cycle timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides cycle ID generation.
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// New creates a Service. The config must already be validated; the store's
// schema must already be applied.
func New(cfg *Config, client *espn.Client, st *store.Store, dispatcher *Dispatcher, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		config:     cfg,
		client:     client,
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
		newID:      idgen.Prefixed("cyc_", idgen.Default),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunCycle executes one full poll cycle and records its outcome in the
// cycle log. If a cycle is already running the call returns
// ErrCycleInProgress immediately; a skipped entry is logged but not
// persisted, since nothing was attempted.
func (s *Service) RunCycle(ctx context.Context) (*store.CycleEntry, error) {
	if !s.cycleMu.TryLock() {
		s.logger.Warn("tracker: cycle skipped, previous still running")
		return &store.CycleEntry{
			ID:        s.newID(),
			Status:    store.CycleSkipped,
			StartedAt: s.now().UnixMilli(),
		}, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	start := s.now()
	entry := &store.CycleEntry{
		ID:        s.newID(),
		StartedAt: start.UnixMilli(),
	}

	err := s.cycle(ctx, entry)
	entry.DurationMs = s.now().Sub(start).Milliseconds()
	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	if logErr := s.store.InsertCycle(ctx, entry); logErr != nil {
		s.logger.Error("tracker: cycle log write failed", "cycle_id", entry.ID, "error", logErr)
	}
	s.recordCycleEvent(ctx, entry)
	s.prune(ctx)
	return entry, err
}

// cycle runs fetch → diff → dispatch → commit, filling entry as it goes.
func (s *Service) cycle(ctx context.Context, entry *store.CycleEntry) error {
	snap, err := s.client.Fetch(ctx)
	if err != nil {
		// The store is untouched: the last good snapshot stays current
		// and the next cycle diffs against it.
		entry.Status = store.CycleFetchFailed
		s.logger.Error("tracker: fetch failed", "cycle_id", entry.ID, "error", err)
		return err
	}
	entry.EntityCount = snap.Len()

	prev, err := s.store.LastSnapshot(ctx)
	if err != nil {
		entry.Status = store.CycleCommitFailed
		return fmt.Errorf("tracker: load snapshot: %w", err)
	}

	events := scoreboard.Diff(prev, snap, s.now().UnixMilli())
	entry.EventCount = len(events)

	res, err := s.dispatcher.Dispatch(ctx, events)
	if err != nil {
		entry.Status = store.CycleCommitFailed
		return err
	}
	entry.Delivered = res.Delivered

	// Partial sink failure does not block the commit: the failed
	// deliveries are already recorded per sink, and holding the snapshot
	// back would re-raise every event next cycle for the sinks that
	// succeeded.
	if err := s.store.CommitSnapshot(ctx, snap); err != nil {
		entry.Status = store.CycleCommitFailed
		return fmt.Errorf("tracker: commit snapshot: %w", err)
	}

	if res.Partial > 0 {
		entry.Status = store.CycleDispatchPartial
	} else {
		entry.Status = store.CycleOK
	}

	s.logger.Info("tracker: cycle complete",
		"cycle_id", entry.ID, "status", entry.Status,
		"entities", entry.EntityCount, "events", entry.EventCount,
		"delivered", res.Delivered, "partial", res.Partial, "skipped", res.Skipped)
	return nil
}

// Run polls on a ticker until ctx is cancelled. The first cycle runs
// immediately. An in-flight cycle always finishes; cancellation is
// observed between cycles.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tracker: stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	// The cycle runs on a detached context: every blocking operation
	// inside it carries its own timeout, and aborting mid-cycle would
	// discard deliveries already made before the snapshot commit.
	cycleCtx := context.WithoutCancel(ctx)
	if _, err := s.RunCycle(cycleCtx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		s.logger.Error("tracker: cycle failed", "error", err)
	}
}

// Status reports store aggregates and the most recent cycles.
func (s *Service) Status(ctx context.Context) (*store.Stats, []*store.CycleEntry, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	cycles, err := s.store.RecentCycles(ctx, 10)
	if err != nil {
		return nil, nil, err
	}
	return stats, cycles, nil
}

// Close releases the dispatcher's sinks.
func (s *Service) Close() error {
	return s.dispatcher.Close()
}

func (s *Service) recordCycleEvent(ctx context.Context, entry *store.CycleEntry) {
	if s.events == nil {
		return
	}
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   "cycle_completed",
		ServiceName: "nflbot",
		EntityType:  "cycle",
		EntityID:    entry.ID,
		Action:      "poll",
		Details:     fmt.Sprintf(`{"status":%q,"events":%d,"delivered":%d}`, entry.Status, entry.EventCount, entry.Delivered),
		Success:     entry.Status == store.CycleOK,
	})
}

// prune applies retention to the dispatch record log and cycle log.
// Failures are logged, never raised: retention is housekeeping.
func (s *Service) prune(ctx context.Context) {
	now := s.now()

	dedupCutoff := now.Add(-s.config.Retention.DedupWindow).UnixMilli()
	if n, err := s.store.PruneDispatchRecords(ctx, dedupCutoff); err != nil {
		s.logger.Warn("tracker: prune dispatch records", "error", err)
	} else if n > 0 {
		s.logger.Debug("tracker: pruned dispatch records", "count", n)
	}

	cycleCutoff := now.AddDate(0, 0, -s.config.Retention.CycleLogDays).UnixMilli()
	if _, err := s.store.PruneCycles(ctx, cycleCutoff); err != nil {
		s.logger.Warn("tracker: prune cycle log", "error", err)
	}
}
