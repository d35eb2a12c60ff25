package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldpost/nflbot/espn"
	"github.com/fieldpost/nflbot/sink"
	"github.com/fieldpost/nflbot/store"
	_ "modernc.org/sqlite"
)

// scoreboardServer serves a swappable scoreboard body, so tests can change
// the "live" state between cycles.
type scoreboardServer struct {
	mu   sync.Mutex
	body string
	fail atomic.Bool
	srv  *httptest.Server
}

func newScoreboardServer(t *testing.T, body string) *scoreboardServer {
	t.Helper()
	s := &scoreboardServer{body: body}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.fail.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Write([]byte(s.body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *scoreboardServer) setBody(body string) {
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

func gameJSON(id, state, score string) string {
	home, away := "0", "0"
	if score != "" {
		for i := 0; i < len(score); i++ {
			if score[i] == '-' {
				home, away = score[:i], score[i+1:]
			}
		}
	}
	return `{
	  "id": "` + id + `",
	  "date": "2026-09-13T17:00Z",
	  "name": "Green Bay Packers at Chicago Bears",
	  "shortName": "GB @ CHI",
	  "status": {"type": {"name": "x", "state": "` + state + `", "completed": false}},
	  "competitions": [{"competitors": [
	    {"homeAway": "home", "score": "` + home + `", "team": {"id": "3"}},
	    {"homeAway": "away", "score": "` + away + `", "team": {"id": "9"}}
	  ]}]
	}`
}

func board(games ...string) string {
	body := `{"events": [`
	for i, g := range games {
		if i > 0 {
			body += ","
		}
		body += g
	}
	return body + `]}`
}

func newTestService(t *testing.T, srv *scoreboardServer, sinks ...sink.Sink) (*Service, *store.Store) {
	t.Helper()
	st := openTestStore(t)
	cfg := &Config{PollInterval: time.Hour}
	cfg.applyDefaults()
	cfg.Dispatch = testDispatchConfig()

	client := espn.New(espn.Config{
		SiteAPI:     srv.srv.URL,
		CoreAPI:     srv.srv.URL,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
	d := NewDispatcher(st, sinks, cfg.Dispatch, cfg.Retention.DedupWindow, nil)
	return New(cfg, client, st, d, nil), st
}

func TestRunCycle_FirstCycleEmitsCreated(t *testing.T) {
	// WHAT: With no prior snapshot, every game becomes a created event.
	srv := newScoreboardServer(t, board(gameJSON("401", "pre", "0-0")))
	s := &fakeSink{name: "a"}
	svc, st := newTestService(t, srv, s)

	entry, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if entry.Status != store.CycleOK || entry.EventCount != 1 || entry.Delivered != 1 {
		t.Fatalf("entry: %+v", entry)
	}
	if s.delivered() != 1 {
		t.Errorf("sink deliveries: got %d, want 1", s.delivered())
	}

	snap, err := st.LastSnapshot(context.Background())
	if err != nil || snap == nil {
		t.Fatalf("snapshot after cycle: %v %v", snap, err)
	}
}

func TestRunCycle_ScoreChangeNotifiesOnce(t *testing.T) {
	// WHAT: A score change produces exactly one field_changed delivery,
	// and an unchanged scoreboard on the next cycle produces none.
	srv := newScoreboardServer(t, board(gameJSON("401", "in", "0-0")))
	s := &fakeSink{name: "a"}
	svc, _ := newTestService(t, srv, s)

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	base := s.delivered()

	srv.setBody(board(gameJSON("401", "in", "7-0")))
	entry, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if entry.EventCount != 1 || entry.Delivered != 1 {
		t.Fatalf("entry: %+v", entry)
	}
	got := s.events[len(s.events)-1]
	if got.Field != "score" || got.Prev != "0-0" || got.New != "7-0" {
		t.Fatalf("event: %+v", got)
	}

	entry, err = svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 3: %v", err)
	}
	if entry.EventCount != 0 || s.delivered() != base+1 {
		t.Errorf("quiet cycle: entry=%+v deliveries=%d", entry, s.delivered())
	}
}

func TestRunCycle_FetchFailureLeavesStoreUntouched(t *testing.T) {
	// WHAT: When the source is down the cycle logs fetch_failed and the
	// last good snapshot stays current.
	srv := newScoreboardServer(t, board(gameJSON("401", "in", "0-0")))
	s := &fakeSink{name: "a"}
	svc, st := newTestService(t, srv, s)

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	before, _ := st.LastSnapshot(context.Background())

	srv.fail.Store(true)
	entry, err := svc.RunCycle(context.Background())
	if !errors.Is(err, espn.ErrUnavailable) {
		t.Fatalf("error: got %v, want ErrUnavailable", err)
	}
	if entry.Status != store.CycleFetchFailed {
		t.Fatalf("status: %s", entry.Status)
	}

	after, _ := st.LastSnapshot(context.Background())
	if after.FetchedAt != before.FetchedAt {
		t.Error("snapshot replaced on fetch failure")
	}

	// Recovery: the next successful cycle diffs against the kept snapshot.
	srv.fail.Store(false)
	srv.setBody(board(gameJSON("401", "in", "7-0")))
	entry, err = svc.RunCycle(context.Background())
	if err != nil || entry.EventCount != 1 {
		t.Fatalf("recovery cycle: %+v %v", entry, err)
	}
}

func TestRunCycle_PartialSinkFailureStillCommits(t *testing.T) {
	// WHAT: A dead sink yields dispatch_partial but the snapshot commits,
	// so the healthy sink is not re-notified next cycle.
	srv := newScoreboardServer(t, board(gameJSON("401", "pre", "0-0")))
	broken := &fakeSink{name: "broken", failAll: true}
	ok := &fakeSink{name: "ok"}
	svc, st := newTestService(t, srv, broken, ok)

	entry, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if entry.Status != store.CycleDispatchPartial {
		t.Fatalf("status: %s", entry.Status)
	}
	if snap, _ := st.LastSnapshot(context.Background()); snap == nil {
		t.Fatal("snapshot not committed")
	}

	entry, err = svc.RunCycle(context.Background())
	if err != nil || entry.EventCount != 0 {
		t.Fatalf("second cycle: %+v %v", entry, err)
	}
	if ok.delivered() != 1 {
		t.Errorf("healthy sink deliveries: got %d, want 1", ok.delivered())
	}
}

func TestRunCycle_RestartSuppressesDuplicates(t *testing.T) {
	// WHAT: A fresh Service over the same database does not re-notify
	// changes that were dispatched before the restart, even when the
	// snapshot commit was lost.
	srv := newScoreboardServer(t, board(gameJSON("401", "pre", "0-0")))
	s1 := &fakeSink{name: "a"}
	svc1, st := newTestService(t, srv, s1)
	if _, err := svc1.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// Simulate the crash-before-commit window: drop the snapshot but keep
	// the dispatch records.
	if _, err := st.DB.Exec("DELETE FROM snapshot"); err != nil {
		t.Fatalf("drop snapshot: %v", err)
	}

	s2 := &fakeSink{name: "a"}
	cfg := &Config{PollInterval: time.Hour}
	cfg.applyDefaults()
	cfg.Dispatch = testDispatchConfig()
	client := espn.New(espn.Config{
		SiteAPI: srv.srv.URL, CoreAPI: srv.srv.URL,
		MaxAttempts: 2, Backoff: time.Millisecond,
	})
	svc2 := New(cfg, client, st, NewDispatcher(st, []sink.Sink{s2}, cfg.Dispatch, cfg.Retention.DedupWindow, nil), nil)

	entry, err := svc2.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle after restart: %v", err)
	}
	if entry.EventCount != 1 {
		t.Fatalf("re-detected events: got %d, want 1", entry.EventCount)
	}
	if s2.delivered() != 0 {
		t.Errorf("deliveries after restart: got %d, want 0 (deduped)", s2.delivered())
	}
}

func TestRunCycle_NonOverlap(t *testing.T) {
	// WHAT: A cycle triggered while another runs is skipped, not queued.
	srv := newScoreboardServer(t, board(gameJSON("401", "pre", "0-0")))
	slow := &fakeSink{name: "slow"}
	svc, _ := newTestService(t, srv, slow)

	svc.cycleMu.Lock()
	entry, err := svc.RunCycle(context.Background())
	svc.cycleMu.Unlock()

	if !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("error: got %v, want ErrCycleInProgress", err)
	}
	if entry.Status != store.CycleSkipped {
		t.Fatalf("status: %s", entry.Status)
	}
}

func TestStatus_ReportsStatsAndCycles(t *testing.T) {
	srv := newScoreboardServer(t, board(gameJSON("401", "pre", "0-0")))
	svc, _ := newTestService(t, srv, &fakeSink{name: "a"})

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	stats, cycles, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !stats.HasSnapshot || stats.Cycles != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if len(cycles) != 1 || cycles[0].Status != store.CycleOK {
		t.Errorf("cycles: %+v", cycles)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	// WHAT: Run exits promptly after cancellation and the in-flight cycle
	// is allowed to finish.
	srv := newScoreboardServer(t, board(gameJSON("401", "pre", "0-0")))
	svc, _ := newTestService(t, srv, &fakeSink{name: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
