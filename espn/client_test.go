package espn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const scoreboardBody = `{
  "events": [
    {
      "id": "401547403",
      "date": "2026-09-13T17:00Z",
      "name": "Green Bay Packers at Chicago Bears",
      "shortName": "GB @ CHI",
      "status": {
        "period": 2,
        "displayClock": "8:42",
        "type": {"name": "STATUS_IN_PROGRESS", "state": "in", "completed": false}
      },
      "competitions": [{
        "competitors": [
          {"homeAway": "home", "score": "7", "team": {"id": "3", "abbreviation": "CHI"}},
          {"homeAway": "away", "score": "10", "team": {"id": "9", "abbreviation": "GB"}}
        ]
      }]
    },
    {
      "id": "401547404",
      "date": "2026-09-13T20:25Z",
      "name": "Dallas Cowboys at Philadelphia Eagles",
      "shortName": "DAL @ PHI",
      "status": {"type": {"name": "STATUS_SCHEDULED", "state": "pre", "completed": false}},
      "competitions": [{
        "competitors": [
          {"homeAway": "home", "score": "0", "team": {"id": "21"}},
          {"homeAway": "away", "score": "0", "team": {"id": "6"}}
        ]
      }]
    }
  ]
}`

func testClient(srvURL string) *Client {
	return New(Config{
		SiteAPI:     srvURL,
		CoreAPI:     srvURL,
		MaxAttempts: 4,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
}

func TestFetch_NormalizesScoreboard(t *testing.T) {
	// WHAT: A scoreboard response becomes a Snapshot with flat string fields.
	// WHY: The differ compares provider-agnostic field maps; normalization
	// is where the ESPN schema is confined.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(scoreboardBody))
	}))
	defer srv.Close()

	snap, err := testClient(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("entities: got %d, want 2", snap.Len())
	}

	live := snap.Get("401547403")
	if live == nil {
		t.Fatal("missing entity 401547403")
	}
	want := map[string]string{
		"status": "in",
		"score":  "7-10",
		"period": "2",
		"clock":  "8:42",
	}
	for k, v := range want {
		if live.Fields[k] != v {
			t.Errorf("field %s: got %q, want %q", k, live.Fields[k], v)
		}
	}

	pre := snap.Get("401547404")
	if pre == nil {
		t.Fatal("missing entity 401547404")
	}
	if pre.Fields["status"] != "pre" {
		t.Errorf("pre-game status: %q", pre.Fields["status"])
	}
	if _, ok := pre.Fields["period"]; ok {
		t.Error("pre-game should have no period field")
	}
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	// WHAT: Three consecutive 500s followed by a success yield exactly one
	// snapshot on the fourth attempt.
	// WHY: Transient provider failures must be absorbed inside the client,
	// and success within the attempt limit must not surface any error.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(scoreboardBody))
	}))
	defer srv.Close()

	snap, err := testClient(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Len() != 2 {
		t.Errorf("entities: got %d, want 2", snap.Len())
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("requests: got %d, want 4", got)
	}
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	// WHAT: Persistent transport failure surfaces ErrUnavailable after the
	// attempt limit.
	// WHY: Exhaustion is surfaced to the scheduler as a failed cycle, never
	// as a crash or an infinite retry loop.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got: %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("requests: got %d, want 4", got)
	}
}

func TestFetch_RateLimitedClassified(t *testing.T) {
	// WHAT: HTTP 429 is classified as ErrRateLimited.
	// WHY: Throttling gets a longer backoff than plain unavailability.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got: %v", err)
	}
}

func TestFetch_MalformedNotRetried(t *testing.T) {
	// WHAT: An unparseable body fails immediately with ErrMalformed after a
	// single request.
	// WHY: Retrying cannot fix a parsing defect; fail fast and surface it.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"events": [{`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("requests: got %d, want 1 (no retry on malformed)", got)
	}
}

func TestFetch_DuplicateEventIDsMalformed(t *testing.T) {
	// WHAT: Duplicate event IDs violate the snapshot invariant and are
	// treated as a malformed response.
	// WHY: Downstream diffing assumes unique IDs per snapshot.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events": [{"id": "1", "status": {"type": {"state": "pre"}}}, {"id": "1", "status": {"type": {"state": "pre"}}}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got: %v", err)
	}
}

func TestFetch_ContextCancelledStopsRetry(t *testing.T) {
	// WHAT: Cancelling the context aborts the retry loop promptly.
	// WHY: Graceful shutdown must not wait out the full backoff schedule.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Fetch(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}
