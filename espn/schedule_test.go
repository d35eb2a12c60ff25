package espn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// scheduleServer serves the core week endpoint and the site scoreboard and
// summary endpoints from one mux, mimicking the two ESPN hosts.
func scheduleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/sports/football/leagues/nfl/seasons/2026/types/2/weeks/2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"startDate": "2026-09-17T07:00Z", "endDate": "2026-09-24T06:59Z"}`))
	})
	mux.HandleFunc("/apis/site/v2/sports/football/nfl/scoreboard", func(w http.ResponseWriter, r *http.Request) {
		if dates := r.URL.Query().Get("dates"); dates != "" && !strings.Contains(dates, "-") {
			// Single-date query from FindGameID.
			w.Write([]byte(`{"events": [
				{"id": "401", "name": "Los Angeles Chargers at Kansas City Chiefs", "shortName": "LAC @ KC"},
				{"id": "402", "name": "Buffalo Bills at Miami Dolphins", "shortName": "BUF @ MIA"}
			]}`))
			return
		}
		w.Write([]byte(`{"events": [
			{"id": "501", "date": "2026-09-17T17:00Z", "name": "A at B", "shortName": "A @ B"},
			{"id": "502", "date": "2026-09-18T17:00Z", "name": "C at D", "shortName": "C @ D"}
		]}`))
	})
	mux.HandleFunc("/apis/site/v2/sports/football/nfl/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"boxscore": {"teams": [
			{"team": {"id": "12"}, "statistics": [
				{"name": "totalYards", "displayValue": "382"},
				{"name": "turnovers", "displayValue": "1"}
			]}
		]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWeekGames(t *testing.T) {
	// WHAT: WeekGames resolves the week's date window from the core API and
	// lists the scoreboard events inside it.
	// WHY: The -week one-shot mode prints a week schedule; two chained
	// provider calls must compose.
	srv := scheduleServer(t)
	games, err := testClient(srv.URL).WeekGames(context.Background(), 2026, 2)
	if err != nil {
		t.Fatalf("week games: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("games: got %d, want 2", len(games))
	}
	if games[0].ID != "501" || games[0].Week != 2 {
		t.Errorf("unexpected first game: %+v", games[0])
	}
}

func TestGameSummary(t *testing.T) {
	// WHAT: GameSummary flattens box-score statistics into name → value.
	srv := scheduleServer(t)
	teams, err := testClient(srv.URL).GameSummary(context.Background(), "501")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(teams) != 1 {
		t.Fatalf("teams: got %d, want 1", len(teams))
	}
	if teams[0].TeamID != "12" || teams[0].Stats["totalYards"] != "382" {
		t.Errorf("unexpected stats: %+v", teams[0])
	}
}

func TestFindGameID(t *testing.T) {
	// WHAT: Team matching accepts full names, partial names, and
	// abbreviations, case-insensitively.
	// WHY: Operators reference teams loosely; the original lookup supported
	// all three forms.
	srv := scheduleServer(t)
	c := testClient(srv.URL)
	ctx := context.Background()

	for _, team := range []string{"Kansas City Chiefs", "chargers", "KC", "buf"} {
		wantID := "401"
		if strings.EqualFold(team, "buf") {
			wantID = "402"
		}
		id, err := c.FindGameID(ctx, "20260917", team)
		if err != nil {
			t.Errorf("find %q: %v", team, err)
			continue
		}
		if id != wantID {
			t.Errorf("find %q: got %s, want %s", team, id, wantID)
		}
	}

	if _, err := c.FindGameID(ctx, "20260917", "Seahawks"); err == nil {
		t.Error("expected error for team with no game")
	}
}
