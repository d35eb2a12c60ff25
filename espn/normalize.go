package espn

import (
	"fmt"
	"strconv"

	"github.com/fieldpost/nflbot/scoreboard"
)

// Wire shapes for the slices of the ESPN scoreboard payload the bot reads.
// ESPN returns far more; everything unmapped is ignored.
type scoreboardResponse struct {
	Events []event `json:"events"`
}

type event struct {
	ID           string        `json:"id"`
	Date         string        `json:"date"`
	Name         string        `json:"name"`
	ShortName    string        `json:"shortName"`
	Status       eventStatus   `json:"status"`
	Competitions []competition `json:"competitions"`
}

type eventStatus struct {
	Period       int        `json:"period"`
	DisplayClock string     `json:"displayClock"`
	Type         statusType `json:"type"`
}

type statusType struct {
	Name      string `json:"name"`
	State     string `json:"state"` // pre | in | post
	Completed bool   `json:"completed"`
}

type competition struct {
	Competitors []competitor `json:"competitors"`
}

type competitor struct {
	HomeAway string `json:"homeAway"`
	Score    string `json:"score"`
	Team     team   `json:"team"`
}

type team struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	DisplayName  string `json:"displayName"`
}

// normalizeScoreboard maps the provider payload into the bot's entity shape.
// One event becomes one entity; observable fields are flat strings so the
// differ can compare them without schema knowledge.
func normalizeScoreboard(resp *scoreboardResponse, fetchedAt int64) (*scoreboard.Snapshot, error) {
	entities := make([]scoreboard.Entity, 0, len(resp.Events))
	for i, ev := range resp.Events {
		if ev.ID == "" {
			return nil, fmt.Errorf("%w: event %d has no id", ErrMalformed, i)
		}

		fields := map[string]string{
			"name":       ev.Name,
			"short_name": ev.ShortName,
			"date":       ev.Date,
			"status":     ev.Status.Type.State,
		}
		if ev.Status.Type.Name != "" {
			fields["status_detail"] = ev.Status.Type.Name
		}
		if ev.Status.Period > 0 {
			fields["period"] = strconv.Itoa(ev.Status.Period)
		}
		if ev.Status.DisplayClock != "" {
			fields["clock"] = ev.Status.DisplayClock
		}
		if home, away, ok := competitionScore(ev.Competitions); ok {
			fields["score"] = home + "-" + away
		}

		entities = append(entities, scoreboard.Entity{
			ID:        ev.ID,
			Fields:    fields,
			UpdatedAt: fetchedAt,
		})
	}

	snap, err := scoreboard.NewSnapshot(fetchedAt, entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return snap, nil
}

// competitionScore extracts "home" and "away" scores from the first
// competition, matching on the homeAway marker rather than slice position;
// ESPN does not guarantee competitor order.
func competitionScore(comps []competition) (home, away string, ok bool) {
	if len(comps) == 0 {
		return "", "", false
	}
	for _, c := range comps[0].Competitors {
		switch c.HomeAway {
		case "home":
			home = c.Score
		case "away":
			away = c.Score
		}
	}
	if home == "" && away == "" {
		return "", "", false
	}
	return home, away, true
}
