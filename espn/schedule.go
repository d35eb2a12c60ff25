package espn

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// espnDateFormat is the UTC timestamp format the APIs use.
const espnDateFormat = "2006-01-02T15:04Z"

// Game is one scheduled game from the week schedule.
type Game struct {
	ID        string `json:"id"`
	DateTime  string `json:"date_time"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Week      int    `json:"week"`
}

type weekResponse struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// WeekGames returns all games scheduled for a regular-season week.
func (c *Client) WeekGames(ctx context.Context, season, week int) ([]Game, error) {
	var wr weekResponse
	weekURL := c.config.CoreAPI + fmt.Sprintf(weekPath, coreVersion, season, week)
	if err := c.getJSON(ctx, weekURL, nil, &wr); err != nil {
		return nil, err
	}

	start, err := time.Parse(espnDateFormat, wr.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: week start date %q", ErrMalformed, wr.StartDate)
	}
	end, err := time.Parse(espnDateFormat, wr.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: week end date %q", ErrMalformed, wr.EndDate)
	}

	var sr scoreboardResponse
	params := url.Values{
		"limit": {"1000"},
		"dates": {start.Format("20060102") + "-" + end.Format("20060102")},
	}
	if err := c.getJSON(ctx, c.config.SiteAPI+fmt.Sprintf(scoreboardPath, siteVersion), params, &sr); err != nil {
		return nil, err
	}

	games := make([]Game, 0, len(sr.Events))
	for _, ev := range sr.Events {
		games = append(games, Game{
			ID:        ev.ID,
			DateTime:  ev.Date,
			Name:      ev.Name,
			ShortName: ev.ShortName,
			Week:      week,
		})
	}
	return games, nil
}

// TeamStats is one team's box-score statistics for a game, flattened into
// name → display value.
type TeamStats struct {
	TeamID string            `json:"team_id"`
	Stats  map[string]string `json:"stats"`
}

type summaryResponse struct {
	Boxscore struct {
		Teams []struct {
			Team       team `json:"team"`
			Statistics []struct {
				Name         string `json:"name"`
				DisplayValue string `json:"displayValue"`
			} `json:"statistics"`
		} `json:"teams"`
	} `json:"boxscore"`
}

// GameSummary returns per-team box-score statistics for a game.
func (c *Client) GameSummary(ctx context.Context, gameID string) ([]TeamStats, error) {
	var sr summaryResponse
	params := url.Values{"event": {gameID}}
	if err := c.getJSON(ctx, c.config.SiteAPI+fmt.Sprintf(summaryPath, siteVersion), params, &sr); err != nil {
		return nil, err
	}

	teams := make([]TeamStats, 0, len(sr.Boxscore.Teams))
	for _, t := range sr.Boxscore.Teams {
		ts := TeamStats{TeamID: t.Team.ID, Stats: make(map[string]string, len(t.Statistics))}
		for _, s := range t.Statistics {
			ts.Stats[s.Name] = s.DisplayValue
		}
		teams = append(teams, ts)
	}
	return teams, nil
}

var nonWord = regexp.MustCompile(`\W+`)

// FindGameID returns the game ID for a team on a given date (format
// "20060102"). The team parameter may be a full name, a partial name, or an
// abbreviation.
func (c *Client) FindGameID(ctx context.Context, date, team string) (string, error) {
	var sr scoreboardResponse
	params := url.Values{"dates": {date}}
	if err := c.getJSON(ctx, c.config.SiteAPI+fmt.Sprintf(scoreboardPath, siteVersion), params, &sr); err != nil {
		return "", err
	}

	needle := strings.ToLower(team)
	for _, ev := range sr.Events {
		name := strings.ToLower(ev.Name)
		abbr := strings.ToLower(ev.ShortName)
		if strings.Contains(name, needle) ||
			containsToken(nonWord.Split(name, -1), needle) ||
			containsToken(nonWord.Split(abbr, -1), needle) {
			return ev.ID, nil
		}
	}
	return "", fmt.Errorf("espn: no game for team %q on %s", team, date)
}

func containsToken(tokens []string, needle string) bool {
	for _, tok := range tokens {
		if tok == needle {
			return true
		}
	}
	return false
}
