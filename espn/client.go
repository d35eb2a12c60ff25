// Package espn implements the source client for the ESPN NFL site API.
//
// One Fetch call retrieves the current scoreboard and normalises it into a
// scoreboard.Snapshot. The client owns retry policy: transient transport
// failures and provider throttling are retried with capped exponential
// backoff, while responses that cannot be parsed are surfaced immediately;
// retrying does not fix a parsing defect.
package espn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fieldpost/nflbot/safeurl"
	"github.com/fieldpost/nflbot/scoreboard"
)

const (
	siteVersion = "v2"
	coreVersion = "v2"

	defaultSiteAPI = "https://site.api.espn.com"
	defaultCoreAPI = "https://sports.core.api.espn.com"

	scoreboardPath = "/apis/site/%s/sports/football/nfl/scoreboard"
	summaryPath    = "/apis/site/%s/sports/football/nfl/summary"
	// Season type 2 is the regular season.
	weekPath = "/%s/sports/football/leagues/nfl/seasons/%d/types/2/weeks/%d"
)

// ErrUnavailable indicates a network or transport failure. Transient; retried.
var ErrUnavailable = errors.New("espn: source unavailable")

// ErrRateLimited indicates the provider signalled throttling. Transient;
// retried with longer backoff than ErrUnavailable.
var ErrRateLimited = errors.New("espn: source rate limited")

// ErrMalformed indicates a response that cannot be parsed into valid
// entities. Never retried.
var ErrMalformed = errors.New("espn: source response malformed")

// Config configures the client.
type Config struct {
	// SiteAPI and CoreAPI override the ESPN base URLs (tests point these at
	// httptest servers).
	SiteAPI string `yaml:"site_api" env:"NFLBOT_ESPN_SITE_API"`
	CoreAPI string `yaml:"core_api" env:"NFLBOT_ESPN_CORE_API"`

	// Timeout bounds each HTTP request. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps the response body size. Default: 4MB.
	MaxBytes int64 `yaml:"max_bytes"`
	// UserAgent sent with requests.
	UserAgent string `yaml:"user_agent"`

	// MaxAttempts is the total number of fetch attempts per cycle,
	// including the first. Default: 4.
	MaxAttempts int `yaml:"max_attempts"`
	// Backoff is the delay before the first retry; it doubles per attempt.
	// Default: 1s.
	Backoff time.Duration `yaml:"backoff"`
	// MaxBackoff caps the per-retry delay. Default: 30s.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

func (c *Config) defaults() {
	if c.SiteAPI == "" {
		c.SiteAPI = defaultSiteAPI
	}
	if c.CoreAPI == "" {
		c.CoreAPI = defaultCoreAPI
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 4 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "nflbot/1.0"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// Client fetches NFL state from the ESPN site and core APIs.
type Client struct {
	client *http.Client
	config Config
	now    func() time.Time
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		now:    time.Now,
	}
}

// Fetch retrieves the current scoreboard as a Snapshot. Transient failures
// are retried up to MaxAttempts with capped exponential backoff; a
// rate-limit signal waits twice as long. Malformed responses fail fast.
func (c *Client) Fetch(ctx context.Context) (*scoreboard.Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}

		snap, err := c.fetchScoreboard(ctx)
		if err == nil {
			return snap, nil
		}
		if errors.Is(err, ErrMalformed) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("espn: %d attempts exhausted: %w", c.config.MaxAttempts, lastErr)
}

// backoff sleeps before retry attempt n. The delay doubles per attempt,
// doubles again after a rate-limit signal, and is capped at MaxBackoff.
func (c *Client) backoff(ctx context.Context, attempt int, cause error) error {
	delay := c.config.Backoff << uint(attempt-2)
	if errors.Is(cause, ErrRateLimited) {
		delay *= 2
	}
	if delay > c.config.MaxBackoff {
		delay = c.config.MaxBackoff
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

func (c *Client) fetchScoreboard(ctx context.Context) (*scoreboard.Snapshot, error) {
	var resp scoreboardResponse
	params := url.Values{"limit": {"1000"}}
	if err := c.getJSON(ctx, c.config.SiteAPI+fmt.Sprintf(scoreboardPath, siteVersion), params, &resp); err != nil {
		return nil, err
	}
	return normalizeScoreboard(&resp, c.now().UnixMilli())
}

// getJSON performs one GET and decodes the response, classifying failures
// into the package error taxonomy.
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("espn: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: http 429", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := safeurl.LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
