package tracker

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/fieldpost/nflbot/espn"
	"github.com/fieldpost/nflbot/sink"
)

// ErrNoPollInterval indicates the configuration omitted poll_interval.
// There is no sensible default for poll cadence, so it must be explicit.
var ErrNoPollInterval = errors.New("tracker: poll_interval is required")

// ErrNoSinks indicates the configuration defined no notification sinks.
var ErrNoSinks = errors.New("tracker: at least one sink is required")

// Config is the top-level bot configuration.
type Config struct {
	// PollInterval is the scoreboard poll cadence. Required.
	PollInterval time.Duration `yaml:"poll_interval" env:"NFLBOT_POLL_INTERVAL"`

	// StatePath is the state database file. Default: nflbot.db.
	StatePath string `yaml:"state_path" env:"NFLBOT_STATE_PATH"`
	// ObservabilityPath is the diagnostics database file. Default:
	// nflbot-obs.db.
	ObservabilityPath string `yaml:"observability_path" env:"NFLBOT_OBS_PATH"`

	ESPN      espn.Config     `yaml:"espn"`
	Sinks     []sink.Config   `yaml:"sinks"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Retention RetentionConfig `yaml:"retention"`
}

// DispatchConfig controls per-sink delivery retries.
type DispatchConfig struct {
	// MaxAttempts is delivery attempts per sink per event, including the
	// first. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`
	// Backoff is the delay before the first redelivery; it doubles per
	// attempt. Default: 500ms.
	Backoff time.Duration `yaml:"backoff"`
	// MaxBackoff caps the redelivery delay. Default: 10s.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// SinkTimeout bounds one delivery attempt. Default: 10s.
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

// RetentionConfig controls how long persisted records are kept.
type RetentionConfig struct {
	// DedupWindow is how long a dispatch fingerprint suppresses
	// redelivery. Default: 72h, comfortably past any game's duration.
	DedupWindow time.Duration `yaml:"dedup_window"`
	// CycleLogDays prunes cycle log entries. Default: 14.
	CycleLogDays int `yaml:"cycle_log_days"`
	// EventLogsDays and HeartbeatsDays prune the observability database.
	// Defaults: 30 and 7.
	EventLogsDays  int `yaml:"event_logs_days"`
	HeartbeatsDays int `yaml:"heartbeats_days"`
}

// LoadConfigFile reads a YAML configuration file, then applies environment
// overrides and defaults. Validation is left to Validate so callers can
// adjust the config first.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tracker: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tracker: parse config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("tracker: env overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StatePath == "" {
		c.StatePath = "nflbot.db"
	}
	if c.ObservabilityPath == "" {
		c.ObservabilityPath = "nflbot-obs.db"
	}
	if c.Dispatch.MaxAttempts <= 0 {
		c.Dispatch.MaxAttempts = 3
	}
	if c.Dispatch.Backoff <= 0 {
		c.Dispatch.Backoff = 500 * time.Millisecond
	}
	if c.Dispatch.MaxBackoff <= 0 {
		c.Dispatch.MaxBackoff = 10 * time.Second
	}
	if c.Dispatch.SinkTimeout <= 0 {
		c.Dispatch.SinkTimeout = 10 * time.Second
	}
	if c.Retention.DedupWindow <= 0 {
		c.Retention.DedupWindow = 72 * time.Hour
	}
	if c.Retention.CycleLogDays <= 0 {
		c.Retention.CycleLogDays = 14
	}
	if c.Retention.EventLogsDays <= 0 {
		c.Retention.EventLogsDays = 30
	}
	if c.Retention.HeartbeatsDays <= 0 {
		c.Retention.HeartbeatsDays = 7
	}
}

// Validate checks the required fields. PollInterval and sinks have no
// defaults: a bot polling at a made-up cadence or notifying nobody is a
// misconfiguration, not a fallback.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return ErrNoPollInterval
	}
	if len(c.Sinks) == 0 {
		return ErrNoSinks
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout", "webhook", "log":
		case "":
			return fmt.Errorf("tracker: sink %d: type is required", i)
		default:
			return fmt.Errorf("tracker: sink %d: unknown type %q", i, s.Type)
		}
		if s.Type == "webhook" && s.URL == "" {
			return fmt.Errorf("tracker: sink %d: webhook requires a url", i)
		}
	}
	return nil
}
