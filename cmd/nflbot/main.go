// Command nflbot polls the ESPN NFL scoreboard and notifies configured
// sinks about score and status changes.
//
// Usage:
//
//	nflbot -config nflbot.yaml            # run the poll loop
//	nflbot -config nflbot.yaml -once      # run a single cycle and exit
//	nflbot -week 2026:3                   # print the games of a week and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldpost/nflbot/dbopen"
	"github.com/fieldpost/nflbot/espn"
	"github.com/fieldpost/nflbot/observability"
	"github.com/fieldpost/nflbot/sink"
	"github.com/fieldpost/nflbot/store"
	"github.com/fieldpost/nflbot/tracker"
)

const heartbeatInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to nflbot.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	week := flag.String("week", "", "print games for a week as season:week (e.g. 2026:3) and exit")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *week, *once); err != nil {
		logger.Error("nflbot: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, week string, once bool) error {
	if week != "" {
		return runWeek(ctx, week)
	}

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nflbot -config <file> [-once] | nflbot -week <season:week>")
		os.Exit(1)
	}

	cfg, err := tracker.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	stateDB, err := dbopen.Open(cfg.StatePath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer stateDB.Close()

	obsDB, err := dbopen.Open(cfg.ObservabilityPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open observability db: %w", err)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		return fmt.Errorf("init observability db: %w", err)
	}

	sinks, err := sink.Build(cfg.Sinks, logger)
	if err != nil {
		return err
	}

	st := store.NewStore(stateDB)
	client := espn.New(cfg.ESPN)
	dispatcher := tracker.NewDispatcher(st, sinks, cfg.Dispatch, cfg.Retention.DedupWindow, logger)
	svc := tracker.New(cfg, client, st, dispatcher, logger,
		tracker.WithEventLogger(observability.NewEventLogger(obsDB)))
	defer svc.Close()

	if once {
		entry, err := svc.RunCycle(ctx)
		if entry != nil {
			logger.Info("nflbot: cycle finished", "status", entry.Status,
				"events", entry.EventCount, "delivered", entry.Delivered)
		}
		return err
	}

	hb := observability.NewHeartbeatWriter(obsDB, "nflbot", heartbeatInterval)
	hb.Start(ctx)
	defer hb.Stop()

	go func() {
		// Observability retention runs on its own slow cadence.
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := observability.Cleanup(ctx, obsDB, observability.RetentionConfig{
					EventLogsDays:  cfg.Retention.EventLogsDays,
					HeartbeatsDays: cfg.Retention.HeartbeatsDays,
				})
				if err != nil {
					logger.Warn("nflbot: observability cleanup", "error", err)
				}
			}
		}
	}()

	logger.Info("nflbot: starting", "poll_interval", cfg.PollInterval.String(), "sinks", len(sinks))
	svc.Run(ctx)
	return nil
}

// runWeek prints a week's schedule as JSON, a quick operator check that the
// source is reachable and the season/week numbers are right.
func runWeek(ctx context.Context, arg string) error {
	season, week, err := parseWeek(arg)
	if err != nil {
		return err
	}

	client := espn.New(espn.Config{})
	games, err := client.WeekGames(ctx, season, week)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(games)
}

func parseWeek(arg string) (season, week int, err error) {
	part := strings.SplitN(arg, ":", 2)
	if len(part) != 2 {
		return 0, 0, fmt.Errorf("invalid week %q, want season:week", arg)
	}
	season, err = strconv.Atoi(part[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid season %q", part[0])
	}
	week, err = strconv.Atoi(part[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid week number %q", part[1])
	}
	return season, week, nil
}
