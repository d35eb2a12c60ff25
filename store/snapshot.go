package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldpost/nflbot/dbopen"
	"github.com/fieldpost/nflbot/scoreboard"
)

// LastSnapshot returns the last committed snapshot, or nil before the first
// successful commit.
func (s *Store) LastSnapshot(ctx context.Context) (*scoreboard.Snapshot, error) {
	var payload string
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload FROM snapshot WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}

	snap, err := scoreboard.UnmarshalSnapshot([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return snap, nil
}

// CommitSnapshot atomically replaces the stored snapshot. A reader never
// observes a partially written snapshot: the whole payload lands in a single
// row write inside a transaction.
func (s *Store) CommitSnapshot(ctx context.Context, snap *scoreboard.Snapshot) error {
	payload, err := scoreboard.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	now := time.Now().UnixMilli()
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot (id, fetched_at, payload, committed_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				fetched_at = excluded.fetched_at,
				payload = excluded.payload,
				committed_at = excluded.committed_at`,
			snap.FetchedAt, string(payload), now)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: commit snapshot: %w", err)
	}
	return nil
}
