package store

import (
	"context"
	"fmt"

	"github.com/fieldpost/nflbot/dbopen"
)

// InsertCycle records one poll cycle's outcome.
func (s *Store) InsertCycle(ctx context.Context, e *CycleEntry) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO cycle_log
		(id, status, entity_count, event_count, delivered, error_message, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Status, e.EntityCount, e.EventCount, e.Delivered,
		e.ErrorMessage, e.DurationMs, e.StartedAt)
	if err != nil {
		return fmt.Errorf("store: insert cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the most recent cycle log entries, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]*CycleEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, status, entity_count, event_count, delivered, error_message, duration_ms, started_at
		FROM cycle_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list cycles: %w", err)
	}
	defer rows.Close()

	var entries []*CycleEntry
	for rows.Next() {
		e := &CycleEntry{}
		if err := rows.Scan(&e.ID, &e.Status, &e.EntityCount, &e.EventCount,
			&e.Delivered, &e.ErrorMessage, &e.DurationMs, &e.StartedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneCycles deletes cycle log entries started before the cutoff (UnixMilli).
func (s *Store) PruneCycles(ctx context.Context, cutoff int64) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`DELETE FROM cycle_log WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune cycles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats returns aggregate counters.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	var snapRows int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(fetched_at), 0) FROM snapshot`).
		Scan(&snapRows, &st.SnapshotAt)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	st.HasSnapshot = snapRows > 0

	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatch_records`).Scan(&st.DispatchRecords); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cycle_log`).Scan(&st.Cycles); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cycle_log WHERE status != ?`, CycleOK).Scan(&st.FailedCycles); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}
