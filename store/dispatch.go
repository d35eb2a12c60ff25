package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldpost/nflbot/dbopen"
)

// HasDispatch reports whether a dispatch record with the given fingerprint
// exists at or after the cutoff (UnixMilli). Records older than the cutoff
// are treated as absent so a long-dormant change can notify again.
func (s *Store) HasDispatch(ctx context.Context, fingerprint string, cutoff int64) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatch_records WHERE fingerprint = ? AND dispatched_at >= ?`,
		fingerprint, cutoff).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: dispatch lookup: %w", err)
	}
	return n > 0, nil
}

// InsertDispatch appends a dispatch record. Replaces an expired record with
// the same fingerprint if one survived pruning.
func (s *Store) InsertDispatch(ctx context.Context, rec *DispatchRecord) error {
	if rec.OutcomesJSON == "" {
		rec.OutcomesJSON = "{}"
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO dispatch_records
		(fingerprint, entity_id, kind, field, new_value, outcomes_json, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			outcomes_json = excluded.outcomes_json,
			dispatched_at = excluded.dispatched_at`,
		rec.Fingerprint, rec.EntityID, rec.Kind, rec.Field, rec.NewValue,
		rec.OutcomesJSON, rec.DispatchedAt)
	if err != nil {
		return fmt.Errorf("store: insert dispatch record: %w", err)
	}
	return nil
}

// GetDispatch returns a dispatch record by fingerprint, or nil.
func (s *Store) GetDispatch(ctx context.Context, fingerprint string) (*DispatchRecord, error) {
	rec := &DispatchRecord{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT fingerprint, entity_id, kind, field, new_value, outcomes_json, dispatched_at
		FROM dispatch_records WHERE fingerprint = ?`, fingerprint).
		Scan(&rec.Fingerprint, &rec.EntityID, &rec.Kind, &rec.Field,
			&rec.NewValue, &rec.OutcomesJSON, &rec.DispatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get dispatch record: %w", err)
	}
	return rec, nil
}

// PruneDispatchRecords deletes records dispatched before the cutoff
// (UnixMilli) and returns how many were removed.
func (s *Store) PruneDispatchRecords(ctx context.Context, cutoff int64) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`DELETE FROM dispatch_records WHERE dispatched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune dispatch records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
