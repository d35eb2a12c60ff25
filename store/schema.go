package store

import "database/sql"

// Schema is the complete bot schema.
const Schema = `
-- Last committed snapshot. Exactly one row (id = 1) is retained: comparison
-- is always against the immediately preceding successful fetch.
CREATE TABLE IF NOT EXISTS snapshot (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    fetched_at   INTEGER NOT NULL,
    payload      TEXT NOT NULL,
    committed_at INTEGER NOT NULL
);

-- Dispatch records: which change fingerprints have been handled, with the
-- per-sink outcome. Append-only; pruned after the retention window.
CREATE TABLE IF NOT EXISTS dispatch_records (
    fingerprint   TEXT PRIMARY KEY,
    entity_id     TEXT NOT NULL,
    kind          TEXT NOT NULL,
    field         TEXT NOT NULL DEFAULT '',
    new_value     TEXT NOT NULL DEFAULT '',
    outcomes_json TEXT NOT NULL DEFAULT '{}',
    dispatched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatch_records_time ON dispatch_records(dispatched_at DESC);

-- Cycle log (observability): one row per poll cycle.
CREATE TABLE IF NOT EXISTS cycle_log (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    entity_count  INTEGER NOT NULL DEFAULT 0,
    event_count   INTEGER NOT NULL DEFAULT 0,
    delivered     INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    started_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycle_log_time ON cycle_log(started_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
