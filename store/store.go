// Package store is the persistence layer: the last committed snapshot, the
// append-only dispatch record log, and the cycle log all live in one SQLite
// database so they survive process restarts together.
package store

import "database/sql"

// Store wraps the bot database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
