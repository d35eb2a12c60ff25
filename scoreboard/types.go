// Package scoreboard defines the domain model for tracked games: entities,
// snapshots, and the change events produced by comparing two snapshots.
//
// The package is pure: no I/O, no persistence. The espn package produces
// Snapshots, the store package persists them, and the tracker package
// dispatches the ChangeEvents that Diff emits.
package scoreboard

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ChangeKind classifies a detected difference between two snapshots.
type ChangeKind string

const (
	// KindCreated means the entity appears in the current snapshot but not
	// the previous one.
	KindCreated ChangeKind = "created"
	// KindFieldChanged means one observed field of the entity differs.
	// Field-level granularity: one event per changed field.
	KindFieldChanged ChangeKind = "field_changed"
	// KindRemoved means the entity was present previously and is gone.
	KindRemoved ChangeKind = "removed"
)

// Entity is one tracked game. Identity is the stable ID; all fields are
// mutable between snapshots.
type Entity struct {
	ID        string            `json:"id"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt int64             `json:"updated_at"` // UnixMilli
}

// Snapshot is an immutable collection of entities fetched in one source
// call. Entity IDs are unique within a snapshot; entity order is the order
// the source returned them in, and Diff preserves it.
type Snapshot struct {
	FetchedAt int64    `json:"fetched_at"` // UnixMilli
	Entities  []Entity `json:"entities"`

	byID map[string]int
}

// NewSnapshot builds a Snapshot, rejecting duplicate entity IDs.
func NewSnapshot(fetchedAt int64, entities []Entity) (*Snapshot, error) {
	s := &Snapshot{
		FetchedAt: fetchedAt,
		Entities:  entities,
		byID:      make(map[string]int, len(entities)),
	}
	for i, e := range entities {
		if e.ID == "" {
			return nil, fmt.Errorf("scoreboard: entity %d has empty id", i)
		}
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("scoreboard: duplicate entity id %q", e.ID)
		}
		s.byID[e.ID] = i
	}
	return s, nil
}

// Get returns the entity with the given ID, or nil.
func (s *Snapshot) Get(id string) *Entity {
	if s == nil {
		return nil
	}
	if s.byID == nil {
		s.index()
	}
	i, ok := s.byID[id]
	if !ok {
		return nil
	}
	return &s.Entities[i]
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entities)
}

func (s *Snapshot) index() {
	s.byID = make(map[string]int, len(s.Entities))
	for i, e := range s.Entities {
		s.byID[e.ID] = i
	}
}

// ChangeEvent describes one detected difference. Immutable once created.
// For created events Prev is empty and New holds the canonical encoding of
// all fields; for removed events the reverse. Field is set only for
// field_changed events.
type ChangeEvent struct {
	EntityID   string     `json:"entity_id"`
	Kind       ChangeKind `json:"kind"`
	Field      string     `json:"field,omitempty"`
	Prev       string     `json:"prev"`
	New        string     `json:"new"`
	DetectedAt int64      `json:"detected_at"` // UnixMilli
}

// Fingerprint returns the deterministic dedup key for the event: a sha256
// over (entity ID, kind, field, new value). Detection time is deliberately
// excluded so the same logical change re-detected after a restart maps to
// the same record.
func (ev *ChangeEvent) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", ev.EntityID, ev.Kind, ev.Field, ev.New)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// EncodeFields produces a canonical single-line JSON encoding of an entity's
// fields. json.Marshal sorts map keys, so the encoding is deterministic and
// safe to fingerprint. Used as the payload of created/removed events.
func EncodeFields(fields map[string]string) string {
	data, err := json.Marshal(fields)
	if err != nil {
		// map[string]string cannot fail to marshal.
		panic(err)
	}
	return string(data)
}
