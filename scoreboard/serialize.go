package scoreboard

import "encoding/json"

// MarshalSnapshot serialises a Snapshot to JSON for persistence.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot deserialises a persisted Snapshot and rebuilds its
// entity index, re-validating the unique-ID invariant.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var raw Snapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return NewSnapshot(raw.FetchedAt, raw.Entities)
}

// MarshalEvent serialises a ChangeEvent to JSON for sink delivery.
func MarshalEvent(ev *ChangeEvent) ([]byte, error) {
	return json.Marshal(ev)
}
