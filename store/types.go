package store

// SinkOutcome is the recorded result of delivering one event to one sink.
type SinkOutcome struct {
	Delivered bool   `json:"delivered"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// DispatchRecord tracks one handled change event, keyed by its fingerprint.
// Written only after every sink has either succeeded or exhausted retries.
type DispatchRecord struct {
	Fingerprint  string
	EntityID     string
	Kind         string
	Field        string
	NewValue     string
	OutcomesJSON string // map[sink name]SinkOutcome
	DispatchedAt int64  // UnixMilli
}

// Cycle statuses recorded in the cycle log.
const (
	CycleOK              = "ok"
	CycleFetchFailed     = "fetch_failed"
	CycleDispatchPartial = "dispatch_partial"
	CycleCommitFailed    = "commit_failed"
	CycleSkipped         = "skipped"
)

// CycleEntry is one poll cycle's outcome.
type CycleEntry struct {
	ID           string
	Status       string
	EntityCount  int
	EventCount   int
	Delivered    int
	ErrorMessage string
	DurationMs   int64
	StartedAt    int64 // UnixMilli
}

// Stats are aggregate counters for the status surface.
type Stats struct {
	HasSnapshot     bool  `json:"has_snapshot"`
	SnapshotAt      int64 `json:"snapshot_at"`
	DispatchRecords int64 `json:"dispatch_records"`
	Cycles          int64 `json:"cycles"`
	FailedCycles    int64 `json:"failed_cycles"`
}
