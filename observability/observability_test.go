package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode=WAL")
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInit_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"worker_heartbeats", "business_event_logs"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestEventLogger_LogEvent(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)

	l.LogEvent(context.Background(), BusinessEvent{
		EventType:   "cycle_completed",
		ServiceName: "nflbot",
		EntityType:  "cycle",
		EntityID:    "cyc_1",
		Action:      "poll",
		Details:     `{"events":3}`,
		Success:     true,
	})

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM business_event_logs WHERE event_type = 'cycle_completed'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("events: got %d, want 1", count)
	}
}

func TestHeartbeatWriter_WritesRow(t *testing.T) {
	db := setupObsDB(t)
	hw := NewHeartbeatWriter(db, "nflbot", 15*time.Second)

	if err := hw.WriteHeartbeat(); err != nil {
		t.Fatal(err)
	}

	var goroutines int
	if err := db.QueryRow(
		"SELECT goroutines_count FROM worker_heartbeats WHERE worker_name = 'nflbot'").
		Scan(&goroutines); err != nil {
		t.Fatal(err)
	}
	if goroutines <= 0 {
		t.Errorf("goroutines_count = %d, want > 0", goroutines)
	}
}

func TestCleanup_RemovesExpiredRows(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()

	old := time.Now().Unix() - 90*86400
	db.Exec(`INSERT INTO business_event_logs (event_id, event_type, service_name, created_at)
		VALUES ('evt_old', 'cycle_completed', 'nflbot', ?)`, old)
	db.Exec(`INSERT INTO business_event_logs (event_id, event_type, service_name, created_at)
		VALUES ('evt_new', 'cycle_completed', 'nflbot', ?)`, time.Now().Unix())

	if err := Cleanup(ctx, db, RetentionConfig{EventLogsDays: 30}); err != nil {
		t.Fatal(err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count)
	if count != 1 {
		t.Fatalf("rows after cleanup: got %d, want 1", count)
	}
}
