package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (iteration %d) failed: %v", i, err)
		}
	}

	var version int
	row := db.conn.QueryRow("SELECT MAX(version) FROM schema_version")
	if err := row.Scan(&version); err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}

	var count int
	row = db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='runs'")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to check runs table: %v", err)
	}
	if count != 1 {
		t.Error("runs table does not exist")
	}
}

func TestRecordAndFinishRun(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordRun("tr-1", RunKindCollaborate, "analyze the market"); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := db.ListRuns("", 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != "running" || runs[0].CompletedAt != nil {
		t.Errorf("fresh run = %+v, want running/uncompleted", runs[0])
	}

	if err := db.FinishRun("tr-1", "completed", "proceed", 0.85, 3, 0, 4200); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err = db.ListRuns("", 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	r := runs[0]
	if r.Status != "completed" || r.Decision != "proceed" || r.Confidence != 0.85 {
		t.Errorf("finished run = %+v", r)
	}
	if r.TaskCount != 3 || r.TotalTokens != 4200 {
		t.Errorf("counters = %d tasks, %d tokens", r.TaskCount, r.TotalTokens)
	}
	if r.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestListRunsFiltersByKind(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordRun("c-1", RunKindCollaborate, "g1"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordRun("d-1", RunKindDeliberate, "g2"); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(RunKindDeliberate, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].TraceID != "d-1" {
		t.Errorf("runs = %+v, want only d-1", runs)
	}

	runs, err = db.ListRuns("", 1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("limited runs = %d, want 1", len(runs))
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)

	old := formatTime(time.Now().Add(-48 * time.Hour))
	if _, err := db.conn.Exec(`
		INSERT INTO runs (trace_id, kind, goal, status, started_at)
		VALUES ('old-1', 'collaborate', 'g', 'completed', ?)
	`, old); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordRun("new-1", RunKindCollaborate, "g"); err != nil {
		t.Fatal(err)
	}

	deleted, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	runs, err := db.ListRuns("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].TraceID != "new-1" {
		t.Errorf("remaining = %+v", runs)
	}
}

func TestGlobalDBPath(t *testing.T) {
	original := os.Getenv("XDG_DATA_HOME")
	defer os.Setenv("XDG_DATA_HOME", original)

	os.Setenv("XDG_DATA_HOME", "/custom/data")
	path := GlobalDBPath()
	expected := "/custom/data/quorum/quorum.db"
	if path != expected {
		t.Errorf("GlobalDBPath() = %q, want %q", path, expected)
	}

	os.Unsetenv("XDG_DATA_HOME")
	path = GlobalDBPath()
	home, _ := os.UserHomeDir()
	expected = filepath.Join(home, ".local", "share", "quorum", "quorum.db")
	if path != expected {
		t.Errorf("GlobalDBPath() = %q, want %q", path, expected)
	}
}

func TestFormatAndParseTime(t *testing.T) {
	now := time.Now()
	formatted := formatTime(now)
	parsed, err := parseTime(formatted)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}

	if !now.UTC().Truncate(time.Second).Equal(parsed.Truncate(time.Second)) {
		t.Errorf("time round-trip failed: got %v, want %v", parsed, now.UTC())
	}
}

func TestParseNullableTime(t *testing.T) {
	validTime := sql.NullString{String: "2024-01-01T12:00:00Z", Valid: true}
	if parseNullableTime(validTime) == nil {
		t.Error("expected non-nil time for valid input")
	}

	nullTime := sql.NullString{Valid: false}
	if parseNullableTime(nullTime) != nil {
		t.Error("expected nil time for invalid input")
	}

	badFormat := sql.NullString{String: "not a time", Valid: true}
	if parseNullableTime(badFormat) != nil {
		t.Error("expected nil time for invalid format")
	}
}
