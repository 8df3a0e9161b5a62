package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "frpherd.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestOpenCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "frpherd.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.LogProcessEvent("daemon_start", ""); err != nil {
		t.Errorf("failed to write to fresh database: %v", err)
	}
}

func TestProcessEvents(t *testing.T) {
	database := openTestDB(t)

	events := []struct{ eventType, details string }{
		{"daemon_start", ""},
		{"start", "pid 1234"},
		{"unexpected_exit", "exit code 1"},
		{"start", "pid 1240"},
		{"stop", "graceful terminate requested"},
	}
	for _, e := range events {
		if err := database.LogProcessEvent(e.eventType, e.details); err != nil {
			t.Fatalf("failed to log event: %v", err)
		}
	}

	got, err := database.RecentProcessEvents(3)
	if err != nil {
		t.Fatalf("failed to query events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}

	// Oldest first within the window
	if got[0].EventType != "unexpected_exit" {
		t.Errorf("expected unexpected_exit first, got %s", got[0].EventType)
	}
	if got[2].EventType != "stop" {
		t.Errorf("expected stop last, got %s", got[2].EventType)
	}
	if got[0].Details != "exit code 1" {
		t.Errorf("unexpected details: %q", got[0].Details)
	}
}

func TestReloadEvents(t *testing.T) {
	database := openTestDB(t)

	if err := database.LogReloadEvent("success", "reload ok"); err != nil {
		t.Fatalf("failed to log reload event: %v", err)
	}
	if err := database.LogReloadEvent("not_running", ""); err != nil {
		t.Fatalf("failed to log reload event: %v", err)
	}

	var count int
	err := database.conn.QueryRow(`SELECT COUNT(*) FROM reload_events`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count reload events: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 reload events, got %d", count)
	}
}

func TestLogLinesRoundtrip(t *testing.T) {
	database := openTestDB(t)

	base := time.Now().Add(-time.Minute)
	lines := []string{"first", "second", "third"}
	for i, line := range lines {
		if err := database.AppendLogLine(base.Add(time.Duration(i)*time.Second), line); err != nil {
			t.Fatalf("failed to append line: %v", err)
		}
	}

	got, err := database.RecentLogLines(10)
	if err != nil {
		t.Fatalf("failed to query log lines: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(got))
	}
	for i, line := range lines {
		if got[i].Line != line {
			t.Errorf("line %d: got %q, want %q", i, got[i].Line, line)
		}
	}

	// Limit returns the newest lines, still oldest first
	got, err = database.RecentLogLines(2)
	if err != nil {
		t.Fatalf("failed to query log lines: %v", err)
	}
	if len(got) != 2 || got[0].Line != "second" || got[1].Line != "third" {
		t.Errorf("unexpected limited window: %+v", got)
	}
}

func TestPruneLogLines(t *testing.T) {
	database := openTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	if err := database.AppendLogLine(old, "ancient"); err != nil {
		t.Fatalf("failed to append line: %v", err)
	}
	if err := database.AppendLogLine(time.Now(), "fresh"); err != nil {
		t.Fatalf("failed to append line: %v", err)
	}

	pruned, err := database.PruneLogLines(24 * time.Hour)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned line, got %d", pruned)
	}

	got, err := database.RecentLogLines(10)
	if err != nil {
		t.Fatalf("failed to query log lines: %v", err)
	}
	if len(got) != 1 || got[0].Line != "fresh" {
		t.Errorf("expected only the fresh line to survive, got %+v", got)
	}
}

func TestFlushAndClose(t *testing.T) {
	database := openTestDB(t)

	if err := database.LogProcessEvent("start", "pid 1"); err != nil {
		t.Fatalf("failed to log event: %v", err)
	}
	if err := database.Flush(); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
