package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database that keeps frpherd's persistent history:
// process lifecycle events, reload attempts, and captured frpc output.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	// Initialize schema
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL to ensure all data is written to the main database file
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main database file
func (db *DB) Flush() error {
	if db.conn != nil {
		// Use RESTART mode to force checkpoint even if there are active readers
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- frpc lifecycle events (start, stop, restart, unexpected exit)
	CREATE TABLE IF NOT EXISTS process_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Config reload attempts with their outcome and captured output
	CREATE TABLE IF NOT EXISTS reload_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		outcome TEXT NOT NULL,
		output TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Captured frpc output, one row per line
	CREATE TABLE IF NOT EXISTS log_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		line TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_process_events_timestamp ON process_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_reload_events_timestamp ON reload_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_log_lines_timestamp ON log_lines(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// ProcessEvent represents a recorded lifecycle event
type ProcessEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogProcessEvent records a lifecycle event (start, stop, restart,
// unexpected_exit, daemon_start, daemon_stop).
func (db *DB) LogProcessEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO process_events (event_type, details, timestamp) VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// LogReloadEvent records a reload attempt and its captured output.
func (db *DB) LogReloadEvent(outcome, output string) error {
	_, err := db.conn.Exec(
		`INSERT INTO reload_events (outcome, output, timestamp) VALUES (?, ?, ?)`,
		outcome, output, time.Now(),
	)
	return err
}

// AppendLogLine persists one line of captured frpc output.
func (db *DB) AppendLogLine(ts time.Time, line string) error {
	_, err := db.conn.Exec(
		`INSERT INTO log_lines (line, timestamp) VALUES (?, ?)`,
		line, ts,
	)
	return err
}

// LogLine is one persisted line of frpc output.
type LogLine struct {
	ID        int64
	Line      string
	Timestamp time.Time
}

// RecentLogLines returns the most recent limit lines, oldest first.
func (db *DB) RecentLogLines(limit int) ([]LogLine, error) {
	rows, err := db.conn.Query(
		`SELECT id, line, timestamp FROM log_lines ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query log lines: %w", err)
	}
	defer rows.Close()

	var lines []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.ID, &l.Line, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

// RecentProcessEvents returns the most recent limit events, oldest first.
func (db *DB) RecentProcessEvents(limit int) ([]ProcessEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, COALESCE(details, ''), timestamp
		 FROM process_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query process events: %w", err)
	}
	defer rows.Close()

	var events []ProcessEvent
	for rows.Next() {
		var e ProcessEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan process event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// PruneLogLines deletes log lines older than the retention window.
func (db *DB) PruneLogLines(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.conn.Exec(`DELETE FROM log_lines WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune log lines: %w", err)
	}
	return result.RowsAffected()
}
