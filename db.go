package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// DB wraps sql.DB
type DB struct {
	*sql.DB
}

// CallLogEntry is one finalized call in the local daily log.
type CallLogEntry struct {
	ID            int64
	CallSID       string
	Date          string // local calendar day, YYYY-MM-DD
	CallStartedAt time.Time
	Fields        LeadFields
	Intent        string
	Summary       string
	MainIntent    string
	Actions       string
	Category      string
	CustomerType  string
	CreatedAt     time.Time
}

// CallLog is the append-only log of finalized calls read by the digest.
type CallLog interface {
	AppendCallLog(entry CallLogEntry) error
	CallLogsForDate(day string) ([]CallLogEntry, error)
}

// InitDB opens the database and runs migrations
func InitDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// modernc sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}

	if err := db.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) runMigrations() error {
	schema := `
	CREATE TABLE IF NOT EXISTS call_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		call_sid TEXT NOT NULL,
		date TEXT NOT NULL,
		call_started_at DATETIME NOT NULL,
		extracted_info TEXT NOT NULL,
		intent TEXT,
		summary TEXT,
		main_intent TEXT,
		actions TEXT,
		category TEXT,
		customer_type TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_call_logs_date ON call_logs(date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_call_logs_call_sid ON call_logs(call_sid);
	`

	_, err := db.Exec(schema)
	return err
}

// AppendCallLog inserts one finalized call.
func (db *DB) AppendCallLog(entry CallLogEntry) error {
	fields, err := json.Marshal(entry.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO call_logs (call_sid, date, call_started_at, extracted_info, intent, summary, main_intent, actions, category, customer_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.CallSID, entry.Date, entry.CallStartedAt.UTC(), string(fields), entry.Intent,
		entry.Summary, entry.MainIntent, entry.Actions, entry.Category, entry.CustomerType)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// CallLogsForDate returns the calls logged on day, oldest first.
func (db *DB) CallLogsForDate(day string) ([]CallLogEntry, error) {
	rows, err := db.Query(`
		SELECT id, call_sid, date, call_started_at, extracted_info,
		       COALESCE(intent, ''), COALESCE(summary, ''), COALESCE(main_intent, ''),
		       COALESCE(actions, ''), COALESCE(category, ''), COALESCE(customer_type, ''), created_at
		FROM call_logs
		WHERE date = ?
		ORDER BY id ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query call logs: %w", err)
	}
	defer rows.Close()

	var entries []CallLogEntry
	for rows.Next() {
		var e CallLogEntry
		var fields string
		if err := rows.Scan(&e.ID, &e.CallSID, &e.Date, &e.CallStartedAt, &fields,
			&e.Intent, &e.Summary, &e.MainIntent, &e.Actions, &e.Category, &e.CustomerType, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for %s: %w", e.CallSID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// logDate is the calendar day used to key call logs.
func logDate(t time.Time) string {
	return t.Local().Format(dateLayout)
}
