package usage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Journal statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// tsLayout sorts lexically in time order, unlike RFC3339Nano.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a journal record doesn't exist.
var ErrNotFound = errors.New("usage record not found")

// Record is one journaled event.
type Record struct {
	Event
	Status   string
	Attempts int
	Error    string
}

// Journal records every tracked event in SQLite so failed sends can be
// retried with Flush and inspected with History.
type Journal struct {
	db *sql.DB
}

// DefaultJournalPath returns ~/.hublink/usage.db.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".hublink", "usage.db")
	}
	return filepath.Join(home, ".hublink", "usage.db")
}

// OpenJournal opens or creates a journal at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Async sends write from their own goroutines.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			ts         TEXT NOT NULL,
			name       TEXT NOT NULL,
			class      TEXT NOT NULL,
			account_id INTEGER NOT NULL,
			meta       TEXT NOT NULL,
			status     TEXT NOT NULL,
			attempts   INTEGER NOT NULL DEFAULT 1,
			error      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores the outcome of sending ev. Recording the same event again
// updates its status and bumps the attempt count.
func (j *Journal) Record(ev Event, status string, sendErr error) error {
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	msg := ""
	if sendErr != nil {
		msg = sendErr.Error()
	}
	_, err = j.db.Exec(`
		INSERT INTO events (id, ts, name, class, account_id, meta, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			attempts = events.attempts + 1
	`, ev.ID, ev.Time.UTC().Format(tsLayout), ev.Name, ev.Class, ev.AccountID, string(meta), status, msg)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// Get retrieves a record by event id.
func (j *Journal) Get(id string) (*Record, error) {
	rows, err := j.db.Query(selectRecords+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// History returns the n most recent records, newest first. n <= 0 returns
// all of them.
func (j *Journal) History(n int) ([]Record, error) {
	q := selectRecords + ` ORDER BY ts DESC`
	args := []any{}
	if n > 0 {
		q += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return scanRecords(rows)
}

// Failed returns records whose last send failed, oldest first.
func (j *Journal) Failed() ([]Record, error) {
	rows, err := j.db.Query(selectRecords+` WHERE status = ? ORDER BY ts`, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("querying failed events: %w", err)
	}
	return scanRecords(rows)
}

// Count returns the number of records with status, or all records when
// status is empty.
func (j *Journal) Count(status string) (int, error) {
	var n int
	var err error
	if status == "" {
		err = j.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = j.db.QueryRow(`SELECT COUNT(*) FROM events WHERE status = ?`, status).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// Prune deletes sent records older than before and returns how many were
// removed.
func (j *Journal) Prune(before time.Time) (int64, error) {
	res, err := j.db.Exec(`DELETE FROM events WHERE status = ? AND ts < ?`,
		StatusSent, before.UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return res.RowsAffected()
}

const selectRecords = `
	SELECT id, ts, name, class, account_id, meta, status, attempts, error
	FROM events`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var tsStr, metaStr string
		err := rows.Scan(&r.ID, &tsStr, &r.Name, &r.Class, &r.AccountID, &metaStr, &r.Status, &r.Attempts, &r.Error)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		r.Time, _ = time.Parse(tsLayout, tsStr)
		json.Unmarshal([]byte(metaStr), &r.Meta)
		out = append(out, r)
	}
	return out, rows.Err()
}
