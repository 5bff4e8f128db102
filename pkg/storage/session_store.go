// Package storage persists capture session history in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Session is one capture session: a successful start through the matching
// stop.
type Session struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	SampleRate float64    `json:"sample_rate"`
	EchoCancel bool       `json:"echo_cancel"`
	Frames     int64      `json:"frames"`
	Dropped    int64      `json:"dropped"`
	OutputFile string     `json:"output_file,omitempty"`
}

// SessionStore handles persistent storage of capture sessions
type SessionStore struct {
	db          *sql.DB
	dbPath      string
	maxSessions int
}

// NewSessionStore creates a session store with a SQLite backend
func NewSessionStore(dbPath string, maxSessions int) (*SessionStore, error) {
	store := &SessionStore{
		dbPath:      dbPath,
		maxSessions: maxSessions,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	return store, nil
}

func (ss *SessionStore) initialize() error {
	if ss.dbPath == "" {
		ss.dbPath = "./vpiod.db"
	}

	if err := os.MkdirAll(filepath.Dir(ss.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := ss.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ss.db = db

	if err := ss.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("Session store initialized: %s (max %d sessions)", ss.dbPath, ss.maxSessions)
	return nil
}

func (ss *SessionStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		stopped_at DATETIME,
		sample_rate REAL NOT NULL,
		echo_cancel BOOLEAN NOT NULL DEFAULT TRUE,
		frames INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0,
		output_file TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
	`

	_, err := ss.db.Exec(schema)
	return err
}

// BeginSession records a newly started capture and returns its ID.
func (ss *SessionStore) BeginSession(sampleRate float64, echoCancel bool) (int64, error) {
	result, err := ss.db.Exec(
		`INSERT INTO sessions (started_at, sample_rate, echo_cancel) VALUES (?, ?, ?)`,
		time.Now().UTC(), sampleRate, echoCancel,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get session ID: %w", err)
	}

	if err := ss.prune(); err != nil {
		log.Printf("Session store: prune failed: %v", err)
	}

	return id, nil
}

// EndSession records the stop time and final counters for a session.
func (ss *SessionStore) EndSession(id, frames, dropped int64, outputFile string) error {
	result, err := ss.db.Exec(
		`UPDATE sessions SET stopped_at = ?, frames = ?, dropped = ?, output_file = ? WHERE id = ?`,
		time.Now().UTC(), frames, dropped, outputFile, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %d not found", id)
	}
	return nil
}

// GetSessions returns the most recent sessions, newest first.
func (ss *SessionStore) GetSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := ss.db.Query(`
		SELECT id, started_at, stopped_at, sample_rate, echo_cancel, frames, dropped, output_file
		FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var stopped sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &stopped, &s.SampleRate,
			&s.EchoCancel, &s.Frames, &s.Dropped, &s.OutputFile); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if stopped.Valid {
			t := stopped.Time
			s.StoppedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns one session by ID.
func (ss *SessionStore) GetSession(id int64) (*Session, error) {
	var s Session
	var stopped sql.NullTime
	err := ss.db.QueryRow(`
		SELECT id, started_at, stopped_at, sample_rate, echo_cancel, frames, dropped, output_file
		FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.StartedAt, &stopped, &s.SampleRate,
			&s.EchoCancel, &s.Frames, &s.Dropped, &s.OutputFile)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if stopped.Valid {
		t := stopped.Time
		s.StoppedAt = &t
	}
	return &s, nil
}

// Count returns the number of stored sessions.
func (ss *SessionStore) Count() (int, error) {
	var count int
	if err := ss.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// prune deletes the oldest sessions beyond the configured maximum.
func (ss *SessionStore) prune() error {
	if ss.maxSessions <= 0 {
		return nil
	}
	_, err := ss.db.Exec(`
		DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?
		)`, ss.maxSessions)
	return err
}

// Close closes the database connection
func (ss *SessionStore) Close() error {
	if ss.db != nil {
		return ss.db.Close()
	}
	return nil
}
