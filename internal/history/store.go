// Package history keeps a persistent log of swaps and votes in SQLite so
// the CLI can show what happened while nobody was watching.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/mapswitch/internal/history/migrations"
)

// Entry kinds.
const (
	KindSwap = "swap"
	KindVote = "vote"
)

// Entry outcomes.
const (
	OutcomeCommitted   = "committed"
	OutcomeRolledBack  = "rolled_back"
	OutcomeResolved    = "resolved"
	OutcomeNoVotes     = "no_votes"
	OutcomeInterrupted = "interrupted"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

// ErrClosed is returned by a closed or unconfigured store.
var ErrClosed = errors.New("history store is closed")

// Entry is one finished swap or vote.
type Entry struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	At        time.Time     `json:"at"`
	SessionID string        `json:"session_id"`
	// Subject is the slot for swaps and the vote target for votes.
	Subject string `json:"subject"`
	// Trigger is what started a swap, or who started a vote.
	Trigger string `json:"trigger,omitempty"`
	Outcome string `json:"outcome"`
	// Detail is the previous slot, the failure reason or the winners.
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Store persists entries in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; the recorder and API readers share it.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Add stores e, filling in a fresh ID and the current time when missing.
func (s *Store) Add(ctx context.Context, e Entry) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, ErrClosed
	}
	if e.Kind == "" || e.Outcome == "" {
		return Entry{}, fmt.Errorf("history entry needs a kind and an outcome")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (
		   id, kind, occurred_at, session_id, subject, trigger_name, outcome, detail, duration_ms
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.At.UTC().UnixMilli(), e.SessionID, e.Subject, e.Trigger,
		e.Outcome, e.Detail, e.Duration.Milliseconds(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert history entry: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, occurred_at, session_id, subject, trigger_name, outcome, detail, duration_ms
		   FROM history
		  ORDER BY occurred_at DESC, rowid DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			occurredAt int64
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &occurredAt, &e.SessionID, &e.Subject,
			&e.Trigger, &e.Outcome, &e.Detail, &durationMS); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.At = time.UnixMilli(occurredAt)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
