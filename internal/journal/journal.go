// Package journal keeps an append-only sqlite log of calendar tool calls.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	appLog "icalmcp/internal/log"
)

const DriverName = "sqlite3"

// Outcomes recorded per call.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Entry is one tool call. EventID and Scope are empty for read-only tools.
type Entry struct {
	ID      int64     `db:"id"`
	At      time.Time `db:"at"`
	Tool    string    `db:"tool"`
	EventID string    `db:"event_id"`
	Scope   string    `db:"scope"`
	Outcome string    `db:"outcome"`
	Message string    `db:"message"`
}

type Journal struct {
	db *sqlx.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TIMESTAMP NOT NULL,
		tool VARCHAR NOT NULL,
		event_id VARCHAR NOT NULL DEFAULT "",
		scope VARCHAR NOT NULL DEFAULT "",
		outcome VARCHAR NOT NULL,
		message TEXT NOT NULL DEFAULT ""
	)`,
	`CREATE INDEX IF NOT EXISTS calls_event_id ON calls (event_id)`,
}

// Open opens or creates the journal database at path and runs migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	j := &Journal{db: sqlx.NewDb(db, DriverName)}
	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: running migrations: %w", err)
	}
	appLog.Info("journal opened", "path", path)
	return j, nil
}

func (j *Journal) runMigrations() error {
	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends e. A zero At is set to the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO calls (at, tool, event_id, scope, outcome, message)
		VALUES (:at, :tool, :event_id, :scope, :outcome, :message)
	`, e)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", e.Tool, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	var out []Entry
	err := j.db.SelectContext(ctx, &out, `
		SELECT id, at, tool, event_id, scope, outcome, message
		FROM calls
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// ForEvent returns every entry that touched eventID, oldest first.
func (j *Journal) ForEvent(ctx context.Context, eventID string) ([]Entry, error) {
	var out []Entry
	err := j.db.SelectContext(ctx, &out, `
		SELECT id, at, tool, event_id, scope, outcome, message
		FROM calls
		WHERE event_id = ?
		ORDER BY id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("journal: entries for %s: %w", eventID, err)
	}
	return out, nil
}
