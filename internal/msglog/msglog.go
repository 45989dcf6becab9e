// Package msglog is the durable audit log of every audience message,
// independent of the in-memory pipeline. It backs the admin dashboard's
// history and activity views.
package msglog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// Entry is one logged audience message.
type Entry struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Stats summarizes logged traffic for the dashboard.
type Stats struct {
	TotalMessages int `json:"totalMessages"`
	UniqueUsers   int `json:"uniqueUsers"`
	LastHour      int `json:"lastHour"`
	LastMinute    int `json:"lastMinute"`
}

// Log stores messages in a SQLite file (or in-memory database in tests).
type Log struct {
	db *sql.DB
}

// Open opens or creates the message log at path with WAL journal mode.
// Pass ":memory:" for an ephemeral database.
func Open(path string) (*Log, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create msglog dir")
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open msglog")
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping msglog")
	}

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`
CREATE TABLE IF NOT EXISTS messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      INTEGER NOT NULL,
    username     TEXT NOT NULL,
    display_name TEXT NOT NULL,
    content      TEXT NOT NULL,
    source       TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id);`)
	return errors.Wrap(err, "migrate msglog")
}

func (l *Log) Close() error { return l.db.Close() }

// HealthPing reports whether the underlying database is reachable.
func (l *Log) HealthPing(ctx context.Context) error { return l.db.PingContext(ctx) }

// Add appends one message to the log.
func (l *Log) Add(ctx context.Context, userID int64, username, displayName, content, source string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, username, display_name, content, source, created_at) VALUES (?,?,?,?,?,?)`,
		userID, username, displayName, content, source, time.Now().UTC())
	return errors.Wrap(err, "insert message")
}

// Recent returns the newest limit messages, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, username, display_name, content, source, created_at
		 FROM messages ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent messages")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.DisplayName, &e.Content, &e.Source, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate messages")
}

// Stats computes aggregate counts over the whole log.
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	now := time.Now().UTC()

	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id) FROM messages`).
		Scan(&s.TotalMessages, &s.UniqueUsers)
	if err != nil {
		return Stats{}, errors.Wrap(err, "count messages")
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE created_at > ?`, now.Add(-time.Hour)).
		Scan(&s.LastHour)
	if err != nil {
		return Stats{}, errors.Wrap(err, "count last hour")
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE created_at > ?`, now.Add(-time.Minute)).
		Scan(&s.LastMinute)
	if err != nil {
		return Stats{}, errors.Wrap(err, "count last minute")
	}
	return s, nil
}

// Reset drops every logged message. Used by the admin reset endpoint.
func (l *Log) Reset(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM messages`)
	return errors.Wrap(err, "reset msglog")
}
