// Package state provides the persistence backends for the bridge: a
// SQLite store for production and an in-memory store for tests. Both
// implement the types.MessageStore and types.EventLog interfaces.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/user/wxbridge/internal/types"
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
// The unique index on events.event_id is what makes EventLog.Record a
// conditional insert rather than a racy check-then-insert.
const schema = `
-- Completed question/answer turns (append-only, soft-delete only).
CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    msgid      TEXT NOT NULL DEFAULT '',
    question   TEXT NOT NULL,
    answer     TEXT NOT NULL,
    token      INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    deleted_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_msgid ON messages(msgid);

-- Inbound deliveries already seen (idempotency log, never updated or deleted).
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    payload  TEXT NOT NULL DEFAULT '',
    seen_at  TEXT NOT NULL
);
`

// sqlTimeLayout is fixed-width so stored timestamps order lexicographically.
const sqlTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStore is a SQLite-backed message store and event log sharing a
// single database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at the given path, enables
// WAL mode, and creates the tables.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert appends a new message, assigning ID and CreatedAt.
func (s *SQLiteStore) Insert(ctx context.Context, msg *types.Message) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, msgid, question, answer, token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID,
		msg.MsgID,
		msg.Question,
		msg.Answer,
		msg.Token,
		now.Format(sqlTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert message id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// Find returns the messages matching the query.
func (s *SQLiteStore) Find(ctx context.Context, q types.MessageQuery) ([]*types.Message, error) {
	query, args := buildSelect("SELECT id, session_id, msgid, question, answer, token, created_at, deleted_at FROM messages", q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		var (
			m         types.Message
			createdAt string
			deletedAt sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MsgID, &m.Question, &m.Answer, &m.Token, &createdAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(sqlTimeLayout, createdAt)
		if deletedAt.Valid {
			t, _ := time.Parse(sqlTimeLayout, deletedAt.String)
			m.DeletedAt = &t
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// Count returns the number of messages matching the query.
func (s *SQLiteStore) Count(ctx context.Context, q types.MessageQuery) (int64, error) {
	q.Limit = 0
	query, args := buildSelect("SELECT COUNT(*) FROM messages", q)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// MarkDeleted soft-deletes every non-deleted message of the session.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = ?
		WHERE session_id = ? AND deleted_at IS NULL`,
		at.UTC().Format(sqlTimeLayout),
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark deleted: %w", err)
	}
	return res.RowsAffected()
}

// Record inserts the event if its EventID has never been seen. The
// PRIMARY KEY on event_id makes the insert conditional, so concurrent
// deliveries of the same event cannot both be recorded as first.
func (s *SQLiteStore) Record(ctx context.Context, ev *types.Event) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (event_id, payload, seen_at)
		VALUES (?, ?, ?)`,
		ev.EventID,
		ev.Payload,
		now.Format(sqlTimeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	ev.SeenAt = now
	return true, nil
}

// buildSelect appends WHERE/ORDER BY/LIMIT clauses for the query.
func buildSelect(base string, q types.MessageQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.MsgID != "" {
		conds = append(conds, "msgid = ?")
		args = append(args, q.MsgID)
	}
	if q.Undeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if !q.CreatedAfter.IsZero() {
		conds = append(conds, "created_at > ?")
		args = append(args, q.CreatedAfter.UTC().Format(sqlTimeLayout))
	}

	query := base
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	if q.Sort == types.NewestFirst {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY created_at ASC, id ASC"
	}

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return query, args
}

// Interface checks.
var (
	_ types.MessageStore = (*SQLiteStore)(nil)
	_ types.EventLog     = (*SQLiteStore)(nil)
)
