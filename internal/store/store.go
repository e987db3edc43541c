// Package store persists chat sessions and their messages in SQLite.
//
// Sessions are create-only and messages are append-only: nothing here
// updates or deletes a row. Conversation order is the AUTOINCREMENT row id.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SessionChat/internal/message"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrPersistence marks every failure to read or write the database
	ErrPersistence = errors.New("persistence failure")
	// ErrSessionNotFound is returned by GetSession for an unknown id
	ErrSessionNotFound = errors.New("session not found")
)

// Error wraps a database failure with the operation that hit it
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrPersistence }

// Session is a named conversation thread owned by one credential hash
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is the (id, name) pair shown in session pickers
type SessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteStore implements session and message persistence on SQLite
type SQLiteStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// Open opens (creating if needed) the database at dsn and applies the schema
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer. This also keeps ":memory:" databases alive across calls,
	// since every new connection to one would be a separate empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, tracer: otel.Tracer("SessionChat/store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_hash, created_at)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('human', 'ai', 'system', 'tool', 'function')),
			content TEXT NOT NULL,
			name TEXT,
			tool_call_id TEXT,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and returns its generated id
func (s *SQLiteStore) CreateSession(ctx context.Context, name, ownerHash string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "store.create_session")
	defer span.End()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, owner_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, name, ownerHash, time.Now().UTC())
	if err != nil {
		return "", fail(span, "create session", err)
	}
	span.SetAttributes(attribute.String("session_id", id))
	return id, nil
}

// GetSession returns the session with the given id
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_hash, created_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name, &sess.OwnerHash, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, &Error{Op: "get session", Err: err}
	}
	return &sess, nil
}

// ListSessions returns the owner's sessions, newest first
func (s *SQLiteStore) ListSessions(ctx context.Context, ownerHash string) ([]SessionSummary, error) {
	ctx, span := s.tracer.Start(ctx, "store.list_sessions")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM sessions WHERE owner_hash = ? ORDER BY created_at DESC, rowid DESC`,
		ownerHash)
	if err != nil {
		return nil, fail(span, "list sessions", err)
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CreatedAt); err != nil {
			return nil, fail(span, "scan session", err)
		}
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "list sessions", err)
	}
	return sessions, nil
}

// AppendMessages inserts msgs in order as one transaction; on any error none are kept
func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, msgs []message.Message) error {
	ctx, span := s.tracer.Start(ctx, "store.append_messages", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("message_count", len(msgs)),
	))
	defer span.End()

	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, "begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (session_id, type, content, name, tool_call_id, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fail(span, "prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, msg := range msgs {
		rec, err := message.Encode(sessionID, msg)
		if err != nil {
			return fail(span, fmt.Sprintf("encode message %d", i), err)
		}
		if _, err := stmt.ExecContext(ctx, rec.SessionID, rec.Type, rec.Content, rec.Name, rec.ToolCallID, now); err != nil {
			return fail(span, fmt.Sprintf("insert message %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(span, "commit transaction", err)
	}
	return nil
}

// LoadHistory returns every message of the session in insertion order.
// A record with an unknown kind aborts the load; no partial list is returned.
func (s *SQLiteStore) LoadHistory(ctx context.Context, sessionID string) ([]message.Message, error) {
	ctx, span := s.tracer.Start(ctx, "store.load_history", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, type, content, name, tool_call_id, timestamp FROM chat_messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fail(span, "load history", err)
	}
	defer rows.Close()

	history := []message.Message{}
	for rows.Next() {
		var rec message.Record
		var name, toolCallID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Type, &rec.Content, &name, &toolCallID, &rec.Timestamp); err != nil {
			return nil, fail(span, "scan message", err)
		}
		if name.Valid {
			rec.Name = &name.String
		}
		if toolCallID.Valid {
			rec.ToolCallID = &toolCallID.String
		}
		msg, err := message.Decode(rec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("load history %s: record %d: %w", sessionID, rec.ID, err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "load history", err)
	}

	span.SetAttributes(attribute.Int("message_count", len(history)))
	return history, nil
}

func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &Error{Op: op, Err: err}
}

