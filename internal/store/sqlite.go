package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/courtside/courtside/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // Serializes session writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS session_metadata (
		session_id TEXT PRIMARY KEY,
		user_level TEXT NOT NULL DEFAULT 'unknown',
		topics_json TEXT NOT NULL DEFAULT '[]',
		last_active INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves session state, returning a default empty state on
// first access.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	state := domain.NewSessionState(sessionID)

	row := s.db.QueryRowContext(ctx,
		`SELECT user_level, topics_json, last_active FROM session_metadata WHERE session_id = ?`,
		sessionID)

	var level, topicsJSON string
	var lastActive int64
	err := row.Scan(&level, &topicsJSON, &lastActive)
	switch {
	case err == sql.ErrNoRows:
		// First access: no metadata yet, keep defaults.
	case err != nil:
		return nil, fmt.Errorf("scan session metadata: %w", err)
	default:
		state.UserLevel = domain.UserLevel(level)
		if !state.UserLevel.Valid() {
			state.UserLevel = domain.LevelUnknown
		}
		state.LastActive = time.UnixMilli(lastActive)
		var topics []string
		if err := json.Unmarshal([]byte(topicsJSON), &topics); err != nil {
			slog.Warn("failed to decode topics, resetting", "session_id", sessionID, "error", err)
		} else {
			state.TopicsDiscussed = topics
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var msg domain.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Timestamp = time.UnixMilli(createdAt)
		state.History = append(state.History, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	state.MessageCount = len(state.History)
	return state, nil
}

// AppendMessage inserts a message and trims the session history to limit
// within a single transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg domain.Message, limit int) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			slog.Warn("failed to rollback append tx", "error", rollbackErr)
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, sessionID, msg.Role, msg.Content, msg.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if limit > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id = ? AND rowid NOT IN (
				SELECT rowid FROM messages WHERE session_id = ?
				ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
			sessionID, sessionID, limit)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// UpdateMetadata upserts session metadata. A stored non-unknown user level
// always wins over the incoming value.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, state *domain.SessionState) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	return s.upsertMetadata(ctx, s.db, state)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsertMetadata(ctx context.Context, db execer, state *domain.SessionState) error {
	topicsJSON, err := json.Marshal(state.TopicsDiscussed)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	if state.TopicsDiscussed == nil {
		topicsJSON = []byte("[]")
	}

	now := time.Now().UnixMilli()
	query := `
		INSERT INTO session_metadata (session_id, user_level, topics_json, last_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_level = CASE
				WHEN session_metadata.user_level != 'unknown' THEN session_metadata.user_level
				ELSE excluded.user_level
			END,
			topics_json = excluded.topics_json,
			last_active = excluded.last_active,
			updated_at = excluded.updated_at`

	_, err = db.ExecContext(ctx, query,
		state.SessionID, string(state.UserLevel), string(topicsJSON),
		state.LastActive.UnixMilli(), now, now)
	if err != nil {
		return fmt.Errorf("upsert session metadata: %w", err)
	}
	return nil
}

// ReplaceSession overwrites a session's history and metadata.
func (s *SQLiteStore) ReplaceSession(ctx context.Context, state *domain.SessionState) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			slog.Warn("failed to rollback replace tx", "error", rollbackErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, state.SessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_metadata WHERE session_id = ?`, state.SessionID); err != nil {
		return fmt.Errorf("clear session metadata: %w", err)
	}

	for _, msg := range state.History {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, state.SessionID, msg.Role, msg.Content, msg.Timestamp.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert replacement message: %w", err)
		}
	}

	if err := s.upsertMetadata(ctx, tx, state); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

// ResetSession removes all rows for a session.
func (s *SQLiteStore) ResetSession(ctx context.Context, sessionID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_metadata WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session metadata: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
