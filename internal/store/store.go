// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/courtside/courtside/internal/domain"
)

// Repository defines the interface for persisting conversation state.
type Repository interface {
	// GetSession retrieves the state for a session, returning a default
	// empty state on first access. Never returns nil state on success.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error)

	// AppendMessage appends a message to a session's history and trims the
	// oldest entries so at most limit remain. Insert and trim happen in a
	// single transaction.
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message, limit int) error

	// UpdateMetadata persists user level, topics and last-active time.
	// A non-unknown stored level is never overwritten.
	UpdateMetadata(ctx context.Context, state *domain.SessionState) error

	// ReplaceSession overwrites a session's history and metadata with the
	// given state.
	ReplaceSession(ctx context.Context, state *domain.SessionState) error

	// ResetSession removes all history and metadata for a session.
	ResetSession(ctx context.Context, sessionID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
