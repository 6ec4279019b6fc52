// Package store defines the persistence collaborators of the authentication
// server: account lookup, the session keyspace and the action log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/charonauth/internal/models"
)

// Sentinel errors for store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionExists     = errors.New("session already exists")
)

// UserStore looks up accounts. Accounts are managed elsewhere; the server
// only reads them.
type UserStore interface {
	// FindUser looks up an account by username, ignoring case.
	// Returns ErrUserNotFound if no account matches.
	FindUser(ctx context.Context, username string) (*models.User, error)

	// GetUser retrieves an account by ID.
	// Returns ErrUserNotFound if the account doesn't exist.
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// SessionStore holds handshake sessions keyed by their 32-bit handle.
type SessionStore interface {
	// Insert stores a new session.
	// Returns ErrSessionExists if the session ID is already taken.
	Insert(ctx context.Context, session *models.Session) error

	// SetEphemeral commits the ephemeral pair for a session. It succeeds only
	// if no pair has been committed yet, atomically with respect to other
	// callers. Returns ErrSessionNotFound if the session is missing or
	// already committed.
	SetEphemeral(ctx context.Context, sessionID uint32, ephemeral, secret []byte) (*models.Session, error)

	// Get retrieves a session by ID. Expiry is not checked here.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Get(ctx context.Context, sessionID uint32) (*models.Session, error)
}

// SessionReaper is implemented by session stores that can garbage-collect
// old sessions.
type SessionReaper interface {
	// DeleteCreatedBefore removes sessions created before the cutoff and
	// returns how many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ActionStore persists audit records.
type ActionStore interface {
	// Append stores an action. Appending the same ActionID twice is a no-op.
	Append(ctx context.Context, action *models.Action) error

	// ListByUser returns the most recent actions for a user, newest first.
	// A limit of 0 or less returns all of them.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Action, error)
}
