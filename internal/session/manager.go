// Package session manages handshake sessions: creation for a user,
// single-commit of the ephemeral pair, and lazily expiring lookup.
package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
)

// maxIDAttempts bounds session id regeneration on collision.
const maxIDAttempts = 8

// ErrIDSpaceExhausted is returned when no free session id was found.
var ErrIDSpaceExhausted = errors.New("no free session id")

// Record pairs a session with the account it authenticates.
type Record struct {
	Session *models.Session
	User    *models.User
}

// Manager implements the session lifecycle over a user store and a
// session store. It is safe for concurrent use if the stores are.
type Manager struct {
	users    store.UserStore
	sessions store.SessionStore

	now   func() time.Time
	newID func() (uint32, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDSource overrides the session id generator.
func WithIDSource(newID func() (uint32, error)) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates a Manager.
func NewManager(users store.UserStore, sessions store.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		users:    users,
		sessions: sessions,
		now:      time.Now,
		newID:    RandomID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RandomID returns a uniformly random 32-bit session id.
func RandomID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate session id: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// Create looks up username (ignoring case) and stores a new session bound to
// that account. Returns store.ErrUserNotFound for an unknown username.
func (m *Manager) Create(ctx context.Context, username string) (*Record, error) {
	user, err := m.users.FindUser(ctx, username)
	if err != nil {
		return nil, err
	}

	for range maxIDAttempts {
		id, err := m.newID()
		if err != nil {
			return nil, err
		}

		session := &models.Session{
			SessionID: id,
			UserID:    user.UserID,
			CreatedAt: m.now(),
		}

		err = m.sessions.Insert(ctx, session)
		if errors.Is(err, store.ErrSessionExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return &Record{Session: session, User: user}, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrIDSpaceExhausted, maxIDAttempts)
}

// CommitEphemeral stores the client ephemeral A and server secret b. Only the
// first commit for a session succeeds; later ones get store.ErrSessionNotFound.
func (m *Manager) CommitEphemeral(ctx context.Context, sessionID uint32, ephemeral, secret []byte) (*models.Session, error) {
	if len(ephemeral) == 0 || len(secret) == 0 {
		return nil, errors.New("ephemeral and secret must both be set")
	}
	return m.sessions.SetEphemeral(ctx, sessionID, ephemeral, secret)
}

// Lookup returns a live session and its account. A session older than
// timeout yields store.ErrSessionExpired; a missing session, a missing
// account or an unverified account yields store.ErrSessionNotFound.
func (m *Manager) Lookup(ctx context.Context, sessionID uint32, timeout time.Duration) (*Record, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsExpired(m.now(), timeout) {
		return nil, store.ErrSessionExpired
	}

	user, err := m.users.GetUser(ctx, session.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: account removed", store.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}

	if !user.IsVerified() {
		return nil, fmt.Errorf("%w: account unverified", store.ErrSessionNotFound)
	}

	return &Record{Session: session, User: user}, nil
}
