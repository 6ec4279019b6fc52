package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one in-flight or recently finished handshake.
// Ephemeral and Secret are committed together, once.
type Session struct {
	SessionID uint32    // client-visible handle
	UserID    uuid.UUID // account being authenticated

	Ephemeral []byte // client public ephemeral A, nil until committed
	Secret    []byte // server private ephemeral b, nil until committed

	CreatedAt time.Time
}

// HasEphemeral reports whether the ephemeral pair has been committed.
func (s *Session) HasEphemeral() bool {
	return s.Ephemeral != nil && s.Secret != nil
}

// IsExpired returns true once more than timeout has elapsed since creation.
// A session is still valid at exactly timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.CreatedAt) > timeout
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	c.Ephemeral = cloneBytes(s.Ephemeral)
	c.Secret = cloneBytes(s.Secret)
	return &c
}
