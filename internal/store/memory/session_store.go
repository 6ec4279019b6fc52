package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Data is lost on restart, which is acceptable for short-lived handshakes.
type SessionStore struct {
	mu sync.Mutex

	sessions map[uint32]*models.Session // session_id -> Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uint32]*models.Session),
	}
}

// Insert stores a new session.
func (s *SessionStore) Insert(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return store.ErrSessionExists
	}

	// Clone to avoid external modifications
	s.sessions[session.SessionID] = session.Clone()

	log.Debug().
		Uint32("session_id", session.SessionID).
		Str("user_id", session.UserID.String()).
		Msg("Created session")

	return nil
}

// SetEphemeral commits the ephemeral pair if none is stored yet. The check
// and the write happen under one lock.
func (s *SessionStore) SetEphemeral(ctx context.Context, sessionID uint32, ephemeral, secret []byte) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists || session.Ephemeral != nil || session.Secret != nil {
		return nil, store.ErrSessionNotFound
	}

	session.Ephemeral = append([]byte{}, ephemeral...)
	session.Secret = append([]byte{}, secret...)

	return session.Clone(), nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uint32) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	return session.Clone(), nil
}

// DeleteCreatedBefore removes sessions created before cutoff.
func (s *SessionStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, session := range s.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			count++
		}
	}

	return count, nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
