package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
// It is populated from a users file or directly in tests.
type UserStore struct {
	mu sync.RWMutex

	users      map[uuid.UUID]*models.User // user_id -> User
	byUsername map[string]*models.User    // lower(username) -> User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:      make(map[uuid.UUID]*models.User),
		byUsername: make(map[string]*models.User),
	}
}

// CreateUser adds an account. A zero UserID is replaced with a new UUIDv7.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := s.byUsername[key]; exists {
		return store.ErrUserAlreadyExists
	}

	clone := user.Clone()
	if clone.UserID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		clone.UserID = id
		user.UserID = id
	}
	if _, exists := s.users[clone.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}

	s.users[clone.UserID] = clone
	s.byUsername[key] = clone

	return nil
}

// FindUser looks up an account by username, ignoring case.
func (s *UserStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.byUsername[strings.ToLower(username)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return user.Clone(), nil
}

// GetUser retrieves an account by ID.
func (s *UserStore) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return user.Clone(), nil
}

// SetAccess changes an account's access level.
func (s *UserStore) SetAccess(ctx context.Context, userID uuid.UUID, access models.AccessLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	user.Access = access
	return nil
}

// Len returns the number of accounts.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
