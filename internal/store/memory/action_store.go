package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/charonauth/internal/models"
)

// ActionStore implements store.ActionStore using in-memory storage.
type ActionStore struct {
	mu sync.RWMutex

	actions map[uuid.UUID]*models.Action // action_id -> Action
	byUser  map[uuid.UUID][]uuid.UUID    // user_id -> []action_id
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		actions: make(map[uuid.UUID]*models.Action),
		byUser:  make(map[uuid.UUID][]uuid.UUID),
	}
}

// Append stores an action; duplicates by ActionID are ignored.
func (s *ActionStore) Append(ctx context.Context, action *models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[action.ActionID]; exists {
		return nil
	}

	clone := *action
	s.actions[action.ActionID] = &clone
	s.byUser[action.UserID] = append(s.byUser[action.UserID], action.ActionID)

	return nil
}

// ListByUser returns a user's actions, newest first.
func (s *ActionStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]*models.Action, 0, len(ids))
	for _, id := range ids {
		clone := *s.actions[id]
		out = append(out, &clone)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
