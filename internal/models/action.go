package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionAuth is recorded after a successful proof.
const ActionAuth = "auth"

// Action is an audit record. For authentications the actor and the subject
// are the same account.
type Action struct {
	ActionID  uuid.UUID // UUIDv7
	UserID    uuid.UUID
	WhomID    uuid.UUID
	Event     string
	SourceIP  string
	CreatedAt time.Time
}

// NewAuthAction builds the record emitted for a successful authentication.
func NewAuthAction(userID uuid.UUID, sourceIP string, at time.Time) (*Action, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &Action{
		ActionID:  id,
		UserID:    userID,
		WhomID:    userID,
		Event:     ActionAuth,
		SourceIP:  sourceIP,
		CreatedAt: at,
	}, nil
}
