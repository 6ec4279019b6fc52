package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessLevel is the account's access state, shared with the account
// management application.
type AccessLevel string

const (
	AccessOwner      AccessLevel = "OWNER"
	AccessMaster     AccessLevel = "MASTER"
	AccessOp         AccessLevel = "OP"
	AccessUser       AccessLevel = "USER"
	AccessUnverified AccessLevel = "UNVERIFIED" // e-mail not yet confirmed
)

// Valid reports whether a is one of the known access levels.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessOwner, AccessMaster, AccessOp, AccessUser, AccessUnverified:
		return true
	}
	return false
}

// User is an account as seen by the authentication server. It is read-only
// from the server's point of view.
type User struct {
	UserID   uuid.UUID // UUIDv7
	Username string    // canonical casing, matched case-insensitively
	Salt     []byte
	Verifier []byte // padded SRP verifier
	Access   AccessLevel

	CreatedAt time.Time
}

// IsVerified returns false for accounts that may not authenticate yet.
func (u *User) IsVerified() bool {
	return u.Access != AccessUnverified
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	c.Salt = cloneBytes(u.Salt)
	c.Verifier = cloneBytes(u.Verifier)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
