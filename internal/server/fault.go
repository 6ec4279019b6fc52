package server

import (
	"errors"

	"github.com/wolfeidau/charonauth/internal/proto"
	"github.com/wolfeidau/charonauth/internal/session"
	"github.com/wolfeidau/charonauth/internal/srp"
	"github.com/wolfeidau/charonauth/internal/store"
)

// Fault is the closed set of outcomes a failed handshake step can have.
type Fault int

const (
	// FaultIgnorable covers malformed datagrams; they are dropped.
	FaultIgnorable Fault = iota
	FaultUserNotFound
	FaultSessionNotFound
	FaultVerifierUnsafe
	FaultAuthFailed
	// FaultTryLater is a transient condition the client may retry.
	FaultTryLater
	// FaultFatal stops the server.
	FaultFatal
)

func (f Fault) String() string {
	switch f {
	case FaultIgnorable:
		return "ignorable"
	case FaultUserNotFound:
		return "user_not_found"
	case FaultSessionNotFound:
		return "session_not_found"
	case FaultVerifierUnsafe:
		return "verifier_unsafe"
	case FaultAuthFailed:
		return "auth_failed"
	case FaultTryLater:
		return "try_later"
	default:
		return "fatal"
	}
}

// classify maps a handler error onto a Fault. Anything unrecognised is fatal.
func classify(err error) Fault {
	switch {
	case errors.Is(err, proto.ErrMalformed):
		return FaultIgnorable
	case errors.Is(err, store.ErrUserNotFound):
		return FaultUserNotFound
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrSessionExpired):
		return FaultSessionNotFound
	case errors.Is(err, srp.ErrInvalidEphemeral):
		return FaultVerifierUnsafe
	case errors.Is(err, srp.ErrProofMismatch):
		return FaultAuthFailed
	case errors.Is(err, session.ErrIDSpaceExhausted):
		return FaultTryLater
	default:
		return FaultFatal
	}
}
