// Package proto implements the charon authentication wire format.
//
// Every datagram starts with a little-endian 32-bit tag identifying the
// packet kind. Strings are ASCII and NUL-terminated; byte blobs carry a
// length prefix (u8 for salts, i32 for ephemerals and proofs). Decoders
// never read past the supplied slice and report any framing violation as
// ErrMalformed.
package proto

import (
	"errors"
	"fmt"
)

// ProtocolVersion is the only negotiate version this server speaks.
const ProtocolVersion uint8 = 1

// Tag identifies a packet kind on the wire.
type Tag uint32

const (
	TagClientNegotiate      Tag = 0xD003CA01
	TagServerNegotiateReply Tag = 0xD003CA10
	TagClientEphemeral      Tag = 0xD003CA02
	TagServerEphemeralReply Tag = 0xD003CA20
	TagClientProof          Tag = 0xD003CA03
	TagServerProofReply     Tag = 0xD003CA30
	TagUserError            Tag = 0xD003CAFF
	TagSessionError         Tag = 0xD003CAEE
)

func (t Tag) String() string {
	switch t {
	case TagClientNegotiate:
		return "client_negotiate"
	case TagServerNegotiateReply:
		return "server_negotiate_reply"
	case TagClientEphemeral:
		return "client_ephemeral"
	case TagServerEphemeralReply:
		return "server_ephemeral_reply"
	case TagClientProof:
		return "client_proof"
	case TagServerProofReply:
		return "server_proof_reply"
	case TagUserError:
		return "user_error"
	case TagSessionError:
		return "session_error"
	default:
		return fmt.Sprintf("unknown(0x%08X)", uint32(t))
	}
}

// UserErrorCode is carried by UserError packets.
type UserErrorCode uint8

const (
	UserTryLater         UserErrorCode = 0
	UserNoExist          UserErrorCode = 1
	UserOutdatedProtocol UserErrorCode = 2
	UserWillNotAuth      UserErrorCode = 3
)

func (c UserErrorCode) String() string {
	switch c {
	case UserTryLater:
		return "TRY_LATER"
	case UserNoExist:
		return "NO_EXIST"
	case UserOutdatedProtocol:
		return "OUTDATED_PROTOCOL"
	case UserWillNotAuth:
		return "WILL_NOT_AUTH"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// SessionErrorCode is carried by SessionError packets.
type SessionErrorCode uint8

const (
	SessionTryLater       SessionErrorCode = 0
	SessionNoExist        SessionErrorCode = 1
	SessionVerifierUnsafe SessionErrorCode = 2
	SessionAuthFailed     SessionErrorCode = 3
)

func (c SessionErrorCode) String() string {
	switch c {
	case SessionTryLater:
		return "TRY_LATER"
	case SessionNoExist:
		return "NO_EXIST"
	case SessionVerifierUnsafe:
		return "VERIFIER_UNSAFE"
	case SessionAuthFailed:
		return "AUTH_FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// ErrMalformed is returned for any buffer that does not decode cleanly.
var ErrMalformed = errors.New("malformed packet")

// Packet is implemented by every wire message.
type Packet interface {
	Tag() Tag
	// Encode returns the wire representation. It never fails; field values
	// are expected to be valid domain values (ASCII usernames, salts of at
	// most 255 bytes).
	Encode() []byte
}

// PeekTag returns the leading tag of buf, or false if buf is shorter than a tag.
func PeekTag(buf []byte) (Tag, bool) {
	if len(buf) < 4 {
		return 0, false
	}
	return Tag(le.Uint32(buf)), true
}
