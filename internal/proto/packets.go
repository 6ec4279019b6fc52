package proto

import "fmt"

// ClientNegotiate opens a handshake for a username.
type ClientNegotiate struct {
	Version  uint8
	Username string
}

func (p *ClientNegotiate) Tag() Tag { return TagClientNegotiate }

func (p *ClientNegotiate) Encode() []byte {
	buf := make([]byte, 0, 6+len(p.Username))
	buf = putTag(buf, TagClientNegotiate)
	buf = append(buf, p.Version)
	return putCString(buf, p.Username)
}

// DecodeClientNegotiate decodes a ClientNegotiate. The version byte is
// returned as sent; rejecting unsupported versions is up to the caller.
func DecodeClientNegotiate(buf []byte) (*ClientNegotiate, error) {
	r := newReader(buf, TagClientNegotiate)
	p := &ClientNegotiate{
		Version: r.u8(),
	}
	p.Username = r.cstring()
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// ServerNegotiateReply carries the session handle and the account salt.
type ServerNegotiateReply struct {
	Version  uint8
	Session  uint32
	Salt     []byte
	Username string
}

func (p *ServerNegotiateReply) Tag() Tag { return TagServerNegotiateReply }

func (p *ServerNegotiateReply) Encode() []byte {
	buf := make([]byte, 0, 11+len(p.Salt)+len(p.Username))
	buf = putTag(buf, TagServerNegotiateReply)
	buf = append(buf, p.Version)
	buf = le.AppendUint32(buf, p.Session)
	buf = putBlob8(buf, p.Salt)
	return putCString(buf, p.Username)
}

func DecodeServerNegotiateReply(buf []byte) (*ServerNegotiateReply, error) {
	r := newReader(buf, TagServerNegotiateReply)
	p := &ServerNegotiateReply{
		Version: r.u8(),
		Session: r.u32(),
	}
	p.Salt = r.blob(int(r.u8()))
	p.Username = r.cstring()
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// ClientEphemeral carries the client's public ephemeral A.
type ClientEphemeral struct {
	Session   uint32
	Ephemeral []byte
}

func (p *ClientEphemeral) Tag() Tag { return TagClientEphemeral }

func (p *ClientEphemeral) Encode() []byte {
	return encodeSessionBlob(TagClientEphemeral, p.Session, p.Ephemeral)
}

func DecodeClientEphemeral(buf []byte) (*ClientEphemeral, error) {
	session, blob, err := decodeSessionBlob(buf, TagClientEphemeral)
	if err != nil {
		return nil, err
	}
	return &ClientEphemeral{Session: session, Ephemeral: blob}, nil
}

// ServerEphemeralReply carries the server's public ephemeral B.
type ServerEphemeralReply struct {
	Session   uint32
	Ephemeral []byte
}

func (p *ServerEphemeralReply) Tag() Tag { return TagServerEphemeralReply }

func (p *ServerEphemeralReply) Encode() []byte {
	return encodeSessionBlob(TagServerEphemeralReply, p.Session, p.Ephemeral)
}

func DecodeServerEphemeralReply(buf []byte) (*ServerEphemeralReply, error) {
	session, blob, err := decodeSessionBlob(buf, TagServerEphemeralReply)
	if err != nil {
		return nil, err
	}
	return &ServerEphemeralReply{Session: session, Ephemeral: blob}, nil
}

// ClientProof carries the client proof M1.
type ClientProof struct {
	Session uint32
	Proof   []byte
}

func (p *ClientProof) Tag() Tag { return TagClientProof }

func (p *ClientProof) Encode() []byte {
	return encodeSessionBlob(TagClientProof, p.Session, p.Proof)
}

func DecodeClientProof(buf []byte) (*ClientProof, error) {
	session, blob, err := decodeSessionBlob(buf, TagClientProof)
	if err != nil {
		return nil, err
	}
	return &ClientProof{Session: session, Proof: blob}, nil
}

// ServerProofReply carries the server proof M2.
type ServerProofReply struct {
	Session uint32
	Proof   []byte
}

func (p *ServerProofReply) Tag() Tag { return TagServerProofReply }

func (p *ServerProofReply) Encode() []byte {
	return encodeSessionBlob(TagServerProofReply, p.Session, p.Proof)
}

func DecodeServerProofReply(buf []byte) (*ServerProofReply, error) {
	session, blob, err := decodeSessionBlob(buf, TagServerProofReply)
	if err != nil {
		return nil, err
	}
	return &ServerProofReply{Session: session, Proof: blob}, nil
}

// UserError reports a failure correlated by username.
type UserError struct {
	Code     UserErrorCode
	Username string
}

func (p *UserError) Tag() Tag { return TagUserError }

func (p *UserError) Encode() []byte {
	buf := make([]byte, 0, 6+len(p.Username))
	buf = putTag(buf, TagUserError)
	buf = append(buf, uint8(p.Code))
	return putCString(buf, p.Username)
}

func DecodeUserError(buf []byte) (*UserError, error) {
	r := newReader(buf, TagUserError)
	p := &UserError{
		Code: UserErrorCode(r.u8()),
	}
	p.Username = r.cstring()
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// SessionError reports a failure correlated by session handle.
type SessionError struct {
	Code    SessionErrorCode
	Session uint32
}

func (p *SessionError) Tag() Tag { return TagSessionError }

func (p *SessionError) Encode() []byte {
	buf := make([]byte, 0, 9)
	buf = putTag(buf, TagSessionError)
	buf = append(buf, uint8(p.Code))
	return le.AppendUint32(buf, p.Session)
}

func DecodeSessionError(buf []byte) (*SessionError, error) {
	r := newReader(buf, TagSessionError)
	p := &SessionError{
		Code:    SessionErrorCode(r.u8()),
		Session: r.u32(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

func encodeSessionBlob(tag Tag, session uint32, blob []byte) []byte {
	buf := make([]byte, 0, 12+len(blob))
	buf = putTag(buf, tag)
	buf = le.AppendUint32(buf, session)
	return putBlob32(buf, blob)
}

func decodeSessionBlob(buf []byte, tag Tag) (uint32, []byte, error) {
	r := newReader(buf, tag)
	session := r.u32()
	blob := r.blob32()
	if r.err != nil {
		return 0, nil, r.err
	}
	return session, blob, nil
}

// Decode dispatches on the leading tag and decodes any packet kind.
func Decode(buf []byte) (Packet, error) {
	tag, ok := PeekTag(buf)
	if !ok {
		return nil, ErrMalformed
	}

	switch tag {
	case TagClientNegotiate:
		return asPacket(DecodeClientNegotiate(buf))
	case TagServerNegotiateReply:
		return asPacket(DecodeServerNegotiateReply(buf))
	case TagClientEphemeral:
		return asPacket(DecodeClientEphemeral(buf))
	case TagServerEphemeralReply:
		return asPacket(DecodeServerEphemeralReply(buf))
	case TagClientProof:
		return asPacket(DecodeClientProof(buf))
	case TagServerProofReply:
		return asPacket(DecodeServerProofReply(buf))
	case TagUserError:
		return asPacket(DecodeUserError(buf))
	case TagSessionError:
		return asPacket(DecodeSessionError(buf))
	default:
		return nil, fmt.Errorf("%w: unknown tag %s", ErrMalformed, tag)
	}
}

// asPacket keeps a typed nil out of the Packet interface on failure.
func asPacket(p Packet, err error) (Packet, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
