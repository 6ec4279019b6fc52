package srp

import (
	"crypto/subtle"
	"fmt"
	"math/big"
)

// Handshake holds the inputs of one server-side handshake. Every server
// computation is a pure function of these values, so the proof step can
// rebuild the state that produced B from what the session stored.
type Handshake struct {
	Salt     []byte
	Identity []byte
	Verifier []byte
	// Secret is the server private ephemeral b, fresh per session.
	Secret []byte
	// ClientEphemeral is the client public ephemeral A.
	ClientEphemeral []byte
}

type serverState struct {
	a, b, v  *big.Int
	bPub     *big.Int
	aPadded  []byte
	bPadded  []byte
	sPadded  []byte
	key      []byte
	expected []byte
}

func (g *Group) serverState(h Handshake) (*serverState, error) {
	if len(h.Secret) == 0 {
		return nil, fmt.Errorf("%w: server", ErrEmptySecret)
	}

	a, err := g.publicValue(h.ClientEphemeral)
	if err != nil {
		return nil, err
	}

	st := &serverState{
		a: a,
		b: new(big.Int).SetBytes(h.Secret),
		v: new(big.Int).SetBytes(h.Verifier),
	}

	// B = (k*v + g^b) % N
	kv := new(big.Int).Mul(g.k, st.v)
	gb := new(big.Int).Exp(g.G, st.b, g.N)
	st.bPub = kv.Add(kv, gb)
	st.bPub.Mod(st.bPub, g.N)

	st.aPadded = g.pad(st.a)
	st.bPadded = g.pad(st.bPub)

	// S = (A * v^u)^b % N
	u := g.hashInt(st.aPadded, st.bPadded)
	s := new(big.Int).Exp(st.v, u, g.N)
	s.Mul(s, st.a)
	s.Mod(s, g.N)
	s.Exp(s, st.b, g.N)
	st.sPadded = g.pad(s)

	st.key = g.hash(st.sPadded)
	st.expected = g.hash(st.aPadded, st.bPadded, st.sPadded)
	return st, nil
}

// ServerEphemeral validates the client ephemeral A and returns the padded
// server ephemeral B. It returns ErrInvalidEphemeral for a degenerate A.
func (g *Group) ServerEphemeral(h Handshake) ([]byte, error) {
	st, err := g.serverState(h)
	if err != nil {
		return nil, err
	}
	return st.bPadded, nil
}

// VerifyProof checks the client proof M1 in constant time and returns the
// server proof M2. It returns ErrProofMismatch when M1 is wrong.
func (g *Group) VerifyProof(h Handshake, clientProof []byte) ([]byte, error) {
	st, err := g.serverState(h)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(st.expected, clientProof) != 1 {
		return nil, ErrProofMismatch
	}
	return g.hash(st.aPadded, st.expected, st.key), nil
}
