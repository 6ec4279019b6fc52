package srp

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// Client is the client half of a handshake. It is used by charonctl and by
// tests to drive a server through a full exchange.
type Client struct {
	group    *Group
	salt     []byte
	identity []byte
	password []byte

	a       *big.Int
	aPadded []byte

	proof  []byte
	server []byte
	key    []byte
}

// NewClient creates a client with private ephemeral secret. The salt is the
// one returned by the server during negotiation.
func NewClient(g *Group, salt, identity, password, secret []byte) (*Client, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: client", ErrEmptySecret)
	}
	a := new(big.Int).SetBytes(secret)
	pub := new(big.Int).Exp(g.G, a, g.N)
	return &Client{
		group:    g,
		salt:     salt,
		identity: identity,
		password: password,
		a:        a,
		aPadded:  g.pad(pub),
	}, nil
}

// Ephemeral returns the padded client public ephemeral A.
func (c *Client) Ephemeral() []byte { return c.aPadded }

// SetServerEphemeral consumes B and derives the session key and both proofs.
func (c *Client) SetServerEphemeral(serverEphemeral []byte) error {
	g := c.group
	b, err := g.publicValue(serverEphemeral)
	if err != nil {
		return err
	}
	bPadded := g.pad(new(big.Int).Mod(b, g.N))

	u := g.hashInt(c.aPadded, bPadded)
	if u.Sign() == 0 {
		return fmt.Errorf("%w: scrambling parameter is zero", ErrInvalidEphemeral)
	}
	x := g.x(c.salt, c.identity, c.password)

	// S = (B - k*g^x) ^ (a + u*x) % N
	gx := new(big.Int).Exp(g.G, x, g.N)
	kgx := new(big.Int).Mul(g.k, gx)
	base := new(big.Int).Sub(b, kgx)
	base.Mod(base, g.N)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)
	s := new(big.Int).Exp(base, exp, g.N)
	sPadded := g.pad(s)

	c.key = g.hash(sPadded)
	c.proof = g.hash(c.aPadded, bPadded, sPadded)
	c.server = g.hash(c.aPadded, c.proof, c.key)
	return nil
}

// Proof returns M1. SetServerEphemeral must have succeeded.
func (c *Client) Proof() []byte { return c.proof }

// SessionKey returns K. SetServerEphemeral must have succeeded.
func (c *Client) SessionKey() []byte { return c.key }

// VerifyServerProof checks M2 from the server.
func (c *Client) VerifyServerProof(serverProof []byte) error {
	if c.server == nil {
		return errors.New("srp: server ephemeral not set")
	}
	if subtle.ConstantTimeCompare(c.server, serverProof) != 1 {
		return ErrProofMismatch
	}
	return nil
}
