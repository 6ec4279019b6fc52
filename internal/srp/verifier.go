package srp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// SaltSize is the length of account salts minted by charonctl.
	SaltSize = 4
	// SecretSize is the length of private ephemerals.
	SecretSize = 32
)

// ComputeVerifier derives v = g^x % N, padded to the group size.
func (g *Group) ComputeVerifier(salt, identity, password []byte) []byte {
	x := g.x(salt, identity, password)
	return g.pad(new(big.Int).Exp(g.G, x, g.N))
}

// NewSalt returns a random account salt.
func NewSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// NewSecret returns a random private ephemeral.
func NewSecret() ([]byte, error) {
	return randomBytes(SecretSize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
