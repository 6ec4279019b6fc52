// Package srp implements SRP-6a over the RFC 5054 groups with SHA-256.
//
// The construction matches the one used by charon game clients:
//
//	k  = H(PAD(N) | PAD(g))
//	x  = H(s | H(I | ":" | P))
//	v  = g^x % N
//	B  = (k*v + g^b) % N
//	u  = H(PAD(A) | PAD(B))
//	S  = (A * v^u)^b % N
//	K  = H(PAD(S))
//	M1 = H(PAD(A) | PAD(B) | PAD(S))
//	M2 = H(PAD(A) | M1 | K)
package srp

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrInvalidEphemeral is returned for a degenerate or oversized public ephemeral.
	ErrInvalidEphemeral = errors.New("invalid ephemeral")
	// ErrProofMismatch is returned when a proof does not match the expected value.
	ErrProofMismatch = errors.New("proof mismatch")
	// ErrEmptySecret is returned when a caller omits its private ephemeral.
	// Callers always mint one with NewSecret, so the server treats it as fatal.
	ErrEmptySecret = errors.New("srp: empty secret")
)

const group2048N = "AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050" +
	"A37329CBB4A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50" +
	"E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918A9962F0B93B8" +
	"55F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14773B" +
	"CA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748" +
	"544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6" +
	"AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB6" +
	"94B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73"

// Group is a set of SRP parameters. It is immutable and safe for concurrent use.
type Group struct {
	Name string
	N    *big.Int
	G    *big.Int

	size int // byte length of N
	k    *big.Int
}

func newGroup(name, hexN string, g int64) *Group {
	n, ok := new(big.Int).SetString(hexN, 16)
	if !ok {
		panic("srp: bad modulus for group " + name)
	}
	grp := &Group{
		Name: name,
		N:    n,
		G:    big.NewInt(g),
		size: (n.BitLen() + 7) / 8,
	}
	grp.k = grp.hashInt(grp.pad(grp.N), grp.pad(grp.G))
	return grp
}

// Group2048 is the RFC 5054 2048-bit group, generator 2.
var Group2048 = newGroup("2048", group2048N, 2)

// GroupByName resolves a configured group name.
func GroupByName(name string) (*Group, error) {
	switch name {
	case "2048":
		return Group2048, nil
	default:
		return nil, fmt.Errorf("unsupported SRP group %q", name)
	}
}

// Size returns the byte length of padded group elements.
func (g *Group) Size() int { return g.size }

func (g *Group) hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (g *Group) hashInt(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(g.hash(parts...))
}

// pad left-pads n to the byte length of N. n must be non-negative and fit.
func (g *Group) pad(n *big.Int) []byte {
	return n.FillBytes(make([]byte, g.size))
}

// publicValue parses a peer's public ephemeral, rejecting values that are
// empty, longer than N, or congruent to zero mod N.
func (g *Group) publicValue(b []byte) (*big.Int, error) {
	if len(b) == 0 || len(b) > g.size {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidEphemeral, len(b))
	}
	n := new(big.Int).SetBytes(b)
	if new(big.Int).Mod(n, g.N).Sign() == 0 {
		return nil, fmt.Errorf("%w: congruent to zero", ErrInvalidEphemeral)
	}
	return n, nil
}

// x computes the private key derived from salt, identity and password.
func (g *Group) x(salt, identity, password []byte) *big.Int {
	inner := g.hash(identity, []byte(":"), password)
	return g.hashInt(salt, inner)
}

// Identity returns the SRP identity bytes for a username. Identities are
// case-folded so verifiers survive display-case changes.
func Identity(username string) []byte {
	return []byte(strings.ToLower(username))
}
