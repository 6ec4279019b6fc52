package srp

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// Known-answer vector shared with the reference JavaScript client.
var vector = struct {
	salt, identity, password string
	a, b                     string
	v, A, B                  string
	M1, M2, K                string
}{
	salt:     "615a9e29",
	identity: "username",
	password: "password123",
	a:        "6b49c347dd893101864ca99ab1a558d85dba2401a0289734cc7010403d4c510c",
	b:        "334d31b26d2ea155626d00235310749a7e70cf2d10e648d8892d1c6156dde8db",
	v: "9e47b7b1156178e359876c77272d6ff1a3d411af95f2c266998b783466e384fa922c7802c8b62c2a7c8e1ecb765932ac81377ed6ffe3b8f1cf137bcb92eb3592" +
		"63008be6094ab144a51be8de009e142974fc5063f52895eb32fa04698939123b145543d736b19dabe22d391fc2ad4c00d2e156105f5996f5e108d36e6a9d84d6" +
		"50a2a5b96703aea0d12e88f45bda4ef9f02de19187fd99a35f33204363e490784fb4e4fa7d10dcba1ca8508eb8846f0b781d10adc5404c74444910730e256096" +
		"7c1a1785254a7b403831fe9a69f2e41f0818f1898f8d4432122828a1cd8f958826470898185da450d405da15e6b286ec6523a91de0ac6c543d19d5785ff42563",
	A: "0f49b565190f4edb74db1d7fc468323e45aff13246287bf383807136c9c0f8bd93cc3e8f67017142750f526835981ad7d3b786c9fc72905b6f80491f11f0f28b" +
		"3336f8e59d220f87d08ca14e5d4a810e43c5920dae4d4a360a12525e50486ca2f7c3ae3f792c7005bd954f6b0080622341d3f6a9074b46495feaecfe0872afe4" +
		"99461dbc17348d96be2559ce9028c98b051b944bd11e3e72fc370c4f6ffecbf8ddeabde518a69c7f10e4507f65ecdc61273ea6403642f888ff3b015bf32587a2" +
		"0372ef34b3cf84dbda28b4dcf1bce2980d06b75abba97eb7cd4599faad07cb229213c244c498de69e0487217cda4abded2069138e76631fa3622de9d356edc43",
	B: "40bac984c032dea81579054cf429bca2effe8323208a20e1f5d02f4674fa5c2300d7786c679609d2dbde9ece179bb7c3d626d528043a93ec9fcaf86af3b020b4" +
		"44f3dcc97402af03a7cb6275fe523e1ba7300e7666db2428a63e0ff4c6f5f7cc1434c282c65a98c06b395d287b04164de5f5ed8dd12e97b0bd1a35c231ef8fb9" +
		"aa037cddfd97bd04659a7a8cfa5e285d67dc509ef4654dcf0d01eb0a7fd203270181b4b78ebf8235811fd4671c42f6b66ba3f7e76f8be75ff97cdea31b8c5f94" +
		"0b2f774b2d1b528b5ffbef2dc19fff7180df0f3c0816774e789c21c84cf574d72199966f2b4e64fafa707f296db9decf295bbe96f2b3a8c604f182042d99a4f2",
	M1: "b234ff7850d85f09591b3107c32f994928a8f4e880a78fe4e908c2232af8a870",
	M2: "ee9507da46fdc8148a83a39b8f5a7cbc3331f99e299fa5d633dcd7f153140eb5",
	K:  "6f41c0115dd5b4d1b60edddf6262f27d043daae826c8935a22bee5bbdc49d6dd",
}

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func vectorHandshake(t *testing.T) Handshake {
	return Handshake{
		Salt:            unhex(t, vector.salt),
		Identity:        []byte(vector.identity),
		Verifier:        unhex(t, vector.v),
		Secret:          unhex(t, vector.b),
		ClientEphemeral: unhex(t, vector.A),
	}
}

func TestGroup2048(t *testing.T) {
	require.Equal(t, 2048, Group2048.N.BitLen())
	require.Equal(t, 256, Group2048.Size())
	require.True(t, Group2048.N.ProbablyPrime(10))

	g, err := GroupByName("2048")
	require.NoError(t, err)
	require.Same(t, Group2048, g)

	_, err = GroupByName("1024")
	require.Error(t, err)
}

func TestComputeVerifier(t *testing.T) {
	v := Group2048.ComputeVerifier(unhex(t, vector.salt), []byte(vector.identity), []byte(vector.password))
	require.Equal(t, vector.v, hex.EncodeToString(v))

	t.Run("identity is case folded", func(t *testing.T) {
		folded := Group2048.ComputeVerifier(unhex(t, vector.salt), Identity("UserName"), []byte(vector.password))
		require.Equal(t, v, folded)
	})
}

func TestKnownVector(t *testing.T) {
	h := vectorHandshake(t)

	t.Run("client ephemeral", func(t *testing.T) {
		c, err := NewClient(Group2048, h.Salt, h.Identity, []byte(vector.password), unhex(t, vector.a))
		require.NoError(t, err)
		require.Equal(t, vector.A, hex.EncodeToString(c.Ephemeral()))
	})

	t.Run("server ephemeral", func(t *testing.T) {
		b, err := Group2048.ServerEphemeral(h)
		require.NoError(t, err)
		require.Equal(t, vector.B, hex.EncodeToString(b))
	})

	t.Run("server ephemeral is deterministic", func(t *testing.T) {
		b1, err := Group2048.ServerEphemeral(h)
		require.NoError(t, err)
		b2, err := Group2048.ServerEphemeral(h)
		require.NoError(t, err)
		require.Equal(t, b1, b2)
	})

	t.Run("proofs", func(t *testing.T) {
		c, err := NewClient(Group2048, h.Salt, h.Identity, []byte(vector.password), unhex(t, vector.a))
		require.NoError(t, err)
		require.NoError(t, c.SetServerEphemeral(unhex(t, vector.B)))
		require.Equal(t, vector.M1, hex.EncodeToString(c.Proof()))
		require.Equal(t, vector.K, hex.EncodeToString(c.SessionKey()))

		m2, err := Group2048.VerifyProof(h, c.Proof())
		require.NoError(t, err)
		require.Equal(t, vector.M2, hex.EncodeToString(m2))
		require.NoError(t, c.VerifyServerProof(m2))
	})
}

func TestVerifyProofRejects(t *testing.T) {
	h := vectorHandshake(t)

	tests := []struct {
		name  string
		proof []byte
	}{
		{name: "all zero", proof: make([]byte, 32)},
		{name: "empty", proof: []byte{}},
		{name: "truncated", proof: unhex(t, vector.M1)[:31]},
		{name: "one bit flipped", proof: func() []byte {
			p := unhex(t, vector.M1)
			p[0] ^= 1
			return p
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m2, err := Group2048.VerifyProof(h, tt.proof)
			require.ErrorIs(t, err, ErrProofMismatch)
			require.Nil(t, m2)
		})
	}

	t.Run("wrong password", func(t *testing.T) {
		c, err := NewClient(Group2048, h.Salt, h.Identity, []byte("password124"), unhex(t, vector.a))
		require.NoError(t, err)
		require.NoError(t, c.SetServerEphemeral(unhex(t, vector.B)))

		_, err = Group2048.VerifyProof(h, c.Proof())
		require.ErrorIs(t, err, ErrProofMismatch)
	})
}

func TestDegenerateEphemeral(t *testing.T) {
	n := Group2048.N

	tests := []struct {
		name string
		a    []byte
	}{
		{name: "empty", a: []byte{}},
		{name: "zero", a: []byte{0}},
		{name: "padded zero", a: make([]byte, 256)},
		{name: "modulus", a: n.Bytes()},
		{name: "longer than modulus", a: append([]byte{1}, make([]byte, 256)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := vectorHandshake(t)
			h.ClientEphemeral = tt.a

			_, err := Group2048.ServerEphemeral(h)
			require.ErrorIs(t, err, ErrInvalidEphemeral)

			_, err = Group2048.VerifyProof(h, unhex(t, vector.M1))
			require.ErrorIs(t, err, ErrInvalidEphemeral)
		})
	}

	t.Run("client rejects degenerate B", func(t *testing.T) {
		c, err := NewClient(Group2048, []byte{1}, []byte("x"), []byte("y"), []byte{7})
		require.NoError(t, err)
		require.ErrorIs(t, c.SetServerEphemeral(n.Bytes()), ErrInvalidEphemeral)
	})
}

func TestRandomHandshake(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	identity := Identity("Alice")
	v := Group2048.ComputeVerifier(salt, identity, []byte("hunter2"))

	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)
	require.Len(t, b, SecretSize)
	require.False(t, bytes.Equal(a, b))

	c, err := NewClient(Group2048, salt, identity, []byte("hunter2"), a)
	require.NoError(t, err)

	h := Handshake{Salt: salt, Identity: identity, Verifier: v, Secret: b, ClientEphemeral: c.Ephemeral()}
	serverB, err := Group2048.ServerEphemeral(h)
	require.NoError(t, err)
	require.Len(t, serverB, Group2048.Size())

	require.NoError(t, c.SetServerEphemeral(serverB))
	m2, err := Group2048.VerifyProof(h, c.Proof())
	require.NoError(t, err)
	require.NoError(t, c.VerifyServerProof(m2))

	require.ErrorIs(t, c.VerifyServerProof(make([]byte, 32)), ErrProofMismatch)
}

func TestEmptySecret(t *testing.T) {
	h := vectorHandshake(t)
	h.Secret = nil
	_, err := Group2048.ServerEphemeral(h)
	require.ErrorIs(t, err, ErrEmptySecret)
	require.NotErrorIs(t, err, ErrInvalidEphemeral)

	_, err = Group2048.VerifyProof(h, make([]byte, 32))
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewClient(Group2048, nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrEmptySecret)
}
