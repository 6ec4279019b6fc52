package accounts

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/srp"
	"github.com/wolfeidau/charonauth/internal/store/memory"
)

func TestNewEntry(t *testing.T) {
	t.Run("known salt", func(t *testing.T) {
		salt, _ := hex.DecodeString("615a9e29")
		entry, err := NewEntry(srp.Group2048, "Username", "password123", salt, models.AccessUser)
		require.NoError(t, err)

		require.Equal(t, "615a9e29", entry.Salt)
		want := srp.Group2048.ComputeVerifier(salt, []byte("username"), []byte("password123"))
		require.Equal(t, hex.EncodeToString(want), entry.Verifier)
		require.Equal(t, "USER", entry.Access)

		user, err := entry.ToUser()
		require.NoError(t, err)
		require.Equal(t, "Username", user.Username)
	})

	t.Run("random salt", func(t *testing.T) {
		a, err := NewEntry(srp.Group2048, "alice", "pw", nil, models.AccessOp)
		require.NoError(t, err)
		b, err := NewEntry(srp.Group2048, "alice", "pw", nil, models.AccessOp)
		require.NoError(t, err)
		require.Len(t, a.Salt, srp.SaltSize*2)
		require.NotEqual(t, a.Salt, b.Salt)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewEntry(srp.Group2048, "", "pw", nil, models.AccessUser)
		require.Error(t, err)
		_, err = NewEntry(srp.Group2048, "alice", "pw", nil, models.AccessLevel("ROOT"))
		require.Error(t, err)
	})
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint([]byte{1, 2, 3})
	require.NotEmpty(t, fp)
	require.Equal(t, fp, Fingerprint([]byte{1, 2, 3}))
	require.NotEqual(t, fp, Fingerprint([]byte{1, 2, 4}))
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "users.yaml")

	alice, err := NewEntry(srp.Group2048, "Alice", "pw", nil, models.AccessUser)
	require.NoError(t, err)
	bob, err := NewEntry(srp.Group2048, "bob", "pw", nil, models.AccessUnverified)
	require.NoError(t, err)

	require.NoError(t, Append(path, alice))
	require.NoError(t, Append(path, bob))
	require.ErrorIs(t, Append(path, memory.UserEntry{Username: "ALICE"}), ErrUserExists)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	file, err := Load(path)
	require.NoError(t, err)
	require.Len(t, file.Users, 2)

	// the server loads what charonctl writes
	users, err := memory.LoadUsersFile(path)
	require.NoError(t, err)
	u, err := users.FindUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Username)
}

func TestLoadMissing(t *testing.T) {
	file, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Empty(t, file.Users)
}
