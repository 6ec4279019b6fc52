// Package accounts mints SRP verifiers and maintains YAML users files for
// the in-memory store.
package accounts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/srp"
	"github.com/wolfeidau/charonauth/internal/store/memory"
	"gopkg.in/yaml.v3"
)

var ErrUserExists = errors.New("user already exists in users file")

// Fingerprint is the base58 SHA-256 of a verifier, used to compare
// verifiers without printing them in full.
func Fingerprint(verifier []byte) string {
	hash := sha256.Sum256(verifier)
	return base58.Encode(hash[:])
}

// NewEntry derives a salt and verifier for username and password. A nil
// salt is replaced with a random one.
func NewEntry(group *srp.Group, username, password string, salt []byte, access models.AccessLevel) (memory.UserEntry, error) {
	if username == "" {
		return memory.UserEntry{}, errors.New("username is required")
	}
	if !access.Valid() {
		return memory.UserEntry{}, fmt.Errorf("unknown access level %q", access)
	}

	if salt == nil {
		var err error
		if salt, err = srp.NewSalt(); err != nil {
			return memory.UserEntry{}, err
		}
	}

	verifier := group.ComputeVerifier(salt, srp.Identity(username), []byte(password))

	log.Debug().
		Str("username", username).
		Str("fingerprint", Fingerprint(verifier)).
		Msg("generated verifier")

	return memory.UserEntry{
		Username: username,
		Salt:     hex.EncodeToString(salt),
		Verifier: hex.EncodeToString(verifier),
		Access:   string(access),
	}, nil
}

// Load reads a users file. A missing file is an empty one.
func Load(path string) (*memory.UsersFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &memory.UsersFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var file memory.UsersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	return &file, nil
}

// Append adds entry to the users file at path, creating it if needed.
// Usernames are compared ignoring case.
func Append(path string, entry memory.UserEntry) error {
	file, err := Load(path)
	if err != nil {
		return err
	}

	for _, existing := range file.Users {
		if strings.EqualFold(existing.Username, entry.Username) {
			return fmt.Errorf("%w: %s", ErrUserExists, existing.Username)
		}
	}
	file.Users = append(file.Users, entry)

	return save(path, file)
}

// save writes atomically through a temp file.
func save(path string, file *memory.UsersFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal users file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create users file directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save users file: %w", err)
	}

	log.Info().Str("path", path).Int("users", len(file.Users)).Msg("users file saved")
	return nil
}
