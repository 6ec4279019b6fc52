package memory

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
	"gopkg.in/yaml.v3"
)

// UsersFile is the YAML document read by LoadUsersFile.
//
//	users:
//	  - username: Alice
//	    salt: 615a9e29
//	    verifier: 9e47b7b1...
//	    access: USER
type UsersFile struct {
	Users []UserEntry `yaml:"users"`
}

// UserEntry is one account in a users file. Binary fields are hex encoded.
type UserEntry struct {
	ID       string `yaml:"id,omitempty"`
	Username string `yaml:"username"`
	Salt     string `yaml:"salt"`
	Verifier string `yaml:"verifier"`
	Access   string `yaml:"access,omitempty"`
}

// ToUser validates the entry and converts it into an account.
func (e UserEntry) ToUser() (*models.User, error) {
	if e.Username == "" {
		return nil, errors.New("username is required")
	}

	salt, err := hex.DecodeString(e.Salt)
	if err != nil {
		return nil, fmt.Errorf("user %q: invalid salt: %w", e.Username, err)
	}
	if len(salt) == 0 || len(salt) > 255 {
		return nil, fmt.Errorf("user %q: salt must be 1-255 bytes, got %d", e.Username, len(salt))
	}

	verifier, err := hex.DecodeString(e.Verifier)
	if err != nil {
		return nil, fmt.Errorf("user %q: invalid verifier: %w", e.Username, err)
	}
	if len(verifier) == 0 {
		return nil, fmt.Errorf("user %q: verifier is required", e.Username)
	}

	access := models.AccessUser
	if e.Access != "" {
		access = models.AccessLevel(e.Access)
		if !access.Valid() {
			return nil, fmt.Errorf("user %q: unknown access level %q", e.Username, e.Access)
		}
	}

	user := &models.User{
		Username: e.Username,
		Salt:     salt,
		Verifier: verifier,
		Access:   access,
	}

	if e.ID != "" {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, fmt.Errorf("user %q: invalid id: %w", e.Username, err)
		}
		user.UserID = id
	}

	return user, nil
}

// ParseUsers decodes a users document into a new store.
func ParseUsers(data []byte) (*UserStore, error) {
	var doc UsersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}

	s := NewUserStore()
	for i, entry := range doc.Users {
		user, err := entry.ToUser()
		if err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		if err := s.CreateUser(context.Background(), user); err != nil {
			return nil, fmt.Errorf("users[%d] %q: %w", i, entry.Username, err)
		}
	}

	return s, nil
}

// LoadUsersFile reads a YAML users file into a new store.
func LoadUsersFile(path string) (*UserStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	s, err := ParseUsers(data)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Int("count", s.Len()).Msg("Loaded users file")
	return s, nil
}
