package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
)

const userColumns = `user_id, username, salt, verifier, access, created_at`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewUserStore creates a new PostgreSQL-backed user store.
// It shares the connection pool with other stores.
func NewUserStore(pool *pgxpool.Pool, timeout time.Duration) *UserStore {
	return &UserStore{
		pool:    pool,
		timeout: timeout,
	}
}

// CreateUser inserts an account. A zero UserID is replaced with a new UUIDv7.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.UserID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		user.UserID = id
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO users (user_id, username, salt, verifier, access, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		user.UserID,
		user.Username,
		user.Salt,
		user.Verifier,
		string(user.Access),
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("username", user.Username).
		Msg("Created user")

	return nil
}

// FindUser looks up an account by username, ignoring case.
func (s *UserStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`

	user, err := scanUser(s.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// GetUser retrieves an account by ID.
func (s *UserStore) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// SetAccess changes an account's access level.
func (s *UserStore) SetAccess(ctx context.Context, userID uuid.UUID, access models.AccessLevel) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.pool.Exec(ctx, `UPDATE users SET access = $2 WHERE user_id = $1`, userID, string(access))
	if err != nil {
		return fmt.Errorf("failed to update user access: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user   models.User
		access string
	)
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.Salt,
		&user.Verifier,
		&access,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, mapPostgresError(err)
	}

	user.Access = models.AccessLevel(access)
	return &user, nil
}
