package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
)

const sessionColumns = `session_id, user_id, ephemeral, secret, created_at`

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool, timeout time.Duration) *SessionStore {
	return &SessionStore{
		pool:    pool,
		timeout: timeout,
	}
}

// Insert creates a new session row.
func (s *SessionStore) Insert(ctx context.Context, session *models.Session) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO auth_sessions (session_id, user_id, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query,
		int64(session.SessionID),
		session.UserID,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Uint32("session_id", session.SessionID).
		Str("user_id", session.UserID.String()).
		Msg("Created session")

	return nil
}

// SetEphemeral commits the ephemeral pair with a conditional update, so of
// two racing commits only one matches the NULL predicate.
func (s *SessionStore) SetEphemeral(ctx context.Context, sessionID uint32, ephemeral, secret []byte) (*models.Session, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE auth_sessions
		SET ephemeral = $2, secret = $3
		WHERE session_id = $1 AND ephemeral IS NULL AND secret IS NULL
		RETURNING ` + sessionColumns

	session, err := scanSession(s.pool.QueryRow(ctx, query, int64(sessionID), ephemeral, secret))
	if err != nil {
		return nil, fmt.Errorf("failed to set session ephemeral: %w", err)
	}

	return session, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uint32) (*models.Session, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM auth_sessions WHERE session_id = $1`

	session, err := scanSession(s.pool.QueryRow(ctx, query, int64(sessionID)))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteCreatedBefore removes sessions created before cutoff.
func (s *SessionStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())
	if count > 0 {
		log.Debug().Int("count", count).Msg("Deleted expired sessions")
	}

	return count, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		session models.Session
		id      int64
	)
	err := row.Scan(
		&id,
		&session.UserID,
		&session.Ephemeral,
		&session.Secret,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, mapPostgresError(err)
	}

	session.SessionID = uint32(id) // #nosec G115 - column is checked to be in uint32 range
	return &session, nil
}
