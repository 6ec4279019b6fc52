package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/charonauth/internal/models"
)

// ActionStore implements store.ActionStore using PostgreSQL.
type ActionStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewActionStore creates a new PostgreSQL-backed action store.
func NewActionStore(pool *pgxpool.Pool, timeout time.Duration) *ActionStore {
	return &ActionStore{
		pool:    pool,
		timeout: timeout,
	}
}

// Append inserts an action. Replays of the same ActionID are ignored.
func (s *ActionStore) Append(ctx context.Context, action *models.Action) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO actions (action_id, user_id, whom_id, event, source_ip, created_at)
		VALUES ($1, $2, $3, $4, $5::inet, $6)
		ON CONFLICT (action_id) DO NOTHING
	`

	// Convert empty IP address to nil for proper INET handling
	var sourceIP any
	if action.SourceIP != "" {
		sourceIP = action.SourceIP
	}

	_, err := s.pool.Exec(ctx, query,
		action.ActionID,
		action.UserID,
		action.WhomID,
		action.Event,
		sourceIP,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append action: %w", mapPostgresError(err))
	}

	return nil
}

// ListByUser returns a user's actions, newest first.
func (s *ActionStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Action, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT action_id, user_id, whom_id, event, COALESCE(host(source_ip), ''), created_at
		FROM actions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	// LIMIT NULL means no limit
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, query, userID, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", mapPostgresError(err))
	}

	actions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Action, error) {
		var a models.Action
		err := row.Scan(&a.ActionID, &a.UserID, &a.WhomID, &a.Event, &a.SourceIP, &a.CreatedAt)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan actions: %w", mapPostgresError(err))
	}

	return actions, nil
}
