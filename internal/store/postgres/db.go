package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB owns the pool shared by the user, session and action stores.
type DB struct {
	pool *pgxpool.Pool

	Users    *UserStore
	Sessions *SessionStore
	Actions  *ActionStore
}

// Open connects to PostgreSQL, optionally migrates, and builds the stores.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DB{
		pool:     pool,
		Users:    NewUserStore(pool, cfg.QueryTimeout),
		Sessions: NewSessionStore(pool, cfg.QueryTimeout),
		Actions:  NewActionStore(pool, cfg.QueryTimeout),
	}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close closes the pool.
func (db *DB) Close() {
	log.Info().Msg("Closing PostgreSQL pool")
	db.pool.Close()
}

// withTimeout derives a statement context.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
