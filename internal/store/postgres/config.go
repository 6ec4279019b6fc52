package postgres

import (
	"fmt"
	"time"
)

// Config configures the PostgreSQL-backed stores.
type Config struct {
	Pool PoolConfig

	// AutoMigrate applies embedded migrations on Open.
	AutoMigrate bool

	// QueryTimeout bounds each statement in addition to the caller's context.
	// Default: 5s
	QueryTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative: %s", c.QueryTimeout)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	c.Pool.ApplyDefaults()
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 5 * time.Second
	}
}
