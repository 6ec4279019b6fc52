package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/charonauth/internal/actionlog"
	"github.com/wolfeidau/charonauth/internal/logger"
	"github.com/wolfeidau/charonauth/internal/server"
	"github.com/wolfeidau/charonauth/internal/session"
	"github.com/wolfeidau/charonauth/internal/srp"
	"github.com/wolfeidau/charonauth/internal/store"
	memorystore "github.com/wolfeidau/charonauth/internal/store/memory"
	postgresstore "github.com/wolfeidau/charonauth/internal/store/postgres"
	"github.com/wolfeidau/charonauth/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen         string        `help:"UDP listen address" default:"0.0.0.0:16666" env:"CHARON_LISTEN"`
	SessionTimeout time.Duration `help:"maximum age of a handshake session" default:"30s" env:"CHARON_SESSION_TIMEOUT"`
	SRPGroup       string        `name:"srp-group" help:"SRP group" default:"2048" enum:"2048" env:"CHARON_SRP_GROUP"`
	Workers        int           `help:"goroutines reading from the socket" default:"1" env:"CHARON_WORKERS"`
	MaxInFlight    int           `help:"datagrams handled concurrently" default:"256" env:"CHARON_MAX_IN_FLIGHT"`
	BatchSize      int           `help:"datagrams read or written per syscall" default:"16" env:"CHARON_BATCH_SIZE"`

	// Session store garbage collection, off by default; expiry is enforced at lookup.
	SessionReapInterval time.Duration `help:"interval for deleting old sessions (0 uses the session timeout for the memory store, negative disables)" default:"0s" env:"CHARON_SESSION_REAP_INTERVAL"`

	// Telemetry
	Tracing          bool    `help:"enable tracing and metrics export" default:"false" env:"CHARON_TRACING"`
	TraceSampleRatio float64 `help:"fraction of handshake steps traced" default:"1" env:"CHARON_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"CHARON_STORE_TYPE" enum:"memory,postgres"`
	UsersFile     string             `help:"YAML users file for the memory store" type:"existingfile" env:"CHARON_USERS_FILE"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Action log
	ActionBuffer int          `help:"queued auth actions before new ones are dropped" default:"1024" env:"CHARON_ACTION_BUFFER"`
	Journal      JournalFlags `embed:"" prefix:"journal-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	QueryTimeout    time.Duration `help:"timeout for each statement" default:"5s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"CHARON_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("--postgres-min-conns %d exceeds --postgres-max-conns %d", s.MinConns, s.MaxConns)
	}
	return nil
}

// JournalFlags configures the local action journal.
type JournalFlags struct {
	Dir       string        `help:"directory for the action journal (empty disables it)" env:"CHARON_JOURNAL_DIR"`
	MaxBytes  int64         `help:"rotate the journal at this size" default:"67108864" env:"CHARON_JOURNAL_MAX_BYTES"`
	Retention time.Duration `help:"delete archived journals older than this on startup (0 keeps all)" default:"0s" env:"CHARON_JOURNAL_RETENTION"`
}

// stores holds the collaborators for the selected backend.
type stores struct {
	users    store.UserStore
	sessions store.SessionStore
	sinks    []actionlog.Sink
	close    func()
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	group, err := srp.GroupByName(c.SRPGroup)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if c.SessionTimeout <= 0 {
		return configErrorf("--session-timeout must be positive, got %s", c.SessionTimeout)
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "charonauth-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, err := c.openStores(ctx, log)
	if err != nil {
		return err
	}
	defer st.close()

	if c.Journal.Dir != "" {
		journal, err := actionlog.OpenJournal(actionlog.JournalConfig{
			Dir:      c.Journal.Dir,
			MaxBytes: c.Journal.MaxBytes,
		})
		if err != nil {
			return &ConfigError{Err: fmt.Errorf("failed to open action journal: %w", err)}
		}
		defer journal.Close()

		if c.Journal.Retention > 0 {
			archiveDir := journal.ArchiveDir()
			if _, err := actionlog.CleanupArchives(archiveDir, c.Journal.Retention); err != nil {
				log.Warn().Err(err).Str("archive_dir", archiveDir).Msg("Failed to clean up journal archives")
			}
		}

		st.sinks = append(st.sinks, journal)
		log.Info().Str("path", journal.Path()).Msg("Action journal enabled")
	}

	recorder := actionlog.NewRecorder(actionlog.Config{Buffer: c.ActionBuffer}, st.sinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Pending actions were not written")
		}
	}()

	manager := session.NewManager(st.users, st.sessions)
	router := server.NewRouter(manager, server.RouterConfig{
		Group:          group,
		SessionTimeout: c.SessionTimeout,
		Recorder:       recorder,
	})

	srv, err := server.NewServer(server.Config{
		Listen:      c.Listen,
		Workers:     c.Workers,
		MaxInFlight: c.MaxInFlight,
		BatchSize:   c.BatchSize,
	}, router.Route, log)
	if err != nil {
		return &ConfigError{Err: err}
	}

	if interval := c.reapInterval(); interval > 0 {
		if reaper, ok := st.sessions.(store.SessionReaper); ok {
			go session.RunReaper(ctx, reaper, interval, c.SessionTimeout)
			log.Info().Dur("interval", interval).Msg("Session reaper enabled")
		}
	} else if c.StoreType == "memory" {
		log.Warn().Msg("Session reaper disabled, memory store sessions are never freed")
	}

	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("Server stopped on fatal error")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}

// reapInterval resolves the session sweep interval. Unset means the session
// timeout for the memory store, which has no other way to free sessions.
func (c *ServeCmd) reapInterval() time.Duration {
	switch {
	case c.SessionReapInterval < 0:
		return 0
	case c.SessionReapInterval > 0:
		return c.SessionReapInterval
	case c.StoreType == "memory":
		return c.SessionTimeout
	default:
		return 0
	}
}

func (c *ServeCmd) openStores(ctx context.Context, log zerolog.Logger) (*stores, error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, &ConfigError{Err: err}
		}

		db, err := postgresstore.Open(ctx, &postgresstore.Config{
			Pool: postgresstore.PoolConfig{
				ConnString:      c.PostgresStore.ConnString,
				MaxConns:        c.PostgresStore.MaxConns,
				MinConns:        c.PostgresStore.MinConns,
				MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
				MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			},
			AutoMigrate:  c.PostgresStore.AutoMigrate,
			QueryTimeout: c.PostgresStore.QueryTimeout,
		})
		if err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to open database: %w", err)}
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

		return &stores{
			users:    db.Users,
			sessions: db.Sessions,
			sinks:    []actionlog.Sink{db.Actions},
			close:    db.Close,
		}, nil

	default:
		if c.UsersFile == "" {
			return nil, configErrorf("--users-file is required with the memory store")
		}

		users, err := memorystore.LoadUsersFile(c.UsersFile)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}

		log.Info().
			Str("users_file", c.UsersFile).
			Int("users", users.Len()).
			Msg("Using in-memory stores")

		return &stores{
			users:    users,
			sessions: memorystore.NewSessionStore(),
			sinks:    []actionlog.Sink{memorystore.NewActionStore()},
			close:    func() {},
		}, nil
	}
}
