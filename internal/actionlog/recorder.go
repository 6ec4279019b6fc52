// Package actionlog records audit actions without delaying the handshake
// that produced them.
package actionlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/telemetry"
)

// Sink persists actions. store.ActionStore and *Journal are sinks.
type Sink interface {
	Append(ctx context.Context, action *models.Action) error
}

// Config configures a Recorder.
type Config struct {
	// Buffer is the queue length. Actions recorded while it is full are dropped.
	// Default: 1024
	Buffer int

	// MaxTries bounds write attempts per action and sink. Default: 5
	MaxTries uint

	// InitialInterval and MaxInterval shape the retry backoff.
	// Defaults: 100ms and 5s
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// WriteTimeout bounds a single write attempt. Default: 5s
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.MaxTries == 0 {
		c.MaxTries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Recorder queues actions and writes them to every sink from a single
// background goroutine.
type Recorder struct {
	cfg   Config
	sinks []Sink

	mu     sync.RWMutex
	closed bool
	queue  chan *models.Action

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder starts a recorder writing to sinks.
func NewRecorder(cfg Config, sinks ...Sink) *Recorder {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		cfg:    cfg,
		sinks:  sinks,
		queue:  make(chan *models.Action, cfg.Buffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.run()

	return r
}

// Record enqueues an action and never blocks. It returns false if the action
// was dropped because the queue is full or the recorder is closed.
func (r *Recorder) Record(action *models.Action) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		telemetry.GetMetrics().ActionsDroppedTotal.Add(r.ctx, 1)
		return false
	}

	select {
	case r.queue <- action:
		return true
	default:
		telemetry.GetMetrics().ActionsDroppedTotal.Add(r.ctx, 1)
		log.Warn().
			Str("action_id", action.ActionID.String()).
			Str("user_id", action.UserID.String()).
			Msg("Action queue full, dropping action")
		return false
	}
}

// Close stops accepting actions and waits for queued ones to be written.
// If ctx ends first, in-flight retries are abandoned and ctx.Err is returned.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-r.done
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for action := range r.queue {
		for _, sink := range r.sinks {
			r.write(sink, action)
		}
	}
}

func (r *Recorder) write(sink Sink, action *models.Action) {
	metrics := telemetry.GetMetrics()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval

	_, err := backoff.Retry(r.ctx, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.WriteTimeout)
		defer cancel()
		return struct{}{}, sink.Append(ctx, action)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.ActionsRetriesTotal.Add(r.ctx, 1)
			log.Debug().
				Err(err).
				Str("action_id", action.ActionID.String()).
				Dur("next_retry", next).
				Msg("Action write failed, will retry")
		}),
	)
	if err != nil {
		metrics.ActionsDroppedTotal.Add(context.Background(), 1)
		event := log.Error()
		if errors.Is(err, context.Canceled) {
			event = log.Warn()
		}
		event.Err(err).
			Str("action_id", action.ActionID.String()).
			Str("user_id", action.UserID.String()).
			Str("event", action.Event).
			Msg("Failed to record action")
		return
	}

	metrics.ActionsRecordedTotal.Add(context.Background(), 1)
}
