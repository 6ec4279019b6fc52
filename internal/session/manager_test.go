package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
	"github.com/wolfeidau/charonauth/internal/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	users    *memory.UserStore
	sessions *memory.SessionStore
	clock    *fakeClock
	mgr      *Manager
	alice    *models.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		users:    memory.NewUserStore(),
		sessions: memory.NewSessionStore(),
		clock:    &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		alice: &models.User{
			Username: "Alice",
			Salt:     []byte{1, 2, 3, 4},
			Verifier: []byte{5, 6, 7, 8},
			Access:   models.AccessUser,
		},
	}
	require.NoError(t, f.users.CreateUser(context.Background(), f.alice))

	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.mgr = NewManager(f.users, f.sessions, opts...)
	return f
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("binds the user", func(t *testing.T) {
		f := newFixture(t)

		rec, err := f.mgr.Create(ctx, "aLiCe")
		require.NoError(t, err)
		require.Equal(t, f.alice.UserID, rec.Session.UserID)
		require.Equal(t, "Alice", rec.User.Username)
		require.Equal(t, f.clock.Now(), rec.Session.CreatedAt)
		require.False(t, rec.Session.HasEphemeral())

		stored, err := f.sessions.Get(ctx, rec.Session.SessionID)
		require.NoError(t, err)
		require.Equal(t, f.alice.UserID, stored.UserID)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Create(ctx, "bob")
		require.ErrorIs(t, err, store.ErrUserNotFound)
		require.Equal(t, 0, f.sessions.Len())
	})

	t.Run("retries do not disturb earlier sessions", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		second, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		require.NotEqual(t, first.Session.SessionID, second.Session.SessionID)

		_, err = f.mgr.Lookup(ctx, first.Session.SessionID, time.Minute)
		require.NoError(t, err)
	})

	t.Run("regenerates on collision", func(t *testing.T) {
		ids := []uint32{7, 7, 7, 9}
		var mu sync.Mutex
		f := newFixture(t, WithIDSource(func() (uint32, error) {
			mu.Lock()
			defer mu.Unlock()
			id := ids[0]
			ids = ids[1:]
			return id, nil
		}))

		first, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, uint32(7), first.Session.SessionID)

		second, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, uint32(9), second.Session.SessionID)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		f := newFixture(t, WithIDSource(func() (uint32, error) { return 1, nil }))

		_, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)

		_, err = f.mgr.Create(ctx, "alice")
		require.ErrorIs(t, err, ErrIDSpaceExhausted)
	})

	t.Run("id source failure", func(t *testing.T) {
		boom := errors.New("entropy")
		f := newFixture(t, WithIDSource(func() (uint32, error) { return 0, boom }))
		_, err := f.mgr.Create(ctx, "alice")
		require.ErrorIs(t, err, boom)
	})
}

func TestCommitEphemeral(t *testing.T) {
	ctx := context.Background()

	t.Run("single commit", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		id := rec.Session.SessionID

		committed, err := f.mgr.CommitEphemeral(ctx, id, []byte{0xA}, []byte{0xB})
		require.NoError(t, err)
		require.True(t, committed.HasEphemeral())

		_, err = f.mgr.CommitEphemeral(ctx, id, []byte{0xC}, []byte{0xD})
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		got, err := f.mgr.Lookup(ctx, id, time.Minute)
		require.NoError(t, err)
		require.Equal(t, []byte{0xA}, got.Session.Ephemeral)
		require.Equal(t, []byte{0xB}, got.Session.Secret)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.CommitEphemeral(ctx, 12345, []byte{1}, []byte{2})
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("rejects empty values", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)

		_, err = f.mgr.CommitEphemeral(ctx, rec.Session.SessionID, nil, []byte{2})
		require.Error(t, err)
		require.NotErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("concurrent commits with different values", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		id := rec.Session.SessionID

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]error, 2)
		)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				v := byte(i + 1)
				_, results[i] = f.mgr.CommitEphemeral(ctx, id, []byte{v}, []byte{v})
			}(i)
		}
		close(start)
		wg.Wait()

		var winner byte
		wins := 0
		for i, err := range results {
			if err == nil {
				wins++
				winner = byte(i + 1)
			} else {
				require.ErrorIs(t, err, store.ErrSessionNotFound)
			}
		}
		require.Equal(t, 1, wins)

		got, err := f.mgr.Lookup(ctx, id, time.Minute)
		require.NoError(t, err)
		require.Equal(t, []byte{winner}, got.Session.Ephemeral)
		require.Equal(t, []byte{winner}, got.Session.Secret)
	})
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry boundary", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)
		id := rec.Session.SessionID

		const timeout = 30 * time.Second

		f.clock.Advance(timeout)
		_, err = f.mgr.Lookup(ctx, id, timeout)
		require.NoError(t, err, "valid at exactly the timeout")

		f.clock.Advance(time.Second)
		_, err = f.mgr.Lookup(ctx, id, timeout)
		require.ErrorIs(t, err, store.ErrSessionExpired)
	})

	t.Run("unverified account", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.mgr.Create(ctx, "alice")
		require.NoError(t, err)

		require.NoError(t, f.users.SetAccess(ctx, f.alice.UserID, models.AccessUnverified))

		_, err = f.mgr.Lookup(ctx, rec.Session.SessionID, time.Minute)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("missing session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Lookup(ctx, 1, time.Minute)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("account removed", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.sessions.Insert(ctx, &models.Session{
			SessionID: 3,
			UserID:    uuid.New(),
			CreatedAt: f.clock.Now(),
		}))

		_, err := f.mgr.Lookup(ctx, 3, time.Minute)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestRunReaper(t *testing.T) {
	sessions := memory.NewSessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sessions.Insert(ctx, &models.Session{SessionID: 1, CreatedAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, sessions.Insert(ctx, &models.Session{SessionID: 2, CreatedAt: time.Now().Add(time.Hour)}))

	done := make(chan struct{})
	go func() {
		RunReaper(ctx, sessions, 5*time.Millisecond, time.Minute)
		close(done)
	}()

	require.Eventually(t, func() bool { return sessions.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, err := sessions.Get(context.Background(), 2)
	require.NoError(t, err)
}
