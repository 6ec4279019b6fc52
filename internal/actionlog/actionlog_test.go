package actionlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store/memory"
)

func newAction(t *testing.T, ip string) *models.Action {
	t.Helper()
	a, err := models.NewAuthAction(uuid.Must(uuid.NewV7()), ip, time.Now().UTC().Truncate(time.Nanosecond))
	require.NoError(t, err)
	return a
}

// flakySink fails the first n appends.
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []*models.Action
}

func (s *flakySink) Append(ctx context.Context, action *models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("unavailable")
	}
	s.got = append(s.got, action)
	return nil
}

// blockingSink blocks until released.
type blockingSink struct {
	release chan struct{}
	count   atomic.Int32
}

func (s *blockingSink) Append(ctx context.Context, action *models.Action) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.count.Add(1)
	return nil
}

func fastConfig() Config {
	return Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		WriteTimeout:    time.Second,
	}
}

func TestRecorder(t *testing.T) {
	t.Run("writes to every sink", func(t *testing.T) {
		actions := memory.NewActionStore()
		extra := &flakySink{}
		r := NewRecorder(fastConfig(), actions, extra)

		a := newAction(t, "10.1.1.1")
		require.True(t, r.Record(a))
		require.NoError(t, r.Close(context.Background()))

		got, err := actions.ListByUser(context.Background(), a.UserID, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, a.ActionID, got[0].ActionID)
		require.Len(t, extra.got, 1)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		sink := &flakySink{failures: 2}
		r := NewRecorder(fastConfig(), sink)

		require.True(t, r.Record(newAction(t, "")))
		require.NoError(t, r.Close(context.Background()))

		require.Equal(t, 3, sink.calls)
		require.Len(t, sink.got, 1)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		cfg := fastConfig()
		cfg.MaxTries = 3
		sink := &flakySink{failures: 100}
		r := NewRecorder(cfg, sink)

		require.True(t, r.Record(newAction(t, "")))
		require.NoError(t, r.Close(context.Background()))

		require.Equal(t, 3, sink.calls)
		require.Empty(t, sink.got)
	})

	t.Run("never blocks when full", func(t *testing.T) {
		cfg := fastConfig()
		cfg.Buffer = 1
		sink := &blockingSink{release: make(chan struct{})}
		r := NewRecorder(cfg, sink)

		accepted := 0
		for range 10 {
			if r.Record(newAction(t, "")) {
				accepted++
			}
		}
		// one in flight plus one buffered at most
		require.GreaterOrEqual(t, accepted, 1)
		require.LessOrEqual(t, accepted, 2)

		close(sink.release)
		require.NoError(t, r.Close(context.Background()))
		require.Equal(t, int32(accepted), sink.count.Load())
	})

	t.Run("record after close is dropped", func(t *testing.T) {
		r := NewRecorder(fastConfig())
		require.NoError(t, r.Close(context.Background()))
		require.False(t, r.Record(newAction(t, "")))
		require.NoError(t, r.Close(context.Background()))
	})

	t.Run("close honours context", func(t *testing.T) {
		sink := &blockingSink{release: make(chan struct{})}
		r := NewRecorder(fastConfig(), sink)
		require.True(t, r.Record(newAction(t, "")))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	})
}

func TestJournal(t *testing.T) {
	ctx := context.Background()

	t.Run("append and read back", func(t *testing.T) {
		dir := t.TempDir()
		j, err := OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)

		want := []*models.Action{newAction(t, "192.0.2.1"), newAction(t, ""), newAction(t, "2001:db8::1")}
		for _, a := range want {
			require.NoError(t, j.Append(ctx, a))
		}
		require.NoError(t, j.Close())

		f, err := os.Open(j.Path())
		require.NoError(t, err)
		defer f.Close()

		got, err := ReadJournal(f)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			require.Equal(t, want[i].ActionID, got[i].ActionID)
			require.Equal(t, want[i].UserID, got[i].UserID)
			require.Equal(t, want[i].WhomID, got[i].WhomID)
			require.Equal(t, want[i].Event, got[i].Event)
			require.Equal(t, want[i].SourceIP, got[i].SourceIP)
			require.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		}
	})

	t.Run("reopen continues sequence", func(t *testing.T) {
		dir := t.TempDir()
		j, err := OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, j.Append(ctx, newAction(t, "")))
		require.NoError(t, j.Append(ctx, newAction(t, "")))
		require.NoError(t, j.Close())

		j, err = OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)
		require.Equal(t, uint64(3), j.nextSequence)
		require.NoError(t, j.Append(ctx, newAction(t, "")))
		require.NoError(t, j.Close())

		f, err := os.Open(j.Path())
		require.NoError(t, err)
		defer f.Close()
		got, err := ReadJournal(f)
		require.NoError(t, err)
		require.Len(t, got, 3)
	})

	t.Run("torn tail is truncated on open", func(t *testing.T) {
		dir := t.TempDir()
		j, err := OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, j.Append(ctx, newAction(t, "")))
		require.NoError(t, j.Close())

		info, err := os.Stat(j.Path())
		require.NoError(t, err)
		good := info.Size()

		f, err := os.OpenFile(j.Path(), os.O_WRONLY|os.O_APPEND, 0)
		require.NoError(t, err)
		_, err = f.Write([]byte{0x40, 0x00, 0x00, 0x00, 0x01, 0x02})
		require.NoError(t, err)
		require.NoError(t, f.Close())

		j, err = OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, j.Close())

		info, err = os.Stat(j.Path())
		require.NoError(t, err)
		require.Equal(t, good, info.Size())
	})

	t.Run("checksum mismatch is detected", func(t *testing.T) {
		dir := t.TempDir()
		j, err := OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, j.Append(ctx, newAction(t, "10.0.0.1")))
		require.NoError(t, j.Close())

		data, err := os.ReadFile(j.Path())
		require.NoError(t, err)
		data[headerSize+30] ^= 0xFF
		require.NoError(t, os.WriteFile(j.Path(), data, 0o600))

		f, err := os.Open(j.Path())
		require.NoError(t, err)
		defer f.Close()
		_, err = ReadJournal(f)
		require.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("bad header", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, activeJournalName), []byte("NOTAJOURNALFILE!"), 0o600))
		_, err := OpenJournal(JournalConfig{Dir: dir})
		require.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("rotates into zstd archives", func(t *testing.T) {
		dir := t.TempDir()
		j, err := OpenJournal(JournalConfig{Dir: dir, MaxBytes: 200})
		require.NoError(t, err)

		var want []*models.Action
		for range 5 {
			a := newAction(t, "198.51.100.7")
			want = append(want, a)
			require.NoError(t, j.Append(ctx, a))
		}
		require.NoError(t, j.Rotate())
		require.NoError(t, j.Close())

		archives, err := ListArchives(filepath.Join(dir, "archive"))
		require.NoError(t, err)
		require.NotEmpty(t, archives)

		var got []*models.Action
		for _, path := range archives {
			actions, err := ReadArchive(path)
			require.NoError(t, err)
			got = append(got, actions...)
		}
		require.Len(t, got, len(want))
		for i := range want {
			require.Equal(t, want[i].ActionID, got[i].ActionID)
		}

		deleted, err := CleanupArchives(filepath.Join(dir, "archive"), time.Nanosecond)
		require.NoError(t, err)
		require.Equal(t, len(archives), deleted)
	})

	t.Run("append reopens after failed rotation", func(t *testing.T) {
		dir := t.TempDir()
		j, err := OpenJournal(JournalConfig{Dir: dir})
		require.NoError(t, err)
		defer j.Close()

		first := newAction(t, "198.51.100.7")
		require.NoError(t, j.Append(ctx, first))

		// a directory in place of the active file fails both archive and reopen
		require.NoError(t, os.Remove(j.Path()))
		require.NoError(t, os.Mkdir(j.Path(), 0o750))
		require.Error(t, j.Rotate())

		require.NoError(t, os.Remove(j.Path()))
		second := newAction(t, "198.51.100.8")
		require.NoError(t, j.Append(ctx, second))
		require.Equal(t, uint64(3), j.nextSequence)

		f, err := os.Open(j.Path())
		require.NoError(t, err)
		defer f.Close()
		got, err := ReadJournal(f)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, second.ActionID, got[0].ActionID)
	})

	t.Run("closed journal rejects appends", func(t *testing.T) {
		j, err := OpenJournal(JournalConfig{Dir: t.TempDir()})
		require.NoError(t, err)
		require.NoError(t, j.Close())
		require.Error(t, j.Append(ctx, newAction(t, "")))
	})

	t.Run("directory required", func(t *testing.T) {
		_, err := OpenJournal(JournalConfig{})
		require.Error(t, err)
	})
}

func TestEncodeActionRoundTrip(t *testing.T) {
	a := newAction(t, "203.0.113.9")
	got, err := decodeAction(encodeAction(a))
	require.NoError(t, err)
	require.Equal(t, a.ActionID, got.ActionID)
	require.Equal(t, a.SourceIP, got.SourceIP)
	require.True(t, a.CreatedAt.Equal(got.CreatedAt))

	payload := encodeAction(a)
	for i := range len(payload) {
		_, err := decodeAction(payload[:i])
		require.ErrorIs(t, err, ErrCorrupt, "prefix %d", i)
	}
}
