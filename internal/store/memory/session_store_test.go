package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/store"
)

func TestMemorySessionStore_Insert(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()

	session := &models.Session{SessionID: 7, UserID: uuid.New(), CreatedAt: time.Now()}
	require.NoError(t, st.Insert(ctx, session))
	require.ErrorIs(t, st.Insert(ctx, session), store.ErrSessionExists)
	require.Equal(t, 1, st.Len())

	got, err := st.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, session.UserID, got.UserID)
	require.False(t, got.HasEphemeral())

	_, err = st.Get(ctx, 8)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestMemorySessionStore_SetEphemeral(t *testing.T) {
	t.Run("commits once", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		require.NoError(t, st.Insert(ctx, &models.Session{SessionID: 1, CreatedAt: time.Now()}))

		got, err := st.SetEphemeral(ctx, 1, []byte{0xA}, []byte{0xB})
		require.NoError(t, err)
		require.Equal(t, []byte{0xA}, got.Ephemeral)
		require.Equal(t, []byte{0xB}, got.Secret)

		_, err = st.SetEphemeral(ctx, 1, []byte{0xC}, []byte{0xD})
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		stored, err := st.Get(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, []byte{0xA}, stored.Ephemeral)
	})

	t.Run("missing session", func(t *testing.T) {
		st := NewSessionStore()
		_, err := st.SetEphemeral(context.Background(), 99, []byte{1}, []byte{2})
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("concurrent commits have one winner", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		require.NoError(t, st.Insert(ctx, &models.Session{SessionID: 5, CreatedAt: time.Now()}))

		const n = 32
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []byte
		)
		for i := range n {
			wg.Add(1)
			go func(v byte) {
				defer wg.Done()
				if _, err := st.SetEphemeral(ctx, 5, []byte{v}, []byte{v}); err == nil {
					mu.Lock()
					winners = append(winners, v)
					mu.Unlock()
				}
			}(byte(i))
		}
		wg.Wait()

		require.Len(t, winners, 1)
		stored, err := st.Get(ctx, 5)
		require.NoError(t, err)
		require.Equal(t, []byte{winners[0]}, stored.Ephemeral)
		require.Equal(t, []byte{winners[0]}, stored.Secret)
	})
}

func TestMemorySessionStore_DeleteCreatedBefore(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Insert(ctx, &models.Session{SessionID: 1, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, st.Insert(ctx, &models.Session{SessionID: 2, CreatedAt: now}))

	count, err := st.DeleteCreatedBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = st.Get(ctx, 1)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = st.Get(ctx, 2)
	require.NoError(t, err)
}
