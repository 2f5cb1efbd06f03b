package store

import (
	"context"
	"testing"
	"time"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st := NewRedisStore(mr.Addr(), ttl)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t, time.Hour)
	stores := map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  redisStore,
	}

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Get(ctx, "t1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.Begin(ctx, "t1", protocol.ActionPublish, "c1"))
			rec, err := st.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "t1", rec.TransactionID)
			assert.Equal(t, protocol.ActionPublish, rec.Action)
			assert.Equal(t, "c1", rec.Target)
			assert.Equal(t, StatusPending, rec.Status)
			assert.False(t, rec.UpdatedAt.IsZero())

			require.NoError(t, st.Settle(ctx, "t1", protocol.StatusFailed, protocol.MessageUnprocessableEntity))
			rec, err = st.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, string(protocol.StatusFailed), rec.Status)
			assert.Equal(t, protocol.MessageUnprocessableEntity, rec.Message)
			assert.Equal(t, protocol.ActionPublish, rec.Action)

			require.NoError(t, st.Settle(ctx, "t2", protocol.StatusSuccess, protocol.MessageOK))
			rec, err = st.Get(ctx, "t2")
			require.NoError(t, err)
			assert.Equal(t, string(protocol.StatusSuccess), rec.Status)
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	st := NewMemoryStore(time.Minute)
	now := time.Now()
	st.now = func() time.Time { return now }

	require.NoError(t, st.Begin(context.Background(), "t1", protocol.ActionBroadcast, ""))
	_, err := st.Get(context.Background(), "t1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = st.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	st, mr := newRedisStore(t, time.Minute)

	require.NoError(t, st.Begin(context.Background(), "t1", protocol.ActionSend, "b"))
	assert.Equal(t, time.Minute, mr.TTL("tx:t1"))

	mr.FastForward(2 * time.Minute)
	_, err := st.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}
