package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"hotel-price-tracker/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, mr *miniredis.Miniredis) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := newRedisStore(context.Background(), client, RedisOptions{}, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestRedisStore(t, mr)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string][]byte{"hotels": []byte(`[]`), "checkin": []byte(`"2026-11-01"`)}))

	raw, err := mr.Get("tracker:hotels")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	got, err := s.Get(ctx, "hotels", "checkin", "checkout")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got["hotels"])
	assert.Equal(t, []byte(`"2026-11-01"`), got["checkin"])
	assert.NotContains(t, got, "checkout")

	require.NoError(t, s.Delete(ctx, "hotels"))
	got, err = s.Get(ctx, "hotels")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_OnChangeAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	writer := newTestRedisStore(t, mr)
	reader := newTestRedisStore(t, mr)

	var (
		mu       sync.Mutex
		received []string
	)
	reader.OnChange(func(keys []string) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, keys...)
	})

	var local []string
	writer.OnChange(func(keys []string) { local = append(local, keys...) })

	require.NoError(t, writer.Set(context.Background(), map[string][]byte{"autoRefresh": []byte("15")}))

	assert.Equal(t, []string{"autoRefresh"}, local)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == "autoRefresh"
	}, 2*time.Second, 10*time.Millisecond)
}
