package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStore_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "marker", "1", 20*time.Minute))

	val, ok, err := s.Get(ctx, "marker")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", val)

	exists, err := s.Exists(ctx, "marker")
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(20*time.Minute + time.Second)

	exists, err = s.Exists(ctx, "marker")
	require.NoError(t, err)
	assert.False(t, exists, "marker should expire after its ttl")
}

func TestRedisStore_Del(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Del(ctx, "k"))

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisStore_DecrFloor(t *testing.T) {
	tcases := []struct {
		name    string
		initial string
		exp     int64
	}{
		{name: "missing counts as one", initial: "", exp: 0},
		{name: "decrements", initial: "5", exp: 4},
		{name: "never below zero", initial: "0", exp: 0},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := newTestStore(t)
			if tc.initial != "" {
				require.NoError(t, s.Set(ctx, "counter", tc.initial, 0))
			}

			n, err := s.DecrFloor(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, tc.exp, n)

			got, ok, err := GetInt(ctx, s, "counter")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int(tc.exp), got)
		})
	}
}

func TestRedisStore_IncrExisting(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	_, ok, err := s.IncrExisting(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("counter"), "missing key must not be created")

	require.NoError(t, s.Set(ctx, "counter", "0", 0))
	for i := 1; i <= 3; i++ {
		n, ok, err := s.IncrExisting(ctx, "counter")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(i), n)
	}
}

func TestGetInt_Unparsable(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, "counter", "abc", 0))

	n, ok, err := GetInt(ctx, s, "counter")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, n)
}
