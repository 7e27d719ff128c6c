package kv

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a shared key/value store with per-key expiry. A ttl of zero
// stores the key without expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	// DecrFloor decrements an integer key without going below zero. A
	// missing key is treated as 1.
	DecrFloor(ctx context.Context, key string) (int64, error)
	// IncrExisting increments an integer key only when it exists. ok is
	// false and nothing is written when the key is missing.
	IncrExisting(ctx context.Context, key string) (n int64, ok bool, err error)
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n == 1, err
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

var decrFloorScript = redis.NewScript(`
	local cur = tonumber(redis.call('GET', KEYS[1]) or '1')
	local n = cur - 1
	if n < 0 then
		n = 0
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl > 0 then
		redis.call('SET', KEYS[1], n, 'PX', ttl)
	else
		redis.call('SET', KEYS[1], n)
	end
	return n
`)

func (s *RedisStore) DecrFloor(ctx context.Context, key string) (int64, error) {
	return decrFloorScript.Run(ctx, s.rdb, []string{key}).Int64()
}

var incrExistingScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return false
	end
	return redis.call('INCR', KEYS[1])
`)

func (s *RedisStore) IncrExisting(ctx context.Context, key string) (int64, bool, error) {
	n, err := incrExistingScript.Run(ctx, s.rdb, []string{key}).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// GetInt reads an integer key. Missing keys and unparsable values read as
// zero with ok set to false.
func GetInt(ctx context.Context, s Store, key string) (n int, ok bool, err error) {
	val, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return 0, false, err
	}
	n, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}
