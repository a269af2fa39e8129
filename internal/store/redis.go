package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Values live in a hash with two fields: v (version) and d (data).
const (
	fieldVersion = "v"
	fieldData    = "d"
)

var casScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'v') or '0')
if cur ~= tonumber(ARGV[1]) then
  return -1
end
local nxt = cur + 1
redis.call('HSET', KEYS[1], 'v', nxt, 'd', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return nxt
`)

var setScript = redis.NewScript(`
local nxt = tonumber(redis.call('HGET', KEYS[1], 'v') or '0') + 1
redis.call('HSET', KEYS[1], 'v', nxt, 'd', ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return nxt
`)

var setNXScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'v', 1, 'd', ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// NewRedisClient builds a client and checks the connection once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Item, error) {
	vals, err := r.client.HMGet(ctx, key, fieldVersion, fieldData).Result()
	if err != nil {
		return Item{}, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Item{}, ErrNotFound
	}
	vs, _ := vals[0].(string)
	version, err := strconv.ParseUint(vs, 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("redis: bad version %q at %s: %w", vs, key, err)
	}
	data, _ := vals[1].(string)
	return Item{Value: []byte(data), Version: version}, nil
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (uint64, error) {
	n, err := casScript.Run(ctx, r.client, []string{key}, expected, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrVersionConflict
	}
	return uint64(n), nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return setScript.Run(ctx, r.client, []string{key}, value, ttl.Milliseconds()).Err()
}

func (r *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	n, err := setNXScript.Run(ctx, r.client, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
