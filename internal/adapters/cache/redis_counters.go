package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const keyPrefix = "remlyo:"

// recordFailure bumps the failure count and, at the threshold, stamps the lock expiry.
// KEYS[1] counter hash; ARGV window ms, threshold, locked-until unix seconds.
var recordFailure = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], 'n', 1)
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
if n >= tonumber(ARGV[2]) then
	redis.call('HSET', KEYS[1], 'until', ARGV[3])
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// incrWindow is INCR with the expiry set on the first hit.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// decrLive takes one off a counter that still exists, so a refund never recreates a window
// without its expiry.
var decrLive = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n > 0 then
	return redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisLockoutStore backs login lockout and per-key rate limits.
type RedisLockoutStore struct {
	client *redis.Client
}

func NewRedisLockoutStore(client *redis.Client) *RedisLockoutStore {
	return &RedisLockoutStore{client: client}
}

func lockoutKey(key string) string { return keyPrefix + "lockout:" + key }

func (s *RedisLockoutStore) Get(ctx context.Context, key string) (ports.LockoutState, error) {
	vals, err := s.client.HMGet(ctx, lockoutKey(key), "n", "until").Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	var state ports.LockoutState
	if raw, ok := vals[0].(string); ok {
		state.FailedCount, _ = strconv.Atoi(raw)
	}
	if raw, ok := vals[1].(string); ok {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil && unix > 0 {
			until := time.Unix(unix, 0).UTC()
			state.LockedUntil = &until
		}
	}
	return state, nil
}

// RecordFailure counts a failure inside window. Reaching threshold locks the key until now+window.
func (s *RedisLockoutStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.LockoutState, error) {
	until := now.Add(window).UTC()
	n, err := recordFailure.Run(ctx, s.client, []string{lockoutKey(key)},
		window.Milliseconds(), threshold, until.Unix()).Int()
	if err != nil {
		return ports.LockoutState{}, err
	}
	state := ports.LockoutState{FailedCount: n}
	if n >= threshold {
		state.LockedUntil = &until
	}
	return state, nil
}

func (s *RedisLockoutStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockoutKey(key)).Err()
}

// RedisQuotaCounter is a fixed window that opens on the first increment.
type RedisQuotaCounter struct {
	client *redis.Client
}

func NewRedisQuotaCounter(client *redis.Client) *RedisQuotaCounter {
	return &RedisQuotaCounter{client: client}
}

func (c *RedisQuotaCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrWindow.Run(ctx, c.client, []string{keyPrefix + key}, window.Milliseconds()).Int64()
}

func (c *RedisQuotaCounter) Decrement(ctx context.Context, key string) error {
	return decrLive.Run(ctx, c.client, []string{keyPrefix + key}).Err()
}

// RedisSessionRevocationStore holds a marker per revoked session until its token could no
// longer be used anyway.
type RedisSessionRevocationStore struct {
	client *redis.Client
}

func NewRedisSessionRevocationStore(client *redis.Client) *RedisSessionRevocationStore {
	return &RedisSessionRevocationStore{client: client}
}

func revokedKey(sessionID uuid.UUID) string { return keyPrefix + "revoked:" + sessionID.String() }

func (s *RedisSessionRevocationStore) MarkRevoked(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// already expired; nothing can present it
		return nil
	}
	return s.client.Set(ctx, revokedKey(sessionID), expiresAt.Unix(), ttl).Err()
}

func (s *RedisSessionRevocationStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(sessionID)).Result()
	return n > 0, err
}
