package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
// Keep it config-driven; defaults should be safe and conservative.
type RedisConfig struct {
	Addr string

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool tuning
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

var callSlotAcquireScript = redis.NewScript(`
-- KEYS[1] = slot key
-- ARGV[1] = owning call id
-- ARGV[2] = ttl_ms (int)
--
-- Returns:
--  1 if acquired (re-acquiring with the same call id refreshes the TTL)
--  0 if another call holds the slot
local owner = redis.call('GET', KEYS[1])
if owner == false then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
if owner == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var callSlotReleaseScript = redis.NewScript(`
-- KEYS[1] = slot key
-- ARGV[1] = owning call id
--
-- Only the owning call may free the slot. Teardown is convergent, so the
-- same call releases more than once; a late release must not free a slot a
-- newer call already holds.
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// AcquireCallSlot attempts to acquire the active-call slot for a given key
// (one concurrent session per user) on behalf of callID.
//
// Safety properties:
// - Atomic acquire using Lua; the slot value records the owning call.
// - TTL prevents leaked slots on process crash; a stuck session expires on its own.
// - Acquire is idempotent per call id, so a retried start does not fail.
func AcquireCallSlot(ctx context.Context, rdb *redis.Client, key, callID string, ttl time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return false, fmt.Errorf("key is required")
	}
	if callID == "" {
		return false, fmt.Errorf("call id is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be > 0")
	}

	res, err := callSlotAcquireScript.Run(ctx, rdb, []string{key}, callID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ReleaseCallSlot frees the slot if callID still owns it; releasing a slot
// another call holds is a no-op.
func ReleaseCallSlot(ctx context.Context, rdb *redis.Client, key, callID string) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if callID == "" {
		return fmt.Errorf("call id is required")
	}
	_, err := callSlotReleaseScript.Run(ctx, rdb, []string{key}, callID).Result()
	return err
}

// TouchPresence marks a user as online for the given window.
func TouchPresence(ctx context.Context, rdb *redis.Client, userID string, window time.Duration) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if window <= 0 {
		window = 2 * time.Minute
	}
	return rdb.Set(ctx, presenceKey(userID), "1", window).Err()
}

// IsOnline reports whether the user's presence key is still alive.
func IsOnline(ctx context.Context, rdb *redis.Client, userID string) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func presenceKey(userID string) string {
	return "presence:" + userID
}
