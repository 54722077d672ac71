package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAddrEnv points the Redis locker tests at a disposable server.
const redisAddrEnv = "SAFEZONE_TEST_REDIS_ADDR"

func newTestRedisLocker(t *testing.T, cfg RedisConfig) *RedisLocker {
	t.Helper()

	addr := os.Getenv(redisAddrEnv)
	if addr == "" {
		t.Skipf("%s not set", redisAddrEnv)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	cfg.Prefix = "safezone-test:" + t.Name() + ":"
	return NewRedisLocker(client, cfg, nil)
}

func TestRedisLockerExclusive(t *testing.T) {
	locker := newTestRedisLocker(t, RedisConfig{Lease: time.Second, Wait: 50 * time.Millisecond})
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "session-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, "session-1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second acquire error = %v, want %v", err, ErrLockTimeout)
	}

	release()
	again, err := locker.Acquire(ctx, "session-1")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestRedisLockerLeaseExpires(t *testing.T) {
	locker := newTestRedisLocker(t, RedisConfig{Lease: 50 * time.Millisecond, Wait: time.Second})
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, "abandoned"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release, err := locker.Acquire(ctx, "abandoned")
	if err != nil {
		t.Fatalf("acquire after lease expiry: %v", err)
	}
	release()
}

func TestRedisLockerRequiresKey(t *testing.T) {
	t.Parallel()

	locker := NewRedisLocker(nil, RedisConfig{}, nil)
	if _, err := locker.Acquire(context.Background(), ""); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("error = %v, want %v", err, ErrKeyRequired)
	}
}
