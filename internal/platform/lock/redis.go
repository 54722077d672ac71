package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/safezone/internal/platform/id"
	"github.com/louisbranch/safezone/internal/platform/timeouts"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisRetryStart = 10 * time.Millisecond
	redisRetryMax   = 200 * time.Millisecond
)

// ErrLockTimeout indicates the wait budget ran out before the key was free.
var ErrLockTimeout = errors.New("lock wait timed out")

// releaseScript deletes the key only while it still carries our token, so an
// expired lease taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	// Prefix is prepended to every key.
	Prefix string
	// Lease bounds how long a hold survives a crashed holder.
	Lease time.Duration
	// Wait bounds how long Acquire retries before giving up.
	Wait time.Duration
}

// RedisLocker is a Locker backed by SET NX PX leases.
type RedisLocker struct {
	client RedisClient
	cfg    RedisConfig
	logger *zap.Logger
	newID  func() (string, error)
}

// RedisClient is the subset of the go-redis client the locker uses.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// NewRedisLocker returns a Locker using client for leases.
func NewRedisLocker(client RedisClient, cfg RedisConfig, logger *zap.Logger) *RedisLocker {
	if cfg.Lease <= 0 {
		cfg.Lease = timeouts.LockLease
	}
	if cfg.Wait <= 0 {
		cfg.Wait = timeouts.LockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger, newID: id.NewID}
}

// Acquire retries SET NX with backoff until it wins, ctx ends or the wait
// budget is spent.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrKeyRequired
	}
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("redis client is not configured")
	}
	token, err := l.newID()
	if err != nil {
		return nil, err
	}
	fullKey := l.cfg.Prefix + key

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.Wait)
	defer cancel()
	backoff := redisRetryStart
	for {
		won, err := l.client.SetNX(waitCtx, fullKey, token, l.cfg.Lease).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", fullKey, err)
		}
		if won {
			return l.releaser(fullKey, token), nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fullKey)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, redisRetryMax)
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Wait)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("release redis lock", zap.String("key", key), zap.Error(err))
		}
	}
}
