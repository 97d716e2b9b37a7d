// Package lock serializes reservations per service across goroutines and
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// ErrLockNotAcquired is returned when the lock stayed taken for the whole wait.
var ErrLockNotAcquired = sharedDomain.NewConflictError("LOCK_NOT_ACQUIRED", "another booking for this service is in progress")

// RedisConfig tunes the Redis locker.
type RedisConfig struct {
	// TTL bounds how long a crashed holder can keep the lock.
	TTL time.Duration
	// Wait is how long Lock keeps retrying before giving up.
	Wait time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
	Prefix        string
}

// DefaultRedisConfig returns the production settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		TTL:           15 * time.Second,
		Wait:          5 * time.Second,
		RetryInterval: 25 * time.Millisecond,
		Prefix:        "therapia:lock:",
	}
}

// RedisLocker is a single-instance Redis lock: SET NX PX to acquire and a
// compare-and-delete script to release.
type RedisLocker struct {
	client redis.UniversalClient
	config RedisConfig
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient, config RedisConfig) *RedisLocker {
	def := DefaultRedisConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = def.RetryInterval
	}
	if config.Prefix == "" {
		config.Prefix = def.Prefix
	}
	return &RedisLocker{client: client, config: config}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// WithLock runs fn while holding the lock for key.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := l.config.Prefix + key
	token := uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer func() {
		// Release even when ctx is done so the key does not linger until TTL.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, redisKey, token)
	}()

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	var deadline time.Time
	if l.config.Wait > 0 {
		deadline = time.Now().Add(l.config.Wait)
	}
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.config.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if deadline.IsZero() || time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(l.config.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
