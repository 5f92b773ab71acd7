package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrBusy     = errors.New("lock is held by another caller")
	ErrEmptyKey = errors.New("lock key is empty")
)

const keyPrefix = "anchor:lock:"

// Options tune mutex acquisition.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions waits up to roughly two seconds for a contended key.
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      20,
		RetryDelay: 100 * time.Millisecond,
	}
}

// RedisLocker serializes work per key across processes with redsync.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts Options
}

func NewRedisLocker(client redis.UniversalClient, opts Options) *RedisLocker {
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// WithLock runs fn while holding the mutex for key. The error returned by fn is passed through unchanged.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	mutex := l.rs.NewMutex(
		keyPrefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		msg := err.Error()
		if errors.Is(err, redsync.ErrFailed) || strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock") {
			return fmt.Errorf("%w: %s", ErrBusy, key)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			zap.L().Warn("failed to release lock", zap.String("lock_key", key), zap.Bool("unlock_ok", ok), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// LocalLocker runs fn without cross-process locking.
type LocalLocker struct{}

func (LocalLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return fn(ctx)
}
