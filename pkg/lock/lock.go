// Package lock provides a Redis-backed mutual exclusion primitive with TTL and
// owner-checked release.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "lock:"

	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 100 * time.Millisecond
)

// ErrNotAcquired is returned by WithLock when another holder owns the key.
var ErrNotAcquired = errors.New("could not acquire lock")

// releaseScript deletes the key only if it still holds the caller's value.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Options controls acquisition. Retries are opt-in; the zero value fails fast.
type Options struct {
	TTL           time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Result reports whether the lock was taken and the ownership token to release it with.
type Result struct {
	Acquired bool
	Value    string
}

type Locker struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewLocker(client redis.UniversalClient, logger *slog.Logger) *Locker {
	return &Locker{
		client: client,
		logger: logger.With("module", "lock"),
	}
}

// Acquire tries to take key. Contention is reported through Result.Acquired;
// the error is reserved for store failures.
func (l *Locker) Acquire(ctx context.Context, key string, opts Options) (Result, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	value := uuid.NewString()
	acquired := false

	operation := func() error {
		ok, err := l.client.SetNX(ctx, keyPrefix+key, value, opts.TTL).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to set lock %s: %w", key, err))
		}

		if !ok {
			return ErrNotAcquired
		}

		acquired = true

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.RetryDelay), uint64(max(opts.RetryAttempts, 0))),
		ctx,
	)

	err := backoff.Retry(operation, policy)
	if err != nil && !errors.Is(err, ErrNotAcquired) {
		return Result{}, err
	}

	if !acquired {
		l.logger.DebugContext(ctx, "Lock is held by another owner", "key", key)

		return Result{Acquired: false}, nil
	}

	return Result{Acquired: true, Value: value}, nil
}

// Release deletes key if value still owns it. It reports whether a delete happened.
func (l *Locker) Release(ctx context.Context, key string, value string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}

	return deleted == 1, nil
}

// WithLock runs fn while holding key and always releases afterwards.
func (l *Locker) WithLock(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	result, err := l.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}

	if !result.Acquired {
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}

	defer func() {
		released, releaseErr := l.Release(context.WithoutCancel(ctx), key, result.Value)
		if releaseErr != nil {
			l.logger.ErrorContext(ctx, "Failed to release lock", "key", key, "error", releaseErr)
		} else if !released {
			l.logger.WarnContext(ctx, "Lock expired before release", "key", key)
		}
	}()

	return fn(ctx)
}
