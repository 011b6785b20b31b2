package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy indicates another worker holds the lock.
var ErrLockBusy = errors.New("shared: resource is locked")

// Locker serializes critical sections on a single aggregate across processes.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker wraps a redis client. ttl bounds how long a crashed holder can
// block other workers.
func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: redislock.New(rdb), ttl: ttl}
}

// WithLock runs fn while holding the named lock, retrying briefly before
// giving up with ErrLockBusy.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockBusy
	}
	if err != nil {
		return fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}

// ProductLockKey guards stock read-then-write sequences for one product.
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("stock:product:%d:lock", productID)
}

// PayerLockKey guards payment recording for one payer. The type is part of
// the key so two payer kinds sharing a numeric id never share a lock.
func PayerLockKey(payerType string, payerID int64) string {
	return fmt.Sprintf("ledger:payer:%s:%d:lock", payerType, payerID)
}
