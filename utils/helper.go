package utils

import (
	"context"
	"time"

	"github.com/bsm/redislock"

	"bitbucket.org/mmdatafocus/shop_backend/config"
)

// ObtainRedisLock takes a best-effort distributed lock and returns its release
// func. When redis (or the lock) is unavailable it returns a no-op release:
// correctness must come from the database lock underneath, the redis lock only
// reduces cross-instance contention.
func ObtainRedisLock(ctx context.Context, key string, ttl time.Duration) (release func(), obtained bool) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, false
	}
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err != nil {
		return func() {}, false
	}
	return func() { _ = lock.Release(ctx) }, true
}

func Ptr[T any](v T) *T {
	return &v
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}
