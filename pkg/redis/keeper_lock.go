package redis

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/reconcile"
)

// DefaultKeeperLockTTL bounds how long a crashed instance can hold a key
const DefaultKeeperLockTTL = 2 * time.Minute

type releaser interface {
	Release(ctx context.Context) error
}

type acquirer interface {
	acquire(ctx context.Context, key string, ttl time.Duration) (releaser, error)
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration) (releaser, error) {
	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// KeeperLocker serializes applies, undos and suggestion requests across instances
type KeeperLocker struct {
	locks  acquirer
	ttl    time.Duration
	logger ectologger.Logger
}

func NewKeeperLocker(locker *Locker, ttl time.Duration, logger ectologger.Logger) *KeeperLocker {
	return newKeeperLocker(locker, ttl, logger)
}

func newKeeperLocker(locks acquirer, ttl time.Duration, logger ectologger.Logger) *KeeperLocker {
	if ttl <= 0 {
		ttl = DefaultKeeperLockTTL
	}
	return &KeeperLocker{
		locks:  locks,
		ttl:    ttl,
		logger: logger,
	}
}

// TryLock never waits. A held key is reported as reconcile.ErrKeeperLocked.
func (k *KeeperLocker) TryLock(ctx context.Context, key string) (func(), error) {
	lock, err := k.locks.acquire(ctx, key, k.ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, reconcile.ErrKeeperLocked
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// the caller's context may already be cancelled by the time the merge finishes
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			k.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"lock_key": key,
			}).Warn("Keeper lock was not held at release")
		}
	}, nil
}
