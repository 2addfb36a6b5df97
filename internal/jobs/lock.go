package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chama-backend/internal/logger"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "chama:job:"

// Locker keeps a job from running on more than one replica at a time.
type Locker interface {
	// TryLock returns acquired=false without error when another holder owns name.
	TryLock(ctx context.Context, name string) (release func(), acquired bool, err error)
}

type noopLocker struct{}

// NewNoopLocker is used when no Redis is configured; every lock is granted.
func NewNoopLocker() Locker {
	return noopLocker{}
}

func (noopLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	return func() {}, true, nil
}

type redisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker builds a redsync-backed Locker on top of client.
func NewRedisLocker(client goredislib.UniversalClient, expiry time.Duration) Locker {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &redisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

func (l *redisLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	mutex := l.rs.NewMutex(
		lockKeyPrefix+name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken") {
			logger.Debug("Job lock held elsewhere", "job", name)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire job lock %s: %w", name, err)
	}

	release := func() {
		if ok, err := mutex.UnlockContext(context.Background()); err != nil || !ok {
			logger.Warn("Failed to release job lock", "job", name, "error", err)
		}
	}
	return release, true, nil
}
