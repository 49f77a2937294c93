package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"axiapac.com/attendance/infrastructure/logging"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const module = "locking"

// Connect opens a redis client and verifies it with a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          0,
		PoolSize:    20,
		DialTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisLocker hands out short leases so that overlapping sweeps do not work
// the same company at the same time.
type RedisLocker struct {
	client *redislock.Client
	Logger *logrus.Logger
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), Logger: logging.GetLogger()}
}

// TryLock makes a single attempt. ok is false when someone else holds the key.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	unlock := func() {
		// the caller's context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logging.LogError(l.Logger, module, "TryLock", "release lock", key, err)
		}
	}
	return unlock, true, nil
}
