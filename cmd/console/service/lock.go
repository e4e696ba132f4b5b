package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsconsole/console/common/logger"
	rediscommon "github.com/opsconsole/console/common/redis"
)

const (
	lockKeyPrefix  = "lock:process:"
	lockRetryDelay = 50 * time.Millisecond
	lockMaxWait    = 2 * time.Second
)

// lockClient is the subset of the redis client RedisLocker uses
type lockClient interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key, token string) error
}

// RedisLocker takes a SET NX lock per process with a TTL so a crashed
// holder cannot wedge the process
type RedisLocker struct {
	client lockClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisLocker creates a locker whose locks expire after ttl
func NewRedisLocker(client lockClient, ttl time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, log: log}
}

// Lock waits up to two seconds for the process lock
func (l *RedisLocker) Lock(ctx context.Context, processID string) (func(), error) {
	key := lockKeyPrefix + processID
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, lockMaxWait)
	defer cancel()

	for {
		err := l.client.AcquireLock(waitCtx, key, token, l.ttl)
		if err == nil {
			break
		}
		if !errors.Is(err, rediscommon.ErrLockHeld) {
			if ctx.Err() == nil && waitCtx.Err() != nil {
				return nil, fmt.Errorf("lock process %s: %w", processID, ErrProcessBusy)
			}
			return nil, fmt.Errorf("failed to lock process %s: %w", processID, err)
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("lock process %s: %w", processID, ErrProcessBusy)
		case <-time.After(lockRetryDelay):
		}
	}

	return func() {
		// detached from ctx so cancelled requests still release
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.client.ReleaseLock(releaseCtx, key, token); err != nil {
			l.log.Warn("failed to release process lock", "process_id", processID, "error", err)
		}
	}, nil
}
