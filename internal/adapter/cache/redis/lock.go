package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/strogmv/mailrelay/internal/port"
)

// DeliveryLock is a short lease that keeps two workers from attempting the
// same message at once.
type DeliveryLock struct {
	locker *redislock.Client
}

func NewDeliveryLock(client redis.UniversalClient) *DeliveryLock {
	return &DeliveryLock{locker: redislock.New(client)}
}

func (l *DeliveryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	lock, err := l.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	release := func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("release delivery lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}

var _ port.DeliveryLock = (*DeliveryLock)(nil)
