package recurring

import (
	"context"
	"time"

	"estate-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisLocker backs WalletLocker with the shared Redis per-wallet mutex.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, walletID, owner string) (bool, error) {
	return utils.AcquireWalletLock(ctx, l.rdb, walletID, owner, l.ttl)
}

func (l *RedisLocker) Release(ctx context.Context, walletID, owner string) error {
	return utils.ReleaseWalletLock(ctx, l.rdb, walletID, owner)
}
