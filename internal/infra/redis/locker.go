package redis

import (
	"context"
	"time"

	"quiz-reward-service/internal/logger"
	"quiz-reward-service/internal/util"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a domain.Locker backed by SET NX with an expiry, so a crashed
// holder cannot block reconciliation for longer than ttl.
type Locker struct {
	client lockClient
	ttl    time.Duration
}

// lockClient is what Locker needs from a Redis client.
type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

func NewLocker(client lockClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

func (l *Locker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := util.NewULID()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The caller's ctx may be done by now.
		if err := releaseScript.Run(context.Background(), l.client, []string{l.key(key)}, token).Err(); err != nil {
			logger.Get().Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

func (l *Locker) key(key string) string {
	return "lock:" + key
}
