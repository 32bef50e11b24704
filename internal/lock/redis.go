package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-key lock in Redis with a TTL.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker returns a locker on key. The TTL bounds how long a
// crashed holder can block other runs.
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// TryAcquire implements Locker.
func (l *RedisLocker) TryAcquire(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLease{locker: l, token: token}, nil
}

type redisLease struct {
	locker *RedisLocker
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.locker.client, []string{l.locker.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release redis lock %s: %w", l.locker.key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("redis lock %s expired before release", l.locker.key)
	}
	return nil
}
