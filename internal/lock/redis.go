package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// releaseScript deletes the key only when it still holds our token, in one
// atomic step on the server.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisBackend implements Backend on a shared Redis instance, giving real
// cross-process mutual exclusion.
type RedisBackend struct {
	client redis.UniversalClient
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
}

func (b *RedisBackend) Release(ctx context.Context, key, token string) (bool, error) {
	result, err := releaseScript.Run(ctx, b.client, []string{keyPrefix + key}, token).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
