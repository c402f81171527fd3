package locker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"custodia/pkg/platform/sentinel"
)

// acquireRetryInterval paces polling when a lease is already held.
const acquireRetryInterval = 25 * time.Millisecond

// releaseScript deletes the lease only if the caller still owns it, so a lock
// that expired and was re-acquired elsewhere is never released by the old
// holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based distributed lock. The TTL bounds how long a crashed
// holder can block others; operations under the lock must finish well within
// it.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := "custodia:lock:" + key

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return nil, sentinel.ErrUnavailable
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, r.client, []string{lockKey}, token).Err()
			}
			return release, nil
		}

		select {
		case <-time.After(acquireRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
