package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLease is a SET NX PX lease. The holder renews it on every Acquire;
// other replicas get false until it expires.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
}

// NewRedisLease creates a lease on key owned by a fresh random id.
func NewRedisLease(client *redis.Client, key string) *RedisLease {
	return &RedisLease{client: client, key: key, owner: uuid.NewString()}
}

// renewScript extends the lease only when the caller still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	return renewed == 1, nil
}
