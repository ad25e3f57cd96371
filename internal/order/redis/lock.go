package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const lockKeyPrefix = "finalize_lock:"

// Redis holds short-TTL advisory locks around order finalization. The lock
// only dedupes concurrent work; the conditional update in the order store is
// what guarantees exactly-once side effects. The TTL bounds how long a
// crashed holder can block other instances.
type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *log.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration) *Redis {
	return &Redis{
		Client:  client,
		LockTTL: lockTTL,
		Logger:  log.Default(),
	}
}

// LockFinalize takes the advisory lock for one order id.
func (r *Redis) LockFinalize(orderID string) (bool, error) {
	key := lockKeyPrefix + orderID
	ok, err := r.Client.SetNX(context.Background(), key, orderID, r.LockTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		r.Logger.Println(fmt.Sprintf("REDIS: finalize lock for order %s already held", orderID))
	}
	return ok, nil
}

// UnlockFinalize releases the lock if this order still holds it. An expired
// or re-taken lock is left alone.
func (r *Redis) UnlockFinalize(orderID string) error {
	ctx := context.Background()
	key := lockKeyPrefix + orderID
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == orderID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
