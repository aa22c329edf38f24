package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Lease is a best-effort mutual exclusion across replicas built on SET NX.
type Lease struct {
	RDB    *redis.Client
	Key    string
	Holder string
}

// Acquire takes the lease for ttl. It returns false when another holder
// owns it.
func (l *Lease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.RDB.SetNX(ctx, l.Key, l.Holder, ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release drops the lease only if this holder still owns it.
func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.RDB, []string{l.Key}, l.Holder).Err()
}
