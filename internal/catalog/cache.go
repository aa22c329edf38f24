package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cached is a read-through Redis cache in front of another Source. Redis
// failures fall back to the source; the database stays the truth.
type Cached struct {
	Next  Source
	Redis *redis.Client
	TTL   time.Duration
	Log   *zap.Logger
}

func (c *Cached) Units(ctx context.Context, productID string) (Units, error) {
	key := fmt.Sprintf(redisx.KeyCatalogUnits, productID)
	if b, err := c.Redis.Get(ctx, key).Bytes(); err == nil {
		var us Units
		if json.Unmarshal(b, &us) == nil && len(us) > 0 {
			return us, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.Log.Warn("catalog cache get", zap.String("product_id", productID), zap.Error(err))
	}

	us, err := c.Next.Units(ctx, productID)
	if err != nil {
		return nil, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = redisx.TTLCatalog
	}
	if b, err := json.Marshal(us); err == nil {
		if err := c.Redis.Set(ctx, key, b, ttl).Err(); err != nil {
			c.Log.Warn("catalog cache set", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return us, nil
}

// Invalidate drops the cached table after a catalog edit.
func (c *Cached) Invalidate(ctx context.Context, productID string) error {
	return c.Redis.Del(ctx, fmt.Sprintf(redisx.KeyCatalogUnits, productID)).Err()
}
