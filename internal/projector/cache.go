package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Status is the cached read model of one order.
type Status struct {
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	Type          orders.Type          `json:"type"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	FinalAmount   decimal.Decimal      `json:"final_amount"`
	Version       int64                `json:"version"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type Cache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
	// PutStatus stores st unless a snapshot with the same or a newer version
	// is already cached. It reports whether st was written.
	PutStatus(ctx context.Context, st Status) (bool, error)
	GetStatus(ctx context.Context, orderID string) (Status, bool, error)
}

// RedisCache keeps the snapshots in hashes of {version, body} so an older
// event delivered late cannot overwrite a newer one.
type RedisCache struct {
	RDB     redis.Cmdable
	Service string
	TTL     time.Duration
}

var putIfNewer = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "version")
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "body", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1`)

func (c *RedisCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.RDB.Exists(ctx, fmt.Sprintf(redisx.KeyDedup, c.Service, eventID)).Result()
	return n > 0, err
}

func (c *RedisCache) MarkSeen(ctx context.Context, eventID string) error {
	return c.RDB.Set(ctx, fmt.Sprintf(redisx.KeyDedup, c.Service, eventID), "1", redisx.TTLDedup).Err()
}

func (c *RedisCache) PutStatus(ctx context.Context, st Status) (bool, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return false, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = redisx.TTLStatusCache
	}
	n, err := putIfNewer.Run(ctx, c.RDB, []string{fmt.Sprintf(redisx.KeyOrderStatus, st.OrderID)},
		st.Version, body, ttl.Milliseconds()).Int()
	return n == 1, err
}

func (c *RedisCache) GetStatus(ctx context.Context, orderID string) (Status, bool, error) {
	body, err := c.RDB.HGet(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), "body").Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, err
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return Status{}, false, err
	}
	return st, true, nil
}

// StatusOf snapshots a stored order, used to warm the cache on a read miss.
func StatusOf(o orders.Order) Status {
	return Status{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Type:          o.Type,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		FinalAmount:   o.FinalAmount,
		Version:       o.Version,
		UpdatedAt:     o.UpdatedAt,
	}
}
