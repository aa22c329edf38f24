package redisx

import "time"

const (
	// Idempotent writes: idem:{route}:{Idempotency-Key} -> cached response body
	KeyIdem = "idem:%s:%s"

	// Order status cache: order_status:{order_id} -> hash{version, body}; body is the JSON snapshot
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Sweep lease: lease:sweep:{service} -> holder id
	KeySweepLease = "lease:sweep:%s"

	// Unit table cache: catalog:units:{product_id}
	KeyCatalogUnits = "catalog:units:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLCatalog     = 10 * time.Minute
)
