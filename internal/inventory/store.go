package inventory

import (
	"context"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/outbox"
)

// Tx is one atomic unit of work. Every lot or order it returns stays locked
// until the transaction ends, and nothing is visible to other transactions
// before commit.
type Tx interface {
	ledger.Store

	// ProductLots locks every lot of productID.
	ProductLots(ctx context.Context, productID string) ([]lots.Lot, error)
	LockOrder(ctx context.Context, id string) (orders.Order, error)
	InsertOrder(ctx context.Context, o *orders.Order) error
	// UpdateOrder writes o when the stored version still equals o.Version and
	// bumps it; a stale version yields apperr.ErrConflict.
	UpdateOrder(ctx context.Context, o *orders.Order) error
	// PendingPreordersReferencing locks the pending preorders holding claims
	// on lotID.
	PendingPreordersReferencing(ctx context.Context, lotID string) ([]orders.Order, error)
	InsertAdjustment(ctx context.Context, a lots.Adjustment) error
	Enqueue(ctx context.Context, e outbox.Event) error
}

type Store interface {
	// InTx runs fn in a transaction, committing only when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error)
	GetLot(ctx context.Context, id string) (lots.Lot, error)
	ListLots(ctx context.Context, productID string) ([]lots.Lot, error)
	// ExpiredPreorderIDs lists pending preorders whose expiration is at or
	// before now.
	ExpiredPreorderIDs(ctx context.Context, now time.Time) ([]string, error)
}
