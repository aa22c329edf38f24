package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/memstore"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLease struct {
	held     bool
	acquired int
	released int
	err      error
}

func (l *fakeLease) Acquire(context.Context, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLease) Release(context.Context) error {
	l.released++
	return nil
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*inventory.Service, *memstore.Store, string) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.PutLot(lots.Lot{
		ID: "A", ProductID: "apple", ExpiryDate: t0.Add(60 * 24 * time.Hour), Status: lots.StatusActive,
		UnitPrice: decimal.RequireFromString("2.00"), Initial: 10, Warehouse: 10,
	}))
	carts := cart.NewMemory()
	carts.Put(cart.Cart{ID: "c1", Items: []cart.Item{{ProductID: "apple", UnitName: "piece", Quantity: 4}}})
	svc := &inventory.Service{
		Store: store,
		Catalog: catalog.Static{"apple": {
			{Name: "piece", Ratio: decimal.NewFromInt(1), SalePrice: decimal.RequireFromString("2.00")},
		}},
		Carts: carts,
		Log:   zaptest.NewLogger(t),
		Clock: func() time.Time { return t0 },
	}
	o, err := svc.CreatePreorderFromCart(context.Background(), "c1", 1)
	require.NoError(t, err)
	return svc, store, o.ID
}

func TestTick_CancelsDuePreorders(t *testing.T) {
	svc, store, id := seeded(t)
	lease := &fakeLease{}
	s := New(zaptest.NewLogger(t), svc, lease, time.Minute)
	s.clock = func() time.Time { return t0.Add(2 * 24 * time.Hour) }

	swept, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, swept)
	assert.Equal(t, 1, lease.acquired)
	assert.Equal(t, 1, lease.released)

	o, err := store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	l, err := store.GetLot(context.Background(), "A")
	require.NoError(t, err)
	assert.Zero(t, l.Reserved)
}

func TestTick_NotDueYet(t *testing.T) {
	svc, store, id := seeded(t)
	s := New(zaptest.NewLogger(t), svc, nil, time.Minute)
	s.clock = func() time.Time { return t0.Add(time.Hour) }

	swept, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, swept)

	o, err := store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestTick_LeaseHeldElsewhere(t *testing.T) {
	svc, store, id := seeded(t)
	s := New(zaptest.NewLogger(t), svc, &fakeLease{held: true}, time.Minute)
	s.clock = func() time.Time { return t0.Add(2 * 24 * time.Hour) }

	swept, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, swept)

	o, err := store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestTick_LeaseError(t *testing.T) {
	svc, _, _ := seeded(t)
	boom := errors.New("redis down")
	s := New(zaptest.NewLogger(t), svc, &fakeLease{err: boom}, time.Minute)

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, boom)
}
