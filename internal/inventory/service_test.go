package inventory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/memstore"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const day = 24 * time.Hour

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testCatalog = catalog.Static{
	"apple": {
		{Name: "piece", Ratio: dec("1"), SalePrice: dec("2.00")},
		{Name: "box", Ratio: dec("6"), SalePrice: dec("11.00")},
	},
	"milk": {
		{Name: "bottle", Ratio: dec("1"), SalePrice: dec("1.50")},
	},
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	svc   *inventory.Service
	store *memstore.Store
	carts *cart.Memory
	now   time.Time
	nCart int
}

func newFixture(t *testing.T, ls ...lots.Lot) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memstore.New(), carts: cart.NewMemory(), now: t0}
	for _, l := range ls {
		require.NoError(t, f.store.PutLot(l))
	}
	f.svc = &inventory.Service{
		Store:       f.store,
		Catalog:     testCatalog,
		Carts:       f.carts,
		Log:         zaptest.NewLogger(t),
		ServiceName: "test",
		Clock:       func() time.Time { return f.now },
	}
	return f
}

// lot builds an active lot priced 2.00 per base unit.
func lot(id, product string, expiresIn time.Duration, warehouse, shelf int64) lots.Lot {
	return lots.Lot{
		ID: id, ProductID: product, ExpiryDate: t0.Add(expiresIn), Status: lots.StatusActive,
		UnitPrice: dec("2.00"), Initial: warehouse + shelf, Warehouse: warehouse, Shelf: shelf,
	}
}

func (f *fixture) lot(id string) lots.Lot {
	f.t.Helper()
	l, err := f.svc.GetLot(f.ctx, id)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) preorder(items ...cart.Item) (orders.Order, error) {
	f.nCart++
	id := fmt.Sprintf("cart-%d", f.nCart)
	f.carts.Put(cart.Cart{ID: id, CustomerID: "cust-1", Items: items})
	return f.svc.CreatePreorderFromCart(f.ctx, id, 0)
}

func cartFor(i int, items ...cart.Item) cart.Cart {
	return cart.Cart{ID: fmt.Sprintf("concurrent-%d", i), CustomerID: "cust-1", Items: items}
}

func apples(n int64) cart.Item { return cart.Item{ProductID: "apple", UnitName: "piece", Quantity: n} }

func allocs(o orders.Order) []orders.Allocation {
	var out []orders.Allocation
	for _, l := range o.Lines {
		for _, a := range l.Allocations {
			a.QuotedPrice = decimal.Zero
			a.UnitPriceAtDeduction = nil
			out = append(out, a)
		}
	}
	return out
}

// checkInvariants asserts conservation on every lot and that each lot's
// reserved counter equals the claims of pending preorders on it.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	sum := map[string]int64{}
	for orderID, c := range f.store.Claims() {
		o, err := f.store.GetOrder(f.ctx, orderID)
		require.NoError(f.t, err)
		assert.Equal(f.t, orders.StatusPending, o.Status, "order %s holds claims", orderID)
		assert.Equal(f.t, ledger.Claims(o.ClaimsByLot()), c, "order %s claims", orderID)
		for id, q := range c {
			sum[id] += q
		}
	}
	for _, p := range []string{"apple", "milk"} {
		ls, err := f.store.ListLots(f.ctx, p)
		require.NoError(f.t, err)
		for _, l := range ls {
			assert.NoError(f.t, l.Conserved())
			assert.Equal(f.t, sum[l.ID], l.Reserved, "lot %s reserved", l.ID)
			assert.LessOrEqual(f.t, l.Sold, l.Initial-l.Lost, "lot %s oversold", l.ID)
		}
	}
}

func TestPreorder_FEFOAcrossLots(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 5, 0), lot("B", "apple", 30*day, 10, 0))

	o, err := f.preorder(apples(8))
	require.NoError(t, err)

	assert.Equal(t, []orders.Allocation{{LotID: "A", BaseQuantity: 5}, {LotID: "B", BaseQuantity: 3}}, allocs(o))
	assert.Equal(t, int64(5), f.lot("A").Reserved)
	assert.Equal(t, int64(3), f.lot("B").Reserved)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentUnpaid, o.PaymentStatus)
	require.NotNil(t, o.ExpirationDate)
	assert.Equal(t, t0.Add(3*day), *o.ExpirationDate)
	assert.Equal(t, "16", o.FinalAmount.String())
	assert.True(t, o.TaxAmount.IsZero())
	f.checkInvariants()

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, orders.EventOrderCreated, events[0].Type)
	assert.Equal(t, orders.TopicOrderCreated, events[0].Topic)
	assert.Equal(t, o.ID, events[0].AggregateID)
}

func TestPreorder_DeletesCartAfterCommit(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 5, 0))
	f.carts.Put(cart.Cart{ID: "c1", CustomerID: "cust-9", Items: []cart.Item{apples(2)}})

	o, err := f.svc.CreatePreorderFromCart(f.ctx, "c1", 5)
	require.NoError(t, err)
	assert.Equal(t, "cust-9", o.CustomerID)
	assert.Equal(t, t0.Add(5*day), *o.ExpirationDate)

	_, err = f.carts.Get(f.ctx, "c1")
	assert.ErrorIs(t, err, apperr.ErrCartNotFound)
}

func TestPreorder_InsufficientStockMutatesNothing(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 2, 0), lot("B", "apple", 30*day, 3, 0))
	f.carts.Put(cart.Cart{ID: "c1", Items: []cart.Item{apples(6)}})

	_, err := f.svc.CreatePreorderFromCart(f.ctx, "c1", 0)
	var ise *apperr.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(1), ise.Shortfall)

	assert.Zero(t, f.lot("A").Reserved)
	assert.Zero(t, f.lot("B").Reserved)
	os, err := f.svc.ListOrders(f.ctx, orders.Filter{})
	require.NoError(t, err)
	assert.Empty(t, os)
	assert.Empty(t, f.store.Events())
	_, err = f.carts.Get(f.ctx, "c1")
	assert.NoError(t, err, "cart survives a failed conversion")
}

func TestPreorder_MultiLineAllOrNothing(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 5, 0), lot("M", "milk", 20*day, 1, 0))

	_, err := f.preorder(apples(2), cart.Item{ProductID: "milk", UnitName: "bottle", Quantity: 2})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Zero(t, f.lot("A").Reserved)
	f.checkInvariants()
}

func TestPreorder_SkipsLotsInsideFreshnessHorizon(t *testing.T) {
	f := newFixture(t, lot("SOON", "apple", 10*day, 5, 0), lot("LATER", "apple", 15*day, 5, 0))

	o, err := f.preorder(apples(3))
	require.NoError(t, err)
	assert.Equal(t, []orders.Allocation{{LotID: "LATER", BaseQuantity: 3}}, allocs(o))

	_, err = f.preorder(apples(3))
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
}

func TestPreorder_PassedExpiryFlipsLot(t *testing.T) {
	f := newFixture(t, lot("OLD", "apple", -day, 5, 0), lot("NEW", "apple", 30*day, 5, 0))

	_, err := f.preorder(apples(1))
	require.NoError(t, err)
	assert.Equal(t, lots.StatusExpired, f.lot("OLD").Status)
	assert.Equal(t, lots.StatusActive, f.lot("NEW").Status)
}

func TestPreorder_UnitConversion(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 20, 0))

	o, err := f.preorder(cart.Item{ProductID: "apple", UnitName: "box", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(12), o.Lines[0].BaseQuantity())
	assert.Equal(t, int64(12), f.lot("A").Reserved)
	assert.Equal(t, "box", o.Lines[0].Unit.Name)
	// quoted 12 x 2.00 against 2 x 11.00 list
	assert.Equal(t, "22", o.TotalAmount.String())
	assert.Equal(t, "-2", o.DiscountAmt.String())
	assert.Equal(t, "24", o.FinalAmount.String())
}

func TestPreorder_CatalogErrors(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 20, 0))

	_, err := f.preorder(cart.Item{ProductID: "pear", UnitName: "piece", Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
	_, err = f.preorder(cart.Item{ProductID: "apple", UnitName: "crate", Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrUnitNotFound)
	_, err = f.svc.CreatePreorderFromCart(f.ctx, "missing", 0)
	assert.ErrorIs(t, err, apperr.ErrCartNotFound)
	assert.Zero(t, f.lot("A").Reserved)
}

func TestUpdatePreorder_MovesPartOfClaim(t *testing.T) {
	f := newFixture(t, lot("X", "apple", 20*day, 10, 0), lot("Y", "apple", 30*day, 10, 0))
	other, err := f.preorder(apples(3))
	require.NoError(t, err)
	o, err := f.preorder(apples(4))
	require.NoError(t, err)
	require.Equal(t, int64(7), f.lot("X").Reserved)

	o, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{
		ProductID: "apple", Unit: "piece", Quantity: 4,
		Lots: []inventory.LotPick{{LotID: "X", BaseQuantity: 2}, {LotID: "Y", BaseQuantity: 2}},
	}})
	require.NoError(t, err)

	assert.Equal(t, int64(5), f.lot("X").Reserved)
	assert.Equal(t, int64(2), f.lot("Y").Reserved)
	otherNow, err := f.svc.GetOrder(f.ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, allocs(other), allocs(otherNow))
	assert.Equal(t, int64(2), o.Version)
	f.checkInvariants()
}

func TestUpdatePreorder_ReusesUnchangedLines(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0), lot("M", "milk", 20*day, 10, 0))
	o, err := f.preorder(apples(3), cart.Item{ProductID: "milk", UnitName: "bottle", Quantity: 1})
	require.NoError(t, err)
	before := o.Lines[0]

	o, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{
		{ProductID: "apple", Unit: "piece", Quantity: 3},
		{ProductID: "milk", Unit: "bottle", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, before, o.Lines[0])
	assert.Equal(t, int64(3), f.lot("A").Reserved)
	assert.Equal(t, int64(4), f.lot("M").Reserved)
	f.checkInvariants()
}

func TestUpdatePreorder_OwnClaimCountsAsFree(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 5, 0))
	o, err := f.preorder(apples(4))
	require.NoError(t, err)

	o, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.lot("A").Reserved)

	_, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 6}})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, int64(5), f.lot("A").Reserved)
	f.checkInvariants()
}

func TestUpdatePreorder_DroppedProductReleased(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0), lot("M", "milk", 20*day, 10, 0))
	o, err := f.preorder(apples(3), cart.Item{ProductID: "milk", UnitName: "bottle", Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "milk", Unit: "bottle", Quantity: 2}})
	require.NoError(t, err)
	assert.Zero(t, f.lot("A").Reserved)
	assert.Equal(t, int64(2), f.lot("M").Reserved)
	f.checkInvariants()
}

func TestUpdatePreorder_PinnedLotsMustCoverLine(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0), lot("M", "milk", 20*day, 10, 0))
	o, err := f.preorder(apples(3))
	require.NoError(t, err)

	_, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 3,
		Lots: []inventory.LotPick{{LotID: "A", BaseQuantity: 2}}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidAllocation)

	_, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 3,
		Lots: []inventory.LotPick{{LotID: "M", BaseQuantity: 3}}}})
	assert.ErrorIs(t, err, apperr.ErrLotNotFound)
	f.checkInvariants()
}

func TestUpdatePreorder_PinnedLotInsideHorizonRejected(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0), lot("N", "apple", 5*day, 10, 0))
	o, err := f.preorder(apples(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), f.lot("A").Reserved)

	_, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 3,
		Lots: []inventory.LotPick{{LotID: "N", BaseQuantity: 3}}}})
	assert.ErrorIs(t, err, apperr.ErrLotIneligible)
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))

	assert.Zero(t, f.lot("N").Reserved)
	assert.Equal(t, int64(3), f.lot("A").Reserved)
	f.checkInvariants()
}

func TestUpdatePreorder_RejectsNonPending(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0))
	o, err := f.preorder(apples(3))
	require.NoError(t, err)
	_, err = f.svc.CancelPreorder(f.ctx, o.ID, "")
	require.NoError(t, err)

	_, err = f.svc.UpdatePreorder(f.ctx, o.ID, []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}})
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)

	_, err = f.svc.UpdatePreorder(f.ctx, "nope", []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}})
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestCompletePreorderPayment_WarehouseThenShelf(t *testing.T) {
	f := newFixture(t, lot("X", "apple", 20*day, 1, 1))
	o, err := f.preorder(apples(2))
	require.NoError(t, err)

	o, err = f.svc.CompletePreorderPayment(f.ctx, o.ID, dec("5"))
	require.NoError(t, err)

	x := f.lot("X")
	assert.Equal(t, int64(2), x.Sold)
	assert.Zero(t, x.Reserved)
	assert.Zero(t, x.Warehouse)
	assert.Zero(t, x.Shelf)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "1", o.ChangeAmount.String())
	require.NotNil(t, o.Lines[0].Allocations[0].UnitPriceAtDeduction)
	assert.Equal(t, "4", o.Revenue().String())
	f.checkInvariants()

	_, err = f.svc.CompletePreorderPayment(f.ctx, o.ID, dec("5"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
	assert.Equal(t, int64(2), f.lot("X").Sold)
}

func TestCompletePreorderPayment_Validation(t *testing.T) {
	f := newFixture(t, lot("X", "apple", 20*day, 5, 5))
	o, err := f.preorder(apples(2))
	require.NoError(t, err)

	_, err = f.svc.CompletePreorderPayment(f.ctx, o.ID, decimal.Zero)
	assert.ErrorIs(t, err, apperr.ErrInvalidPayment)

	in, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}}, AmountPaid: dec("10"),
	})
	require.NoError(t, err)
	_, err = f.svc.CompletePreorderPayment(f.ctx, in.ID, dec("10"))
	assert.ErrorIs(t, err, apperr.ErrNotAPreorder)

	_, err = f.svc.CancelPreorder(f.ctx, o.ID, "")
	require.NoError(t, err)
	_, err = f.svc.CompletePreorderPayment(f.ctx, o.ID, dec("10"))
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)
	f.checkInvariants()
}

func TestCompletePreorderPayment_StockCountedOut(t *testing.T) {
	f := newFixture(t, lot("X", "apple", 20*day, 3, 0))
	o, err := f.preorder(apples(3))
	require.NoError(t, err)

	// a stock count found one unit missing
	x := f.lot("X")
	x.Warehouse, x.Lost, x.Reserved = 2, 1, 2
	require.NoError(t, f.store.PutLot(x))

	_, err = f.svc.CompletePreorderPayment(f.ctx, o.ID, dec("10"))
	var ise *apperr.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "X", ise.LotID)
	assert.Equal(t, int64(1), ise.Shortfall)

	got, err := f.svc.GetOrder(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Zero(t, f.lot("X").Sold)
}

func TestCancelPreorder_ReleasesOnce(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0))
	keep, err := f.preorder(apples(2))
	require.NoError(t, err)
	o, err := f.preorder(apples(3))
	require.NoError(t, err)

	o, err = f.svc.CancelPreorder(f.ctx, o.ID, "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, "customer changed mind", o.CancelReason)
	assert.Equal(t, int64(2), f.lot("A").Reserved)

	_, err = f.svc.CancelPreorder(f.ctx, o.ID, "")
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)
	assert.Equal(t, int64(2), f.lot("A").Reserved)

	_, err = f.svc.CompletePreorderPayment(f.ctx, keep.ID, dec("4"))
	require.NoError(t, err)
	f.checkInvariants()
}

func TestSweep_CancelsDueAndReleases(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0))
	due, err := f.preorder(apples(3))
	require.NoError(t, err)
	f.now = t0.Add(day)
	notDue, err := f.preorder(apples(2))
	require.NoError(t, err)

	f.now = t0.Add(3 * day)
	rep, err := f.svc.SweepExpiredPreorders(f.ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, []string{due.ID}, rep.Cancelled)
	assert.Equal(t, int64(2), f.lot("A").Reserved)

	got, err := f.svc.GetOrder(f.ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, inventory.ReasonExpired, got.CancelReason)

	rep, err = f.svc.SweepExpiredPreorders(f.ctx, f.now)
	require.NoError(t, err)
	assert.Empty(t, rep.Cancelled)
	assert.Equal(t, int64(2), f.lot("A").Reserved)

	got, err = f.svc.GetOrder(f.ctx, notDue.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	f.checkInvariants()
}

func TestSweep_PaidOrderIsNotCancelled(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 0))
	o, err := f.preorder(apples(3))
	require.NoError(t, err)
	_, err = f.svc.CompletePreorderPayment(f.ctx, o.ID, dec("6"))
	require.NoError(t, err)

	rep, err := f.svc.SweepExpiredPreorders(f.ctx, t0.Add(10*day))
	require.NoError(t, err)
	assert.Empty(t, rep.Cancelled)
	got, err := f.svc.GetOrder(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, got.Status)
	assert.Equal(t, int64(3), f.lot("A").Sold)
	f.checkInvariants()
}

func TestInstore_ShelfOnlyFEFO(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 3), lot("B", "apple", 30*day, 0, 4))

	o, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines:      []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 5}},
		AmountPaid: dec("20"),
		TaxRate:    dec("0.1"),
		EmployeeID: "emp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []orders.Allocation{{LotID: "A", BaseQuantity: 3}, {LotID: "B", BaseQuantity: 2}}, allocs(o))

	a, b := f.lot("A"), f.lot("B")
	assert.Zero(t, a.Shelf)
	assert.Equal(t, int64(10), a.Warehouse)
	assert.Equal(t, int64(3), a.Sold)
	assert.Equal(t, int64(2), b.Shelf)

	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "10", o.TotalAmount.String())
	assert.Equal(t, "1", o.TaxAmount.String())
	assert.Equal(t, "11", o.FinalAmount.String())
	assert.Equal(t, "9", o.ChangeAmount.String())
	assert.Equal(t, o.FinalAmount.Sub(o.TaxAmount).String(), o.Revenue().String())
	f.checkInvariants()
}

func TestInstore_NonCashIsPendingPayment(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 0, 3))
	o, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines:         []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}},
		PaymentMethod: orders.PaymentCard,
	})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.True(t, o.AmountPaid.IsZero())
}

func TestInstore_CashRequiresPositiveAmount(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 0, 3))
	_, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidPayment)
	assert.Equal(t, int64(3), f.lot("A").Shelf)
}

func TestInstore_CannotTakeClaimedStock(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 0, 5))
	_, err := f.preorder(apples(4))
	require.NoError(t, err)

	_, err = f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 2}}, AmountPaid: dec("10"),
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	_, err = f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}}, AmountPaid: dec("10"),
	})
	require.NoError(t, err)
	f.checkInvariants()
}

func TestInstore_PinnedLotMayDrawWarehouse(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 5*day, 4, 1))

	o, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 3,
			Lots: []inventory.LotPick{{LotID: "A", BaseQuantity: 3}}}},
		AmountPaid: dec("6"),
	})
	require.NoError(t, err)
	a := f.lot("A")
	assert.Zero(t, a.Shelf)
	assert.Equal(t, int64(2), a.Warehouse)
	assert.Equal(t, int64(3), a.Sold)
	assert.Equal(t, "0", o.ChangeAmount.String())
}

func TestInstore_DiscountAppliedAtSale(t *testing.T) {
	start := t0.Add(-time.Hour)
	l := lot("A", "apple", 20*day, 0, 4)
	l.Discount = lots.DiscountPolicy{Percent: dec("50"), StartsAt: &start}
	f := newFixture(t, l)

	o, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 2}}, AmountPaid: dec("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "4", o.TotalAmount.String())
	assert.Equal(t, "2", o.DiscountAmt.String())
	assert.Equal(t, "2", o.FinalAmount.String())
	assert.Equal(t, "1", o.Lines[0].UnitPriceCharged.String())
}

func TestListOrders_Filters(t *testing.T) {
	f := newFixture(t, lot("A", "apple", 20*day, 10, 10))
	pre, err := f.preorder(apples(1))
	require.NoError(t, err)
	f.now = t0.Add(time.Hour)
	in, err := f.svc.CreateInstoreOrder(f.ctx, inventory.InstoreRequest{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 1}}, AmountPaid: dec("5"),
		EmployeeID: "emp-42",
	})
	require.NoError(t, err)

	all, err := f.svc.ListOrders(f.ctx, orders.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, in.ID, all[0].ID, "newest first")

	got, err := f.svc.ListOrders(f.ctx, orders.Filter{Type: orders.TypePreorder})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pre.ID, got[0].ID)

	got, err = f.svc.ListOrders(f.ctx, orders.Filter{Search: "EMP-42"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in.ID, got[0].ID)

	from := t0.Add(30 * time.Minute)
	got, err = f.svc.ListOrders(f.ctx, orders.Filter{From: &from})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = f.svc.ListOrders(f.ctx, orders.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pre.ID, got[0].ID)

	_, err = f.svc.GetOrder(f.ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}
