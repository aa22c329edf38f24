package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/memstore"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/projector"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	t      *testing.T
	srv    http.Handler
	svc    *inventory.Service
	store  *memstore.Store
	carts  *cart.Memory
	status *statusCache
	now    time.Time
}

type statusCache struct{ m map[string]projector.Status }

func (c *statusCache) Seen(context.Context, string) (bool, error) { return false, nil }
func (c *statusCache) MarkSeen(context.Context, string) error { return nil }

func (c *statusCache) PutStatus(_ context.Context, st projector.Status) (bool, error) {
	c.m[st.OrderID] = st
	return true, nil
}

func (c *statusCache) GetStatus(_ context.Context, id string) (projector.Status, bool, error) {
	st, ok := c.m[id]
	return st, ok, nil
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	a := &testAPI{t: t, store: memstore.New(), carts: cart.NewMemory(),
		status: &statusCache{m: map[string]projector.Status{}}, now: t0}
	for _, l := range []lots.Lot{
		{ID: "A", ProductID: "apple", ExpiryDate: t0.Add(30 * 24 * time.Hour), Status: lots.StatusActive,
			UnitPrice: decimal.RequireFromString("2.00"), Initial: 10, Warehouse: 6, Shelf: 4},
		{ID: "B", ProductID: "apple", ExpiryDate: t0.Add(60 * 24 * time.Hour), Status: lots.StatusActive,
			UnitPrice: decimal.RequireFromString("2.00"), Initial: 10, Warehouse: 10},
	} {
		require.NoError(t, a.store.PutLot(l))
	}
	log := zaptest.NewLogger(t)
	a.svc = &inventory.Service{
		Store: a.store,
		Catalog: catalog.Static{"apple": {
			{Name: "piece", Ratio: decimal.NewFromInt(1), SalePrice: decimal.RequireFromString("2.00")},
		}},
		Carts: a.carts,
		Log:   log,
		Clock: func() time.Time { return a.now },
	}
	a.rebuild(&OrdersHandler{Status: a.status})
	return a
}

// rebuild mounts h on a fresh router, filling in the engine, logger and clock.
func (a *testAPI) rebuild(h *OrdersHandler) {
	h.Engine = a.svc
	h.Log = a.svc.Log
	h.Clock = func() time.Time { return a.now }
	r := NewRouter(a.svc.Log)
	h.Register(r)
	a.srv = r
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	return a.doWith(method, path, body, nil)
}

func (a *testAPI) doWith(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) preorder(qty int64) orders.Order {
	a.t.Helper()
	a.carts.Put(cart.Cart{ID: "c1", CustomerID: "cust-1",
		Items: []cart.Item{{ProductID: "apple", UnitName: "piece", Quantity: qty}}})
	rec := a.do(http.MethodPost, "/preorders", CreatePreorderReq{CartID: "c1", ExpirationDays: 2})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[orders.Order](a.t, rec)
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreorderFlow(t *testing.T) {
	a := newTestAPI(t)
	o := a.preorder(12)
	assert.Equal(t, orders.StatusPending, o.Status)

	rec := a.do(http.MethodGet, "/lots/A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), decodeBody[LotView](t, rec).Reserved)

	rec = a.do(http.MethodPost, "/preorders/"+o.ID+"/payment", PaymentReq{AmountPaid: decimal.NewFromInt(30)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeBody[orders.Order](t, rec)
	assert.Equal(t, orders.StatusCompleted, paid.Status)
	assert.Equal(t, "6", paid.ChangeAmount.String())

	rec = a.do(http.MethodPost, "/preorders/"+o.ID+"/payment", PaymentReq{AmountPaid: decimal.NewFromInt(30)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "FAILED_PRECONDITION", decodeBody[errorBody](t, rec).Code)
}

func TestInsufficientStockBody(t *testing.T) {
	a := newTestAPI(t)
	a.carts.Put(cart.Cart{ID: "big", Items: []cart.Item{{ProductID: "apple", UnitName: "piece", Quantity: 21}}})

	rec := a.do(http.MethodPost, "/preorders", CreatePreorderReq{CartID: "big"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "apple", body.ProductID)
	assert.Equal(t, int64(1), body.Shortfall)
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/orders/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, "/preorders", CreatePreorderReq{CartID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, "/preorders", map[string]any{"cart": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/orders/instore", inventory.InstoreRequest{
		Lines:         []inventory.LineInput{{ProductID: "apple", Unit: "crate", Quantity: 1}},
		PaymentMethod: orders.PaymentCard,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/lots/A/cancel", CancelReq{Reason: "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodPost, "/lots/A/cancel", CancelReq{Reason: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInstoreSale(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(http.MethodPost, "/orders/instore", inventory.InstoreRequest{
		Lines:         []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 3}},
		PaymentMethod: orders.PaymentCash,
		AmountPaid:    decimal.NewFromInt(10),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeBody[orders.Order](t, rec)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "4", o.ChangeAmount.String())

	l, err := a.store.GetLot(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.Shelf)
}

func TestListOrdersQuery(t *testing.T) {
	a := newTestAPI(t)
	a.preorder(1)

	rec := a.do(http.MethodGet, "/orders?type=preorder&status=pending&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Order](t, rec), 1)

	rec = a.do(http.MethodGet, "/orders?type=instore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]orders.Order](t, rec))

	rec = a.do(http.MethodGet, "/orders?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodGet, "/orders?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderStatusWarmsCache(t *testing.T) {
	a := newTestAPI(t)
	o := a.preorder(1)

	rec := a.do(http.MethodGet, "/orders/"+o.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusPending, decodeBody[projector.Status](t, rec).Status)
	assert.Contains(t, a.status.m, o.ID)
}

func TestSweepEndpoint(t *testing.T) {
	a := newTestAPI(t)
	o := a.preorder(2)

	a.now = t0.Add(3 * 24 * time.Hour)
	rec := a.do(http.MethodPost, "/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decodeBody[inventory.SweepReport](t, rec)
	assert.Equal(t, []string{o.ID}, rep.Cancelled)

	got, err := a.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, inventory.ReasonExpired, got.CancelReason)
}

func TestUpdateAndCancelPreorder(t *testing.T) {
	a := newTestAPI(t)
	o := a.preorder(2)

	rec := a.do(http.MethodPut, "/preorders/"+o.ID, UpdatePreorderReq{
		Lines: []inventory.LineInput{{ProductID: "apple", Unit: "piece", Quantity: 5}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[orders.Order](t, rec)
	assert.Equal(t, map[string]int64{"A": 5}, updated.ClaimsByLot())

	rec = a.do(http.MethodPost, "/preorders/"+o.ID+"/cancel", CancelReq{Reason: "changed mind"})
	require.Equal(t, http.StatusOK, rec.Code)

	l, err := a.store.GetLot(context.Background(), "A")
	require.NoError(t, err)
	assert.Zero(t, l.Reserved)
}
