package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/projector"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the part of inventory.Service the transport needs.
type Engine interface {
	CreateInstoreOrder(ctx context.Context, req inventory.InstoreRequest) (orders.Order, error)
	CreatePreorderFromCart(ctx context.Context, cartID string, expirationDays int) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error)
	UpdatePreorder(ctx context.Context, id string, in []inventory.LineInput) (orders.Order, error)
	CompletePreorderPayment(ctx context.Context, id string, amountPaid decimal.Decimal) (orders.Order, error)
	CancelPreorder(ctx context.Context, id, reason string) (orders.Order, error)
	CancelLot(ctx context.Context, lotID, reason, actor string) (lots.Adjustment, error)
	SweepExpiredPreorders(ctx context.Context, now time.Time) (inventory.SweepReport, error)
	GetLot(ctx context.Context, id string) (lots.Lot, error)
	ListLots(ctx context.Context, productID string) ([]lots.Lot, error)
}

type OrdersHandler struct {
	Engine Engine
	// Redis backs Idempotency-Key replay; nil disables it.
	Redis redis.Cmdable
	// Status serves GET /orders/{id}/status; nil reads the store.
	Status projector.Cache
	Log    *zap.Logger
	Clock  func() time.Time
}

type CreatePreorderReq struct {
	CartID         string `json:"cart_id"`
	ExpirationDays int    `json:"expiration_days"`
}

type UpdatePreorderReq struct {
	Lines []inventory.LineInput `json:"lines"`
}

type PaymentReq struct {
	AmountPaid decimal.Decimal `json:"amount_paid"`
}

type CancelReq struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/lots/{id}", h.getLot)
	r.Get("/products/{id}/lots", h.listLots)

	r.Group(func(r chi.Router) {
		r.Use(h.idempotent)
		r.Post("/orders/instore", h.createInstore)
		r.Post("/preorders", h.createPreorder)
		r.Put("/preorders/{id}", h.updatePreorder)
		r.Post("/preorders/{id}/payment", h.completePayment)
		r.Post("/preorders/{id}/cancel", h.cancelPreorder)
		r.Post("/lots/{id}/cancel", h.cancelLot)
		r.Post("/admin/sweep", h.sweep)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *OrdersHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return false
	}
	return true
}

func (h *OrdersHandler) createInstore(w http.ResponseWriter, r *http.Request) {
	var req inventory.InstoreRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Lines) == 0 {
		badRequest(w, "missing lines")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CreateInstoreOrder(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) createPreorder(w http.ResponseWriter, r *http.Request) {
	var req CreatePreorderReq
	if !decode(w, r, &req) {
		return
	}
	if req.CartID == "" {
		badRequest(w, "missing cart_id")
		return
	}
	if req.ExpirationDays < 0 {
		badRequest(w, "expiration_days must not be negative")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CreatePreorderFromCart(ctx, req.CartID, req.ExpirationDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) updatePreorder(w http.ResponseWriter, r *http.Request) {
	var req UpdatePreorderReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.UpdatePreorder(ctx, chi.URLParam(r, "id"), req.Lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) completePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CompletePreorderPayment(ctx, chi.URLParam(r, "id"), req.AmountPaid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelPreorder(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CancelPreorder(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelLot(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	adj, err := h.Engine.CancelLot(ctx, chi.URLParam(r, "id"), req.Reason, req.Actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (h *OrdersHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rep, err := h.Engine.SweepExpiredPreorders(ctx, h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the projected snapshot and falls back to the store,
// warming the cache on the way out.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Status != nil {
		st, ok, err := h.Status.GetStatus(ctx, id)
		if err == nil && ok {
			writeJSON(w, http.StatusOK, st)
			return
		}
		if err != nil {
			h.log().Warn("status cache get", zap.String("order_id", id), zap.Error(err))
		}
	}

	o, err := h.Engine.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st := projector.StatusOf(o)
	if h.Status != nil {
		if _, err := h.Status.PutStatus(ctx, st); err != nil {
			h.log().Warn("status cache put", zap.String("order_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Engine.ListOrders(ctx, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parseFilter(w http.ResponseWriter, r *http.Request) (orders.Filter, bool) {
	q := r.URL.Query()
	f := orders.Filter{
		Type:          orders.Type(q.Get("type")),
		Status:        orders.Status(q.Get("status")),
		PaymentStatus: orders.PaymentStatus(q.Get("payment_status")),
		Search:        q.Get("q"),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				badRequest(w, p.name+" must be RFC3339")
				return f, false
			}
			*p.dst = &t
		}
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				badRequest(w, p.name+" must be a non-negative integer")
				return f, false
			}
			*p.dst = n
		}
	}
	return f, true
}

func (h *OrdersHandler) getLot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	l, err := h.Engine.GetLot(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lotView(l))
}

func (h *OrdersHandler) listLots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ls, err := h.Engine.ListLots(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]LotView, 0, len(ls))
	for _, l := range ls {
		out = append(out, lotView(l))
	}
	writeJSON(w, http.StatusOK, out)
}
