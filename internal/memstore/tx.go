package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/outbox"
)

type tx struct{ st *state }

func (t *tx) ProductLots(_ context.Context, productID string) ([]lots.Lot, error) {
	return productLots(t.st, productID), nil
}

func (t *tx) LockLots(_ context.Context, ids []string) (map[string]*lots.Lot, error) {
	out := make(map[string]*lots.Lot, len(ids))
	for _, id := range ids {
		if l, ok := t.st.lots[id]; ok {
			out[id] = &l
		}
	}
	return out, nil
}

func (t *tx) SaveLot(_ context.Context, l *lots.Lot) error {
	if err := l.Conserved(); err != nil {
		return err
	}
	cur, ok := t.st.lots[l.ID]
	if !ok {
		return fmt.Errorf("lot %s: %w", l.ID, apperr.ErrLotNotFound)
	}
	l.Version = cur.Version + 1
	t.st.lots[l.ID] = *l
	return nil
}

func (t *tx) Claims(_ context.Context, orderID string) (ledger.Claims, error) {
	return cloneClaims(t.st.claims[orderID]), nil
}

func (t *tx) PutClaims(_ context.Context, orderID string, c ledger.Claims) error {
	if t.st.released[orderID] {
		return fmt.Errorf("order %s claims already released: %w", orderID, apperr.ErrIllegalTransition)
	}
	next := ledger.Claims{}
	for id, q := range c {
		if q < 0 {
			return fmt.Errorf("claim on lot %s: %w", id, apperr.ErrCounterUnderflow)
		}
		next.Add(id, q)
	}
	t.st.claims[orderID] = next
	return nil
}

func (t *tx) ReleaseClaims(_ context.Context, orderID string) (ledger.Claims, bool, error) {
	if t.st.released[orderID] {
		return nil, false, nil
	}
	t.st.released[orderID] = true
	held := t.st.claims[orderID]
	delete(t.st.claims, orderID)
	return held, true, nil
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, apperr.ErrOrderNotFound)
	}
	return cloneOrder(o), nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	if _, dup := t.st.orders[o.ID]; dup {
		return fmt.Errorf("order %s exists: %w", o.ID, apperr.ErrConflict)
	}
	o.Version = 1
	t.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o *orders.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", o.ID, apperr.ErrOrderNotFound)
	}
	if cur.Version != o.Version {
		return fmt.Errorf("order %s version %d, have %d: %w", o.ID, cur.Version, o.Version, apperr.ErrConflict)
	}
	o.Version++
	t.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *tx) PendingPreordersReferencing(_ context.Context, lotID string) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range t.st.orders {
		if o.Type == orders.TypePreorder && o.Status == orders.StatusPending && o.References(lotID) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) InsertAdjustment(_ context.Context, a lots.Adjustment) error {
	t.st.adjustments = append(t.st.adjustments, a)
	return nil
}

func (t *tx) Enqueue(_ context.Context, e outbox.Event) error {
	t.st.nextEvent++
	e.ID = t.st.nextEvent
	if e.Status == "" {
		e.Status = outbox.StatusPending
	}
	t.st.events = append(t.st.events, e)
	return nil
}
