// Package ledger keeps every lot's reserved counter equal to the sum of the
// claims held by pending preorders. Claims are durable rows keyed by
// (order, lot); counter changes are derived from them, never from comparing
// order snapshots.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
)

// Claims maps lot id to base units claimed by one order.
type Claims map[string]int64

func (c Claims) Add(lotID string, qty int64) {
	if qty == 0 {
		return
	}
	c[lotID] += qty
}

func (c Claims) Total() int64 {
	var n int64
	for _, q := range c {
		n += q
	}
	return n
}

// LotIDs returns the referenced lots in lock order.
func (c Claims) LotIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Delta struct {
	LotID string
	Qty   int64
}

// Diff returns per-lot next-prev deltas, zero deltas dropped, ordered by lot id.
func Diff(prev, next Claims) []Delta {
	seen := Claims{}
	for id := range prev {
		seen[id] = 1
	}
	for id := range next {
		seen[id] = 1
	}
	out := make([]Delta, 0, len(seen))
	for _, id := range seen.LotIDs() {
		if d := next[id] - prev[id]; d != 0 {
			out = append(out, Delta{LotID: id, Qty: d})
		}
	}
	return out
}

// Store is the transactional surface the ledger needs. Implementations lock
// the returned lots until the surrounding transaction ends.
type Store interface {
	LockLots(ctx context.Context, ids []string) (map[string]*lots.Lot, error)
	SaveLot(ctx context.Context, l *lots.Lot) error
	Claims(ctx context.Context, orderID string) (Claims, error)
	PutClaims(ctx context.Context, orderID string, c Claims) error
	// ReleaseClaims drops the order's claims and records the release. The
	// second result is false when the order was released before.
	ReleaseClaims(ctx context.Context, orderID string) (Claims, bool, error)
}

type Ledger struct{}

// Reserve records a new preorder's claims. It must run in the same
// transaction that persists the order.
func (Ledger) Reserve(ctx context.Context, s Store, orderID string, c Claims) error {
	prev, err := s.Claims(ctx, orderID)
	if err != nil {
		return err
	}
	if len(prev) > 0 {
		return fmt.Errorf("order %s already holds claims: %w", orderID, apperr.ErrConflict)
	}
	return Ledger{}.Rebalance(ctx, s, orderID, c)
}

// Rebalance moves an order from its recorded claims to next, applying one
// signed delta per lot.
func (Ledger) Rebalance(ctx context.Context, s Store, orderID string, next Claims) error {
	prev, err := s.Claims(ctx, orderID)
	if err != nil {
		return err
	}
	if err := apply(ctx, s, Diff(prev, next)); err != nil {
		return err
	}
	return s.PutClaims(ctx, orderID, next)
}

// Release frees every claim of a cancelled or expired order. A second call
// for the same order is a no-op.
func (Ledger) Release(ctx context.Context, s Store, orderID string) (Claims, error) {
	held, first, err := s.ReleaseClaims(ctx, orderID)
	if err != nil || !first {
		return nil, err
	}
	deltas := make([]Delta, 0, len(held))
	for _, id := range held.LotIDs() {
		deltas = append(deltas, Delta{LotID: id, Qty: -held[id]})
	}
	return held, apply(ctx, s, deltas)
}

// Convert retires claims that became a sale. The fulfillment engine has
// already moved the reserved units to sold on the lots.
func (Ledger) Convert(ctx context.Context, s Store, orderID string) (Claims, error) {
	held, _, err := s.ReleaseClaims(ctx, orderID)
	return held, err
}

func apply(ctx context.Context, s Store, deltas []Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	ids := make([]string, 0, len(deltas))
	for _, d := range deltas {
		ids = append(ids, d.LotID)
	}
	locked, err := s.LockLots(ctx, ids)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		l, ok := locked[d.LotID]
		if !ok {
			return fmt.Errorf("lot %s: %w", d.LotID, apperr.ErrLotNotFound)
		}
		if err := l.AdjustReserved(d.Qty); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if err := s.SaveLot(ctx, locked[id]); err != nil {
			return err
		}
	}
	return nil
}
