// Package allocation picks which lots satisfy a request, earliest expiry first.
package allocation

import (
	"sort"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/shopspring/decimal"
)

type Mode int

const (
	// Reserve claims stock for a preorder.
	Reserve Mode = iota
	// Immediate takes shelf stock for a walk-in sale.
	Immediate
)

func (m Mode) String() string {
	if m == Immediate {
		return "immediate"
	}
	return "reserve"
}

// Pick is one (lot, quantity) pair of a plan. QuotedPrice is the lot's
// per-base-unit price when the plan was built.
type Pick struct {
	LotID       string
	Quantity    int64
	QuotedPrice decimal.Decimal
}

type Plan struct {
	ProductID string
	Required  int64
	Picks     []Pick
}

func (p Plan) Total() int64 {
	var n int64
	for _, pk := range p.Picks {
		n += pk.Quantity
	}
	return n
}

// Available is the per-lot capacity in the given mode.
func Available(l *lots.Lot, mode Mode) int64 {
	if mode == Immediate {
		return l.ShelfAvailable()
	}
	return l.Free()
}

// Candidates returns the eligible lots of productID in FEFO order, skipping
// any lot in exclude. Ties on expiry fall back to receiving order, then id.
func Candidates(all []lots.Lot, productID string, now time.Time, exclude ...string) []lots.Lot {
	out := make([]lots.Lot, 0, len(all))
	for _, l := range all {
		if l.ProductID != productID || !l.Eligible(now) || contains(exclude, l.ID) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
	return out
}

// Allocate builds an all-or-nothing plan for required base units. The input
// slice is never modified; a failed allocation returns no plan.
func Allocate(all []lots.Lot, productID string, required int64, mode Mode, now time.Time) (Plan, error) {
	if required <= 0 {
		return Plan{}, apperr.ErrInvalidQuantity
	}
	plan := Plan{ProductID: productID, Required: required}
	remaining := required
	for _, l := range Candidates(all, productID, now) {
		if remaining == 0 {
			break
		}
		take := min(Available(&l, mode), remaining)
		if take <= 0 {
			continue
		}
		plan.Picks = append(plan.Picks, Pick{LotID: l.ID, Quantity: take, QuotedPrice: l.PriceAt(now)})
		remaining -= take
	}
	if remaining > 0 {
		return Plan{}, &apperr.InsufficientStockError{ProductID: productID, Shortfall: remaining}
	}
	return plan, nil
}

// Consume marks a plan as taken on a working snapshot so the next line of the
// same order sees the reduced capacity.
func Consume(view []lots.Lot, plan Plan, mode Mode) {
	for _, pk := range plan.Picks {
		for i := range view {
			if view[i].ID != pk.LotID {
				continue
			}
			if mode == Immediate {
				view[i].Shelf -= pk.Quantity
				view[i].Sold += pk.Quantity
			} else {
				view[i].Reserved += pk.Quantity
			}
		}
	}
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
