// Package fulfillment turns claims or direct sales into final counter
// deductions. Every deduction is validated before any lot is touched.
package fulfillment

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/shopspring/decimal"
)

// Source says which pool is drawn first.
type Source int

const (
	// WarehouseFirst keeps shelf stock for walk-in customers.
	WarehouseFirst Source = iota
	// ShelfFirst is used for goods picked off the shelf at the till. It is
	// the one exception to warehouse-then-shelf: a till sale only ever takes
	// shelf stock unless a lot is pinned, matching immediate-mode availability.
	ShelfFirst
)

// Request is one (lot, quantity) pair to convert into a sale.
type Request struct {
	LotID    string
	Quantity int64
	// Claimed is true when the units are held by a reservation.
	Claimed bool
}

type Deduction struct {
	LotID         string
	Quantity      int64
	FromWarehouse int64
	FromShelf     int64
	Claimed       bool
	UnitPrice     decimal.Decimal
}

// Plan validates every request against the locked lots and returns the
// deductions without mutating anything. Requests on the same lot are summed
// for the availability check.
func Plan(locked map[string]*lots.Lot, reqs []Request, src Source, now time.Time) ([]Deduction, error) {
	used := map[string]struct{ shelf, warehouse, claimed int64 }{}
	out := make([]Deduction, 0, len(reqs))
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, fmt.Errorf("lot %s: %w", r.LotID, apperr.ErrInvalidQuantity)
		}
		l, ok := locked[r.LotID]
		if !ok {
			return nil, fmt.Errorf("lot %s: %w", r.LotID, apperr.ErrLotNotFound)
		}
		u := used[r.LotID]
		shelf := max(l.Shelf-u.shelf, 0)
		warehouse := max(l.Warehouse-u.warehouse, 0)
		if shelf+warehouse < r.Quantity {
			return nil, &apperr.InsufficientStockError{ProductID: l.ProductID, LotID: l.ID, Shortfall: r.Quantity - shelf - warehouse}
		}
		held := l.Reserved - u.claimed
		if r.Claimed && held < r.Quantity {
			return nil, fmt.Errorf("lot %s: claim of %d exceeds reserved %d: %w",
				l.ID, r.Quantity, held, apperr.ErrCounterUnderflow)
		}
		if !r.Claimed {
			// Unclaimed sales may not dip into stock other orders hold.
			free := max(shelf+warehouse-held, 0)
			if free < r.Quantity {
				return nil, &apperr.InsufficientStockError{ProductID: l.ProductID, LotID: l.ID, Shortfall: r.Quantity - free}
			}
		}
		d := Deduction{LotID: r.LotID, Quantity: r.Quantity, Claimed: r.Claimed, UnitPrice: l.PriceAt(now)}
		if src == ShelfFirst {
			d.FromShelf = min(shelf, r.Quantity)
			d.FromWarehouse = r.Quantity - d.FromShelf
		} else {
			d.FromWarehouse = min(warehouse, r.Quantity)
			d.FromShelf = r.Quantity - d.FromWarehouse
		}
		u.shelf += d.FromShelf
		u.warehouse += d.FromWarehouse
		if r.Claimed {
			u.claimed += r.Quantity
		}
		used[r.LotID] = u
		out = append(out, d)
	}
	return out, nil
}

// Apply books validated deductions onto the locked lots.
func Apply(locked map[string]*lots.Lot, ds []Deduction) error {
	for _, d := range ds {
		l := locked[d.LotID]
		l.Warehouse -= d.FromWarehouse
		l.Shelf -= d.FromShelf
		l.Sold += d.Quantity
		if d.Claimed {
			l.Reserved -= d.Quantity
		}
	}
	for _, d := range ds {
		if err := locked[d.LotID].Conserved(); err != nil {
			return err
		}
	}
	return nil
}

// Change validates a cash payment against the amount due.
func Change(amountPaid, due decimal.Decimal) (decimal.Decimal, error) {
	if !amountPaid.IsPositive() {
		return decimal.Zero, apperr.ErrInvalidPayment
	}
	change := amountPaid.Round(2).Sub(due)
	if change.IsNegative() {
		return decimal.Zero, nil
	}
	return change.Round(2), nil
}
