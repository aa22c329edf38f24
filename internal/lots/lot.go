package lots

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// FreshnessHorizon withholds lots this close to expiry from new commitments.
const FreshnessHorizon = 14 * 24 * time.Hour

// Lot is one received batch of a product. All quantities are base units.
//
// Physical stock lives in exactly one of sold, shelf, warehouse or lost.
// Reserved is a claim held by pending preorders on the shelf+warehouse stock.
type Lot struct {
	ID        string
	ProductID string
	// Seq is the receiving order, used to break expiry ties.
	Seq        int64
	ExpiryDate time.Time
	Status     Status
	UnitPrice  decimal.Decimal
	Discount   DiscountPolicy

	Initial   int64
	Sold      int64
	Reserved  int64
	Shelf     int64
	Warehouse int64
	Lost      int64

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnHand is the physical stock still sellable.
func (l *Lot) OnHand() int64 { return l.Shelf + l.Warehouse }

// Eligible reports whether the lot may back a new commitment at now.
func (l *Lot) Eligible(now time.Time) bool {
	return l.Status == StatusActive && !l.ExpiryDate.Before(now.Add(FreshnessHorizon))
}

// CalendarExpired reports whether the expiry date has already passed.
func (l *Lot) CalendarExpired(now time.Time) bool {
	return l.ExpiryDate.Before(now)
}

// Free is the stock a new reservation may still claim.
func (l *Lot) Free() int64 {
	return clamp(l.Initial - l.Sold - l.Reserved - l.Lost)
}

// ShelfAvailable is what a walk-in sale may take without eating claimed stock.
func (l *Lot) ShelfAvailable() int64 {
	return min(clamp(l.Shelf), l.Free())
}

// Conserved checks the conservation law and the claim bound.
func (l *Lot) Conserved() error {
	if l.Sold < 0 || l.Reserved < 0 || l.Shelf < 0 || l.Warehouse < 0 || l.Lost < 0 {
		return fmt.Errorf("lot %s: %w (sold=%d reserved=%d shelf=%d warehouse=%d lost=%d)",
			l.ID, apperr.ErrCounterUnderflow, l.Sold, l.Reserved, l.Shelf, l.Warehouse, l.Lost)
	}
	if l.Initial != l.Sold+l.Shelf+l.Warehouse+l.Lost {
		return fmt.Errorf("lot %s: conservation broken: initial=%d sold=%d shelf=%d warehouse=%d lost=%d",
			l.ID, l.Initial, l.Sold, l.Shelf, l.Warehouse, l.Lost)
	}
	if l.Reserved > l.OnHand() {
		return fmt.Errorf("lot %s: reserved %d exceeds on-hand %d", l.ID, l.Reserved, l.OnHand())
	}
	return nil
}

// AdjustReserved applies a signed change to the claim counter.
func (l *Lot) AdjustReserved(delta int64) error {
	next := l.Reserved + delta
	if next < 0 {
		return fmt.Errorf("lot %s: %w: reserved %d%+d", l.ID, apperr.ErrCounterUnderflow, l.Reserved, delta)
	}
	if delta > 0 && delta > l.Free() {
		return &apperr.InsufficientStockError{ProductID: l.ProductID, LotID: l.ID, Shortfall: delta - l.Free()}
	}
	l.Reserved = next
	return nil
}

// Retire writes the remaining physical stock off as lost and expires the lot.
// Claims must have been moved away first.
func (l *Lot) Retire() (int64, error) {
	if l.Status != StatusActive {
		return 0, fmt.Errorf("lot %s: %w", l.ID, apperr.ErrLotNotActive)
	}
	if l.Reserved != 0 {
		return 0, fmt.Errorf("lot %s still holds %d reserved: %w", l.ID, l.Reserved, apperr.ErrNoRelocationTarget)
	}
	written := l.OnHand()
	l.Lost += written
	l.Shelf = 0
	l.Warehouse = 0
	l.Status = StatusExpired
	return written, nil
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
