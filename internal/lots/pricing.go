package lots

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountPolicy is a percentage markdown, optionally bounded by a window.
type DiscountPolicy struct {
	Percent  decimal.Decimal `json:"percent"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
	EndsAt   *time.Time      `json:"ends_at,omitempty"`
}

// ActiveAt reports whether the markdown applies at t.
func (d DiscountPolicy) ActiveAt(t time.Time) bool {
	if !d.Percent.IsPositive() {
		return false
	}
	if d.StartsAt != nil && t.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && !t.Before(*d.EndsAt) {
		return false
	}
	return true
}

// PriceAt returns the per-base-unit price realised at t.
func (l *Lot) PriceAt(t time.Time) decimal.Decimal {
	if !l.Discount.ActiveAt(t) {
		return l.UnitPrice.Round(2)
	}
	pct := decimal.Min(l.Discount.Percent, hundred)
	factor := hundred.Sub(pct).Div(hundred)
	return l.UnitPrice.Mul(factor).Round(2)
}
