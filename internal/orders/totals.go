package orders

import "github.com/shopspring/decimal"

// Recalculate derives line and order totals from the quoted allocation
// prices. A preorder keeps the price it was quoted when created or edited;
// the deduction price is recorded separately for revenue.
// Money is rounded to cents at every stored figure.
//
// The customer always pays the lot prices. When those exceed the unit's
// sale price the difference is a markup and DiscountAmt goes negative, so
// FinalAmount still equals the sum of item totals plus tax.
func (o *Order) Recalculate() {
	total, discount := decimal.Zero, decimal.Zero
	for i := range o.Lines {
		l := &o.Lines[i]
		itemTotal := decimal.Zero
		for _, a := range l.Allocations {
			itemTotal = itemTotal.Add(a.QuotedPrice.Mul(decimal.NewFromInt(a.BaseQuantity)))
		}
		l.ItemTotal = itemTotal.Round(2)
		qty := decimal.NewFromInt(l.Quantity)
		if l.Quantity > 0 {
			l.UnitPriceCharged = l.ItemTotal.Div(qty).Round(2)
		}
		original := l.OriginalUnitPrice.Mul(qty).Round(2)
		total = total.Add(original)
		discount = discount.Add(original.Sub(l.ItemTotal))
	}
	o.TotalAmount = total.Round(2)
	o.DiscountAmt = discount.Round(2)
	o.TaxAmount = decimal.Zero
	if o.Type == TypeInstore {
		o.TaxAmount = o.TotalAmount.Sub(o.DiscountAmt).Mul(o.TaxRate).Round(2)
	}
	o.FinalAmount = o.TotalAmount.Sub(o.DiscountAmt).Add(o.TaxAmount).Round(2)
}

// Revenue sums the realized deduction prices. It is zero until the order's
// stock has been deducted.
func (o *Order) Revenue() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		for _, a := range l.Allocations {
			if a.UnitPriceAtDeduction != nil {
				sum = sum.Add(a.UnitPriceAtDeduction.Mul(decimal.NewFromInt(a.BaseQuantity)))
			}
		}
	}
	return sum.Round(2)
}
