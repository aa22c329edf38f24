package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeInstore  Type = "instore"
	TypePreorder Type = "preorder"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Type          Type            `json:"type"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	EmployeeID    string          `json:"employee_id,omitempty"`
	Note          string          `json:"note,omitempty"`
	Lines         []Line          `json:"lines"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DiscountAmt   decimal.Decimal `json:"discount_amount"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	// ExpirationDate is set on preorders only.
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Unit struct {
	Name  string          `json:"name"`
	Ratio decimal.Decimal `json:"ratio"`
}

type Line struct {
	ProductID         string          `json:"product_id"`
	Quantity          int64           `json:"quantity"`
	Unit              Unit            `json:"unit"`
	UnitPriceCharged  decimal.Decimal `json:"unit_price"`
	OriginalUnitPrice decimal.Decimal `json:"original_unit_price"`
	ItemTotal         decimal.Decimal `json:"item_total"`
	Allocations       []Allocation    `json:"batch_allocations"`
}

// Allocation is one lot backing a line. QuotedPrice is the per-base-unit
// price when the plan was built; UnitPriceAtDeduction is frozen when the
// stock is actually deducted and is the revenue figure.
type Allocation struct {
	LotID                string           `json:"lot_id"`
	BaseQuantity         int64            `json:"base_quantity"`
	QuotedPrice          decimal.Decimal  `json:"quoted_price"`
	UnitPriceAtDeduction *decimal.Decimal `json:"unit_price_at_deduction,omitempty"`
}

// BaseQuantity is the line size in base units.
func (l Line) BaseQuantity() int64 {
	var n int64
	for _, a := range l.Allocations {
		n += a.BaseQuantity
	}
	return n
}

// ClaimsByLot sums allocation quantities per lot across the whole order.
func (o *Order) ClaimsByLot() map[string]int64 {
	out := map[string]int64{}
	for _, l := range o.Lines {
		for _, a := range l.Allocations {
			out[a.LotID] += a.BaseQuantity
		}
	}
	return out
}

// References reports whether any allocation points at lotID.
func (o *Order) References(lotID string) bool {
	for _, l := range o.Lines {
		for _, a := range l.Allocations {
			if a.LotID == lotID {
				return true
			}
		}
	}
	return false
}

// Filter narrows ListOrders. Zero values match everything.
type Filter struct {
	Type          Type
	Status        Status
	PaymentStatus PaymentStatus
	From, To      *time.Time
	Search        string
	Limit         int
	Offset        int
}

const DefaultListLimit = 50

func (f Filter) Normalized() Filter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
