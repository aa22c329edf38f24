package lots

import (
	"time"

	"github.com/shopspring/decimal"
)

type AdjustmentKind string

const AdjustmentWriteOff AdjustmentKind = "write_off"

// Adjustment is the zero-value audit row left behind when stock leaves the
// sellable pools without being sold.
type Adjustment struct {
	ID        string          `json:"id"`
	LotID     string          `json:"lot_id"`
	ProductID string          `json:"product_id"`
	Kind      AdjustmentKind  `json:"kind"`
	Quantity  int64           `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Actor     string          `json:"actor,omitempty"`
	// Relocated counts the claims moved to other lots before the write-off.
	Relocated int       `json:"relocated"`
	CreatedAt time.Time `json:"created_at"`
}
