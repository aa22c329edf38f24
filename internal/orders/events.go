package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderUpdated   = "OrderUpdated"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
	EventLotRetired     = "LotRetired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "lot-orders-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order or lot id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type LineQty struct {
	ProductID    string `json:"product_id"`
	Quantity     int64  `json:"quantity"`
	Unit         string `json:"unit"`
	BaseQuantity int64  `json:"base_quantity"`
}

// OrderChangedPayload is shared by created, updated, completed and cancelled
// events; consumers only need the status snapshot.
type OrderChangedPayload struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Type          Type            `json:"type"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	Version       int64           `json:"version"`
	Lines         []LineQty       `json:"lines,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

type RelocatedClaim struct {
	OrderID string `json:"order_id"`
	FromLot string `json:"from_lot"`
	ToLot   string `json:"to_lot"`
	Qty     int64  `json:"qty"`
}

type LotRetiredPayload struct {
	LotID      string           `json:"lot_id"`
	ProductID  string           `json:"product_id"`
	WrittenOff int64            `json:"written_off"`
	Amount     decimal.Decimal  `json:"amount"`
	Reason     string           `json:"reason"`
	Relocated  []RelocatedClaim `json:"relocated,omitempty"`
}

// ChangedPayload snapshots o for an order event.
func ChangedPayload(o *Order, reason string) OrderChangedPayload {
	p := OrderChangedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Type:          o.Type,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		FinalAmount:   o.FinalAmount,
		Version:       o.Version,
		Reason:        reason,
	}
	for _, l := range o.Lines {
		p.Lines = append(p.Lines, LineQty{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			Unit:         l.Unit.Name,
			BaseQuantity: l.BaseQuantity(),
		})
	}
	return p
}
