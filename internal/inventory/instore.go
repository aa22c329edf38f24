package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-lot-orders/internal/allocation"
	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/fulfillment"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InstoreRequest struct {
	Lines         []LineInput          `json:"lines"`
	PaymentMethod orders.PaymentMethod `json:"payment_method"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	CustomerID    string               `json:"customer_id,omitempty"`
	EmployeeID    string               `json:"employee_id,omitempty"`
	Note          string               `json:"note,omitempty"`
}

// CreateInstoreOrder sells shelf stock at the till. The order is completed in
// the same transaction that deducts the stock.
func (s *Service) CreateInstoreOrder(ctx context.Context, req InstoreRequest) (orders.Order, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = orders.PaymentCash
	}
	if req.PaymentMethod == orders.PaymentCash && !req.AmountPaid.IsPositive() {
		return orders.Order{}, apperr.ErrInvalidPayment
	}
	if req.TaxRate.IsNegative() {
		return orders.Order{}, fmt.Errorf("tax rate %s: %w", req.TaxRate, apperr.ErrInvalidPayment)
	}
	rls, err := s.resolve(ctx, req.Lines)
	if err != nil {
		return orders.Order{}, err
	}

	var out orders.Order
	err = s.inTx(ctx, "create_instore", func(ctx context.Context, tx Tx) error {
		now := s.now()
		view, err := s.lockProducts(ctx, tx, productIDs(rls), now)
		if err != nil {
			return err
		}
		o := orders.Order{
			ID:            uuid.NewString(),
			OrderNumber:   uuid.NewString(),
			Type:          orders.TypeInstore,
			PaymentMethod: req.PaymentMethod,
			CustomerID:    req.CustomerID,
			EmployeeID:    req.EmployeeID,
			Note:          req.Note,
			TaxRate:       req.TaxRate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for _, rl := range rls {
			plan, err := planLine(view, rl, allocation.Immediate, now)
			if err != nil {
				return err
			}
			o.Lines = append(o.Lines, newLine(rl, plan))
		}
		if err := s.deduct(ctx, tx, &o, fulfillment.ShelfFirst, false); err != nil {
			return err
		}
		// A till sale is quoted and realized at the same moment.
		for i := range o.Lines {
			for j := range o.Lines[i].Allocations {
				a := &o.Lines[i].Allocations[j]
				a.QuotedPrice = *a.UnitPriceAtDeduction
			}
		}
		o.Recalculate()
		o.Status = orders.StatusCompleted
		if o.PaymentMethod == orders.PaymentCash {
			change, err := fulfillment.Change(req.AmountPaid, o.FinalAmount)
			if err != nil {
				return err
			}
			o.PaymentStatus = orders.PaymentPaid
			o.AmountPaid = req.AmountPaid.Round(2)
			o.ChangeAmount = change
		} else {
			o.PaymentStatus = orders.PaymentPending
		}
		if err := tx.InsertOrder(ctx, &o); err != nil {
			return err
		}
		if err := s.orderEvent(ctx, tx, orders.EventOrderCreated, &o, ""); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.log().Info("instore order completed",
		zap.String("order_id", out.ID), zap.String("final_amount", out.FinalAmount.String()))
	return out, nil
}

// deduct converts every allocation of o into a sale and freezes the
// deduction price on it. Nothing is written unless every lot can cover its
// share.
func (s *Service) deduct(ctx context.Context, tx Tx, o *orders.Order, src fulfillment.Source, claimed bool) error {
	var reqs []fulfillment.Request
	ids := ledger.Claims{}
	for _, l := range o.Lines {
		for _, a := range l.Allocations {
			reqs = append(reqs, fulfillment.Request{LotID: a.LotID, Quantity: a.BaseQuantity, Claimed: claimed})
			ids.Add(a.LotID, a.BaseQuantity)
		}
	}
	locked, err := tx.LockLots(ctx, ids.LotIDs())
	if err != nil {
		return err
	}
	ds, err := fulfillment.Plan(locked, reqs, src, s.now())
	if err != nil {
		return err
	}
	if err := fulfillment.Apply(locked, ds); err != nil {
		return err
	}
	for _, id := range ids.LotIDs() {
		if err := tx.SaveLot(ctx, locked[id]); err != nil {
			return err
		}
	}
	k := 0
	for i := range o.Lines {
		for j := range o.Lines[i].Allocations {
			price := ds[k].UnitPrice
			o.Lines[i].Allocations[j].UnitPriceAtDeduction = &price
			k++
		}
	}
	return nil
}
