package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/allocation"
	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/fulfillment"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ReasonExpired   = "expired"
	ReasonCancelled = "cancelled by request"
)

// CreatePreorderFromCart reserves stock for every cart item and records the
// claims together with the order. The cart is deleted after commit.
func (s *Service) CreatePreorderFromCart(ctx context.Context, cartID string, expirationDays int) (orders.Order, error) {
	c, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		return orders.Order{}, err
	}
	if expirationDays <= 0 {
		expirationDays = s.ExpirationDays
	}
	if expirationDays <= 0 {
		expirationDays = DefaultExpirationDays
	}
	rls, err := s.resolve(ctx, cartLines(c))
	if err != nil {
		return orders.Order{}, err
	}

	var out orders.Order
	err = s.inTx(ctx, "create_preorder", func(ctx context.Context, tx Tx) error {
		now := s.now()
		view, err := s.lockProducts(ctx, tx, productIDs(rls), now)
		if err != nil {
			return err
		}
		exp := now.Add(time.Duration(expirationDays) * 24 * time.Hour)
		o := orders.Order{
			ID:             uuid.NewString(),
			OrderNumber:    uuid.NewString(),
			Type:           orders.TypePreorder,
			Status:         orders.StatusPending,
			PaymentStatus:  orders.PaymentUnpaid,
			CustomerID:     c.CustomerID,
			ExpirationDate: &exp,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for _, rl := range rls {
			plan, err := planLine(view, rl, allocation.Reserve, now)
			if err != nil {
				return err
			}
			o.Lines = append(o.Lines, newLine(rl, plan))
		}
		o.Recalculate()
		if err := tx.InsertOrder(ctx, &o); err != nil {
			return err
		}
		if err := (ledger.Ledger{}).Reserve(ctx, tx, o.ID, claimsOf(&o)); err != nil {
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

	if err := s.Carts.Delete(ctx, cartID); err != nil {
		s.log().Warn("cart not deleted after preorder", zap.String("cart_id", cartID),
			zap.String("order_id", out.ID), zap.Error(err))
	}
	s.log().Info("preorder created", zap.String("order_id", out.ID),
		zap.Time("expires_at", *out.ExpirationDate))
	return out, nil
}

func cartLines(c cart.Cart) []LineInput {
	out := make([]LineInput, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, LineInput{ProductID: it.ProductID, Unit: it.UnitName, Quantity: it.Quantity})
	}
	return out
}

// UpdatePreorder replaces the lines of a pending preorder. Unchanged lines
// keep their lots and quoted prices; the ledger applies one delta per lot.
func (s *Service) UpdatePreorder(ctx context.Context, id string, in []LineInput) (orders.Order, error) {
	rls, err := s.resolve(ctx, in)
	if err != nil {
		return orders.Order{}, err
	}

	var out orders.Order
	err = s.inTx(ctx, "update_preorder", func(ctx context.Context, tx Tx) error {
		now := s.now()
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := o.Editable(); err != nil {
			return err
		}
		prev, err := tx.Claims(ctx, o.ID)
		if err != nil {
			return err
		}
		view, err := s.lockProducts(ctx, tx, productIDs(rls), now)
		if err != nil {
			return err
		}
		// The order's own claims are free for its new lines.
		for _, ls := range view {
			for i := range ls {
				ls[i].Reserved -= prev[ls[i].ID]
			}
		}

		reusable := append([]orders.Line(nil), o.Lines...)
		lines := make([]orders.Line, len(rls))
		fresh := make([]int, 0, len(rls))
		for i, rl := range rls {
			if k := reusableLine(reusable, rl); k >= 0 {
				lines[i] = reusable[k]
				reusable = append(reusable[:k], reusable[k+1:]...)
				allocation.Consume(view[rl.in.ProductID], planOf(lines[i]), allocation.Reserve)
				continue
			}
			fresh = append(fresh, i)
		}
		for _, i := range fresh {
			plan, err := planLine(view, rls[i], allocation.Reserve, now)
			if err != nil {
				return err
			}
			lines[i] = newLine(rls[i], plan)
		}

		o.Lines = lines
		o.Recalculate()
		o.UpdatedAt = now
		if err := (ledger.Ledger{}).Rebalance(ctx, tx, o.ID, claimsOf(&o)); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, &o); err != nil {
			return err
		}
		if err := s.orderEvent(ctx, tx, orders.EventOrderUpdated, &o, ""); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.log().Info("preorder updated", zap.String("order_id", out.ID), zap.Int("lines", len(out.Lines)))
	return out, nil
}

// reusableLine finds an existing line identical in product, unit and
// quantity. Lines with pinned lots are always re-planned.
func reusableLine(lines []orders.Line, rl resolvedLine) int {
	if len(rl.in.Lots) > 0 {
		return -1
	}
	for k, l := range lines {
		if l.ProductID == rl.in.ProductID && l.Unit.Name == rl.unit.Name && l.Quantity == rl.in.Quantity {
			return k
		}
	}
	return -1
}

func planOf(l orders.Line) allocation.Plan {
	p := allocation.Plan{ProductID: l.ProductID}
	for _, a := range l.Allocations {
		p.Picks = append(p.Picks, allocation.Pick{LotID: a.LotID, Quantity: a.BaseQuantity, QuotedPrice: a.QuotedPrice})
	}
	p.Required = p.Total()
	return p
}

// CompletePreorderPayment converts the preorder's claims into a sale,
// drawing warehouse stock before shelf stock.
func (s *Service) CompletePreorderPayment(ctx context.Context, id string, amountPaid decimal.Decimal) (orders.Order, error) {
	if !amountPaid.IsPositive() {
		return orders.Order{}, apperr.ErrInvalidPayment
	}
	var out orders.Order
	err := s.inTx(ctx, "complete_payment", func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := o.Payable(); err != nil {
			return err
		}
		if err := s.deduct(ctx, tx, &o, fulfillment.WarehouseFirst, true); err != nil {
			return err
		}
		if _, err := (ledger.Ledger{}).Convert(ctx, tx, o.ID); err != nil {
			return err
		}
		change, err := fulfillment.Change(amountPaid, o.FinalAmount)
		if err != nil {
			return err
		}
		if err := o.Transition(orders.StatusCompleted); err != nil {
			return err
		}
		o.PaymentStatus = orders.PaymentPaid
		o.AmountPaid = amountPaid.Round(2)
		o.ChangeAmount = change
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, &o); err != nil {
			return err
		}
		if err := s.orderEvent(ctx, tx, orders.EventOrderCompleted, &o, ""); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.log().Info("preorder paid", zap.String("order_id", out.ID),
		zap.String("amount_paid", out.AmountPaid.String()), zap.String("revenue", out.Revenue().String()))
	return out, nil
}

// CancelPreorder cancels a pending preorder and releases its claims.
func (s *Service) CancelPreorder(ctx context.Context, id, reason string) (orders.Order, error) {
	if reason == "" {
		reason = ReasonCancelled
	}
	var out orders.Order
	err := s.inTx(ctx, "cancel_preorder", func(ctx context.Context, tx Tx) error {
		o, err := s.cancel(ctx, tx, id, reason, nil)
		out = o
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.log().Info("preorder cancelled", zap.String("order_id", out.ID), zap.String("reason", reason))
	return out, nil
}

// cancel is the single cancellation path shared by explicit cancellation and
// the expiry sweep. When due is set the order is only cancelled if it is
// still pending and its expiration is at or before due.
func (s *Service) cancel(ctx context.Context, tx Tx, id, reason string, due *time.Time) (orders.Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Type != orders.TypePreorder {
		return orders.Order{}, apperr.ErrNotAPreorder
	}
	if due != nil && (o.ExpirationDate == nil || o.ExpirationDate.After(*due)) {
		return orders.Order{}, fmt.Errorf("order %s not yet due: %w", id, apperr.ErrIllegalTransition)
	}
	if err := o.Transition(orders.StatusCancelled); err != nil {
		return orders.Order{}, err
	}
	if _, err := (ledger.Ledger{}).Release(ctx, tx, o.ID); err != nil {
		return orders.Order{}, err
	}
	o.CancelReason = reason
	o.UpdatedAt = s.now()
	if err := tx.UpdateOrder(ctx, &o); err != nil {
		return orders.Order{}, err
	}
	if err := s.orderEvent(ctx, tx, orders.EventOrderCancelled, &o, reason); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

type SweepReport struct {
	Cancelled []string `json:"cancelled"`
	// Skipped orders changed state between listing and locking.
	Skipped []string          `json:"skipped,omitempty"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// SweepExpiredPreorders cancels every pending preorder whose expiration is at
// or before now. Each order is its own transaction; re-running it is a no-op.
func (s *Service) SweepExpiredPreorders(ctx context.Context, now time.Time) (SweepReport, error) {
	rep := SweepReport{Cancelled: []string{}}
	ids, err := s.Store.ExpiredPreorderIDs(ctx, now)
	if err != nil {
		return rep, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		err := s.inTx(ctx, "sweep_expired", func(ctx context.Context, tx Tx) error {
			_, err := s.cancel(ctx, tx, id, ReasonExpired, &now)
			return err
		})
		switch {
		case err == nil:
			rep.Cancelled = append(rep.Cancelled, id)
		case errors.Is(err, apperr.ErrIllegalTransition):
			// lost the race to a payment or cancellation
			rep.Skipped = append(rep.Skipped, id)
		default:
			if rep.Failed == nil {
				rep.Failed = map[string]string{}
			}
			rep.Failed[id] = err.Error()
			s.log().Error("expire preorder", zap.String("order_id", id), zap.Error(err))
		}
	}
	if len(ids) > 0 {
		s.log().Info("expiry sweep finished", zap.Int("cancelled", len(rep.Cancelled)),
			zap.Int("skipped", len(rep.Skipped)), zap.Int("failed", len(rep.Failed)))
	}
	return rep, nil
}

