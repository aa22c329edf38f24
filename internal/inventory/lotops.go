package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/allocation"
	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CancelLot retires a lot. Claims held on it by pending preorders are moved
// whole to the earliest-expiring eligible lot of the same product with room
// for them; if any claim has nowhere to go the lot is left untouched. The
// remaining stock is written off as lost with a zero-value audit record.
func (s *Service) CancelLot(ctx context.Context, lotID, reason, actor string) (lots.Adjustment, error) {
	var (
		adj       lots.Adjustment
		relocated []orders.RelocatedClaim
	)
	err := s.inTx(ctx, "cancel_lot", func(ctx context.Context, tx Tx) error {
		now := s.now()
		relocated = nil
		locked, err := tx.LockLots(ctx, []string{lotID})
		if err != nil {
			return err
		}
		target, ok := locked[lotID]
		if !ok {
			return fmt.Errorf("lot %s: %w", lotID, apperr.ErrLotNotFound)
		}
		if target.Status != lots.StatusActive {
			return fmt.Errorf("lot %s: %w", lotID, apperr.ErrLotNotActive)
		}
		if target.OnHand() <= 0 {
			return fmt.Errorf("lot %s: %w", lotID, apperr.ErrLotDepleted)
		}

		view, err := tx.ProductLots(ctx, target.ProductID)
		if err != nil {
			return err
		}
		pending, err := tx.PendingPreordersReferencing(ctx, lotID)
		if err != nil {
			return err
		}
		for i := range pending {
			o := &pending[i]
			for li := range o.Lines {
				for ai := range o.Lines[li].Allocations {
					a := &o.Lines[li].Allocations[ai]
					if a.LotID != lotID {
						continue
					}
					to, err := relocationTarget(view, target, a.BaseQuantity, now)
					if err != nil {
						return fmt.Errorf("order %s: %w", o.OrderNumber, err)
					}
					to.Reserved += a.BaseQuantity
					relocated = append(relocated, orders.RelocatedClaim{
						OrderID: o.ID, FromLot: lotID, ToLot: to.ID, Qty: a.BaseQuantity,
					})
					a.LotID = to.ID
				}
			}
		}
		for i := range pending {
			o := &pending[i]
			if err := (ledger.Ledger{}).Rebalance(ctx, tx, o.ID, claimsOf(o)); err != nil {
				return err
			}
			o.UpdatedAt = now
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			if err := s.orderEvent(ctx, tx, orders.EventOrderUpdated, o, "lot "+lotID+" retired"); err != nil {
				return err
			}
		}

		// re-read: the rebalance above moved the claims off the lot
		locked, err = tx.LockLots(ctx, []string{lotID})
		if err != nil {
			return err
		}
		target = locked[lotID]
		written, err := target.Retire()
		if err != nil {
			return err
		}
		if err := tx.SaveLot(ctx, target); err != nil {
			return err
		}

		adj = lots.Adjustment{
			ID:        uuid.NewString(),
			LotID:     target.ID,
			ProductID: target.ProductID,
			Kind:      lots.AdjustmentWriteOff,
			Quantity:  written,
			Amount:    decimal.Zero,
			Reason:    reason,
			Actor:     actor,
			Relocated: len(relocated),
			CreatedAt: now,
		}
		if err := tx.InsertAdjustment(ctx, adj); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, "lot", target.ID, orders.EventLotRetired, orders.LotRetiredPayload{
			LotID:      target.ID,
			ProductID:  target.ProductID,
			WrittenOff: written,
			Amount:     adj.Amount,
			Reason:     reason,
			Relocated:  relocated,
		})
	})
	if err != nil {
		return lots.Adjustment{}, err
	}
	s.log().Info("lot retired", zap.String("lot_id", lotID), zap.Int64("written_off", adj.Quantity),
		zap.Int("claims_relocated", len(relocated)), zap.String("actor", actor))
	return adj, nil
}

// relocationTarget picks the earliest-expiring eligible sibling of from with
// room for the whole claim. The returned pointer aliases view so repeated
// calls see earlier relocations.
func relocationTarget(view []lots.Lot, from *lots.Lot, qty int64, now time.Time) (*lots.Lot, error) {
	for _, c := range allocation.Candidates(view, from.ProductID, now, from.ID) {
		if c.Free() < qty {
			continue
		}
		for i := range view {
			if view[i].ID == c.ID {
				return &view[i], nil
			}
		}
	}
	return nil, fmt.Errorf("claim of %d on lot %s: %w", qty, from.ID, apperr.ErrNoRelocationTarget)
}
