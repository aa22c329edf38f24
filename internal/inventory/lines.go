package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/allocation"
	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"go.uber.org/zap"
)

// LotPick pins part of a line to a specific lot.
type LotPick struct {
	LotID        string `json:"lot_id"`
	BaseQuantity int64  `json:"base_quantity"`
}

type LineInput struct {
	ProductID string `json:"product_id"`
	Unit      string `json:"unit"`
	Quantity  int64  `json:"quantity"`
	// Lots, when set, replaces automatic allocation for this line.
	Lots []LotPick `json:"lots,omitempty"`
}

type resolvedLine struct {
	in   LineInput
	unit catalog.Unit
	base int64
}

// resolve checks every line against the catalog before any lock is taken.
func (s *Service) resolve(ctx context.Context, in []LineInput) ([]resolvedLine, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("order has no lines: %w", apperr.ErrInvalidQuantity)
	}
	out := make([]resolvedLine, 0, len(in))
	for _, li := range in {
		u, base, err := catalog.Resolve(ctx, s.Catalog, li.ProductID, li.Unit, li.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, resolvedLine{in: li, unit: u, base: base})
	}
	return out, nil
}

// lockProducts locks the lots of every product, in product id order, and
// flips lots whose expiry date has passed to expired.
func (s *Service) lockProducts(ctx context.Context, tx Tx, productIDs []string, now time.Time) (map[string][]lots.Lot, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)
	view := make(map[string][]lots.Lot, len(ids))
	for _, pid := range ids {
		if _, done := view[pid]; done {
			continue
		}
		ls, err := tx.ProductLots(ctx, pid)
		if err != nil {
			return nil, err
		}
		for i := range ls {
			if ls[i].Status != lots.StatusActive || !ls[i].CalendarExpired(now) {
				continue
			}
			ls[i].Status = lots.StatusExpired
			if err := tx.SaveLot(ctx, &ls[i]); err != nil {
				return nil, err
			}
			s.log().Info("lot past expiry marked expired",
				zap.String("lot_id", ls[i].ID), zap.String("product_id", pid))
		}
		view[pid] = ls
	}
	return view, nil
}

func productIDs(rls []resolvedLine) []string {
	out := make([]string, 0, len(rls))
	for _, rl := range rls {
		out = append(out, rl.in.ProductID)
	}
	return out
}

// planLine allocates one line against the working view and marks the plan as
// taken so later lines of the same order see the reduced capacity.
func planLine(view map[string][]lots.Lot, rl resolvedLine, mode allocation.Mode, now time.Time) (allocation.Plan, error) {
	ls := view[rl.in.ProductID]
	var (
		plan allocation.Plan
		err  error
	)
	if len(rl.in.Lots) == 0 {
		plan, err = allocation.Allocate(ls, rl.in.ProductID, rl.base, mode, now)
	} else {
		plan, err = pinned(ls, rl, mode, now)
	}
	if err != nil {
		return allocation.Plan{}, err
	}
	allocation.Consume(ls, plan, mode)
	return plan, nil
}

// pinned validates caller-chosen lots. Capacity is enforced downstream by the
// ledger or the fulfillment engine, which see every line of the order.
// Reservations honour the freshness horizon like allocated plans; a till
// sale only needs an active lot.
func pinned(ls []lots.Lot, rl resolvedLine, mode allocation.Mode, now time.Time) (allocation.Plan, error) {
	plan := allocation.Plan{ProductID: rl.in.ProductID, Required: rl.base}
	var sum int64
	for _, p := range rl.in.Lots {
		if p.BaseQuantity <= 0 {
			return allocation.Plan{}, fmt.Errorf("lot %s: %w", p.LotID, apperr.ErrInvalidQuantity)
		}
		var l *lots.Lot
		for i := range ls {
			if ls[i].ID == p.LotID {
				l = &ls[i]
				break
			}
		}
		if l == nil {
			return allocation.Plan{}, fmt.Errorf("lot %s of product %s: %w", p.LotID, rl.in.ProductID, apperr.ErrLotNotFound)
		}
		if l.Status != lots.StatusActive {
			return allocation.Plan{}, fmt.Errorf("lot %s: %w", l.ID, apperr.ErrLotNotActive)
		}
		if mode == allocation.Reserve && !l.Eligible(now) {
			return allocation.Plan{}, fmt.Errorf("lot %s expires %s: %w",
				l.ID, l.ExpiryDate.Format(time.DateOnly), apperr.ErrLotIneligible)
		}
		sum += p.BaseQuantity
		plan.Picks = append(plan.Picks, allocation.Pick{LotID: l.ID, Quantity: p.BaseQuantity, QuotedPrice: l.PriceAt(now)})
	}
	if sum != rl.base {
		return allocation.Plan{}, fmt.Errorf("product %s: lots cover %d of %d base units: %w",
			rl.in.ProductID, sum, rl.base, apperr.ErrInvalidAllocation)
	}
	return plan, nil
}

func newLine(rl resolvedLine, plan allocation.Plan) orders.Line {
	l := orders.Line{
		ProductID:         rl.in.ProductID,
		Quantity:          rl.in.Quantity,
		Unit:              orders.Unit{Name: rl.unit.Name, Ratio: rl.unit.Ratio},
		OriginalUnitPrice: rl.unit.SalePrice,
		Allocations:       make([]orders.Allocation, 0, len(plan.Picks)),
	}
	for _, pk := range plan.Picks {
		l.Allocations = append(l.Allocations, orders.Allocation{
			LotID:        pk.LotID,
			BaseQuantity: pk.Quantity,
			QuotedPrice:  pk.QuotedPrice,
		})
	}
	return l
}

func claimsOf(o *orders.Order) ledger.Claims {
	c := ledger.Claims{}
	for id, q := range o.ClaimsByLot() {
		c.Add(id, q)
	}
	return c
}
