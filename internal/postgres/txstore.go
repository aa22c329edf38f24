package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// txStore is the engine's view of one open transaction. Lots are always
// locked in id order so two writers touching the same lots cannot deadlock.
type txStore struct {
	tx pgx.Tx
}

func (t *txStore) ProductLots(ctx context.Context, productID string) ([]lots.Lot, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+lotCols+` FROM lots
		WHERE product_id=$1 ORDER BY id FOR UPDATE`, productID)
	if err != nil {
		return nil, mapErr("lots.lock_product", err)
	}
	return collectLots(rows, "lots.lock_product")
}

func (t *txStore) LockLots(ctx context.Context, ids []string) (map[string]*lots.Lot, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+lotCols+` FROM lots
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, mapErr("lots.lock", err)
	}
	ls, err := collectLots(rows, "lots.lock")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*lots.Lot, len(ls))
	for i := range ls {
		out[ls[i].ID] = &ls[i]
	}
	return out, nil
}

func (t *txStore) SaveLot(ctx context.Context, l *lots.Lot) error {
	if err := l.Conserved(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		UPDATE lots SET status=$2, sold_qty=$3, reserved_qty=$4, shelf_qty=$5,
			warehouse_qty=$6, lost_qty=$7, version=version+1, updated_at=now()
		WHERE id=$1
		RETURNING version, updated_at`,
		l.ID, string(l.Status), l.Sold, l.Reserved, l.Shelf, l.Warehouse, l.Lost,
	).Scan(&l.Version, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lot %s: %w", l.ID, apperr.ErrLotNotFound)
	}
	return mapErr("lots.save", err)
}

func (t *txStore) Claims(ctx context.Context, orderID string) (ledger.Claims, error) {
	rows, err := t.tx.Query(ctx, `SELECT lot_id, quantity FROM reservations WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, mapErr("reservations.get", err)
	}
	return collectClaims(rows)
}

func (t *txStore) PutClaims(ctx context.Context, orderID string, c ledger.Claims) error {
	var released bool
	if err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservation_releases WHERE order_id=$1)`, orderID,
	).Scan(&released); err != nil {
		return mapErr("reservations.put", err)
	}
	if released {
		return fmt.Errorf("order %s claims already released: %w", orderID, apperr.ErrIllegalTransition)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM reservations WHERE order_id=$1`, orderID)
	for _, id := range c.LotIDs() {
		q := c[id]
		if q < 0 {
			return fmt.Errorf("claim on lot %s: %w", id, apperr.ErrCounterUnderflow)
		}
		if q == 0 {
			continue
		}
		batch.Queue(`INSERT INTO reservations (order_id, lot_id, quantity) VALUES ($1,$2,$3)`, orderID, id, q)
	}
	return mapErr("reservations.put", t.tx.SendBatch(ctx, batch).Close())
}

// ReleaseClaims writes the release marker first; only the caller that
// inserts it gets the claims back.
func (t *txStore) ReleaseClaims(ctx context.Context, orderID string) (ledger.Claims, bool, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO reservation_releases (order_id) VALUES ($1) ON CONFLICT DO NOTHING`, orderID)
	if err != nil {
		return nil, false, mapErr("reservations.release", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}
	rows, err := t.tx.Query(ctx,
		`DELETE FROM reservations WHERE order_id=$1 RETURNING lot_id, quantity`, orderID)
	if err != nil {
		return nil, false, mapErr("reservations.release", err)
	}
	held, err := collectClaims(rows)
	if err != nil {
		return nil, false, err
	}
	return held, true, nil
}

func collectClaims(rows pgx.Rows) (ledger.Claims, error) {
	defer rows.Close()
	out := ledger.Claims{}
	for rows.Next() {
		var lotID string
		var qty int64
		if err := rows.Scan(&lotID, &qty); err != nil {
			return nil, mapErr("reservations.scan", err)
		}
		out.Add(lotID, qty)
	}
	return out, mapErr("reservations.scan", rows.Err())
}

func (t *txStore) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, apperr.ErrOrderNotFound)
	}
	return o, mapErr("orders.lock", err)
}

func (t *txStore) InsertOrder(ctx context.Context, o *orders.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("order %s lines: %w", o.ID, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, type, status, payment_status, payment_method,
			customer_id, employee_id, note, lines, total_amount, discount_amount, tax_rate,
			tax_amount, final_amount, amount_paid, change_amount, expiration_date, cancel_reason,
			version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1,$20,$21)`,
		o.ID, o.OrderNumber, string(o.Type), string(o.Status), string(o.PaymentStatus),
		string(o.PaymentMethod), o.CustomerID, o.EmployeeID, o.Note, lines,
		o.TotalAmount, o.DiscountAmt, o.TaxRate, o.TaxAmount, o.FinalAmount, o.AmountPaid,
		o.ChangeAmount, o.ExpirationDate, o.CancelReason, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return mapErr("orders.insert", err)
	}
	o.Version = 1
	return nil
}

func (t *txStore) UpdateOrder(ctx context.Context, o *orders.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("order %s lines: %w", o.ID, err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$3, payment_status=$4, payment_method=$5, note=$6, lines=$7,
			total_amount=$8, discount_amount=$9, tax_rate=$10, tax_amount=$11, final_amount=$12,
			amount_paid=$13, change_amount=$14, expiration_date=$15, cancel_reason=$16,
			version=version+1, updated_at=$17
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.Note, lines, o.TotalAmount, o.DiscountAmt, o.TaxRate, o.TaxAmount, o.FinalAmount,
		o.AmountPaid, o.ChangeAmount, o.ExpirationDate, o.CancelReason, o.UpdatedAt)
	if err != nil {
		return mapErr("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return mapErr("orders.update", err)
		}
		if !exists {
			return fmt.Errorf("order %s: %w", o.ID, apperr.ErrOrderNotFound)
		}
		return fmt.Errorf("order %s version %d is stale: %w", o.ID, o.Version, apperr.ErrConflict)
	}
	o.Version++
	return nil
}

// PendingPreordersReferencing follows the reservation rows rather than the
// order lines; for a pending preorder the two always agree.
func (t *txStore) PendingPreordersReferencing(ctx context.Context, lotID string) ([]orders.Order, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+orderCols+` FROM orders o
		WHERE o.type='preorder' AND o.status='pending'
		  AND EXISTS (SELECT 1 FROM reservations r WHERE r.order_id=o.id AND r.lot_id=$1)
		ORDER BY o.created_at, o.id
		FOR UPDATE`, lotID)
	if err != nil {
		return nil, mapErr("orders.referencing", err)
	}
	defer rows.Close()
	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapErr("orders.referencing", err)
		}
		out = append(out, o)
	}
	return out, mapErr("orders.referencing", rows.Err())
}

func (t *txStore) InsertAdjustment(ctx context.Context, a lots.Adjustment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_adjustments (id, lot_id, product_id, kind, quantity, amount, reason,
			actor, relocated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.LotID, a.ProductID, string(a.Kind), a.Quantity, a.Amount, a.Reason, a.Actor,
		a.Relocated, a.CreatedAt)
	return mapErr("adjustments.insert", err)
}

func (t *txStore) Enqueue(ctx context.Context, e outbox.Event) error {
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, topic, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')`,
		e.AggregateType, e.AggregateID, e.Type, e.Topic, e.Payload, headers, e.Traceparent)
	return mapErr("outbox.enqueue", err)
}
