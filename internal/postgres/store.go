package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultLockTimeout = 3 * time.Second

// Store keeps lots, orders, reservation rows and the outbox in one database
// so every engine transaction commits them together.
type Store struct {
	log         *zap.Logger
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewStore(log *zap.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool, lockTimeout: DefaultLockTimeout}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// InsertLot records a received lot. Seq is assigned by the database.
func (s *Store) InsertLot(ctx context.Context, l *lots.Lot) error {
	if err := l.Conserved(); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO lots (id, product_id, expiry_date, status, unit_price, discount_percent,
			discount_starts_at, discount_ends_at, initial_qty, sold_qty, reserved_qty,
			shelf_qty, warehouse_qty, lost_qty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING seq, version, created_at, updated_at`,
		l.ID, l.ProductID, l.ExpiryDate, string(l.Status), l.UnitPrice, l.Discount.Percent,
		l.Discount.StartsAt, l.Discount.EndsAt, l.Initial, l.Sold, l.Reserved,
		l.Shelf, l.Warehouse, l.Lost,
	).Scan(&l.Seq, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	return mapErr("lots.insert", err)
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, apperr.ErrOrderNotFound)
	}
	return o, mapErr("orders.get", err)
}

func (s *Store) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	f = f.Normalized()
	where, args := filterSQL(f)
	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("orders.list", err)
	}
	defer rows.Close()
	out := []orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapErr("orders.list", err)
		}
		out = append(out, o)
	}
	return out, mapErr("orders.list", rows.Err())
}

func filterSQL(f orders.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", string(f.PaymentStatus))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		add("(order_number ILIKE $%[1]d OR customer_id ILIKE $%[1]d OR employee_id ILIKE $%[1]d)", "%"+q+"%")
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) GetLot(ctx context.Context, id string) (lots.Lot, error) {
	l, err := scanLot(s.pool.QueryRow(ctx, `SELECT `+lotCols+` FROM lots WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return lots.Lot{}, fmt.Errorf("lot %s: %w", id, apperr.ErrLotNotFound)
	}
	return l, mapErr("lots.get", err)
}

func (s *Store) ListLots(ctx context.Context, productID string) ([]lots.Lot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+lotCols+` FROM lots
		WHERE product_id=$1 ORDER BY expiry_date, seq, id`, productID)
	if err != nil {
		return nil, mapErr("lots.list", err)
	}
	return collectLots(rows, "lots.list")
}

func (s *Store) ExpiredPreorderIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE type='preorder' AND status='pending' AND expiration_date <= $1
		ORDER BY id`, now)
	if err != nil {
		return nil, mapErr("orders.expired", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, mapErr("orders.expired", err)
}

type scanner interface {
	Scan(dest ...any) error
}

const lotCols = `id, product_id, seq, expiry_date, status, unit_price::text, discount_percent::text,
	discount_starts_at, discount_ends_at, initial_qty, sold_qty, reserved_qty, shelf_qty,
	warehouse_qty, lost_qty, version, created_at, updated_at`

func scanLot(row scanner) (lots.Lot, error) {
	var (
		l             lots.Lot
		status        string
		price, discPc string
	)
	err := row.Scan(&l.ID, &l.ProductID, &l.Seq, &l.ExpiryDate, &status, &price, &discPc,
		&l.Discount.StartsAt, &l.Discount.EndsAt, &l.Initial, &l.Sold, &l.Reserved, &l.Shelf,
		&l.Warehouse, &l.Lost, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return lots.Lot{}, err
	}
	l.Status = lots.Status(status)
	if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return lots.Lot{}, err
	}
	if l.Discount.Percent, err = decimal.NewFromString(discPc); err != nil {
		return lots.Lot{}, err
	}
	return l, nil
}

func collectLots(rows pgx.Rows, op string) ([]lots.Lot, error) {
	defer rows.Close()
	var out []lots.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, l)
	}
	return out, mapErr(op, rows.Err())
}

const orderCols = `id, order_number, type, status, payment_status, payment_method, customer_id,
	employee_id, note, lines, total_amount::text, discount_amount::text, tax_rate::text,
	tax_amount::text, final_amount::text, amount_paid::text, change_amount::text,
	expiration_date, cancel_reason, version, created_at, updated_at`

func scanOrder(row scanner) (orders.Order, error) {
	var (
		o                        orders.Order
		typ, status, pay, method string
		lines                    []byte
		total, disc, rate, tax   string
		final, paid, change      string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &typ, &status, &pay, &method, &o.CustomerID,
		&o.EmployeeID, &o.Note, &lines, &total, &disc, &rate, &tax, &final, &paid, &change,
		&o.ExpirationDate, &o.CancelReason, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, err
	}
	o.Type = orders.Type(typ)
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(pay)
	o.PaymentMethod = orders.PaymentMethod(method)
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return orders.Order{}, fmt.Errorf("order %s lines: %w", o.ID, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.TotalAmount, total}, {&o.DiscountAmt, disc}, {&o.TaxRate, rate}, {&o.TaxAmount, tax},
		{&o.FinalAmount, final}, {&o.AmountPaid, paid}, {&o.ChangeAmount, change},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return orders.Order{}, fmt.Errorf("order %s amounts: %w", o.ID, err)
		}
	}
	return o, nil
}
