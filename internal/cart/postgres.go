package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PG struct{ DB *pgxpool.Pool }

func (p *PG) Get(ctx context.Context, id string) (Cart, error) {
	c := Cart{ID: id}
	err := p.DB.QueryRow(ctx, `SELECT customer_id FROM carts WHERE id=$1`, id).Scan(&c.CustomerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, fmt.Errorf("cart %s: %w", id, apperr.ErrCartNotFound)
	}
	if err != nil {
		return Cart{}, apperr.Storage("cart.get", err)
	}

	rows, err := p.DB.Query(ctx, `
		SELECT product_id, unit_name, quantity FROM cart_items
		WHERE cart_id=$1 ORDER BY position`, id)
	if err != nil {
		return Cart{}, apperr.Storage("cart.items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.UnitName, &it.Quantity); err != nil {
			return Cart{}, apperr.Storage("cart.items", err)
		}
		c.Items = append(c.Items, it)
	}
	return c, apperr.Storage("cart.items", rows.Err())
}

func (p *PG) Delete(ctx context.Context, id string) error {
	// cart_items cascade
	_, err := p.DB.Exec(ctx, `DELETE FROM carts WHERE id=$1`, id)
	return apperr.Storage("cart.delete", err)
}
