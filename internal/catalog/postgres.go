package catalog

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PG struct{ DB *pgxpool.Pool }

func (p *PG) Units(ctx context.Context, productID string) (Units, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT name, ratio::text, sale_price::text
		FROM product_units WHERE product_id=$1 ORDER BY position, name`, productID)
	if err != nil {
		return nil, apperr.Storage("catalog.units", err)
	}
	defer rows.Close()

	var out Units
	for rows.Next() {
		var name, ratio, price string
		if err := rows.Scan(&name, &ratio, &price); err != nil {
			return nil, apperr.Storage("catalog.units", err)
		}
		u := Unit{Name: name}
		if u.Ratio, err = decimal.NewFromString(ratio); err != nil {
			return nil, apperr.Storage("catalog.units", err)
		}
		if u.SalePrice, err = decimal.NewFromString(price); err != nil {
			return nil, apperr.Storage("catalog.units", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("catalog.units", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
	}
	return out, nil
}
