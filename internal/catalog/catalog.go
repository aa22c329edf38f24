// Package catalog reads product unit tables. Quantities entered in a
// customer-facing unit are converted to base units here.
package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

type Unit struct {
	Name      string          `json:"name"`
	Ratio     decimal.Decimal `json:"ratio"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// Units is a product's unit table in display order.
type Units []Unit

func (us Units) Base() (Unit, error) {
	for _, u := range us {
		if u.Ratio.Equal(decimal.NewFromInt(1)) {
			return u, nil
		}
	}
	return Unit{}, apperr.ErrNoBaseUnit
}

func (us Units) Find(name string) (Unit, error) {
	for _, u := range us {
		if u.Name == name {
			return u, nil
		}
	}
	return Unit{}, fmt.Errorf("unit %q: %w", name, apperr.ErrUnitNotFound)
}

// Source is the read side of the product catalog.
type Source interface {
	Units(ctx context.Context, productID string) (Units, error)
}

// Resolve validates the product's unit table and converts quantity in the
// named unit into base units. The result must be a positive whole number.
func Resolve(ctx context.Context, src Source, productID, unitName string, quantity int64) (Unit, int64, error) {
	if quantity <= 0 {
		return Unit{}, 0, fmt.Errorf("product %s: %w", productID, apperr.ErrInvalidQuantity)
	}
	us, err := src.Units(ctx, productID)
	if err != nil {
		return Unit{}, 0, err
	}
	if _, err := us.Base(); err != nil {
		return Unit{}, 0, fmt.Errorf("product %s: %w", productID, err)
	}
	u, err := us.Find(unitName)
	if err != nil {
		return Unit{}, 0, fmt.Errorf("product %s: %w", productID, err)
	}
	if !u.Ratio.IsPositive() {
		return Unit{}, 0, fmt.Errorf("product %s unit %s ratio %s: %w", productID, u.Name, u.Ratio, apperr.ErrInvalidQuantity)
	}
	base := u.Ratio.Mul(decimal.NewFromInt(quantity))
	if !base.Equal(base.Truncate(0)) {
		return Unit{}, 0, fmt.Errorf("product %s: %d %s is %s base units: %w",
			productID, quantity, u.Name, base, apperr.ErrInvalidQuantity)
	}
	if base.GreaterThan(maxBase) {
		return Unit{}, 0, fmt.Errorf("product %s: %d %s overflows base units: %w",
			productID, quantity, u.Name, apperr.ErrInvalidQuantity)
	}
	return u, base.IntPart(), nil
}

var maxBase = decimal.NewFromInt(math.MaxInt64)

// Static is a fixed catalog, used by the in-memory driver and tests.
type Static map[string]Units

func (s Static) Units(_ context.Context, productID string) (Units, error) {
	us, ok := s[productID]
	if !ok || len(us) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrProductNotFound)
	}
	return us, nil
}
