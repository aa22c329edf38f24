package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// seedFile is the development fixture format for the memory driver.
type seedFile struct {
	Units map[string]catalog.Units `json:"units"`
	Lots  []seedLot                `json:"lots"`
	Carts []cart.Cart              `json:"carts"`
}

type seedLot struct {
	ID         string              `json:"id"`
	ProductID  string              `json:"product_id"`
	ExpiryDate time.Time           `json:"expiry_date"`
	UnitPrice  decimal.Decimal     `json:"unit_price"`
	Discount   lots.DiscountPolicy `json:"discount"`
	Shelf      int64               `json:"shelf"`
	Warehouse  int64               `json:"warehouse"`
}

func loadSeed(path string, store *memstore.Store, carts *cart.Memory, units catalog.Static) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f seedFile
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	for pid, us := range f.Units {
		units[pid] = us
	}
	now := time.Now().UTC()
	for _, s := range f.Lots {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		l := lots.Lot{
			ID:         s.ID,
			ProductID:  s.ProductID,
			ExpiryDate: s.ExpiryDate,
			Status:     lots.StatusActive,
			UnitPrice:  s.UnitPrice,
			Discount:   s.Discount,
			Initial:    s.Shelf + s.Warehouse,
			Shelf:      s.Shelf,
			Warehouse:  s.Warehouse,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := store.PutLot(l); err != nil {
			return fmt.Errorf("seed lot %s: %w", s.ID, err)
		}
	}
	for _, c := range f.Carts {
		carts.Put(c)
	}
	return nil
}
