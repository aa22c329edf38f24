package httpx

import (
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/shopspring/decimal"
)

// LotView is the wire form of a lot, with the derived figures a clerk needs.
type LotView struct {
	ID         string              `json:"id"`
	ProductID  string              `json:"product_id"`
	ExpiryDate time.Time           `json:"expiry_date"`
	Status     lots.Status         `json:"status"`
	UnitPrice  decimal.Decimal     `json:"unit_price"`
	Discount   lots.DiscountPolicy `json:"discount"`
	Initial    int64               `json:"initial"`
	Sold       int64               `json:"sold"`
	Reserved   int64               `json:"reserved"`
	Shelf      int64               `json:"shelf"`
	Warehouse  int64               `json:"warehouse"`
	Lost       int64               `json:"lost"`
	OnHand     int64               `json:"on_hand"`
	Free       int64               `json:"free"`
	Version    int64               `json:"version"`
}

func lotView(l lots.Lot) LotView {
	return LotView{
		ID:         l.ID,
		ProductID:  l.ProductID,
		ExpiryDate: l.ExpiryDate,
		Status:     l.Status,
		UnitPrice:  l.UnitPrice,
		Discount:   l.Discount,
		Initial:    l.Initial,
		Sold:       l.Sold,
		Reserved:   l.Reserved,
		Shelf:      l.Shelf,
		Warehouse:  l.Warehouse,
		Lost:       l.Lost,
		OnHand:     l.OnHand(),
		Free:       l.Free(),
		Version:    l.Version,
	}
}
