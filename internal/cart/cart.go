// Package cart resolves the shopping carts that preorders are created from.
package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
)

type Item struct {
	ProductID string `json:"product_id"`
	UnitName  string `json:"unit"`
	Quantity  int64  `json:"quantity"`
}

type Cart struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Items      []Item `json:"items"`
}

type Source interface {
	Get(ctx context.Context, id string) (Cart, error)
	// Delete removes a converted cart. Deleting a missing cart is not an error.
	Delete(ctx context.Context, id string) error
}

// Memory is a process-local cart source for the memory driver and tests.
type Memory struct {
	mu    sync.Mutex
	carts map[string]Cart
}

func NewMemory(cs ...Cart) *Memory {
	m := &Memory{carts: map[string]Cart{}}
	for _, c := range cs {
		m.carts[c.ID] = c
	}
	return m
}

func (m *Memory) Put(c Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.ID] = c
}

func (m *Memory) Get(_ context.Context, id string) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return Cart{}, fmt.Errorf("cart %s: %w", id, apperr.ErrCartNotFound)
	}
	c.Items = append([]Item(nil), c.Items...)
	return c, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, id)
	return nil
}
