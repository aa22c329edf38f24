// Package memstore is an in-process store for development and tests.
// Transactions run one at a time against a private copy of the state that
// replaces the live state only on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/ledger"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/outbox"
)

type state struct {
	lots        map[string]lots.Lot
	orders      map[string]orders.Order
	claims      map[string]ledger.Claims
	released    map[string]bool
	adjustments []lots.Adjustment
	events      []outbox.Event
	nextEvent   int64
	seq         int64
}

func newState() *state {
	return &state{
		lots:     map[string]lots.Lot{},
		orders:   map[string]orders.Order{},
		claims:   map[string]ledger.Claims{},
		released: map[string]bool{},
	}
}

func (s *state) clone() *state {
	c := &state{
		lots:        make(map[string]lots.Lot, len(s.lots)),
		orders:      make(map[string]orders.Order, len(s.orders)),
		claims:      make(map[string]ledger.Claims, len(s.claims)),
		released:    make(map[string]bool, len(s.released)),
		adjustments: append([]lots.Adjustment(nil), s.adjustments...),
		events:      append([]outbox.Event(nil), s.events...),
		nextEvent:   s.nextEvent,
		seq:         s.seq,
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.claims {
		c.claims[k] = cloneClaims(v)
	}
	for k, v := range s.released {
		c.released[k] = v
	}
	return c
}

func cloneOrder(o orders.Order) orders.Order {
	lines := make([]orders.Line, len(o.Lines))
	for i, l := range o.Lines {
		l.Allocations = append([]orders.Allocation(nil), l.Allocations...)
		lines[i] = l
	}
	o.Lines = lines
	return o
}

func cloneClaims(c ledger.Claims) ledger.Claims {
	out := make(ledger.Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

// PutLot seeds or replaces a lot outside any transaction.
func (s *Store) PutLot(l lots.Lot) error {
	if err := l.Conserved(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Seq == 0 {
		s.st.seq++
		l.Seq = s.st.seq
	}
	s.st.lots[l.ID] = l
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, apperr.ErrOrderNotFound)
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.Filter) ([]orders.Order, error) {
	f = f.Normalized()
	s.mu.Lock()
	var out []orders.Order
	for _, o := range s.st.orders {
		if matches(o, f) {
			out = append(out, cloneOrder(o))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset >= len(out) {
		return []orders.Order{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(o orders.Order, f orders.Filter) bool {
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !o.CreatedAt.Before(*f.To) {
		return false
	}
	if q := strings.ToLower(f.Search); q != "" {
		hay := strings.ToLower(o.OrderNumber + " " + o.CustomerID + " " + o.EmployeeID)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func (s *Store) GetLot(_ context.Context, id string) (lots.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.lots[id]
	if !ok {
		return lots.Lot{}, fmt.Errorf("lot %s: %w", id, apperr.ErrLotNotFound)
	}
	return l, nil
}

func (s *Store) ListLots(_ context.Context, productID string) ([]lots.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := productLots(s.st, productID)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) ExpiredPreorderIDs(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, o := range s.st.orders {
		if o.Type == orders.TypePreorder && o.Status == orders.StatusPending &&
			o.ExpirationDate != nil && !o.ExpirationDate.After(now) {
			ids = append(ids, o.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Adjustments returns the stock adjustment audit trail.
func (s *Store) Adjustments() []lots.Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lots.Adjustment(nil), s.st.adjustments...)
}

// Claims returns the ledger rows of every order that still holds claims.
func (s *Store) Claims() map[string]ledger.Claims {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ledger.Claims, len(s.st.claims))
	for k, v := range s.st.claims {
		out[k] = cloneClaims(v)
	}
	return out
}

func productLots(st *state, productID string) []lots.Lot {
	var out []lots.Lot
	for _, l := range st.lots {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
