// Package inventory is the allocation and reservation engine. It turns
// orders into lot counter changes and keeps the order and lot state
// machines consistent with the reservation ledger.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	kafkax "github.com/ariefcatur/go-lot-orders/internal/kafka"
	"github.com/ariefcatur/go-lot-orders/internal/lots"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/outbox"
	"github.com/ariefcatur/go-lot-orders/internal/tracing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultExpirationDays = 3
	maxTxAttempts         = 4
)

type Service struct {
	Store   Store
	Catalog catalog.Source
	Carts   cart.Source
	Log     *zap.Logger
	// ServiceName is stamped on emitted events.
	ServiceName string
	// ExpirationDays applies when a preorder is created without one.
	ExpirationDays int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// inTx runs fn in a transaction, retrying lock conflicts and serialization
// failures. Domain errors are returned at once.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.Store.InTx(ctx, fn)
		if err == nil || !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		s.log().Debug("transaction conflict, retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 5 * time.Millisecond):
		}
	}
	return err
}

func (s *Service) enqueue(ctx context.Context, tx Tx, aggType, aggID, eventType string, payload any) error {
	now := s.now()
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      s.ServiceName,
		TraceID:       tracing.TraceID(ctx),
		CorrelationID: aggID,
		Payload:       kafkax.MustMarshal(payload),
	}
	return tx.Enqueue(ctx, outbox.Event{
		AggregateType: aggType,
		AggregateID:   aggID,
		Type:          eventType,
		Topic:         orders.TopicFor(eventType),
		Payload:       kafkax.MustMarshal(env),
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     now,
		Status:        outbox.StatusPending,
	})
}

func (s *Service) orderEvent(ctx context.Context, tx Tx, eventType string, o *orders.Order, reason string) error {
	return s.enqueue(ctx, tx, "order", o.ID, eventType, orders.ChangedPayload(o, reason))
}

func (s *Service) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return s.Store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	return s.Store.ListOrders(ctx, f.Normalized())
}

func (s *Service) GetLot(ctx context.Context, id string) (lots.Lot, error) {
	return s.Store.GetLot(ctx, id)
}

func (s *Service) ListLots(ctx context.Context, productID string) ([]lots.Lot, error) {
	return s.Store.ListLots(ctx, productID)
}
