// Package projector consumes order events and maintains the order status
// cache the API serves from.
package projector

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-lot-orders/internal/kafka"
	"github.com/ariefcatur/go-lot-orders/internal/orders"
	"github.com/ariefcatur/go-lot-orders/internal/tracing"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics the projector subscribes to.
var Topics = []string{
	orders.TopicOrderCreated,
	orders.TopicOrderUpdated,
	orders.TopicOrderCompleted,
	orders.TopicOrderCancelled,
}

type Projector struct {
	log   *zap.Logger
	cache Cache
}

func New(log *zap.Logger, cache Cache) *Projector {
	return &Projector{log: log, cache: cache}
}

// Handle is a kafka.Handler. Malformed messages are logged and committed;
// cache failures are returned so the consumer retries the event before
// committing its offset.
func (p *Projector) Handle(ctx context.Context, m kafka.Message) error {
	ctx = tracing.ExtractKafkaHeaders(ctx, m.Headers)

	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		p.log.Warn("drop undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderUpdated, orders.EventOrderCompleted, orders.EventOrderCancelled:
	default:
		return nil
	}

	seen, err := p.cache.Seen(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if seen {
		return nil
	}

	pl, err := kafkax.UnwrapPayload[orders.OrderChangedPayload](env.Payload)
	if err != nil {
		p.log.Warn("drop event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	written, err := p.cache.PutStatus(ctx, Status{
		OrderID:       pl.OrderID,
		OrderNumber:   pl.OrderNumber,
		Type:          pl.Type,
		Status:        pl.Status,
		PaymentStatus: pl.PaymentStatus,
		FinalAmount:   pl.FinalAmount,
		Version:       pl.Version,
		UpdatedAt:     env.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("cache order %s: %w", pl.OrderID, err)
	}
	if !written {
		p.log.Debug("stale order event", zap.String("order_id", pl.OrderID), zap.Int64("version", pl.Version))
	}
	if err := p.cache.MarkSeen(ctx, env.EventID); err != nil {
		p.log.Warn("mark event seen", zap.String("event_id", env.EventID), zap.Error(err))
	}
	p.log.Debug("order projected",
		zap.String("order_id", pl.OrderID),
		zap.String("status", string(pl.Status)),
		zap.String("trace_id", tracing.TraceID(ctx)))
	return nil
}
