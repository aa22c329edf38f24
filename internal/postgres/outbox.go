package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OutboxStore lets several relays drain the same table: rows are claimed
// with SKIP LOCKED and leased, and a lease that runs out makes the row
// claimable again.
type OutboxStore struct {
	log  *zap.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *zap.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapErr("outbox.lock", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, topic, payload, headers, traceparent,
			created_at, retry_count
		FROM outbox
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, mapErr("outbox.lock", err)
	}

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		var headers map[string]string
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Topic, &e.Payload,
			&headers, &e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
			rows.Close()
			return nil, mapErr("outbox.lock", err)
		}
		e.Headers = headers
		e.Status = outbox.StatusInProgress
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapErr("outbox.lock", err)
	}
	if len(events) == 0 {
		return nil, mapErr("outbox.lock", tx.Commit(ctx))
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval
		WHERE id = ANY($3)`, relayID, lease.String(), ids)
	if err != nil {
		return nil, mapErr("outbox.lease", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr("outbox.lock", err)
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	return mapErr("outbox.sent", err)
}

// MarkFailed puts the row back in the queue until it has used up its
// retries, then parks it as failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET
			retry_count = retry_count + 1,
			last_error = $2,
			lease_until = NULL,
			status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id=$1`, id, errMsg, outbox.MaxRetries)
	if err != nil {
		return mapErr("outbox.failed", err)
	}
	s.log.Warn("outbox event not delivered", zap.Int64("event_id", id), zap.String("error", errMsg))
	return nil
}
