package memstore

import (
	"context"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/outbox"
)

// Outbox exposes the committed events to an outbox.Relay.
func (s *Store) Outbox() outbox.Store { return outboxStore{s} }

// Events returns every committed event in insertion order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.st.events...)
}

type outboxStore struct{ s *Store }

// LockBatch hands out pending events. Leases are not tracked in memory; a
// crashed relay takes its in-flight events with it.
func (o outboxStore) LockBatch(_ context.Context, _ string, n int, _ time.Duration) ([]outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var out []outbox.Event
	for i := range o.s.st.events {
		e := &o.s.st.events[i]
		if e.Status != outbox.StatusPending {
			continue
		}
		if len(out) == n {
			break
		}
		e.Status = outbox.StatusInProgress
		out = append(out, *e)
	}
	return out, nil
}

func (o outboxStore) MarkSent(_ context.Context, ids []int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i := range o.s.st.events {
		if set[o.s.st.events[i].ID] {
			o.s.st.events[i].Status = outbox.StatusSent
		}
	}
	return nil
}

func (o outboxStore) MarkFailed(_ context.Context, id int64, msg string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.st.events {
		e := &o.s.st.events[i]
		if e.ID != id {
			continue
		}
		e.RetryCount++
		e.LastError = &msg
		e.Status = outbox.StatusPending
		if e.RetryCount >= outbox.MaxRetries {
			e.Status = outbox.StatusFailed
		}
	}
	return nil
}
