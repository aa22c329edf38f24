// Package sweeper expires overdue preorders on a timer. Replicas share a
// Redis lease so only one of them sweeps per tick.
package sweeper

import (
	"context"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"go.uber.org/zap"
)

type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type Expirer interface {
	SweepExpiredPreorders(ctx context.Context, now time.Time) (inventory.SweepReport, error)
}

type Sweeper struct {
	log      *zap.Logger
	expirer  Expirer
	lease    Lease
	interval time.Duration
	clock    func() time.Time
}

// New builds a sweeper. A nil lease means this process always sweeps.
func New(log *zap.Logger, expirer Expirer, lease Lease, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{log: log, expirer: expirer, lease: lease, interval: interval, clock: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.Error("expiry sweep", zap.Error(err))
			}
		}
	}
}

// Tick runs one sweep if the lease is free. It reports whether it swept.
func (s *Sweeper) Tick(ctx context.Context) (bool, error) {
	if s.lease != nil {
		// the lease outlives a slow sweep by one interval at most
		ok, err := s.lease.Acquire(ctx, s.interval)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release sweep lease", zap.Error(err))
			}
		}()
	}

	rep, err := s.expirer.SweepExpiredPreorders(ctx, s.clock().UTC())
	if err != nil {
		return true, err
	}
	if len(rep.Failed) > 0 {
		s.log.Warn("expiry sweep left orders behind", zap.Int("failed", len(rep.Failed)))
	}
	return true, nil
}
