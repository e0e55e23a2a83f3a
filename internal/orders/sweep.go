package orders

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const sweepBatch = 100

// SweepStalePending resolves Pending orders whose window lapsed without any
// reconciliation, e.g. because the expiry listener was down when the key
// expired. A settled gateway session still wins; anything else cancels.
func (s *Service) SweepStalePending(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-(s.Window + s.SweepGrace))
	ids, err := s.Store.ListStalePending(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		o, st, err := s.SyncFromGateway(ctx, id, SourceSweep)
		if err != nil {
			if errors.Is(err, ErrGatewayUnavailable) {
				s.logger().Warn("sweep: gateway unavailable, retry next cycle", zap.String("order_id", id), zap.Error(err))
				continue
			}
			s.logger().Error("sweep: sync", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if o.Status == StatusPending && st != PaymentSettled {
			if o, err = s.Reconcile(ctx, Resolution{OrderID: id, Status: PaymentWindowLapsed, Source: SourceSweep}); err != nil {
				s.logger().Error("sweep: cancel", zap.String("order_id", id), zap.Error(err))
				continue
			}
		}
		if o.Status != StatusPending {
			resolved++
		}
	}
	if len(ids) > 0 {
		s.logger().Info("sweep finished", zap.Int("stale", len(ids)), zap.Int("resolved", resolved))
	}
	return resolved, nil
}

// RunSweeper calls SweepStalePending every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepStalePending(ctx); err != nil && ctx.Err() == nil {
				s.logger().Error("sweep", zap.Error(err))
			}
		}
	}
}
