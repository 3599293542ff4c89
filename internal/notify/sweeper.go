package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically reloads failed notifications below the attempt cap
// and runs them through the processor again. A record that keeps failing
// eventually hits the cap and drops out of the query.
type Sweeper struct {
	Notifications NotificationStore
	Processor     Runner
	Interval      time.Duration
	MaxAttempts   int
	Logger        *zap.Logger
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if err := s.SweepOnce(ctx); err != nil {
			s.Logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce processes every eligible record once. One record's failure never
// aborts the rest of the sweep; ordering between records carries no meaning.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	notifies, err := s.Notifications.ListRetryableNotifications(ctx, s.MaxAttempts)
	if err != nil {
		return err
	}
	if len(notifies) == 0 {
		return nil
	}

	s.Logger.Info("sweeping failed notifications", zap.Int("count", len(notifies)))
	for _, n := range notifies {
		if err := s.Processor.Process(ctx, n); err != nil {
			s.Logger.Warn("retry attempt failed",
				zap.Int64("notify_id", n.ID),
				zap.Int("attempt", n.ProcessTimes+1),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
