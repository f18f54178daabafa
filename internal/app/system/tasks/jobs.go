// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleRequeuer returns abandoned processing jobs to pending.
type StaleRequeuer interface {
	RequeueStale(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// StaleSideEffectJob creates a job that returns side-effect jobs stuck in
// processing for longer than threshold back to pending. A retry worker that
// crashed mid-batch leaves such jobs behind.
func StaleSideEffectJob(queue StaleRequeuer, logger *zap.Logger, threshold time.Duration) Job {
	return Job{
		Name:     "stale-side-effect-requeue",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()
			count, err := queue.RequeueStale(ctx, now.Add(-threshold), now)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Warn("requeued stale side effect jobs",
					zap.Int64("count", count),
					zap.Duration("threshold", threshold))
			}
			return nil
		},
	}
}

// Pruner deletes rows older than a cutoff.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationPruneJob creates a job that deletes read notifications older
// than retention.
func NotificationPruneJob(store Pruner, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "notification-prune",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := store.DeleteBefore(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("pruned read notifications", zap.Int64("count", count))
			}
			return nil
		},
	}
}
