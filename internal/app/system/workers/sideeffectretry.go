// internal/app/system/workers/sideeffectretry.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// JobQueue is the slice of the side-effect job store the retry worker uses.
type JobQueue interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.SideEffectJob, error)
	Complete(ctx context.Context, id primitive.ObjectID, attempts int, now time.Time) error
	Reschedule(ctx context.Context, id primitive.ObjectID, attempts int, next time.Time, lastErr string, now time.Time) error
	Fail(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string, now time.Time) error
}

// Executor performs a single side effect. *sideeffects.Dispatcher
// implements it.
type Executor interface {
	Execute(ctx context.Context, e sideeffects.Effect) error
}

const (
	defaultBatchSize = 50
	maxBackoff       = time.Hour
)

// SideEffectRetry is a background worker that redelivers queued
// notifications and audit records.
type SideEffectRetry struct {
	queue    JobQueue
	exec     Executor
	log      *zap.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSideEffectRetry creates the retry worker.
//
// Parameters:
//   - queue: the side_effect_jobs store
//   - exec: delivers one effect (the dispatcher)
//   - logger: zap logger for logging
//   - interval: how often to drain due jobs; also the first backoff step
func NewSideEffectRetry(queue JobQueue, exec Executor, logger *zap.Logger, interval time.Duration) *SideEffectRetry {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SideEffectRetry{
		queue:    queue,
		exec:     exec,
		log:      logger,
		interval: interval,
		batch:    defaultBatchSize,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background retry loop.
func (w *SideEffectRetry) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("side effect retry worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *SideEffectRetry) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("side effect retry worker stopped")
}

func (w *SideEffectRetry) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error("side effect retry pass failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Backoff returns the delay before the next attempt once attempts have been
// made: interval * 2^(attempts-1), capped at one hour.
func (w *SideEffectRetry) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := w.interval
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// RunOnce claims due jobs and attempts each once. It returns how many jobs
// were delivered.
func (w *SideEffectRetry) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.queue.ClaimDue(ctx, w.now().UTC(), w.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, job := range jobs {
		if w.attempt(ctx, job) {
			delivered++
		}
	}
	if len(jobs) > 0 {
		w.log.Info("side effect retry pass",
			zap.Int("claimed", len(jobs)),
			zap.Int("delivered", delivered))
	}
	return delivered, nil
}

func (w *SideEffectRetry) attempt(ctx context.Context, job models.SideEffectJob) bool {
	attempts := job.Attempts + 1
	fields := []zap.Field{
		zap.String("correlation_id", job.CorrelationID),
		zap.String("kind", job.Kind),
		zap.Int("attempts", attempts),
	}

	err := w.exec.Execute(ctx, sideeffects.Effect{Kind: job.Kind, Notification: job.Notification, Audit: job.Audit})
	now := w.now().UTC()
	if err == nil {
		if cerr := w.queue.Complete(ctx, job.ID, attempts, now); cerr != nil {
			w.log.Error("failed to mark side effect job done", append(fields, zap.Error(cerr))...)
		}
		return true
	}

	limit := job.MaxAttempts
	if limit <= 0 {
		limit = sideeffects.DefaultMaxAttempts
	}
	if !sideeffects.Retryable(err) || attempts >= limit {
		w.log.Error("side effect job failed permanently", append(fields, zap.Error(err))...)
		if ferr := w.queue.Fail(ctx, job.ID, attempts, err.Error(), now); ferr != nil {
			w.log.Error("failed to park side effect job", append(fields, zap.Error(ferr))...)
		}
		return false
	}

	next := now.Add(w.Backoff(attempts))
	w.log.Warn("side effect job rescheduled", append(fields, zap.Time("next_attempt_at", next), zap.Error(err))...)
	if rerr := w.queue.Reschedule(ctx, job.ID, attempts, next, err.Error(), now); rerr != nil {
		w.log.Error("failed to reschedule side effect job", append(fields, zap.Error(rerr))...)
	}
	return false
}
