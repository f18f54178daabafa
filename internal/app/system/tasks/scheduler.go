// internal/app/system/tasks/scheduler.go
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // zero means Interval
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker until stopped.
type Scheduler struct {
	log    *zap.Logger
	jobs   []Job
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for jobs. Jobs with a non-positive
// interval are skipped.
func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{log: logger, stopCh: make(chan struct{})}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			logger.Warn("skipping task without interval", zap.String("task", j.Name))
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Start launches one goroutine per job.
func (s *Scheduler) Start() {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(j)
		s.log.Info("task scheduled", zap.String("task", j.Name), zap.Duration("interval", j.Interval))
	}
}

// Stop signals every job loop to exit and waits for in-flight runs.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(j Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(j)
		}
	}
}

func (s *Scheduler) runOnce(j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("task failed",
			zap.String("task", j.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
	}
}
