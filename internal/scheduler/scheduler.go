package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs periodic jobs on behalf of client sessions. It is owned by
// the host and shared with whatever connects through it.
type Scheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	jobs   int
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{logger: logger}
	s.reset()
	return s
}

func (s *Scheduler) reset() {
	ctx, cancel := context.WithCancel(context.Background())
	s.group, s.ctx = errgroup.WithContext(ctx)
	s.cancel = cancel
	s.jobs = 0
}

// Every runs job once per interval until stop is called or the scheduler shuts down.
// A non-positive interval schedules nothing.
func (s *Scheduler) Every(interval time.Duration, job func(context.Context)) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCtx, cancel := context.WithCancel(s.ctx)
	s.jobs++
	s.group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return nil
			case <-ticker.C:
				job(jobCtx)
			}
		}
	})
	return cancel
}

// Jobs returns the number of jobs scheduled since the last shutdown.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

// Shutdown cancels every job and waits for running ones to return.
// The scheduler accepts new jobs afterwards.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	cancel, group, jobs := s.cancel, s.group, s.jobs
	s.reset()
	s.mu.Unlock()

	cancel()
	_ = group.Wait()
	if jobs > 0 {
		s.logger.Debug("scheduler stopped", zap.Int("jobs", jobs))
	}
}
