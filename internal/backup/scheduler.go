package backup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler periodically asks the runner for a scheduled run. Gating (enabled,
// due, lease) all lives in the runner; the scheduler just ticks.
type Scheduler struct {
	mu       sync.RWMutex
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler ticking at the given interval (one minute
// when zero).
func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	result, err := s.runner.RunScheduled(ctx)
	if err != nil {
		s.logger.Error("scheduled backup", "error", err)
		return
	}

	switch result.Status {
	case "skipped":
		// Normal scheduling behavior; only worth chatter at debug level.
		s.logger.Debug("scheduled backup skipped", "reason", result.SkipReason)
	case "failure":
		s.logger.Warn("scheduled backup failed")
	}
}
