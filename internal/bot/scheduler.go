package bot

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs a task immediately and then on a fixed interval until
// stopped. Restart is cancel-then-start under one lock, so two schedules never
// coexist.
type Scheduler struct {
	mu       sync.Mutex
	task     func(ctx context.Context)
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

// NewScheduler creates a stopped scheduler for task.
func NewScheduler(task func(ctx context.Context)) *Scheduler {
	return &Scheduler{task: task}
}

// Restart stops any running schedule, waits for its loop to exit (including a
// task already in progress) and starts a new one with interval.
func (s *Scheduler) Restart(parent context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel, s.done, s.interval = cancel, done, interval
	go s.loop(ctx, interval, done)
}

// Stop cancels the pending next run. A task in progress completes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Running reports whether a schedule is active, and its interval.
func (s *Scheduler) Running() (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil, s.interval
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done, s.interval = nil, nil, 0
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	s.task(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The ticker and cancellation can race; cancellation wins.
			if ctx.Err() != nil {
				return
			}
			s.task(ctx)
		}
	}
}
