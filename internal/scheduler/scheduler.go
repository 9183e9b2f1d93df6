// Package scheduler triggers iteration cycles once enough interactions have
// accumulated. Triggering is volume based: the interval only controls how
// often the backlog is checked.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/coordinator"
)

var (
	// ErrCycleInFlight is returned when a cycle is requested while another
	// one is still running.
	ErrCycleInFlight = errors.New("iteration cycle already in flight")
	// ErrAlreadyStarted is returned by Start on a running scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrInvalidInterval is returned by New for a non-positive interval.
	ErrInvalidInterval = errors.New("check interval must be positive")
)

// #region types

// Runner performs one full cycle.
type Runner interface {
	RunOnce(ctx context.Context) (coordinator.Outcome, error)
}

// Backlog reports how many interactions are waiting for an iteration.
type Backlog interface {
	CountUnassigned(ctx context.Context) (int, error)
}

// Config controls when cycles are triggered.
type Config struct {
	CheckInterval   time.Duration
	MinInteractions int
}

// Scheduler checks the backlog on a fixed interval and runs a cycle when it
// reaches MinInteractions. At most one cycle runs at a time; it stops by
// itself once the system is killed.
type Scheduler struct {
	runner  Runner
	backlog Backlog
	cfg     Config

	cycle sync.Mutex // held while a cycle runs

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// #endregion types

// #region constructor

// New creates a stopped scheduler.
func New(runner Runner, backlog Backlog, cfg Config) (*Scheduler, error) {
	if cfg.CheckInterval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Scheduler{runner: runner, backlog: backlog, cfg: cfg}, nil
}

// #endregion constructor

// #region lifecycle

// Start checks the backlog immediately and then every CheckInterval in a
// background goroutine. The loop ends on Stop, when ctx is cancelled, or
// after a cycle reports the system killed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	log.Printf("[SCHED] started: checking every %s, min_interactions=%d", s.cfg.CheckInterval, s.cfg.MinInteractions)
	go s.loop(ctx, done)
	return nil
}

// Stop ends the loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	log.Printf("[SCHED] stopped")
}

// exited clears the running flag unless a later Start already replaced the
// loop. It runs before done is closed so a waiter on Done can Start again.
func (s *Scheduler) exited(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done || !s.running {
		return
	}
	s.cancel()
	s.running = false
}

// Done is closed when the loop exits. It is nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.exited(done)

	if s.check(ctx) {
		return
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.check(ctx) {
				return
			}
		}
	}
}

// #endregion lifecycle

// #region trigger

// ShouldTrigger reports whether the backlog has reached MinInteractions.
func (s *Scheduler) ShouldTrigger(ctx context.Context) (bool, error) {
	n, err := s.backlog.CountUnassigned(ctx)
	if err != nil {
		return false, fmt.Errorf("count unassigned: %w", err)
	}
	return n >= s.cfg.MinInteractions, nil
}

// Force runs a cycle now regardless of the backlog size.
func (s *Scheduler) Force(ctx context.Context) (coordinator.Outcome, error) {
	log.Printf("[SCHED] forcing iteration cycle")
	return s.run(ctx)
}

// check runs one scheduled tick and reports whether the loop should end.
func (s *Scheduler) check(ctx context.Context) bool {
	ok, err := s.ShouldTrigger(ctx)
	if err != nil {
		log.Printf("[SCHED] trigger check failed: %v", err)
		return false
	}
	if !ok {
		return false
	}

	log.Printf("[SCHED] trigger conditions met, starting iteration cycle")
	out, err := s.run(ctx)
	switch {
	case errors.Is(err, ErrCycleInFlight):
		log.Printf("[SCHED] cycle already in flight, skipping tick")
	case err != nil:
		log.Printf("[SCHED] cycle error: %v", err)
	case out.Killed:
		log.Printf("[SCHED] system is killed, stopping scheduler")
		return true
	}
	return false
}

func (s *Scheduler) run(ctx context.Context) (coordinator.Outcome, error) {
	if !s.cycle.TryLock() {
		return coordinator.Outcome{}, ErrCycleInFlight
	}
	defer s.cycle.Unlock()
	return s.runner.RunOnce(ctx)
}

// #endregion trigger
