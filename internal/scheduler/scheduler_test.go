package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-policy/internal/coordinator"
)

// #region fakes

type fakeRunner struct {
	calls   atomic.Int32
	killAt  int32 // report killed on this call, 0 = never
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRunner) RunOnce(ctx context.Context) (coordinator.Outcome, error) {
	n := f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.killAt != 0 && n >= f.killAt {
		return coordinator.Outcome{Killed: true}, nil
	}
	return coordinator.Outcome{IterationID: int64(n)}, nil
}

type fakeBacklog struct {
	mu  sync.Mutex
	n   int
	err error
}

func (f *fakeBacklog) CountUnassigned(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n, f.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// #endregion fakes

func TestNew_RejectsZeroInterval(t *testing.T) {
	_, err := New(&fakeRunner{}, &fakeBacklog{}, Config{})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}
}

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want bool
	}{
		{"below", 99, false},
		{"at", 100, true},
		{"above", 250, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := New(&fakeRunner{}, &fakeBacklog{n: tt.n}, Config{CheckInterval: time.Hour, MinInteractions: 100})
			got, err := s.ShouldTrigger(context.Background())
			if err != nil {
				t.Fatalf("ShouldTrigger: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldTrigger_BacklogError(t *testing.T) {
	s, _ := New(&fakeRunner{}, &fakeBacklog{err: errors.New("db gone")}, Config{CheckInterval: time.Hour})
	if _, err := s.ShouldTrigger(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestStart_ImmediateCheck(t *testing.T) {
	r := &fakeRunner{}
	s, _ := New(r, &fakeBacklog{n: 100}, Config{CheckInterval: time.Hour, MinInteractions: 100})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return r.calls.Load() == 1 })
}

func TestStart_BelowThresholdDoesNotRun(t *testing.T) {
	r := &fakeRunner{}
	s, _ := New(r, &fakeBacklog{n: 3}, Config{CheckInterval: 5 * time.Millisecond, MinInteractions: 100})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if n := r.calls.Load(); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestStart_PeriodicChecks(t *testing.T) {
	r := &fakeRunner{}
	s, _ := New(r, &fakeBacklog{n: 10}, Config{CheckInterval: 5 * time.Millisecond, MinInteractions: 10})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return r.calls.Load() >= 3 })
}

func TestStart_Twice(t *testing.T) {
	s, _ := New(&fakeRunner{}, &fakeBacklog{}, Config{CheckInterval: time.Hour})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("err = %v, want ErrAlreadyStarted", err)
	}
}

func TestLoopStopsWhenKilled(t *testing.T) {
	r := &fakeRunner{killAt: 2}
	s, _ := New(r, &fakeBacklog{n: 1}, Config{CheckInterval: 5 * time.Millisecond, MinInteractions: 1})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after kill")
	}
	if n := r.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
	s.Stop()
}

func TestStart_AgainAfterKill(t *testing.T) {
	r := &fakeRunner{killAt: 1}
	s, _ := New(r, &fakeBacklog{n: 1}, Config{CheckInterval: 5 * time.Millisecond, MinInteractions: 1})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after kill")
	}

	// Once the kill switch is cleared the operator restarts the loop.
	r.killAt = 0
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart after kill: %v", err)
	}
	defer s.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("calls = %d after restart, want >= 2", r.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStop_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := New(&fakeRunner{}, &fakeBacklog{}, Config{CheckInterval: time.Hour})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on cancel")
	}
}

func TestForce_IgnoresThreshold(t *testing.T) {
	r := &fakeRunner{}
	s, _ := New(r, &fakeBacklog{n: 0}, Config{CheckInterval: time.Hour, MinInteractions: 100})

	out, err := s.Force(context.Background())
	if err != nil {
		t.Fatalf("Force: %v", err)
	}
	if out.IterationID != 1 {
		t.Errorf("iteration = %d, want 1", out.IterationID)
	}
}

func TestForce_CycleInFlight(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, _ := New(r, &fakeBacklog{}, Config{CheckInterval: time.Hour})

	errc := make(chan error, 1)
	go func() {
		_, err := s.Force(context.Background())
		errc <- err
	}()
	<-r.entered

	if _, err := s.Force(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("err = %v, want ErrCycleInFlight", err)
	}

	close(r.block)
	if err := <-errc; err != nil {
		t.Errorf("first Force: %v", err)
	}
	if n := r.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
