package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// TestSchedulerRunsImmediately verifies the first run does not wait for the interval.
func TestSchedulerRunsImmediately(t *testing.T) {
	var runs int32
	s := New(time.Hour, func(ctx context.Context) { atomic.AddInt32(&runs, 1) }, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&runs) == 1 })
}

// TestSchedulerRepeats verifies the job keeps running at the interval.
func TestSchedulerRepeats(t *testing.T) {
	var runs int32
	s := New(50*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&runs, 1) }, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt32(&runs) >= 3 })
}

// TestSchedulerNoOverlap verifies a slow job never runs concurrently with itself.
func TestSchedulerNoOverlap(t *testing.T) {
	var running, maxRunning, runs int32
	job := func(ctx context.Context) {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(120 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&runs, 1)
	}

	s := New(20*time.Millisecond, job, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt32(&runs) >= 3 })
	if m := atomic.LoadInt32(&maxRunning); m != 1 {
		t.Fatalf("expected at most one concurrent run, got %d", m)
	}
}

// TestSchedulerRecoversPanics verifies a panicking tick does not stop the schedule.
func TestSchedulerRecoversPanics(t *testing.T) {
	var runs int32
	job := func(ctx context.Context) {
		if atomic.AddInt32(&runs, 1) == 1 {
			panic("boom")
		}
	}

	s := New(50*time.Millisecond, job, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt32(&runs) >= 2 })
}

func TestSchedulerDefaultInterval(t *testing.T) {
	s := New(0, func(ctx context.Context) {}, zap.NewNop().Sugar())
	if s.Interval() != DefaultInterval {
		t.Fatalf("expected %v, got %v", DefaultInterval, s.Interval())
	}
}

// TestSchedulerStopCancelsJobContext verifies Stop cancels the context of a running job.
func TestSchedulerStopCancelsJobContext(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	job := func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}

	s := New(time.Hour, job, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not start")
	}

	go s.Stop()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("job context was not cancelled")
	}
}
