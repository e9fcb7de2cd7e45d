package cronjobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/services/ticklock"
)

func TestRunJob(t *testing.T) {
	r := New(nil, time.Minute)
	var calls atomic.Int32
	var hadDeadline bool

	r.runJob(context.Background(), Job{Name: "poller", Run: func(ctx context.Context) error {
		calls.Add(1)
		_, hadDeadline = ctx.Deadline()
		return nil
	}})

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if !hadDeadline {
		t.Error("tick ran without a deadline")
	}
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	locker := ticklock.NewLocal()
	release, ok, _ := locker.Acquire(context.Background(), "sweeper", time.Minute)
	if !ok {
		t.Fatal("could not take lock")
	}

	r := New(locker, time.Minute)
	var calls atomic.Int32
	job := Job{Name: "sweeper", Run: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}}

	r.runJob(context.Background(), job)
	if calls.Load() != 0 {
		t.Error("job ran while another run held the lock")
	}

	release()
	r.runJob(context.Background(), job)
	if calls.Load() != 1 {
		t.Errorf("calls = %d after release, want 1", calls.Load())
	}
}

func TestRunJobReleasesLockOnError(t *testing.T) {
	r := New(nil, time.Minute)
	var calls atomic.Int32
	job := Job{Name: "scheduler", Run: func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("database unavailable")
	}}

	r.runJob(context.Background(), job)
	r.runJob(context.Background(), job)
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(nil, time.Minute)
	if err := r.Add(Job{Name: "bad", Spec: "every now and then", Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestStartRunsImmediately(t *testing.T) {
	r := New(nil, time.Minute)
	done := make(chan struct{})
	err := r.Add(Job{Name: "poller", Spec: "@every 1h", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}})
	if err != nil {
		t.Fatal(err)
	}

	r.Start(true)
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run at start")
	}
}

func TestStopCancelsRunningTick(t *testing.T) {
	r := New(nil, time.Minute)
	started := make(chan struct{})
	var cancelled atomic.Bool
	_ = r.Add(Job{Name: "slow", Spec: "@every 1h", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}})

	r.Start(true)
	<-started
	r.Stop()

	if !cancelled.Load() {
		t.Error("Stop returned before the tick observed cancellation")
	}
}

// namesLocker records the lock names it is asked for.
type namesLocker struct {
	mu    sync.Mutex
	names []string
}

func (l *namesLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
	return func() {}, true, nil
}

func TestRunJobLocksByJobName(t *testing.T) {
	locker := &namesLocker{}
	r := New(locker, time.Minute)
	r.runJob(context.Background(), Job{Name: "scheduler", Run: func(context.Context) error { return nil }})

	if len(locker.names) != 1 || locker.names[0] != "scheduler" {
		t.Errorf("lock names = %v, want [scheduler]; the locker owns the key prefix", locker.names)
	}
}

func TestAddSkipsUnconfiguredJob(t *testing.T) {
	r := New(nil, time.Minute)
	var calls atomic.Int32
	run := func(context.Context) error { calls.Add(1); return nil }

	if err := r.Add(Job{Name: "poller", Spec: "@every 1h", Run: run, Configured: func() bool { return false }}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(Job{Name: "sweeper", Spec: "@every 1h", Run: run, Configured: func() bool { return true }}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(r.jobs) != 1 || r.jobs[0].Name != "sweeper" {
		t.Fatalf("jobs = %+v, want only sweeper", r.jobs)
	}

	r.Start(true)
	r.Stop()
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
