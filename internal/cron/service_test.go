package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
	extends  int
	lostAt   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) (bool, error) {
	f.extends++
	if f.lostAt > 0 && f.extends >= f.lostAt {
		f.held = false
		return false, nil
	}
	return f.held, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:   registry,
		Lock:       lock,
		JobTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunCycleRunsAllJobsAndJoinsErrors(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service := newTestService(t, lock, ok, failing, after)

	err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	for _, job := range []*testJob{ok, failing, after} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
		if !job.deadline {
			t.Fatalf("expected %s to run with a deadline", job.name)
		}
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, &fakeLock{held: true}, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunOnceRenewsLeaseBetweenJobs(t *testing.T) {
	jobs := []*testJob{{name: "a"}, {name: "b"}, {name: "c"}}
	lock := &fakeLock{}
	service := newTestService(t, lock, jobs[0], jobs[1], jobs[2])

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if lock.extends != 2 {
		t.Fatalf("expected a renewal before each job after the first, got %d", lock.extends)
	}
}

func TestRunOnceStopsWhenLeaseLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	lock := &fakeLock{lostAt: 1}
	service := newTestService(t, lock, first, second)

	err := service.RunOnce(context.Background())
	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if first.runs != 1 || second.runs != 0 {
		t.Fatalf("unexpected runs first=%d second=%d", first.runs, second.runs)
	}
}
