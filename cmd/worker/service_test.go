package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubConsumer struct {
	err     error
	started chan struct{}
}

func (s *stubConsumer) Run(ctx context.Context) error {
	if s.started != nil {
		close(s.started)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger(), DB: stubPinger{}, Redis: stubPinger{}, PubSub: stubPinger{}})
	require.Error(t, err)
}

func TestRunStopsWhenDependencyUnavailable(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:     testLogger(),
		DB:         stubPinger{},
		Redis:      stubPinger{err: errors.New("dial tcp: refused")},
		PubSub:     stubPinger{},
		Settlement: &stubConsumer{},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "redis ping failed")
}

func TestRunSurfacesConsumerFailure(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Logger:     testLogger(),
		DB:         stubPinger{},
		Redis:      stubPinger{},
		PubSub:     stubPinger{},
		Settlement: &stubConsumer{err: boom},
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestRunReturnsOnCancel(t *testing.T) {
	started := make(chan struct{})
	svc, err := NewService(ServiceParams{
		Logger:     testLogger(),
		DB:         stubPinger{},
		Redis:      stubPinger{},
		PubSub:     stubPinger{},
		Settlement: &stubConsumer{started: started},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
