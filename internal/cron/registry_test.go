package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry, err := NewRegistry(jobA, nil, jobB)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])
	assert.Equal(t, []string{"a", "b"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsBadNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: " a "})
	require.ErrorContains(t, err, "already registered")

	registry := &Registry{}
	require.Error(t, registry.Register(&stubJob{name: " "}))
}

func TestJobFuncAndLookup(t *testing.T) {
	boom := errors.New("boom")
	registry, err := NewRegistry(JobFunc("sweep", func(context.Context) error { return boom }))
	require.NoError(t, err)

	job, ok := registry.Lookup(" sweep ")
	require.True(t, ok)
	assert.Equal(t, "sweep", job.Name())
	assert.ErrorIs(t, job.Run(context.Background()), boom)

	_, ok = registry.Lookup("missing")
	assert.False(t, ok)
}
