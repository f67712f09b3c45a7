package cron

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Job is a unit of scheduled work run once per cron cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	run  func(context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

// JobFunc adapts a plain function into a Job.
func JobFunc(name string, run func(context.Context) error) Job {
	return funcJob{name: name, run: run}
}

// Registry holds the jobs of a cron worker in run order. Names are unique
// because metrics and logs are keyed on them.
type Registry struct {
	jobs []Job
}

// NewRegistry skips nil jobs so optional jobs can be passed unconditionally.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job name required")
	}
	if slices.Contains(r.Names(), name) {
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, strings.TrimSpace(job.Name()))
	}
	return names
}

// Lookup finds a registered job by name.
func (r *Registry) Lookup(name string) (Job, bool) {
	idx := slices.Index(r.Names(), strings.TrimSpace(name))
	if idx < 0 {
		return nil, false
	}
	return r.jobs[idx], true
}
