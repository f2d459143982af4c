package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order. Names must be unique since they
// label metrics and logs.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs in order and reports every job it refused.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := emptyRegistry()
	var errs error
	for _, job := range jobs {
		errs = multierr.Append(errs, r.Register(job))
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

func emptyRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *Registry) Len() int { return len(r.jobs) }
