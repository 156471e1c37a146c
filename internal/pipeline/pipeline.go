// Package pipeline defines the pluggable contract a worker runs on its
// dedicated pipeline thread: the actual video-processing logic (motion
// detection, object detection, tripwire rules, recording) is an external
// collaborator plugged in through this interface, never implemented here.
package pipeline

import (
	"context"

	"github.com/weitingchou/jagereye/internal/domain"
)

// SendEvent emits one event from the pipeline. It is safe to call from
// the pipeline's own goroutine; it never touches the Brain or the
// worker's protocol state directly.
type SendEvent func(eventType string, timestamp float64, content map[string]any)

// RunParams is everything a Runner needs to start: the source to read
// and the ordered pipeline stages to apply to it.
type RunParams struct {
	Source    domain.Source
	Pipelines []domain.Pipeline
}

// Runner is the contract a pipeline implementation satisfies. Start is
// invoked on a dedicated goroutine and may block for the lifetime of the
// analysis; Stop signals it to wind down. filesDir is a per-worker
// directory the runner may use for output files; no other worker shares
// it.
type Runner interface {
	Start(ctx context.Context, params RunParams, filesDir string, send SendEvent) error
	Stop()
}

// Registry maps a pipeline stage name to the Runner that implements it,
// the way internal/jobs/runtime's handler registry maps a job type to its
// handler.
type Registry struct {
	runners map[string]func() Runner
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]func() Runner)}
}

// Register binds name to a Runner factory. Registering the same name
// twice overwrites the previous binding.
func (r *Registry) Register(name string, factory func() Runner) {
	r.runners[name] = factory
}

// New constructs a fresh Runner instance for name, or nil if nothing is
// registered under it.
func (r *Registry) New(name string) Runner {
	factory, ok := r.runners[name]
	if !ok {
		return nil
	}
	return factory()
}
