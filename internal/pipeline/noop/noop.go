// Package noop is a reference pipeline.Runner that does nothing but wait
// for cancellation: a placeholder registration for cmd/worker so the
// binary runs end to end without a real video-processing pipeline wired
// in, the way any of this repository's real runners (motion detection,
// object detection, tripwire logic) would be.
package noop

import (
	"context"

	"github.com/weitingchou/jagereye/internal/pipeline"
)

// Runner blocks until its context is canceled and never emits events. It
// is what internal/workerclient schedules when PIPELINE_NAME is "noop";
// the client has no fallback runner for a name nothing is registered
// under.
type Runner struct{}

// New returns a fresh Runner.
func New() pipeline.Runner { return &Runner{} }

func (r *Runner) Start(ctx context.Context, params pipeline.RunParams, filesDir string, send pipeline.SendEvent) error {
	<-ctx.Done()
	return nil
}

func (r *Runner) Stop() {}
