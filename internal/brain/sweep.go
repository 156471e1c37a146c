package brain

import "context"

// handleLivenessSweep examines every worker in {ready, running} and marks
// stale ones down. It runs as just another enqueued job, so it is never
// concurrent with a message handler.
func (c *Coordinator) handleLivenessSweep(ctx context.Context) {
	down, err := c.worker.ExamineAllWorkers(ctx, c.cfg.ExamineThreshold)
	if err != nil {
		c.log.Error("liveness sweep failed", "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.LivenessSweepRan()
	}
	for _, d := range down {
		c.log.Info("worker marked down by liveness sweep", "worker_id", d.WorkerID)
		if c.metrics != nil {
			c.metrics.WorkerMarkedDown(d.WorkerID)
		}
	}
}
