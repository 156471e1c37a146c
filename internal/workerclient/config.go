package workerclient

import (
	"context"
	"fmt"

	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/pipeline"
	"github.com/weitingchou/jagereye/internal/wire"
)

// handleConfig guards on local status ready: it extracts the embedded
// ticket's source/pipelines, schedules the registered pipeline runner on
// its own dedicated goroutine, transitions to running, and echoes
// config_ok.
func (c *Client) handleConfig(ctx context.Context, wm wire.WorkerMessage) {
	if c.getStatus() != domain.StatusReady {
		c.log.Warn("received config with unexpected local status", "status", c.getStatus())
		return
	}
	if wm.Context.Ticket == nil {
		c.log.Error("received config without ticket context")
		return
	}

	params := pipeline.RunParams{
		Source:    wm.Context.Ticket.Request.Params.Source,
		Pipelines: wm.Context.Ticket.Request.Params.Pipelines,
	}

	runner := c.registry.New(c.cfg.PipelineName)
	if runner == nil {
		c.log.Error("no pipeline runner registered", "pipeline_name", c.cfg.PipelineName)
		return
	}
	c.mu.Lock()
	c.runner = runner
	c.mu.Unlock()

	filesDir := fmt.Sprintf("%s/%s", c.cfg.SharedDir, c.cfg.WorkerID)
	go func() {
		if err := runner.Start(ctx, params, filesDir, c.SendEvent); err != nil {
			c.log.Error("pipeline runner exited with error", "error", err)
		}
	}()

	c.setStatus(domain.StatusRunning)
	c.publish(ctx, c.chToBrain, wire.WorkerMessage{Verb: wire.VerbConfigOk, Context: wm.Context})
}
