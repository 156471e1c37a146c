package brain

import (
	"context"
	"encoding/json"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/wire"
)

// onResMgrMessage decodes an inbound ch_res_brain message and enqueues its
// handling on the loop goroutine.
func (c *Coordinator) onResMgrMessage(msg bus.Message) {
	var resp wire.ResMgrResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		c.log.Warn("dropping malformed resource manager response", "error", err)
		return
	}
	c.enqueue(func(ctx context.Context) {
		c.handleResMgr(ctx, resp)
	})
}

func (c *Coordinator) handleResMgr(ctx context.Context, resp wire.ResMgrResponse) {
	if resp.Error != nil {
		c.log.Error("resource manager returned an error", "command", resp.Command, "analyzer_id", resp.AnalyzerID, "code", resp.Error.Code)
		return
	}

	switch resp.Command {
	case wire.CmdCreateWorker:
		if resp.Response == nil || resp.Response.WorkerID == "" {
			c.log.Error("create_worker response missing worker id", "analyzer_id", resp.AnalyzerID)
			return
		}
		if err := c.worker.CreateAnalyzer(ctx, resp.AnalyzerID, resp.Response.WorkerID); err != nil {
			c.log.Error("failed to create analyzer binding", "analyzer_id", resp.AnalyzerID, "worker_id", resp.Response.WorkerID, "error", err)
		}
	case wire.CmdRemoveWorker:
		if err := c.ticket.Release(ctx, resp.AnalyzerID); err != nil {
			c.log.Error("failed to release ticket after remove_worker", "analyzer_id", resp.AnalyzerID, "error", err)
		} else if c.metrics != nil {
			c.metrics.TicketReleased(resp.AnalyzerID)
		}
	default:
		c.log.Warn("unexpected resource manager command", "command", resp.Command)
	}
}
