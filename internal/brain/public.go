package brain

import (
	"context"
	"encoding/json"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/wire"
)

// onPublicMessage decodes an inbound ch_brain message (handshake step 1)
// and enqueues its handling on the loop goroutine.
func (c *Coordinator) onPublicMessage(msg bus.Message) {
	var wm wire.WorkerMessage
	if err := json.Unmarshal(msg.Data, &wm); err != nil {
		c.log.Warn("dropping malformed public worker message", "error", err)
		return
	}
	c.enqueue(func(ctx context.Context) {
		c.handlePublic(ctx, wm)
	})
}

func (c *Coordinator) handlePublic(ctx context.Context, wm wire.WorkerMessage) {
	if wm.Verb != wire.VerbHshake1 {
		c.log.Warn("unexpected verb on public subject", "verb", wm.Verb)
		return
	}

	workerID := wm.Context.WorkerID
	status, found, err := c.worker.GetStatus(ctx, "", workerID)
	if err != nil {
		c.log.Error("failed to read worker status for hshake-1", "worker_id", workerID, "error", err)
		return
	}
	if !found || status != domain.StatusInitial {
		c.log.Error("received hshake-1 with unexpected worker status", "worker_id", workerID, "status", status)
		if c.metrics != nil {
			c.metrics.HandshakeFailed(c.cfg.Typename)
		}
		return
	}

	if _, err := c.worker.UpdateStatus(ctx, "", workerID, domain.StatusHshake1); err != nil {
		c.log.Error("failed to transition worker to hshake_1", "worker_id", workerID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.StatusTransition(domain.StatusInitial.String(), domain.StatusHshake1.String())
	}

	sub, err := c.bus.Subscribe(ctx, wm.Context.ChToBrain, c.onPrivateMessage(workerID))
	if err != nil {
		c.log.Error("failed to subscribe to private worker subject", "worker_id", workerID, "error", err)
		return
	}
	c.privateSubs[workerID] = sub

	reply := wire.WorkerMessage{Verb: wire.VerbHshake2, Context: wm.Context}
	c.publishWorker(ctx, wm.Context.ChToWorker, reply)
}

func (c *Coordinator) publishWorker(ctx context.Context, subject string, wm wire.WorkerMessage) {
	data, err := json.Marshal(wm)
	if err != nil {
		c.log.Error("failed to marshal worker message", "verb", wm.Verb, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, subject, data); err != nil {
		c.log.Error("failed to publish worker message", "subject", subject, "verb", wm.Verb, "error", err)
	}
}
