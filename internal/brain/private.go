package brain

import (
	"context"
	"encoding/json"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/wire"
)

// onPrivateMessage returns the bus.Handler for workerID's private
// worker-to-brain subject, bound at handshake step 1.
func (c *Coordinator) onPrivateMessage(workerID string) bus.Handler {
	return func(msg bus.Message) {
		var wm wire.WorkerMessage
		if err := json.Unmarshal(msg.Data, &wm); err != nil {
			c.log.Warn("dropping malformed private worker message", "worker_id", workerID, "error", err)
			return
		}
		c.enqueue(func(ctx context.Context) {
			c.handlePrivate(ctx, wm)
		})
	}
}

func (c *Coordinator) handlePrivate(ctx context.Context, wm wire.WorkerMessage) {
	switch wm.Verb {
	case wire.VerbHshake3:
		c.handleHshake3(ctx, wm)
	case wire.VerbConfigOk:
		c.handleConfigOk(ctx, wm)
	case wire.VerbEvent:
		c.handleEvent(ctx, wm)
	case wire.VerbHbeat:
		c.handleHbeat(ctx, wm)
	default:
		c.log.Warn("unexpected verb on private subject", "verb", wm.Verb)
	}
}

func (c *Coordinator) handleHshake3(ctx context.Context, wm wire.WorkerMessage) {
	workerID := wm.Context.WorkerID
	status, found, err := c.worker.GetStatus(ctx, "", workerID)
	if err != nil {
		c.log.Error("failed to read worker status for hshake-3", "worker_id", workerID, "error", err)
		return
	}
	if !found || status != domain.StatusHshake1 {
		c.log.Error("received hshake-3 with unexpected worker status", "worker_id", workerID, "status", status)
		if c.metrics != nil {
			c.metrics.HandshakeFailed(c.cfg.Typename)
		}
		return
	}

	if _, err := c.worker.UpdateStatus(ctx, "", workerID, domain.StatusReady); err != nil {
		c.log.Error("failed to transition worker to ready", "worker_id", workerID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.StatusTransition(domain.StatusHshake1.String(), domain.StatusReady.String())
		c.metrics.HandshakeCompleted(c.cfg.Typename)
	}
	if err := c.worker.StartListenHeartbeat(ctx, workerID); err != nil {
		c.log.Error("failed to seed heartbeat", "worker_id", workerID, "error", err)
	}

	analyzerID, found, err := c.worker.GetAnalyzerID(ctx, workerID)
	if err != nil {
		c.log.Error("failed to read analyzer id for worker", "worker_id", workerID, "error", err)
		return
	}
	if !found {
		return
	}

	raw, found, err := c.ticket.Holder(ctx, analyzerID)
	if err != nil {
		c.log.Error("failed to read ticket for analyzer", "analyzer_id", analyzerID, "error", err)
		return
	}
	if !found {
		c.log.Debug("no ticket for analyzer at hshake-3", "analyzer_id", analyzerID, "worker_id", workerID)
		return
	}

	var payload wire.TicketPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.log.Error("failed to decode ticket payload", "analyzer_id", analyzerID, "error", err)
		return
	}

	ctxWithTicket := wm.Context
	ctxWithTicket.Ticket = &payload
	if _, err := c.worker.UpdateStatus(ctx, "", workerID, domain.StatusConfig); err != nil {
		c.log.Error("failed to transition worker to config", "worker_id", workerID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.StatusTransition(domain.StatusReady.String(), domain.StatusConfig.String())
	}
	c.publishWorker(ctx, wm.Context.ChToWorker, wire.WorkerMessage{Verb: wire.VerbConfig, Context: ctxWithTicket})
}

func (c *Coordinator) handleConfigOk(ctx context.Context, wm wire.WorkerMessage) {
	workerID := wm.Context.WorkerID
	status, found, err := c.worker.GetStatus(ctx, "", workerID)
	if err != nil {
		c.log.Error("failed to read worker status for config_ok", "worker_id", workerID, "error", err)
		return
	}
	if !found || status != domain.StatusConfig {
		c.log.Error("received config_ok with unexpected worker status", "worker_id", workerID, "status", status)
		if c.metrics != nil {
			c.metrics.HandshakeFailed(c.cfg.Typename)
		}
		return
	}
	if wm.Context.Ticket == nil {
		c.log.Error("received config_ok without ticket context", "worker_id", workerID)
		return
	}

	if _, err := c.worker.UpdateStatus(ctx, "", workerID, domain.StatusRunning); err != nil {
		c.log.Error("failed to transition worker to running", "worker_id", workerID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.StatusTransition(domain.StatusConfig.String(), domain.StatusRunning.String())
	}

	pipelines := wm.Context.Ticket.Request.Params.Pipelines
	if err := c.worker.UpdatePipelines(ctx, workerID, pipelines); err != nil {
		c.log.Error("failed to persist pipelines", "worker_id", workerID, "error", err)
	}

	ticketID := wm.Context.Ticket.TicketID
	if err := c.ticket.Release(ctx, ticketID); err != nil {
		c.log.Error("failed to release ticket after config_ok", "ticket_id", ticketID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.TicketReleased(ticketID)
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, wm wire.WorkerMessage) {
	workerID := wm.Context.WorkerID
	analyzerID, found, err := c.worker.GetAnalyzerID(ctx, workerID)
	if err != nil {
		c.log.Error("failed to read analyzer id for event drain", "worker_id", workerID, "error", err)
		return
	}
	if !found {
		return
	}

	events, err := c.event.ConsumeFromWorker(ctx, workerID)
	if err != nil {
		c.log.Error("failed to consume events", "worker_id", workerID, "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	if err := c.event.SaveInDB(ctx, events, analyzerID, workerID); err != nil {
		c.log.Error("failed to save events", "worker_id", workerID, "analyzer_id", analyzerID, "error", err)
	}
	if c.metrics != nil {
		c.metrics.EventsDrained(workerID, len(events))
	}

	data, err := json.Marshal(events)
	if err != nil {
		c.log.Error("failed to marshal events for notification", "worker_id", workerID, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, subjectNotify, data); err != nil {
		c.log.Error("failed to publish notification", "worker_id", workerID, "error", err)
	}
}

func (c *Coordinator) handleHbeat(ctx context.Context, wm wire.WorkerMessage) {
	workerID := wm.Context.WorkerID
	ok, err := c.worker.UpdateHeartbeat(ctx, workerID)
	if err != nil {
		c.log.Debug("failed to update heartbeat", "worker_id", workerID, "error", err)
		return
	}
	if !ok {
		c.log.Debug("heartbeat ignored, worker record gone", "worker_id", workerID)
		if c.metrics != nil {
			c.metrics.HeartbeatMissed(workerID)
		}
		return
	}
	if c.metrics != nil {
		c.metrics.HeartbeatReceived(workerID)
	}
}
