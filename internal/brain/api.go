package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/contract"
	"github.com/weitingchou/jagereye/internal/platform/apierr"
	"github.com/weitingchou/jagereye/internal/wire"
)

// onAPIMessage decodes an inbound ch_api_brain message and enqueues its
// handling on the loop goroutine. Decoding happens on the bus callback
// goroutine; everything that touches coordinator state happens on loop.
func (c *Coordinator) onAPIMessage(msg bus.Message) {
	var req wire.ApiRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.log.Warn("dropping malformed api request", "error", err)
		return
	}
	c.enqueue(func(ctx context.Context) {
		c.handleAPI(ctx, req)
	})
}

func (c *Coordinator) handleAPI(ctx context.Context, req wire.ApiRequest) {
	start := time.Now()
	if err := contract.Validate(req, c.cfg.Typename); err != nil {
		if err == contract.ErrNotForUs {
			return
		}
		c.log.Error("contract violation on api request", "command", req.Command, "error", err)
		if c.metrics != nil {
			c.metrics.ObserveAPIRequest(req.Command, "contract_violation", time.Since(start))
		}
		return
	}

	analyzerID := req.Params.ID

	var outcome string
	switch req.Command {
	case wire.CmdReqAnalyzerStatus:
		outcome = c.handleStatusRequest(ctx, req, analyzerID)
	case wire.CmdStartAnalyzer:
		outcome = c.handleStartAnalyzer(ctx, req, analyzerID)
	case wire.CmdStopAnalyzer:
		outcome = c.handleStopAnalyzer(ctx, req, analyzerID)
	default:
		outcome = "unknown_command"
	}
	if c.metrics != nil {
		c.metrics.ObserveAPIRequest(req.Command, outcome, time.Since(start))
	}
}

func (c *Coordinator) handleStatusRequest(ctx context.Context, req wire.ApiRequest, analyzerID string) string {
	status, pipelines, found, err := c.worker.GetInfo(ctx, analyzerID, "")
	if err != nil {
		c.log.Error("failed to read analyzer status", "analyzer_id", analyzerID, "error", err)
		c.replyAPI(ctx, req, contract.ReplyFor(apierr.ErrNotFound))
		return "error"
	}
	if !found {
		c.replyAPI(ctx, req, contract.ReplyFor(apierr.ErrNotFound))
		return "not_found"
	}
	c.replyAPI(ctx, req, contract.StatusReply(c.cfg.Typename, status.String(), pipelines))
	return "ok"
}

func (c *Coordinator) handleStartAnalyzer(ctx context.Context, req wire.ApiRequest, analyzerID string) string {
	payload, err := json.Marshal(wire.TicketPayload{TicketID: analyzerID, Request: req})
	if err != nil {
		c.log.Error("failed to marshal ticket payload", "analyzer_id", analyzerID, "error", err)
		return "error"
	}
	ok, err := c.ticket.Acquire(ctx, analyzerID, string(payload))
	if err != nil {
		c.log.Error("ticket acquire failed", "analyzer_id", analyzerID, "error", err)
		return "error"
	}
	if !ok {
		if c.metrics != nil {
			c.metrics.TicketRejected(analyzerID)
		}
		c.replyAPI(ctx, req, contract.ReplyFor(apierr.ErrNotAvailable))
		return "not_available"
	}
	if c.metrics != nil {
		c.metrics.TicketAcquired(analyzerID)
	}

	workerID, exists, err := c.worker.GetWorkerID(ctx, analyzerID)
	if err != nil {
		c.log.Error("failed to look up worker id", "analyzer_id", analyzerID, "error", err)
		return "error"
	}
	if exists && workerID != "" {
		c.log.Debug("worker already exists, reconfiguration unimplemented", "analyzer_id", analyzerID, "worker_id", workerID)
		if err := c.ticket.Release(ctx, analyzerID); err != nil {
			c.log.Error("failed to release ticket on reconfigure no-op", "analyzer_id", analyzerID, "error", err)
		}
		c.replyAPI(ctx, req, contract.ReplyFor(apierr.ErrNoOp))
		return "no_op"
	}

	c.replyAPI(ctx, req, contract.StatusReply(c.cfg.Typename, "create", nil))

	resReq := wire.ResMgrRequest{
		Command:    wire.CmdCreateWorker,
		TicketID:   analyzerID,
		AnalyzerID: analyzerID,
		Params: wire.ResMgrParams{
			WorkerName: fmt.Sprintf("jagereye/worker_%s", c.cfg.Typename),
		},
	}
	c.publishResMgrRequest(ctx, resReq)
	return "accepted"
}

func (c *Coordinator) handleStopAnalyzer(ctx context.Context, req wire.ApiRequest, analyzerID string) string {
	payload, err := json.Marshal(wire.TicketPayload{TicketID: analyzerID, Request: req})
	if err != nil {
		c.log.Error("failed to marshal ticket payload", "analyzer_id", analyzerID, "error", err)
		return "error"
	}
	ok, err := c.ticket.Acquire(ctx, analyzerID, string(payload))
	if err != nil {
		c.log.Error("ticket acquire failed", "analyzer_id", analyzerID, "error", err)
		return "error"
	}
	if !ok {
		if c.metrics != nil {
			c.metrics.TicketRejected(analyzerID)
		}
		c.replyAPI(ctx, req, contract.ReplyFor(apierr.ErrNotAvailable))
		return "not_available"
	}
	if c.metrics != nil {
		c.metrics.TicketAcquired(analyzerID)
	}

	workerID, exists, err := c.worker.GetWorkerID(ctx, analyzerID)
	if err != nil {
		c.log.Error("failed to look up worker id", "analyzer_id", analyzerID, "error", err)
		return "error"
	}
	if !exists || workerID == "" {
		c.replyAPI(ctx, req, contract.ReplyFor(apierr.ErrNotFound))
		return "not_found"
	}

	resReq := wire.ResMgrRequest{
		Command:    wire.CmdRemoveWorker,
		TicketID:   analyzerID,
		AnalyzerID: analyzerID,
		Params:     wire.ResMgrParams{WorkerID: workerID},
	}
	c.publishResMgrRequest(ctx, resReq)
	return "accepted"
}

func (c *Coordinator) replyAPI(ctx context.Context, req wire.ApiRequest, reply wire.ApiReply) {
	if req.ReplyTo == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		c.log.Error("failed to marshal api reply", "error", err)
		return
	}
	if err := c.bus.Publish(ctx, req.ReplyTo, data); err != nil {
		c.log.Error("failed to publish api reply", "reply_to", req.ReplyTo, "error", err)
	}
}

func (c *Coordinator) publishResMgrRequest(ctx context.Context, req wire.ResMgrRequest) {
	data, err := json.Marshal(req)
	if err != nil {
		c.log.Error("failed to marshal resource manager request", "error", err)
		return
	}
	if err := c.bus.Publish(ctx, subjectResTo, data); err != nil {
		c.log.Error("failed to publish resource manager request", "error", err)
	}
}
