package workerclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/wire"
)

// onMessage decodes an inbound brain-to-worker message and enqueues its
// handling on the loop goroutine.
func (c *Client) onMessage(msg bus.Message) {
	var wm wire.WorkerMessage
	if err := json.Unmarshal(msg.Data, &wm); err != nil {
		c.log.Warn("dropping malformed brain message", "error", err)
		return
	}
	c.enqueue(func(ctx context.Context) {
		c.handleMessage(ctx, wm)
	})
}

func (c *Client) handleMessage(ctx context.Context, wm wire.WorkerMessage) {
	switch wm.Verb {
	case wire.VerbHshake2:
		c.handleHshake2(ctx, wm)
	case wire.VerbConfig:
		c.handleConfig(ctx, wm)
	default:
		c.log.Warn("unexpected verb on brain-to-worker subject", "verb", wm.Verb)
	}
}

// publishHshake1 announces the worker's subjects to the Brain and sets
// local status to hshake_1.
func (c *Client) publishHshake1(ctx context.Context) {
	c.setStatus(domain.StatusHshake1)
	c.publish(ctx, subjectPublic, wire.WorkerMessage{
		Verb: wire.VerbHshake1,
		Context: wire.MessageContext{
			WorkerID:   c.cfg.WorkerID,
			ChToBrain:  c.chToBrain,
			ChToWorker: c.chToWorker,
			Timestamp:  float64(time.Now().Unix()),
		},
	})
}

// handleHshake2 guards on local status hshake_1: it echoes the context
// back as hshake-3, transitions to ready, and starts the heartbeat
// publisher.
func (c *Client) handleHshake2(ctx context.Context, wm wire.WorkerMessage) {
	if c.getStatus() != domain.StatusHshake1 {
		c.log.Warn("received hshake-2 with unexpected local status", "status", c.getStatus())
		return
	}
	c.setStatus(domain.StatusReady)
	c.publish(ctx, c.chToBrain, wire.WorkerMessage{Verb: wire.VerbHshake3, Context: wm.Context})
	c.startHeartbeat(ctx)
}

func (c *Client) publish(ctx context.Context, subject string, wm wire.WorkerMessage) {
	data, err := json.Marshal(wm)
	if err != nil {
		c.log.Error("failed to marshal worker message", "verb", wm.Verb, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, subject, data); err != nil {
		c.log.Error("failed to publish worker message", "subject", subject, "verb", wm.Verb, "error", err)
	}
}
