package workerclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weitingchou/jagereye/internal/wire"
)

func queueKey(workerID string) string {
	return fmt.Sprintf("event:brain:%s", workerID)
}

// wireEvent mirrors internal/eventagent.Event's wire shape. The two
// packages run in different processes connected only by the memory
// store and the bus, so each side carries its own copy of this shape
// rather than sharing an internal type across a process boundary.
type wireEvent struct {
	Type      string         `json:"type"`
	AppName   string         `json:"app_name"`
	Timestamp float64        `json:"timestamp"`
	Content   map[string]any `json:"content"`
}

// SendEvent is the pipeline.SendEvent callback handed to the running
// pipeline. It is safe to call from the pipeline's own goroutine: the
// store append happens synchronously and store.Store implementations are
// safe for concurrent use, then publication is only scheduled (enqueued)
// rather than performed here, keeping the bus touched only from the loop
// goroutine.
func (c *Client) SendEvent(eventType string, timestamp float64, content map[string]any) {
	data, err := json.Marshal(wireEvent{
		Type:      eventType,
		AppName:   c.cfg.Name,
		Timestamp: timestamp,
		Content:   content,
	})
	if err != nil {
		c.log.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}
	if err := c.store.RPush(context.Background(), queueKey(c.cfg.WorkerID), string(data)); err != nil {
		c.log.Error("failed to queue event", "type", eventType, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.EventsQueued(c.cfg.WorkerID, 1)
	}
	c.enqueue(c.publishEvent)
}

func (c *Client) publishEvent(ctx context.Context) {
	c.publish(ctx, c.chToBrain, wire.WorkerMessage{
		Verb:    wire.VerbEvent,
		Context: wire.MessageContext{WorkerID: c.cfg.WorkerID},
	})
}
