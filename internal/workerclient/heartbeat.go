package workerclient

import (
	"context"
	"time"

	"github.com/weitingchou/jagereye/internal/wire"
)

// startHeartbeat spawns a ticker goroutine that enqueues a heartbeat
// publish every HeartbeatInterval. The goroutine itself never touches
// Client state or the bus directly -- it only enqueues, so it runs
// exactly like a bus callback goroutine would.
func (c *Client) startHeartbeat(ctx context.Context) {
	done := make(chan struct{})
	c.mu.Lock()
	c.hbStop = func() { close(done) }
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.enqueue(c.publishHeartbeat)
			}
		}
	}()
}

func (c *Client) publishHeartbeat(ctx context.Context) {
	c.publish(ctx, c.chToBrain, wire.WorkerMessage{
		Verb: wire.VerbHbeat,
		Context: wire.MessageContext{
			WorkerID:  c.cfg.WorkerID,
			Timestamp: float64(time.Now().Unix()),
		},
	})
}
