/*
Package workerclient is the Worker side of the protocol: the symmetric
counterpart to internal/brain. It runs the same single-threaded
cooperative scheduler shape as the Brain -- one loop goroutine draining a
buffered channel of enqueued closures -- plus one dedicated goroutine for
the pipeline task, since that one is allowed to block.

High-level responsibilities:
  - Construct its two private subjects and subscribe to the brain-to-worker
    one.
  - Drive the handshake (hshake-1 -> hshake-2 -> hshake-3 -> config ->
    config_ok) through local status guards, exactly mirroring the guards
    internal/brain enforces on its side.
  - Run a cancellable heartbeat publisher once ready.
  - Launch the registered pipeline runner on config and relay its events
    back to the Brain.

Concurrency:
  - Run() spawns exactly one loop goroutine; the heartbeat ticker and the
    pipeline runner each get their own goroutine, but neither touches
    Client state directly -- the heartbeat ticker only enqueues a publish,
    and the pipeline only calls the thread-safe SendEvent.
*/
package workerclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/observability"
	"github.com/weitingchou/jagereye/internal/pipeline"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
)

const subjectPublic = "ch_brain"

// job is one unit of work run on the Client's single loop goroutine.
type job func(ctx context.Context)

// Config holds the per-Worker-instance options from spec section 6.5.
type Config struct {
	Name              string
	WorkerID          string
	SharedDir         string
	HeartbeatInterval time.Duration
	PipelineName      string
}

// Client is the Worker protocol client. All exported methods that mutate
// state are only ever invoked from the loop goroutine started by Run,
// except SendEvent, which is explicitly documented as thread-safe.
type Client struct {
	cfg Config

	bus      bus.Bus
	store    store.Store
	registry *pipeline.Registry
	log      *logger.Logger
	metrics  *observability.Metrics

	chToBrain  string
	chToWorker string

	inbox chan job

	mu      sync.Mutex
	status  domain.Status
	runner  pipeline.Runner
	hbStop  func()
	running bool
}

// New returns a Client wired to its dependencies. cfg.HeartbeatInterval
// defaults to 2s when unset, matching spec.md's HEARTBEAT_INTERVAL
// default.
func New(cfg Config, b bus.Bus, s store.Store, registry *pipeline.Registry, metrics *observability.Metrics, log *logger.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 2 * time.Second
	}
	return &Client{
		cfg:        cfg,
		bus:        b,
		store:      s,
		registry:   registry,
		metrics:    metrics,
		log:        log.With("component", "workerclient", "worker_id", cfg.WorkerID),
		chToBrain:  fmt.Sprintf("ch_%s_brain", cfg.WorkerID),
		chToWorker: fmt.Sprintf("ch_brain_%s", cfg.WorkerID),
		inbox:      make(chan job, 64),
		status:     domain.StatusInitial,
	}
}

// Run subscribes to the private brain-to-worker subject, publishes
// hshake-1, and runs the single event loop until ctx is canceled. On
// return it stops the heartbeat and signals the pipeline runner, if any,
// to stop.
func (c *Client) Run(ctx context.Context) error {
	if _, err := c.bus.Subscribe(ctx, c.chToWorker, c.onMessage); err != nil {
		return fmt.Errorf("workerclient: subscribe %s: %w", c.chToWorker, err)
	}

	c.enqueue(c.publishHshake1)

	go c.loop(ctx)
	<-ctx.Done()
	c.shutdown()
	return nil
}

// enqueue schedules j to run on the loop goroutine. A full inbox means
// the worker is falling behind; dropping the job and logging is
// preferable to blocking a bus callback goroutine forever.
func (c *Client) enqueue(j job) {
	select {
	case c.inbox <- j:
	default:
		c.log.Warn("worker inbox full, dropping job")
	}
}

func (c *Client) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.inbox:
			c.runJob(ctx, j)
		}
	}
}

// runJob executes j with a recover() guard: one bad message must never
// take down the worker's dispatch loop.
func (c *Client) runJob(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered from panic in job dispatch", "panic", r)
		}
	}()
	j(ctx)
}

// shutdown stops the heartbeat timer and signals the pipeline runner to
// stop. It does not wait for the pipeline goroutine to exit; Stop is
// expected to be a fast, non-blocking signal per the pipeline.Runner
// contract.
func (c *Client) shutdown() {
	c.mu.Lock()
	stop := c.hbStop
	runner := c.runner
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if runner != nil {
		runner.Stop()
	}
	_ = c.bus.Close()
}

func (c *Client) setStatus(s domain.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) getStatus() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
