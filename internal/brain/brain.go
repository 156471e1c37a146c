/*
Package brain is the coordination engine: a single-threaded cooperative
scheduler over the message bus that owns every analyzer/worker record,
mediates the four-message handshake with each worker, gates concurrent
writes to the same analyzer via tickets, forwards configuration, drains
events, and liveness-monitors workers via heartbeats.

High-level responsibilities:
  - Subscribe to the three well-known subjects (API, public handshake,
    resource manager) and, per worker, a dynamically-named private
    subject.
  - Never let more than one goroutine touch coordinator state: every bus
    callback decodes its message and enqueues a closure onto a single
    channel; one loop goroutine drains that channel and runs each
    closure to completion before the next.
  - Run a periodic liveness sweep as just another enqueued closure, so it
    is never concurrent with a handler.

Concurrency:
  - Run() runs the loop on the calling goroutine and spawns exactly one
    ticker goroutine (which only ever enqueues, never mutates state
    directly).
  - Bus subscription callbacks run on goroutines owned by the Bus
    implementation; they decode the wire envelope and enqueue, nothing
    more.
*/
package brain

import (
	"context"
	"time"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/eventagent"
	"github.com/weitingchou/jagereye/internal/observability"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/ticket"
	"github.com/weitingchou/jagereye/internal/workeragent"
)

const (
	subjectAPI      = "ch_api_brain"
	subjectResFrom  = "ch_res_brain"
	subjectResTo    = "ch_brain_res"
	subjectNotify   = "ch_notification"
	defaultChPublic = "ch_brain"
)

// job is one unit of work run on the Coordinator's single loop goroutine.
type job func(ctx context.Context)

// Config holds the per-Brain-instance options from spec section 6.5.
type Config struct {
	Typename         string
	ChPublic         string
	ExamineInterval  time.Duration
	ExamineThreshold time.Duration
}

// Coordinator is the Brain. All exported methods that mutate state are
// only ever invoked from the loop goroutine started by Run.
type Coordinator struct {
	cfg Config

	bus     bus.Bus
	ticket  *ticket.Agent
	worker  *workeragent.Agent
	event   *eventagent.Agent
	log     *logger.Logger
	metrics *observability.Metrics

	inbox chan job

	privateSubs map[string]bus.Subscription
}

// New returns a Coordinator. cfg.ChPublic defaults to "ch_brain" when
// empty; cfg.ExamineInterval/ExamineThreshold default to 6s/10s.
func New(cfg Config, b bus.Bus, workerAgent *workeragent.Agent, ticketAgent *ticket.Agent, eventAgent *eventagent.Agent, metrics *observability.Metrics, log *logger.Logger) *Coordinator {
	if cfg.ChPublic == "" {
		cfg.ChPublic = defaultChPublic
	}
	if cfg.ExamineInterval <= 0 {
		cfg.ExamineInterval = 6 * time.Second
	}
	if cfg.ExamineThreshold <= 0 {
		cfg.ExamineThreshold = 10 * time.Second
	}
	return &Coordinator{
		cfg:         cfg,
		bus:         b,
		ticket:      ticketAgent,
		worker:      workerAgent,
		event:       eventAgent,
		metrics:     metrics,
		log:         log.With("component", "brain", "typename", cfg.Typename),
		inbox:       make(chan job, 256),
		privateSubs: make(map[string]bus.Subscription),
	}
}

// Run subscribes to every well-known subject, starts the liveness-sweep
// ticker, and runs the single event loop until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	if _, err := c.bus.Subscribe(ctx, subjectAPI, c.onAPIMessage); err != nil {
		return err
	}
	if _, err := c.bus.Subscribe(ctx, c.cfg.ChPublic, c.onPublicMessage); err != nil {
		return err
	}
	if _, err := c.bus.Subscribe(ctx, subjectResFrom, c.onResMgrMessage); err != nil {
		return err
	}

	go c.runSweepTicker(ctx)

	c.loop(ctx)
	return nil
}

// enqueue schedules j to run on the loop goroutine. It never blocks the
// caller for long: the inbox is large, and a full inbox means the Brain
// is falling behind, which is itself worth surfacing rather than
// silently blocking a bus callback goroutine forever.
func (c *Coordinator) enqueue(j job) {
	select {
	case c.inbox <- j:
	default:
		c.log.Warn("brain inbox full, dropping job")
	}
	if c.metrics != nil {
		c.metrics.SetInboxDepth(len(c.inbox))
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.inbox:
			c.runJob(ctx, j)
		}
	}
}

// runJob executes j with a recover() guard: one malformed message or bad
// handler path must never take down the whole dispatch loop.
func (c *Coordinator) runJob(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered from panic in job dispatch", "panic", r)
		}
	}()
	j(ctx)
}

func (c *Coordinator) runSweepTicker(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ExamineInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.enqueue(c.handleLivenessSweep)
		}
	}
}
