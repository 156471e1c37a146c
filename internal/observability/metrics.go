// Package observability exposes the Brain/Worker/Resource-Manager metrics
// as a Prometheus scrape endpoint.
package observability

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weitingchou/jagereye/internal/platform/logger"
)

// Metrics holds every counter/gauge/histogram the coordination plane
// reports. A nil *Metrics is valid everywhere: every method is a no-op on
// a nil receiver, so callers never need to branch on whether metrics are
// enabled.
type Metrics struct {
	registry *prometheus.Registry

	ticketHolds      *prometheus.CounterVec
	ticketReleases   *prometheus.CounterVec
	ticketContention *prometheus.CounterVec

	statusTransitions *prometheus.CounterVec
	workersDown       *prometheus.CounterVec

	heartbeatsReceived *prometheus.CounterVec
	heartbeatMisses    *prometheus.CounterVec
	livenessSweeps     prometheus.Counter

	handshakeCompleted *prometheus.CounterVec
	handshakeFailed    *prometheus.CounterVec

	eventsQueued    *prometheus.CounterVec
	eventsDrained   *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	eventQueueDepth *prometheus.GaugeVec

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec

	inboxDepth prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Enabled reports whether METRICS_ENABLED is set truthy.
func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns the process-wide Metrics instance, or nil if metrics
// were never initialized.
func Current() *Metrics {
	return instance
}

// Init builds the registry and every metric exactly once. It returns nil
// when METRICS_ENABLED is not set, so construction can run unconditionally
// at startup.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()

		m := &Metrics{
			registry: reg,
			ticketHolds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_ticket_holds_total",
				Help: "Ticket acquisitions by analyzer.",
			}, []string{"analyzer_id"}),
			ticketReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_ticket_releases_total",
				Help: "Ticket releases by analyzer.",
			}, []string{"analyzer_id"}),
			ticketContention: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_ticket_contention_total",
				Help: "Rejected ticket acquisitions because another ticket already holds the analyzer.",
			}, []string{"analyzer_id"}),
			statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_worker_status_transitions_total",
				Help: "Worker status transitions by from/to state.",
			}, []string{"from", "to"}),
			workersDown: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_workers_marked_down_total",
				Help: "Workers marked down by the liveness sweep.",
			}, []string{"worker_id"}),
			heartbeatsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_heartbeats_received_total",
				Help: "Heartbeats accepted by worker.",
			}, []string{"worker_id"}),
			heartbeatMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_heartbeat_misses_total",
				Help: "Heartbeats rejected because the worker record was already gone.",
			}, []string{"worker_id"}),
			livenessSweeps: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "jagereye_liveness_sweeps_total",
				Help: "Liveness sweeps run by the Brain.",
			}),
			handshakeCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_handshake_completed_total",
				Help: "Completed worker handshakes by typename.",
			}, []string{"typename"}),
			handshakeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_handshake_failed_total",
				Help: "Failed or abandoned worker handshakes by typename.",
			}, []string{"typename"}),
			eventsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_events_queued_total",
				Help: "Events appended to a worker's queue.",
			}, []string{"worker_id"}),
			eventsDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_events_drained_total",
				Help: "Events drained from a worker's queue and persisted.",
			}, []string{"worker_id"}),
			eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_events_dropped_total",
				Help: "Events dropped for failing schema validation or decode.",
			}, []string{"worker_id", "reason"}),
			eventQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "jagereye_event_queue_depth",
				Help: "Event queue depth observed at the last drain, by worker.",
			}, []string{"worker_id"}),
			apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jagereye_api_requests_total",
				Help: "API requests handled by the Brain, by command and outcome.",
			}, []string{"command", "outcome"}),
			apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "jagereye_api_request_duration_seconds",
				Help:    "API request handling latency in seconds, by command.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"command"}),
			inboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "jagereye_brain_inbox_depth",
				Help: "Pending jobs on the Brain's single dispatch loop.",
			}),
		}
		reg.MustRegister(
			m.ticketHolds, m.ticketReleases, m.ticketContention,
			m.statusTransitions, m.workersDown,
			m.heartbeatsReceived, m.heartbeatMisses, m.livenessSweeps,
			m.handshakeCompleted, m.handshakeFailed,
			m.eventsQueued, m.eventsDrained, m.eventsDropped, m.eventQueueDepth,
			m.apiRequests, m.apiLatency,
			m.inboxDepth,
		)
		instance = m
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// StartServer serves the Prometheus text-exposition format on addr until
// ctx is canceled. A nil Metrics or empty addr makes this a no-op.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) TicketAcquired(analyzerID string) {
	if m == nil {
		return
	}
	m.ticketHolds.WithLabelValues(analyzerID).Inc()
}

func (m *Metrics) TicketRejected(analyzerID string) {
	if m == nil {
		return
	}
	m.ticketContention.WithLabelValues(analyzerID).Inc()
}

func (m *Metrics) TicketReleased(analyzerID string) {
	if m == nil {
		return
	}
	m.ticketReleases.WithLabelValues(analyzerID).Inc()
}

func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) WorkerMarkedDown(workerID string) {
	if m == nil {
		return
	}
	m.workersDown.WithLabelValues(workerID).Inc()
}

func (m *Metrics) HeartbeatReceived(workerID string) {
	if m == nil {
		return
	}
	m.heartbeatsReceived.WithLabelValues(workerID).Inc()
}

func (m *Metrics) HeartbeatMissed(workerID string) {
	if m == nil {
		return
	}
	m.heartbeatMisses.WithLabelValues(workerID).Inc()
}

func (m *Metrics) LivenessSweepRan() {
	if m == nil {
		return
	}
	m.livenessSweeps.Inc()
}

func (m *Metrics) HandshakeCompleted(typename string) {
	if m == nil {
		return
	}
	m.handshakeCompleted.WithLabelValues(typename).Inc()
}

func (m *Metrics) HandshakeFailed(typename string) {
	if m == nil {
		return
	}
	m.handshakeFailed.WithLabelValues(typename).Inc()
}

func (m *Metrics) EventsQueued(workerID string, n int) {
	if m == nil {
		return
	}
	m.eventsQueued.WithLabelValues(workerID).Add(float64(n))
}

func (m *Metrics) EventsDrained(workerID string, n int) {
	if m == nil {
		return
	}
	m.eventsDrained.WithLabelValues(workerID).Add(float64(n))
	m.eventQueueDepth.WithLabelValues(workerID).Set(0)
}

func (m *Metrics) EventDropped(workerID, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(workerID, reason).Inc()
}

func (m *Metrics) ObserveAPIRequest(command, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(command, outcome).Inc()
	m.apiLatency.WithLabelValues(command).Observe(dur.Seconds())
}

func (m *Metrics) SetInboxDepth(n int) {
	if m == nil {
		return
	}
	m.inboxDepth.Set(float64(n))
}
