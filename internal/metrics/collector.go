// Package metrics exposes engine counters and latencies to Prometheus.
// It is observational only: every method is safe on a nil *Collector, so
// components can run without metrics wired in.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/arenaengine/internal/model"
)

const namespace = "arena"

// Action outcomes
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeInternal = "internal_error"
)

// Collector aggregates metrics from every engine component
type Collector struct {
	registry *prometheus.Registry

	connectionsOpen      prometheus.Gauge
	connectionsTotal     prometheus.Counter
	evictions            prometheus.Counter
	protocolErrors       *prometheus.CounterVec
	sessionsCreated      *prometheus.CounterVec
	sessionsEnded        *prometheus.CounterVec
	sessionsByStatus     *prometheus.GaugeVec
	sessionDuration      prometheus.Histogram
	actions              *prometheus.CounterVec
	actionLatency        *prometheus.HistogramVec
	messagesSent         *prometheus.CounterVec
	messagesSkipped      prometheus.Counter
	collaboratorFailures *prometheus.CounterVec
	httpRequests         *prometheus.HistogramVec
}

// New creates a collector with its own registry, including Go runtime metrics
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_open",
			Help: "Currently open game connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_total",
			Help: "Game connections accepted.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connection_evictions_total",
			Help: "Connections replaced by a newer connection for the same player.",
		}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "client_errors_total",
			Help: "Errors returned to clients, by code.",
		}, []string{"code"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_created_total",
			Help: "Sessions created, by game type.",
		}, []string{"game_type"}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_ended_total",
			Help: "Sessions that produced a result, by reason.",
		}, []string{"reason"}),
		sessionsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions",
			Help: "Sessions currently held, by status.",
		}, []string{"status"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "session_duration_seconds",
			Help:    "Time from session start to its result.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actions_total",
			Help: "Actions processed, by game type and outcome.",
		}, []string{"game_type", "outcome"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "action_duration_seconds",
			Help:    "Time to validate, apply and broadcast an action.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"game_type"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Envelopes queued to connections, by type.",
		}, []string{"type"}),
		messagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_skipped_total",
			Help: "Broadcast deliveries skipped because the recipient was unreachable.",
		}),
		collaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collaborator_failures_total",
			Help: "Failed calls to external collaborators.",
		}, []string{"collaborator"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Operator API request latency by route template.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.connectionsOpen,
		c.connectionsTotal,
		c.evictions,
		c.protocolErrors,
		c.sessionsCreated,
		c.sessionsEnded,
		c.sessionsByStatus,
		c.sessionDuration,
		c.actions,
		c.actionLatency,
		c.messagesSent,
		c.messagesSkipped,
		c.collaboratorFailures,
		c.httpRequests,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsOpen.Inc()
	c.connectionsTotal.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsOpen.Dec()
}

func (c *Collector) ConnectionEvicted() {
	if c == nil {
		return
	}
	c.evictions.Inc()
}

func (c *Collector) ClientError(code string) {
	if c == nil {
		return
	}
	c.protocolErrors.WithLabelValues(code).Inc()
}

func (c *Collector) SessionCreated(gameType model.GameType) {
	if c == nil {
		return
	}
	c.sessionsCreated.WithLabelValues(string(gameType)).Inc()
}

// SessionEnded records a result; startedAt is nil for sessions that never went active
func (c *Collector) SessionEnded(result *model.SessionResult) {
	if c == nil || result == nil {
		return
	}
	c.sessionsEnded.WithLabelValues(string(result.Reason)).Inc()
	if result.StartedAt != nil {
		c.sessionDuration.Observe(result.CompletedAt.Sub(*result.StartedAt).Seconds())
	}
}

// SetSessionCounts replaces the per-status session gauge
func (c *Collector) SetSessionCounts(counts map[model.SessionStatus]int) {
	if c == nil {
		return
	}
	for _, status := range []model.SessionStatus{
		model.SessionStatusWaiting, model.SessionStatusActive,
		model.SessionStatusCompleted, model.SessionStatusAborted,
	} {
		c.sessionsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) ActionProcessed(gameType model.GameType, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(string(gameType), outcome).Inc()
	c.actionLatency.WithLabelValues(string(gameType)).Observe(took.Seconds())
}

func (c *Collector) MessageSent(messageType string) {
	if c == nil {
		return
	}
	c.messagesSent.WithLabelValues(messageType).Inc()
}

func (c *Collector) MessageSkipped() {
	if c == nil {
		return
	}
	c.messagesSkipped.Inc()
}

func (c *Collector) CollaboratorFailed(name string) {
	if c == nil {
		return
	}
	c.collaboratorFailures.WithLabelValues(name).Inc()
}

// HTTPRequest records one API request. route is the path template, not the raw path.
func (c *Collector) HTTPRequest(route, method string, status int, took time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(took.Seconds())
}
