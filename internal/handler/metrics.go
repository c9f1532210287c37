package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opengov_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opengov_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	reportsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opengov_reports_created_total",
		Help: "Total reports submitted.",
	})

	reportTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opengov_report_transitions_total",
		Help: "Total status transitions by source and target status.",
	}, []string{"from", "to"})

	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opengov_votes_total",
		Help: "Total votes cast by kind.",
	}, []string{"kind"})

	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opengov_events_published_total",
		Help: "Total domain events published by type and result.",
	}, []string{"type", "result"})

	activityEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opengov_activity_entries_total",
		Help: "Total activity log appends by result.",
	}, []string{"result"})

	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opengov_health_checks_total",
		Help: "Total health check probes by component and result.",
	}, []string{"component", "result"})
)

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordHealthCheck records a health check probe result.
func RecordHealthCheck(component string, success bool) {
	healthChecksTotal.WithLabelValues(component, result(success)).Inc()
}

// PrometheusRecorder feeds report service activity into the process metrics.
type PrometheusRecorder struct{}

// ReportCreated implements service.Metrics.
func (PrometheusRecorder) ReportCreated() { reportsCreatedTotal.Inc() }

// StatusTransition implements service.Metrics.
func (PrometheusRecorder) StatusTransition(from, to model.Status) {
	reportTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// VoteCast implements service.Metrics.
func (PrometheusRecorder) VoteCast(kind model.VoteKind) {
	votesTotal.WithLabelValues(string(kind)).Inc()
}

// EventPublished implements service.Metrics.
func (PrometheusRecorder) EventPublished(eventType string, ok bool) {
	eventsPublishedTotal.WithLabelValues(eventType, result(ok)).Inc()
}

// ActivityAppended implements service.Metrics.
func (PrometheusRecorder) ActivityAppended(ok bool) {
	activityEntriesTotal.WithLabelValues(result(ok)).Inc()
}
