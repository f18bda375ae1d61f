package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the inference pipeline.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	suggestionTotal      *prometheus.CounterVec
	suggestionConfidence prometheus.Histogram
	applyTotal           *prometheus.CounterVec
	workflowDuration     *prometheus.HistogramVec
	cacheLatency         prometheus.Histogram
	cacheHits            prometheus.Counter
	cacheMisses          prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	suggestionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relationship_suggestions_total",
		Help: "Suggestions generated per strategy",
	}, []string{"strategy"})

	suggestionConfidence := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relationship_suggestion_confidence",
		Help:    "Confidence distribution of generated suggestions",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	})

	applyTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestion_applies_total",
		Help: "Suggestion apply attempts per relationship and outcome",
	}, []string{"relationship", "outcome"})

	workflowDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_duration_seconds",
		Help:    "Workflow execution duration per type and terminal status",
		Buckets: prometheus.DefBuckets,
	}, []string{"workflow_type", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache misses",
	})

	registry.MustRegister(requestDuration, requestTotal, suggestionTotal, suggestionConfidence,
		applyTotal, workflowDuration, cacheLatency, cacheHits, cacheMisses)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		suggestionTotal:      suggestionTotal,
		suggestionConfidence: suggestionConfidence,
		applyTotal:           applyTotal,
		workflowDuration:     workflowDuration,
		cacheLatency:         cacheLatency,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// RecordSuggestion records one generated suggestion.
func (s *MetricsService) RecordSuggestion(strategy string, confidence float64) {
	s.suggestionTotal.WithLabelValues(strategy).Inc()
	s.suggestionConfidence.Observe(confidence)
}

// RecordApply records one suggestion apply attempt.
func (s *MetricsService) RecordApply(relationship string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	s.applyTotal.WithLabelValues(relationship, outcome).Inc()
}

// RecordWorkflow records a finished workflow execution.
func (s *MetricsService) RecordWorkflow(workflowType, status string, duration time.Duration) {
	s.workflowDuration.WithLabelValues(workflowType, status).Observe(duration.Seconds())
}

// RecordCacheOperation records a cache hit or miss with its latency.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	s.cacheLatency.Observe(duration.Seconds())
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
}
