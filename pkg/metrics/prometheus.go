// Package metrics provides Prometheus metrics for the reputation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	registry       prometheus.Registerer

	// Ranking business metrics
	evaluationsSubmitted prometheus.Counter
	evaluationsApplied   prometheus.Counter
	evaluationsDuplicate prometheus.Counter
	evaluationsRejected  *prometheus.CounterVec
	scoreDelta           prometheus.Histogram
	tierTransitions      *prometheus.CounterVec
	partiesTotal         prometheus.Gauge
	statisticsReads      *prometheus.CounterVec

	// Store metrics
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Claim cache
	claimCacheSize prometheus.Gauge

	// Apply queue and workers
	queueLength        prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge
	applyLatency       prometheus.Histogram
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps Go runtime collectors out of /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "reputation",
		subsystem:      "ranking",
		latencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.evaluationsSubmitted = m.counter("evaluations_submitted_total", "Evaluations received by the service")
	m.evaluationsApplied = m.counter("evaluations_applied_total", "Evaluations persisted together with their score update")
	m.evaluationsDuplicate = m.counter("evaluations_duplicate_total", "Evaluations rejected because the transaction was already rated")
	m.evaluationsRejected = m.counterVec("evaluations_rejected_total", "Evaluations rejected before apply", "reason")
	m.scoreDelta = m.histogram("score_delta_points", "Point delta computed per evaluation",
		[]float64{-40, -25, -15, -10, -5, 0, 5, 10, 15, 25, 40})
	m.tierTransitions = m.counterVec("tier_transitions_total", "Tier changes caused by evaluations", "from", "to")
	m.partiesTotal = m.gauge("parties_total", "Parties with a ranking record")
	m.statisticsReads = m.counterVec("statistics_reads_total", "Read path invocations", "view")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds",
		m.latencyBuckets, "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "backend", "op")

	m.claimCacheSize = m.gauge("claim_cache_size", "Transaction ids held by the in-process claim cache")

	m.queueLength = m.gauge("apply_queue_length", "Jobs waiting across all apply shards")
	m.queueCapacity = m.gauge("apply_queue_capacity", "Total apply queue capacity across shards")
	m.queueEnqueued = m.counter("apply_queue_enqueued_total", "Jobs accepted by apply shards")
	m.queueEnqueueErrors = m.counterVec("apply_queue_enqueue_errors_total", "Jobs refused by apply shards", "reason")
	m.workerCount = m.gauge("apply_workers", "Apply shard workers running")
	m.applyLatency = m.histogram("apply_latency_milliseconds", "Time spent applying one evaluation", m.latencyBuckets)
	m.workerErrors = m.counter("apply_worker_errors_total", "Apply jobs that failed")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.latencyBuckets, "endpoint", "method", "status_code")
	m.httpRateLimited = m.counterVec("http_rate_limited_total", "Requests refused by the rate limiter", "endpoint")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEvaluationSubmitted counts an incoming evaluation.
func RecordEvaluationSubmitted() { globalManager.evaluationsSubmitted.Inc() }

// RecordEvaluationApplied counts an evaluation that was persisted with its score update.
func RecordEvaluationApplied() { globalManager.evaluationsApplied.Inc() }

// RecordEvaluationDuplicate counts a duplicate transaction.
func RecordEvaluationDuplicate() { globalManager.evaluationsDuplicate.Inc() }

// RecordEvaluationRejected counts a rejected evaluation by reason.
func RecordEvaluationRejected(reason string) {
	globalManager.evaluationsRejected.WithLabelValues(reason).Inc()
}

// RecordScoreDelta observes the delta produced by one evaluation.
func RecordScoreDelta(delta int) { globalManager.scoreDelta.Observe(float64(delta)) }

// RecordTierTransition counts a tier change.
func RecordTierTransition(from, to string) {
	globalManager.tierTransitions.WithLabelValues(from, to).Inc()
}

// UpdatePartiesTotal sets the number of ranking records.
func UpdatePartiesTotal(count int) { globalManager.partiesTotal.Set(float64(count)) }

// RecordStatisticsRead counts a read of the given view.
func RecordStatisticsRead(view string) { globalManager.statisticsReads.WithLabelValues(view).Inc() }

// RecordStoreLatency observes a store operation latency.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// UpdateClaimCacheSize sets the claim cache size.
func UpdateClaimCacheSize(size int64) { globalManager.claimCacheSize.Set(float64(size)) }

// UpdateQueueLength sets the number of queued apply jobs.
func UpdateQueueLength(n int) { globalManager.queueLength.Set(float64(n)) }

// UpdateQueueCapacity sets total apply queue capacity.
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueEnqueueError counts a refused job.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of running apply workers.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordApplyLatency observes how long one apply took.
func RecordApplyLatency(latencyMs float64) { globalManager.applyLatency.Observe(latencyMs) }

// RecordWorkerError counts a failed apply job.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPRateLimited counts a request refused by the limiter.
func RecordHTTPRateLimited(endpoint string) {
	globalManager.httpRateLimited.WithLabelValues(endpoint).Inc()
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint counts an error answered by an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
