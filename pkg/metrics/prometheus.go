// Package metrics provides Prometheus metrics for the gauntlet match engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the engine reports to.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Match lifecycle
	transitions         *prometheus.CounterVec
	transitionConflicts *prometheus.CounterVec
	stageLatency        *prometheus.HistogramVec
	stageFailures       *prometheus.CounterVec
	snapshotsWritten    prometheus.Counter
	snapshotsReused     prometheus.Counter

	// Decision collection
	decisions          *prometheus.CounterVec
	providerLatency    prometheus.Histogram
	providerErrors     *prometheus.CounterVec
	credentialRefresh  *prometheus.CounterVec
	collectionDuration prometheus.Histogram

	// Combat
	eliminations prometheus.Counter
	clashes      prometheus.Counter

	// Wager ledger
	betsPlaced    prometheus.Counter
	betsRejected  *prometheus.CounterVec
	giftsPlaced   prometheus.Counter
	payouts       prometheus.Counter
	payoutAmount  prometheus.Counter
	debitedAmount prometheus.Counter

	// Jobs
	jobQueueSize     prometheus.Gauge
	jobQueueCapacity prometheus.Gauge
	jobsEnqueued     prometheus.Counter
	jobsRejected     prometheus.Counter
	jobsCompleted    prometheus.Counter
	jobsFailed       prometheus.Counter
	jobsResumed      prometheus.Counter
	workerCount      prometheus.Gauge

	// Idempotency claims
	claimsHeld *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gauntlet",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
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

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.transitions = m.counterVec("transitions_total", "Match status transitions won, by target status", "to")
	m.transitionConflicts = m.counterVec("transition_conflicts_total", "Transition claims lost to a concurrent caller", "to")
	m.stageLatency = m.histogramVec("stage_latency_milliseconds", "Time spent computing a stage output", "stage")
	m.stageFailures = m.counterVec("stage_failures_total", "Stage computations that failed and will be retried", "stage")
	m.snapshotsWritten = m.counter("snapshots_written_total", "Snapshots persisted by this process")
	m.snapshotsReused = m.counter("snapshots_reused_total", "Snapshots read back instead of recomputed")

	m.decisions = m.counterVec("decisions_total", "Decisions collected, by source", "source")
	m.providerLatency = m.histogram("provider_latency_milliseconds", "Remote decision provider call latency")
	m.providerErrors = m.counterVec("provider_errors_total", "Remote decision provider failures", "kind")
	m.credentialRefresh = m.counterVec("credential_refresh_total", "Provider credential refresh attempts", "result")
	m.collectionDuration = m.histogram("collection_duration_milliseconds", "Wall time of one decision fan-out")

	m.eliminations = m.counter("eliminations_total", "Entrants eliminated during rounds or brackets")
	m.clashes = m.counter("clashes_total", "Bracket pairings resolved")

	m.betsPlaced = m.counter("bets_placed_total", "Bets accepted")
	m.betsRejected = m.counterVec("bets_rejected_total", "Bets and gifts rejected, by reason", "reason")
	m.giftsPlaced = m.counter("gifts_placed_total", "Artifact gifts accepted")
	m.payouts = m.counter("payouts_total", "Bets settled with a non-zero payout")
	m.payoutAmount = m.counter("payout_amount_total", "Sum of payouts credited")
	m.debitedAmount = m.counter("debited_amount_total", "Sum of balances debited for bets and gifts")

	m.jobQueueSize = m.gauge("job_queue_size", "Jobs waiting in the queue")
	m.jobQueueCapacity = m.gauge("job_queue_capacity", "Capacity of the job queue")
	m.jobsEnqueued = m.counter("jobs_enqueued_total", "Jobs accepted by the queue")
	m.jobsRejected = m.counter("jobs_rejected_total", "Jobs rejected by the queue")
	m.jobsCompleted = m.counter("jobs_completed_total", "Jobs that reached their target status")
	m.jobsFailed = m.counter("jobs_failed_total", "Job runs that stopped on an error")
	m.jobsResumed = m.counter("jobs_resumed_total", "Unfinished jobs re-enqueued by the sweeper")
	m.workerCount = m.gauge("worker_count", "Job workers running")

	m.claimsHeld = m.counterVec("claims_total", "Idempotency claim attempts, by outcome", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordTransition counts a won status claim.
func RecordTransition(to string) {
	if globalManager.enabled {
		globalManager.transitions.WithLabelValues(to).Inc()
	}
}

// RecordTransitionConflict counts a lost status claim.
func RecordTransitionConflict(to string) {
	if globalManager.enabled {
		globalManager.transitionConflicts.WithLabelValues(to).Inc()
	}
}

// RecordStageLatency records how long a stage took to compute.
func RecordStageLatency(stage string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
	}
}

// RecordStageFailure counts a failed stage computation.
func RecordStageFailure(stage string) {
	if globalManager.enabled {
		globalManager.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordSnapshotWritten counts a snapshot this process persisted.
func RecordSnapshotWritten() {
	if globalManager.enabled {
		globalManager.snapshotsWritten.Inc()
	}
}

// RecordSnapshotReused counts a snapshot read back instead of recomputed.
func RecordSnapshotReused() {
	if globalManager.enabled {
		globalManager.snapshotsReused.Inc()
	}
}

// RecordDecision counts a collected decision by source (bot, provider, fallback).
func RecordDecision(source string) {
	if globalManager.enabled {
		globalManager.decisions.WithLabelValues(source).Inc()
	}
}

// RecordProviderLatency records one remote provider call.
func RecordProviderLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.providerLatency.Observe(latencyMs)
	}
}

// RecordProviderError counts a remote provider failure by kind.
func RecordProviderError(kind string) {
	if globalManager.enabled {
		globalManager.providerErrors.WithLabelValues(kind).Inc()
	}
}

// RecordCredentialRefresh counts a credential refresh attempt.
func RecordCredentialRefresh(ok bool) {
	if !globalManager.enabled {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	globalManager.credentialRefresh.WithLabelValues(result).Inc()
}

// RecordCollectionDuration records one full decision fan-out.
func RecordCollectionDuration(latencyMs float64) {
	if globalManager.enabled {
		globalManager.collectionDuration.Observe(latencyMs)
	}
}

// RecordEliminations adds n eliminations.
func RecordEliminations(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.eliminations.Add(float64(n))
	}
}

// RecordClash counts a resolved bracket pairing.
func RecordClash() {
	if globalManager.enabled {
		globalManager.clashes.Inc()
	}
}

// RecordBetPlaced counts an accepted bet and the amount debited for it.
func RecordBetPlaced(amount int64) {
	if globalManager.enabled {
		globalManager.betsPlaced.Inc()
		globalManager.debitedAmount.Add(float64(amount))
	}
}

// RecordGiftPlaced counts an accepted artifact gift and the amount debited for it.
func RecordGiftPlaced(amount int64) {
	if globalManager.enabled {
		globalManager.giftsPlaced.Inc()
		globalManager.debitedAmount.Add(float64(amount))
	}
}

// RecordWagerRejected counts a rejected bet or gift.
func RecordWagerRejected(reason string) {
	if globalManager.enabled {
		globalManager.betsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordPayout counts a settled bet with a non-zero payout.
func RecordPayout(amount int64) {
	if globalManager.enabled && amount > 0 {
		globalManager.payouts.Inc()
		globalManager.payoutAmount.Add(float64(amount))
	}
}

// UpdateJobQueueSize sets the current job backlog.
func UpdateJobQueueSize(size int) {
	if globalManager.enabled {
		globalManager.jobQueueSize.Set(float64(size))
	}
}

// UpdateJobQueueCapacity sets the job queue capacity.
func UpdateJobQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.jobQueueCapacity.Set(float64(capacity))
	}
}

// RecordJobEnqueued counts an accepted job.
func RecordJobEnqueued() {
	if globalManager.enabled {
		globalManager.jobsEnqueued.Inc()
	}
}

// RecordJobRejected counts a job the queue refused.
func RecordJobRejected() {
	if globalManager.enabled {
		globalManager.jobsRejected.Inc()
	}
}

// RecordJobCompleted counts a job that reached its target.
func RecordJobCompleted() {
	if globalManager.enabled {
		globalManager.jobsCompleted.Inc()
	}
}

// RecordJobFailed counts a job run that stopped on an error.
func RecordJobFailed() {
	if globalManager.enabled {
		globalManager.jobsFailed.Inc()
	}
}

// RecordJobResumed counts a job re-enqueued by the sweeper.
func RecordJobResumed() {
	if globalManager.enabled {
		globalManager.jobsResumed.Inc()
	}
}

// UpdateWorkerCount sets the number of running job workers.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordClaim counts an idempotency claim attempt (acquired, held, released).
func RecordClaim(outcome string) {
	if globalManager.enabled {
		globalManager.claimsHeld.WithLabelValues(outcome).Inc()
	}
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordHTTPError counts an error response by its classified type.
func RecordHTTPError(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets heap bytes allocated.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// Configure rebuilds the global manager with opts on a fresh registry. It is
// meant for startup, before anything records or serves the registry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
