// Package metrics provides Prometheus metrics for the quorum judging service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the quorum service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	latencyBuckets   []float64
	registry         prometheus.Registerer

	// Judging flow
	submissions      *prometheus.CounterVec
	undos            *prometheus.CounterVec
	nextTask         *prometheus.CounterVec
	tasksCompleted   prometheus.Counter
	assignmentPruned prometheus.Counter

	// Campaign state, refreshed from store stats
	judges             prometheus.Gauge
	openTasks          prometheus.Gauge
	completedTasks     prometheus.Gauge
	retiredTasks       prometheus.Gauge
	ratingsTotal       prometheus.Gauge
	pendingAssignments prometheus.Gauge
	coverageRatio      prometheus.Gauge

	// Reconcile
	reconcileRuns     *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	reconcileChanges  *prometheus.CounterVec
	reconcileLastUnix prometheus.Gauge

	// Store
	storeTxLatency *prometheus.HistogramVec
	storeBusy      prometheus.Counter

	// Scan request queue
	queueCapacity  prometheus.Gauge
	queueSize      prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueCoalesced prometheus.Counter
	queueRejected  prometheus.Counter
	queueDequeued  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "quorum",
		subsystem:        "campaign",
		histogramBuckets: prometheus.DefBuckets,
		latencyBuckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.submissions = m.counterVec("submissions_total", "Submissions by outcome", "outcome")
	m.undos = m.counterVec("undos_total", "Undo requests by outcome", "outcome")
	m.nextTask = m.counterVec("next_task_total", "Next task lookups by result", "result")
	m.tasksCompleted = m.counter("tasks_completed_total", "Tasks that crossed their judgment quota")
	m.assignmentPruned = m.counter("assignments_pruned_total", "Pending assignments deleted at quota")

	m.judges = m.gauge("judges", "Registered judges")
	m.openTasks = m.gauge("tasks_open", "Live tasks still below quota")
	m.completedTasks = m.gauge("tasks_completed", "Tasks at quota")
	m.retiredTasks = m.gauge("tasks_retired", "Tasks no longer listed by the content source")
	m.ratingsTotal = m.gauge("ratings", "Stored ratings")
	m.pendingAssignments = m.gauge("assignments_pending", "Pending assignments")
	m.coverageRatio = m.gauge("coverage_ratio", "Current over required judgments across live tasks")

	m.reconcileRuns = m.counterVec("reconcile_runs_total", "Reconcile passes by result", "result")
	m.reconcileDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_duration_ms",
		Help:      "Duration of reconcile passes in milliseconds",
		Buckets:   m.latencyBuckets,
	})
	m.reconcileChanges = m.counterVec("reconcile_changes_total", "Work pool changes applied by reconcile", "kind")
	m.reconcileLastUnix = m.gauge("reconcile_last_success_unix", "Unix time of the last successful reconcile")

	m.storeTxLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "tx_latency_ms",
		Help:      "Store transaction latency in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"kind"})
	m.storeBusy = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "busy_total",
		Help:      "Transactions that gave up waiting for the database lock",
	})

	m.queueCapacity = m.gauge("scan_queue_capacity", "Scan request queue capacity")
	m.queueSize = m.gauge("scan_queue_size", "Scan requests waiting")
	m.queueEnqueued = m.counter("scan_queue_enqueued_total", "Scan requests accepted")
	m.queueCoalesced = m.counter("scan_queue_coalesced_total", "Scan requests folded into a waiting one")
	m.queueRejected = m.counter("scan_queue_rejected_total", "Scan requests rejected because the queue was full")
	m.queueDequeued = m.counter("scan_queue_dequeued_total", "Scan requests taken by the runner")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "errors",
		Name:      "by_component_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "errors",
		Name:      "by_endpoint_total",
		Help:      "Errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Heap memory in use",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_ms",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	})
}

// RecordSubmission counts a submit by outcome (accepted, already_satisfied, invalid, error).
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordUndo counts an undo by outcome.
func RecordUndo(outcome string) {
	globalManager.undos.WithLabelValues(outcome).Inc()
}

// RecordNextTask counts a next task lookup by result (served, no_work, error).
func RecordNextTask(result string) {
	globalManager.nextTask.WithLabelValues(result).Inc()
}

// RecordTaskCompleted increments the quota crossing counter.
func RecordTaskCompleted() {
	globalManager.tasksCompleted.Inc()
}

// RecordAssignmentsPruned adds n pruned assignments.
func RecordAssignmentsPruned(n int) {
	if n > 0 {
		globalManager.assignmentPruned.Add(float64(n))
	}
}

// CampaignSnapshot carries the gauge values published from store stats.
type CampaignSnapshot struct {
	Judges             int
	OpenTasks          int
	CompletedTasks     int
	RetiredTasks       int
	Ratings            int
	PendingAssignments int
	RequiredRatings    int
	CurrentRatings     int
}

// UpdateCampaign sets the campaign state gauges.
func UpdateCampaign(s CampaignSnapshot) {
	globalManager.judges.Set(float64(s.Judges))
	globalManager.openTasks.Set(float64(s.OpenTasks))
	globalManager.completedTasks.Set(float64(s.CompletedTasks))
	globalManager.retiredTasks.Set(float64(s.RetiredTasks))
	globalManager.ratingsTotal.Set(float64(s.Ratings))
	globalManager.pendingAssignments.Set(float64(s.PendingAssignments))
	if s.RequiredRatings > 0 {
		globalManager.coverageRatio.Set(float64(s.CurrentRatings) / float64(s.RequiredRatings))
	}
}

// RecordReconcile counts a reconcile pass by result (ok, failed, rejected).
func RecordReconcile(result string) {
	globalManager.reconcileRuns.WithLabelValues(result).Inc()
}

// RecordReconcileDuration records a pass duration in milliseconds.
func RecordReconcileDuration(ms float64) {
	globalManager.reconcileDuration.Observe(ms)
}

// RecordReconcileChanges adds n changes of a kind (added, deleted, retired, restored, refreshed).
func RecordReconcileChanges(kind string, n int) {
	if n > 0 {
		globalManager.reconcileChanges.WithLabelValues(kind).Add(float64(n))
	}
}

// UpdateReconcileLastSuccess sets the last successful reconcile time.
func UpdateReconcileLastSuccess(unix float64) {
	globalManager.reconcileLastUnix.Set(unix)
}

// RecordStoreTxLatency records a transaction latency by kind (update, view).
func RecordStoreTxLatency(kind string, ms float64) {
	globalManager.storeTxLatency.WithLabelValues(kind).Observe(ms)
}

// RecordStoreBusy counts a lock timeout.
func RecordStoreBusy() {
	globalManager.storeBusy.Inc()
}

// UpdateQueueCapacity sets the scan queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the number of waiting scan requests.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an accepted scan request.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueCoalesced counts a scan request merged into a waiting one.
func RecordQueueCoalesced() {
	globalManager.queueCoalesced.Inc()
}

// RecordQueueRejected counts a scan request refused by a full queue.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// RecordQueueDequeue counts a scan request taken by the runner.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
