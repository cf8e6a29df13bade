// Package metrics provides Prometheus metrics for the relay agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the agent.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Save pipeline
	savesIssued    prometheus.Counter
	savesSucceeded prometheus.Counter
	savesFailed    prometheus.Counter
	savesStale     prometheus.Counter
	savesSkipped   prometheus.Counter
	saveLatency    prometheus.Histogram

	// Save-job queue
	queueSize           prometheus.Gauge
	queueCapacity       prometheus.Gauge
	queueEnqueues       prometheus.Counter
	queueEnqueueErrors  prometheus.Counter
	queueDequeues       prometheus.Counter
	workerActive        prometheus.Gauge
	workerErrors        prometheus.Counter

	// Sync channel
	syncEvents      prometheus.Counter
	syncReconnects  prometheus.Counter
	syncErrors      prometheus.Counter
	channelState    prometheus.Gauge

	// Roster projection
	refetches          prometheus.Counter
	refetchesCoalesced prometheus.Counter
	refetchErrors      prometheus.Counter
	prefetchErrors     prometheus.Counter
	snapshotsCached    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "relay",
		subsystem:        "agent",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Registry returns the registry metrics are registered on, for serving.
func Registry() *prometheus.Registry { return customRegistry }

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.savesIssued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "saves_issued_total",
		Help: "Record saves dispatched after a settled debounce period",
	})
	m.savesSucceeded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "saves_succeeded_total",
		Help: "Record saves acknowledged by the backend of record",
	})
	m.savesFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "saves_failed_total",
		Help: "Record saves rejected or failed in transport",
	})
	m.savesStale = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "saves_stale_responses_total",
		Help: "Save completions discarded because a newer value superseded them",
	})
	m.savesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "saves_skipped_total",
		Help: "Keystrokes skipped as non-numeric or empty input",
	})
	m.saveLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "save_latency_milliseconds",
		Help:    "Persistence call latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "save_queue_size",
		Help: "Current number of queued save jobs",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "save_queue_capacity",
		Help: "Configured capacity of the save-job queue",
	})
	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "save_queue_enqueues_total",
		Help: "Save jobs accepted by the queue",
	})
	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "save_queue_enqueue_errors_total",
		Help: "Save jobs rejected by a full or closed queue",
	})
	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "save_queue_dequeues_total",
		Help: "Save jobs handed to persistence workers",
	})
	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "persistence_workers",
		Help: "Number of running persistence workers",
	})
	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "persistence_worker_errors_total",
		Help: "Worker-level processing errors",
	})

	m.syncEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_events_total",
		Help: "Assignment-change events received over the academy room",
	})
	m.syncReconnects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_reconnect_attempts_total",
		Help: "Reconnection attempts made by the sync channel",
	})
	m.syncErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_errors_total",
		Help: "Transport and protocol errors on the sync channel",
	})
	m.channelState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_channel_state",
		Help: "Sync channel state (0 disconnected, 1 connecting, 2 joined, 3 failed)",
	})

	m.refetches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "roster_refetches_total",
		Help: "Snapshot refetches triggered by sync events or loads",
	})
	m.refetchesCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "roster_refetches_coalesced_total",
		Help: "Refetch requests folded into one already in flight",
	})
	m.refetchErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "roster_refetch_errors_total",
		Help: "Snapshot refetches that failed; cached snapshot retained",
	})
	m.prefetchErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "record_prefetch_errors_total",
		Help: "Bulk record prefetches that failed; session proceeds empty",
	})
	m.snapshotsCached = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "roster_snapshots_cached",
		Help: "Number of dates with a cached assignment snapshot",
	})
}

// Package-level helpers on the global manager.

func RecordSaveIssued()    { globalManager.savesIssued.Inc() }
func RecordSaveSuccess()   { globalManager.savesSucceeded.Inc() }
func RecordSaveFailure()   { globalManager.savesFailed.Inc() }
func RecordStaleResponse() { globalManager.savesStale.Inc() }
func RecordInputSkipped()  { globalManager.savesSkipped.Inc() }

// RecordSaveLatency records one persistence call's latency in milliseconds.
func RecordSaveLatency(ms float64) { globalManager.saveLatency.Observe(ms) }

func RecordQueueEnqueue()      { globalManager.queueEnqueues.Inc() }
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }
func RecordQueueDequeue()      { globalManager.queueDequeues.Inc() }
func UpdateQueueSize(n int)    { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}
func UpdateWorkerActiveCount(n int) { globalManager.workerActive.Set(float64(n)) }
func RecordWorkerError()            { globalManager.workerErrors.Inc() }

func RecordSyncEvent()            { globalManager.syncEvents.Inc() }
func RecordSyncReconnectAttempt() { globalManager.syncReconnects.Inc() }
func RecordSyncError()            { globalManager.syncErrors.Inc() }
func UpdateChannelState(state int) {
	globalManager.channelState.Set(float64(state))
}

func RecordRosterRefetch()          { globalManager.refetches.Inc() }
func RecordRosterRefetchCoalesced() { globalManager.refetchesCoalesced.Inc() }
func RecordRosterRefetchError()     { globalManager.refetchErrors.Inc() }
func RecordPrefetchError()          { globalManager.prefetchErrors.Inc() }
func UpdateSnapshotsCached(n int)   { globalManager.snapshotsCached.Set(float64(n)) }
