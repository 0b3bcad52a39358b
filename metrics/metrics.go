// Package metrics exposes Prometheus metrics for the mining, consensus,
// cluster, and reward-pipeline concerns this module implements.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this module registers.
type Metrics struct {
	// Mining metrics
	HashesTotal     *prometheus.CounterVec
	Hashrate        *prometheus.GaugeVec
	SealsTotal      *prometheus.CounterVec
	SealLatency     prometheus.Histogram

	// Difficulty/consensus metrics
	CurrentDifficulty prometheus.Gauge
	BlockInterval     prometheus.Histogram
	BlocksImported    *prometheus.CounterVec
	BestHeight        prometheus.Gauge
	ReorgDepth        prometheus.Histogram

	// Reward pipeline metrics
	RewardsPaid    prometheus.Counter
	MintsIssued    prometheus.Counter
	ScheduleChange prometheus.Counter

	// Cluster metrics
	WorkersTotal    prometheus.Gauge
	WorkersOnline   prometheus.Gauge
	WorkerHashrate  *prometheus.GaugeVec
	ClusterHashrate prometheus.Gauge
	GRPCRequests    *prometheus.CounterVec
	GRPCLatency     *prometheus.HistogramVec

	// RPC work endpoint metrics
	RPCWorkRequests *prometheus.CounterVec
	RPCWorkLatency  *prometheus.HistogramVec

	// System metrics
	UptimeSeconds prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers every collector under namespace,
// defaulting to "kulupu" when empty.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kulupu"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HashesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hashes_total",
		Help:      "Total number of RandomX hashes computed, by mode (mining, verification).",
	}, []string{"mode"})

	m.Hashrate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hashrate",
		Help:      "Hashrate in H/s, by mining thread.",
	}, []string{"thread"})

	m.SealsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seals_total",
		Help:      "Total number of seals submitted, by outcome (accepted, rejected, stale).",
	}, []string{"outcome"})

	m.SealLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "seal_verify_latency_seconds",
		Help:      "Seal verification latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	m.CurrentDifficulty = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "current_difficulty",
		Help:      "The difficulty controller's most recently emitted target, as a float64 (may lose precision above 2^53).",
	})

	m.BlockInterval = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "block_interval_seconds",
		Help:      "Observed inter-block interval in seconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 1.5, 16),
	})

	m.BlocksImported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_imported_total",
		Help:      "Total number of blocks imported, by seal version (v1, v2).",
	}, []string{"version"})

	m.BestHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "best_height",
		Help:      "The local chain's best block height.",
	})

	m.ReorgDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reorg_depth_blocks",
		Help:      "Depth of accepted chain reorganizations, in blocks.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})

	m.RewardsPaid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewards_paid_total",
		Help:      "Total number of block-author reward events recorded.",
	})

	m.MintsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mints_issued_total",
		Help:      "Total number of scheduled-mint events recorded.",
	})

	m.ScheduleChange = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_changes_total",
		Help:      "Total number of reward/mint schedule changes applied.",
	})

	m.WorkersTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cluster_workers_total",
		Help:      "Total number of workers registered with the cluster coordinator.",
	})

	m.WorkersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cluster_workers_online",
		Help:      "Number of currently online cluster workers.",
	})

	m.WorkerHashrate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cluster_worker_hashrate",
		Help:      "Hashrate per cluster worker in H/s.",
	}, []string{"worker_id", "worker_name"})

	m.ClusterHashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cluster_hashrate_total",
		Help:      "Total cluster hashrate in H/s.",
	})

	m.GRPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cluster_grpc_requests_total",
		Help:      "Total cluster gRPC requests, by method and status.",
	}, []string{"method", "status"})

	m.GRPCLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cluster_grpc_latency_seconds",
		Help:      "Cluster gRPC request latency in seconds, by method.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	}, []string{"method"})

	m.RPCWorkRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpcwork_requests_total",
		Help:      "Total work_getCompute/work_submitSeal requests, by method and status.",
	}, []string{"method", "status"})

	m.RPCWorkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpcwork_latency_seconds",
		Help:      "rpcwork request latency in seconds, by method.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	}, []string{"method"})

	m.UptimeSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uptime_seconds_total",
		Help:      "Total process uptime in seconds.",
	})

	m.registry.MustRegister(
		m.HashesTotal,
		m.Hashrate,
		m.SealsTotal,
		m.SealLatency,
		m.CurrentDifficulty,
		m.BlockInterval,
		m.BlocksImported,
		m.BestHeight,
		m.ReorgDepth,
		m.RewardsPaid,
		m.MintsIssued,
		m.ScheduleChange,
		m.WorkersTotal,
		m.WorkersOnline,
		m.WorkerHashrate,
		m.ClusterHashrate,
		m.GRPCRequests,
		m.GRPCLatency,
		m.RPCWorkRequests,
		m.RPCWorkLatency,
		m.UptimeSeconds,
	)

	return m
}

// Handler returns the HTTP handler serving the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordSeal records a seal submission outcome and, when known, its
// verification latency.
func (m *Metrics) RecordSeal(outcome string, latencySeconds float64) {
	m.SealsTotal.WithLabelValues(outcome).Inc()
	if latencySeconds > 0 {
		m.SealLatency.Observe(latencySeconds)
	}
}

// RecordHashrate records a mining thread's current hashrate.
func (m *Metrics) RecordHashrate(thread string, hashrate float64) {
	m.Hashrate.WithLabelValues(thread).Set(hashrate)
}

// RecordBlockImported records a successfully imported block's seal version
// and the interval since its parent, and updates the best-height gauge.
func (m *Metrics) RecordBlockImported(version string, intervalSeconds float64, height uint64) {
	m.BlocksImported.WithLabelValues(version).Inc()
	if intervalSeconds > 0 {
		m.BlockInterval.Observe(intervalSeconds)
	}
	m.BestHeight.Set(float64(height))
}

// RecordReorg records an accepted chain reorganization's depth.
func (m *Metrics) RecordReorg(depth int) {
	m.ReorgDepth.Observe(float64(depth))
}

// RecordGRPCRequest records a cluster gRPC request's method, status, and
// latency.
func (m *Metrics) RecordGRPCRequest(method, status string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, status).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordRPCWorkRequest records a rpcwork request's method, status, and
// latency.
func (m *Metrics) RecordRPCWorkRequest(method, status string, latencySeconds float64) {
	m.RPCWorkRequests.WithLabelValues(method, status).Inc()
	m.RPCWorkLatency.WithLabelValues(method).Observe(latencySeconds)
}

// UpdateClusterStats sets the cluster-wide worker/hashrate gauges.
func (m *Metrics) UpdateClusterStats(totalWorkers, onlineWorkers int, totalHashrate float64) {
	m.WorkersTotal.Set(float64(totalWorkers))
	m.WorkersOnline.Set(float64(onlineWorkers))
	m.ClusterHashrate.Set(totalHashrate)
}

// RecordWorkerHashrate sets a single worker's hashrate gauge.
func (m *Metrics) RecordWorkerHashrate(workerID, workerName string, hashrate float64) {
	m.WorkerHashrate.WithLabelValues(workerID, workerName).Set(hashrate)
}

// RemoveWorker deletes a worker's hashrate series, e.g. once it is
// unregistered from the cluster.
func (m *Metrics) RemoveWorker(workerID, workerName string) {
	m.WorkerHashrate.DeleteLabelValues(workerID, workerName)
}

// ServeMetrics starts an HTTP server exposing /metrics and /health on addr.
// It blocks until the server stops.
func ServeMetrics(addr string, metrics *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return http.ListenAndServe(addr, mux)
}
