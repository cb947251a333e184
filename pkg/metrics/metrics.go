// Package metrics exposes cluster state as Prometheus metrics.
//
// Every metric lives on an explicitly constructed Registry, built once
// at startup by pkg/bootstrap and served by cmd/scm, rather than
// package-level init()-registered globals, so a test can
// build an isolated Registry with its own prometheus.Registerer instead
// of colliding with every other test in the process on the default
// global registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric SCM exports, registered against its own
// prometheus.Registry rather than the global DefaultRegisterer.
type Registry struct {
	reg *prometheus.Registry

	NodesTotal        *prometheus.GaugeVec
	PipelinesTotal    *prometheus.GaugeVec
	ContainersTotal   *prometheus.GaugeVec
	SafeMode          prometheus.Gauge

	RaftIsLeader      prometheus.Gauge
	RaftTerm          prometheus.Gauge
	RaftAppliedIndex  prometheus.Gauge

	HeartbeatsTotal      *prometheus.CounterVec
	CommandsEnqueued     *prometheus.CounterVec
	CommandsDropped      *prometheus.CounterVec
	PipelineCreateLatency prometheus.Histogram
	ContainerAllocations prometheus.Counter

	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
}

// New builds a Registry with every metric registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.NodesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scm_nodes_total",
		Help: "Number of storage nodes by health state.",
	}, []string{"health"})

	r.PipelinesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scm_pipelines_total",
		Help: "Number of pipelines by state.",
	}, []string{"state"})

	r.ContainersTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scm_containers_total",
		Help: "Number of containers by state.",
	}, []string{"state"})

	r.SafeMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scm_in_safe_mode",
		Help: "Whether the cluster is currently in safe mode (1) or not (0).",
	})

	r.RaftIsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scm_raft_is_leader",
		Help: "Whether this replica is the current Raft leader.",
	})

	r.RaftTerm = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scm_raft_term",
		Help: "Current Raft term observed by this replica.",
	})

	r.RaftAppliedIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scm_raft_applied_index",
		Help: "Last log index applied to this replica's state machine.",
	})

	r.HeartbeatsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scm_heartbeats_total",
		Help: "Heartbeats processed by node id.",
	}, []string{"node_id"})

	r.CommandsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scm_datanode_commands_enqueued_total",
		Help: "Datanode commands enqueued by type.",
	}, []string{"type"})

	r.CommandsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scm_datanode_commands_dropped_total",
		Help: "Datanode commands dropped by reason (stale_term, not_leader, queue_full).",
	}, []string{"reason"})

	r.PipelineCreateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scm_pipeline_create_seconds",
		Help:    "Time from pipeline allocation to OPEN or timeout.",
		Buckets: prometheus.DefBuckets,
	})

	r.ContainerAllocations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scm_container_allocations_total",
		Help: "Total containers allocated.",
	})

	r.RPCRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scm_rpc_requests_total",
		Help: "RPC requests by method and outcome.",
	}, []string{"method", "outcome"})

	r.RPCRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scm_rpc_request_duration_seconds",
		Help:    "RPC request duration in seconds by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	r.reg.MustRegister(
		r.NodesTotal, r.PipelinesTotal, r.ContainersTotal, r.SafeMode,
		r.RaftIsLeader, r.RaftTerm, r.RaftAppliedIndex,
		r.HeartbeatsTotal, r.CommandsEnqueued, r.CommandsDropped,
		r.PipelineCreateLatency, r.ContainerAllocations,
		r.RPCRequestsTotal, r.RPCRequestDuration,
	)

	return r
}

// Handler returns the Prometheus scrape handler for this Registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Timer measures the time elapsed since it was created.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) Duration() time.Duration { return time.Since(t.start) }

// ObserveDuration records the elapsed time, in seconds, into h.
func (t *Timer) ObserveDuration(h prometheus.Histogram) { h.Observe(t.Duration().Seconds()) }

// ObserveDurationVec records the elapsed time, in seconds, into the
// series of h selected by labels.
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
