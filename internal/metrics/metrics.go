// Package metrics exposes mapper counters to Prometheus.
//
// Every silent drop in the mapper (full registry, full child list, rejected
// reports) is counted here so that nodes missing from the tree can be
// explained.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshmap"

// Discard reasons for reports
const (
	ReasonUnregisteredSource = "unregistered_source"
	ReasonUnregisteredParent = "unregistered_parent"
	ReasonChildCapacity      = "child_capacity"
	ReasonAlreadyParented    = "already_parented"
	ReasonSelfEdge           = "self_edge"
)

// Metrics holds the mapper's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	ProbesSent       prometheus.Counter
	SendErrors       prometheus.Counter
	ReportsReceived  prometheus.Counter
	ReportsMalformed prometheus.Counter
	ReportsDiscarded *prometheus.CounterVec
	ContextMismatch  prometheus.Counter
	EdgesAttached    prometheus.Counter
	RegistryFull     prometheus.Counter
	ChildCapacity    prometheus.Counter
	SweepsCompleted  prometheus.Counter
	MeshReloads      *prometheus.CounterVec

	RegistryNodes prometheus.Gauge
	TopologyEdges prometheus.Gauge
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ProbesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_sent_total",
		Help:      "Probe datagrams handed to the network stack.",
	})
	m.SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Probe sends rejected by the network stack.",
	})
	m.ReportsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_received_total",
		Help:      "Report datagrams received, before validation.",
	})
	m.ReportsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_malformed_total",
		Help:      "Report datagrams too short to decode.",
	})
	m.ReportsDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_discarded_total",
		Help:      "Decoded reports that did not produce an edge, by reason.",
	}, []string{"reason"})
	m.ContextMismatch = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "context_mismatch_total",
		Help:      "Reports echoing an instance/DAG other than the active sweep's.",
	})
	m.EdgesAttached = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edges_attached_total",
		Help:      "Parent/child edges added to the topology.",
	})
	m.RegistryFull = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_full_total",
		Help:      "Probe targets dropped because the node registry was full.",
	})
	m.ChildCapacity = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "child_capacity_exceeded_total",
		Help:      "Edges dropped because the parent had no free child slot.",
	})
	m.SweepsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_completed_total",
		Help:      "Passes over the routing table that reached its end.",
	})
	m.MeshReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mesh_reloads_total",
		Help:      "Mesh state file reloads, by result.",
	}, []string{"result"})
	m.RegistryNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registry_nodes",
		Help:      "Nodes currently registered, including the sink.",
	})
	m.TopologyEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_edges",
		Help:      "Parent/child edges currently recorded.",
	})

	m.registry.MustRegister(
		m.ProbesSent,
		m.SendErrors,
		m.ReportsReceived,
		m.ReportsMalformed,
		m.ReportsDiscarded,
		m.ContextMismatch,
		m.EdgesAttached,
		m.RegistryFull,
		m.ChildCapacity,
		m.SweepsCompleted,
		m.MeshReloads,
		m.RegistryNodes,
		m.TopologyEdges,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
