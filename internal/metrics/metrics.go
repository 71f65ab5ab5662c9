// Package metrics exposes Prometheus gauges and counters for the mining
// engine and RPC client, adapted from coopmine/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the miner exports.
type Metrics struct {
	Hashrate       prometheus.Gauge
	HashesTotal    prometheus.Counter
	SolutionsFound prometheus.Counter

	RPCRequestsTotal *prometheus.CounterVec
	RPCLatency       *prometheus.HistogramVec
	CircuitOpen      prometheus.Gauge

	BlocksAccepted prometheus.Counter
	BlocksRejected prometheus.Counter

	ConnectedToNode prometheus.Gauge
	ChainTipHeight  prometheus.Gauge
	WalletBalance   prometheus.Gauge

	registry *prometheus.Registry
}

// New builds and registers the miner's metrics under namespace (defaults
// to "randomx_miner" when empty).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "randomx_miner"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Hashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hashrate",
		Help:      "Current hashrate in hashes per second",
	})

	m.HashesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hashes_total",
		Help:      "Total RandomX hashes computed since startup",
	})

	m.SolutionsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solutions_found_total",
		Help:      "Total candidate solutions meeting the current target",
	})

	m.RPCRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "Total JSON-RPC requests by method and outcome",
	}, []string{"method", "status"})

	m.RPCLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_latency_seconds",
		Help:      "JSON-RPC request latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"method"})

	m.CircuitOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rpc_circuit_open",
		Help:      "Whether the RPC circuit breaker is currently open (1) or not (0)",
	})

	m.BlocksAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_accepted_total",
		Help:      "Total submitted blocks accepted by the node",
	})

	m.BlocksRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_rejected_total",
		Help:      "Total submitted blocks rejected by the node",
	})

	m.ConnectedToNode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "node_connected",
		Help:      "Whether the last RPC call succeeded (1) or not (0)",
	})

	m.ChainTipHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_tip_height",
		Help:      "Last observed chain tip height",
	})

	m.WalletBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wallet_balance",
		Help:      "Last observed wallet balance, unless --no-balance is set",
	})

	m.registry.MustRegister(
		m.Hashrate,
		m.HashesTotal,
		m.SolutionsFound,
		m.RPCRequestsTotal,
		m.RPCLatency,
		m.CircuitOpen,
		m.BlocksAccepted,
		m.BlocksRejected,
		m.ConnectedToNode,
		m.ChainTipHeight,
		m.WalletBalance,
	)

	return m
}

// Handler returns the HTTP handler serving this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordRPC records one JSON-RPC call's outcome and latency.
func (m *Metrics) RecordRPC(method, status string, latencySeconds float64) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// SetCircuitOpen reflects the RPC client's circuit breaker state.
func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
	} else {
		m.CircuitOpen.Set(0)
	}
}

// SetConnected reflects whether the last RPC call to the node succeeded.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.ConnectedToNode.Set(1)
	} else {
		m.ConnectedToNode.Set(0)
	}
}
