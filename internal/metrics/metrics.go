// Package metrics records executor metrics in a prometheus registry that
// can be written as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one build. A nil *Metrics records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	nodesTotal    *prometheus.CounterVec
	cacheHits     prometheus.Counter
	running       prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	nodeDuration  prometheus.Histogram
}

// New creates the collectors in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		nodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_nodes_total",
				Help: "Number of graph nodes finished, by status.",
			},
			[]string{"status"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kiln_package_cache_hits_total",
				Help: "Number of nodes satisfied from the package cache.",
			},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kiln_nodes_running",
				Help: "Number of nodes currently building.",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kiln_stage_duration_seconds",
				Help:    "Time taken by one lifecycle stage of a node.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"stage"},
		),
		nodeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kiln_node_duration_seconds",
				Help:    "Time taken to build one node.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
	}
	m.reg.MustRegister(m.nodesTotal, m.cacheHits, m.running, m.stageDuration, m.nodeDuration)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// NodeStarted records a node entering the build.
func (m *Metrics) NodeStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

// NodeFinished records a node leaving the build with status.
func (m *Metrics) NodeFinished(status string, cached bool, d time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.nodesTotal.WithLabelValues(status).Inc()
	if cached {
		m.cacheHits.Inc()
	}
	m.nodeDuration.Observe(d.Seconds())
}

// NodeBlocked records a node that was never dispatched.
func (m *Metrics) NodeBlocked() {
	if m == nil {
		return
	}
	m.nodesTotal.WithLabelValues("blocked").Inc()
}

// StageDone records the duration of one stage.
func (m *Metrics) StageDone(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteFile writes the metrics to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
