// Package metrics exposes Prometheus collectors for the question-answering
// pipeline. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several sessions in one process (and
// tests) never collide on global registration.
type Collector struct {
	registry           *prometheus.Registry
	gateDecisions      *prometheus.CounterVec
	retrievedChunks    *prometheus.HistogramVec
	generationDuration *prometheus.HistogramVec
	generationFailures *prometheus.CounterVec
	ingestedChunks     prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmind_gate_decisions_total",
				Help: "Retrieval gate decisions by outcome and deciding stage",
			},
			[]string{"decision", "stage"},
		),
		retrievedChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docmind_retrieved_chunks",
				Help:    "Number of chunks returned per search",
				Buckets: prometheus.LinearBuckets(0, 2, 8),
			},
			[]string{"scope"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docmind_generation_duration_seconds",
				Help:    "Latency of generation calls by prompt mode",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
			[]string{"mode"},
		),
		generationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmind_generation_failures_total",
				Help: "Failed generation calls by failure kind",
			},
			[]string{"kind"},
		),
		ingestedChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docmind_ingested_chunks_total",
				Help: "Chunks inserted into session stores",
			},
		),
	}
	c.registry.MustRegister(c.gateDecisions, c.retrievedChunks, c.generationDuration, c.generationFailures, c.ingestedChunks)
	return c
}

// Registry returns the registry holding every docmind collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveGate(useRetrieval bool, stage string) {
	if c == nil {
		return
	}
	decision := "direct"
	if useRetrieval {
		decision = "retrieve"
	}
	c.gateDecisions.WithLabelValues(decision, stage).Inc()
}

func (c *Collector) ObserveRetrieval(scope string, n int) {
	if c == nil {
		return
	}
	c.retrievedChunks.WithLabelValues(scope).Observe(float64(n))
}

func (c *Collector) ObserveGeneration(mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.generationDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (c *Collector) GenerationFailed(kind string) {
	if c == nil {
		return
	}
	c.generationFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) AddIngested(n int) {
	if c == nil {
		return
	}
	c.ingestedChunks.Add(float64(n))
}
