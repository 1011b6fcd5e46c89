// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports triage decisions in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traylinx/querytriage/internal/triage"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

const namespace = "querytriage"

// Exporter records every triage report. It implements triage.Sink.
type Exporter struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	classifications *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	factors         *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	budget          prometheus.Histogram
}

var _ triage.Sink = (*Exporter)(nil)

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// LatencyBuckets for the triage latency histogram, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}
}

// NewExporter creates an exporter and registers its collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Routing decisions by complexity level, mode and priority",
		},
		[]string{"level", "mode", "priority"},
	)
	e.classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Intent classifications by method, fallback reason and intent",
		},
		[]string{"method", "reason", "intent"},
	)
	e.escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation rules that raised a decision's priority",
		},
		[]string{"rule"},
	)
	e.factors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "complexity_factors_total",
			Help:      "Complexity factors observed, by kind",
		},
		[]string{"factor"},
	)
	e.latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "triage_duration_seconds",
			Help:      "Time spent triaging one query",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"method"},
	)
	e.budget = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "timeout_budget_seconds",
			Help:      "Timeout budget handed to the request executor",
			Buckets:   []float64{5, 10, 15, 20, 25, 30, 40, 50, 55},
		},
	)

	registry.MustRegister(
		e.decisions,
		e.classifications,
		e.escalations,
		e.factors,
		e.latency,
		e.budget,
	)
	return e
}

// Record implements triage.Sink.
func (e *Exporter) Record(_ context.Context, r *triage.Report) {
	if r == nil || r.Intent == nil {
		return
	}
	method := string(r.Intent.Method)

	e.decisions.WithLabelValues(string(r.Complexity.Level), string(r.Decision.Mode), string(r.Decision.Priority)).Inc()
	e.classifications.WithLabelValues(method, string(r.Intent.FallbackReason), string(r.Intent.Intent)).Inc()
	for _, rule := range r.Decision.EscalatedBy {
		e.escalations.WithLabelValues(rule).Inc()
	}
	for _, f := range r.Complexity.Factors {
		e.factors.WithLabelValues(factorKind(f)).Inc()
	}
	e.latency.WithLabelValues(method).Observe(r.DurationMs / 1000)
	e.budget.Observe((time.Duration(r.Decision.TimeoutBudgetMs) * time.Millisecond).Seconds())
}

// factorKind strips the count suffix of multiple_questions_N so the label
// set stays bounded.
func factorKind(f string) string {
	if strings.HasPrefix(f, "multiple_questions_") {
		return "multiple_questions"
	}
	return f
}

// RegisterClassifier exposes the classifier's model state as gauges.
func (e *Exporter) RegisterClassifier(c *intent.Classifier) error {
	gauge := func(name, help string, value func(intent.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return value(c.Stats()) },
		)
	}
	boolean := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	for _, col := range []prometheus.Collector{
		gauge("model_available", "Whether a model loader is configured", func(s intent.Stats) float64 {
			return boolean(s.TransformersAvailable)
		}),
		gauge("model_initialized", "Whether the model handle is loaded", func(s intent.Stats) float64 {
			return boolean(s.Initialized)
		}),
		gauge("model_init_failures", "Failed model load attempts", func(s intent.Stats) float64 {
			return float64(s.InitFailures)
		}),
	} {
		if err := e.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
