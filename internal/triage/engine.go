// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package triage wires the complexity scorer, the intent classifier and the
// dispatch policy into one call per operator query.
package triage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/dispatch"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

// Query is one incoming operator query. Zero bounds mean "not supplied".
type Query struct {
	Text         string `json:"query"`
	MessageCount int    `json:"messageCount,omitempty"`
	MinTimeout   int    `json:"minTimeout,omitempty"`
	MaxTimeout   int    `json:"maxTimeout,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

func (q Query) timeoutOptions() complexity.TimeoutOptions {
	return complexity.TimeoutOptions{
		MinTimeout:   q.MinTimeout,
		MaxTimeout:   q.MaxTimeout,
		MessageCount: q.MessageCount,
	}
}

// Report is everything the engine decided about one query.
type Report struct {
	RequestID  string              `json:"requestId,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Complexity complexity.Analysis `json:"complexity"`
	Intent     *intent.Result      `json:"intent"`
	Decision   dispatch.Decision   `json:"decision"`
	DurationMs float64             `json:"durationMs"`

	// Query and Outcome are kept for sinks; they are not part of the wire
	// format.
	Query   Query          `json:"-"`
	Outcome intent.Outcome `json:"-"`
}

// Sink observes finished reports. Record is called on the request path and
// must return quickly.
type Sink interface {
	Record(ctx context.Context, report *Report)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, report *Report)

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, report *Report) { f(ctx, report) }

// tuning is the hot-reloadable part of the engine.
type tuning struct {
	analyzer *complexity.Analyzer
	router   *dispatch.Router
}

// Engine is safe for concurrent use.
type Engine struct {
	classifier *intent.Classifier
	tuning     atomic.Pointer[tuning]
	sinks      []Sink
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink adds an observability sink.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// New creates an engine. A nil classifier runs keyword classification only.
func New(classifier *intent.Classifier, cfg complexity.Config, rules []dispatch.EscalationRule, opts ...Option) (*Engine, error) {
	if classifier == nil {
		classifier = intent.NewClassifier(intent.DefaultConfig(), nil)
	}
	e := &Engine{classifier: classifier}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Reconfigure(cfg, rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Reconfigure swaps scoring constants and escalation rules atomically.
// Requests in flight finish with the previous set.
func (e *Engine) Reconfigure(cfg complexity.Config, rules []dispatch.EscalationRule) error {
	analyzer := complexity.NewAnalyzer(cfg)
	router, err := dispatch.NewRouter(analyzer, rules)
	if err != nil {
		return fmt.Errorf("reconfigure triage: %w", err)
	}
	e.tuning.Store(&tuning{analyzer: analyzer, router: router})
	return nil
}

// Classifier returns the shared intent classifier.
func (e *Engine) Classifier() *intent.Classifier { return e.classifier }

// Analyzer returns the complexity analyzer currently in use.
func (e *Engine) Analyzer() *complexity.Analyzer { return e.tuning.Load().analyzer }

// Triage scores and classifies q concurrently, then routes it. It never
// fails; degraded inputs produce degraded but valid reports.
func (e *Engine) Triage(ctx context.Context, q Query) *Report {
	start := time.Now()
	t := e.tuning.Load()

	var (
		analysis complexity.Analysis
		outcome  intent.Outcome
	)
	// Neither branch returns an error; classifier failures become a
	// FallbackOutcome.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analysis = t.analyzer.Analyze(q.Text)
		return nil
	})
	g.Go(func() error {
		outcome = e.classifier.ClassifyOutcome(gctx, q.Text)
		return nil
	})
	_ = g.Wait()

	result := intent.ResultOf(outcome)
	report := &Report{
		RequestID:  q.RequestID,
		Timestamp:  start,
		Complexity: analysis,
		Intent:     result,
		Decision:   t.router.Route(analysis, result, q.timeoutOptions()),
		Query:      q,
		Outcome:    outcome,
	}
	report.DurationMs = float64(time.Since(start).Microseconds()) / 1000

	for _, s := range e.sinks {
		s.Record(ctx, report)
	}
	return report
}
