// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intent labels an operator query with an intent from a closed
// taxonomy, extracts its entities and derives urgency and the downstream
// capabilities it needs.
//
// The primary path asks an injected zero-shot model. Whenever the model is
// not loaded yet, fails, or is too slow, a dependency-free keyword
// classifier answers instead, so Classify never returns an error.
package intent

import (
	"context"

	"github.com/traylinx/querytriage/internal/triage/entities"
)

// Intent is one label of the closed taxonomy.
type Intent string

const (
	IntentServerStatus        Intent = "server_status"
	IntentMetricQuery         Intent = "metric_query"
	IntentPerformanceAnalysis Intent = "performance_analysis"
	IntentPrediction          Intent = "server_performance_prediction"
	IntentCapacityPlanning    Intent = "capacity_planning"
	IntentTroubleshooting     Intent = "troubleshooting"
	IntentAnomalyDetection    Intent = "anomaly_detection"
	IntentLogAnalysis         Intent = "log_analysis"
	IntentGeneralInquiry      Intent = "general_inquiry"
)

var taxonomy = []Intent{
	IntentServerStatus,
	IntentMetricQuery,
	IntentPerformanceAnalysis,
	IntentPrediction,
	IntentCapacityPlanning,
	IntentTroubleshooting,
	IntentAnomalyDetection,
	IntentLogAnalysis,
	IntentGeneralInquiry,
}

// Taxonomy returns the intent labels in their canonical order.
func Taxonomy() []Intent {
	out := make([]Intent, len(taxonomy))
	copy(out, taxonomy)
	return out
}

// Valid reports whether i belongs to the taxonomy.
func (i Intent) Valid() bool {
	_, ok := capabilities[i]
	return ok
}

// Urgency is the ordered priority of a query.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgencies; unknown values rank as low.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return 0
	}
}

// MaxUrgency returns the stricter of a and b.
func MaxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return UrgencyLow
	}
	return a
}

// Mode is the downstream analysis tier.
type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
)

// Method records which path produced a result.
type Method string

const (
	MethodTransformers Method = "transformers"
	MethodFallback     Method = "fallback"
)

// FallbackReason explains why the fallback path answered.
type FallbackReason string

const (
	ReasonNotInitialized FallbackReason = "not_initialized"
	ReasonModelError     FallbackReason = "transformers_error"
	ReasonModelTimeout   FallbackReason = "transformers_timeout"
	ReasonEmptyQuery     FallbackReason = "empty_query"
)

var fallbackReasons = []FallbackReason{
	ReasonNotInitialized,
	ReasonModelError,
	ReasonModelTimeout,
	ReasonEmptyQuery,
}

// Result is the classification of one query.
type Result struct {
	Intent         Intent         `json:"intent"`
	Confidence     float64        `json:"confidence"`
	Method         Method         `json:"method"`
	FallbackReason FallbackReason `json:"fallbackReason,omitempty"`

	Entities []string          `json:"entities"`
	Spans    []entities.Entity `json:"spans,omitempty"`

	Urgency               Urgency `json:"urgency"`
	SuggestedMode         Mode    `json:"suggestedMode"`
	NeedsPythonEngine     bool    `json:"needsPythonEngine"`
	NeedsComplexML        bool    `json:"needsComplexML"`
	NeedsTimeSeries       bool    `json:"needsTimeSeries"`
	NeedsAnomalyDetection bool    `json:"needsAnomalyDetection"`

	// ProcessingTime is in milliseconds.
	ProcessingTime float64 `json:"processingTime"`
}

// Outcome is the tagged result of a classification: either a
// PrimaryOutcome or a FallbackOutcome.
type Outcome interface {
	outcome() *Result
}

// PrimaryOutcome is produced by the model-backed path.
type PrimaryOutcome struct {
	*Result
}

// FallbackOutcome is produced by the keyword classifier.
type FallbackOutcome struct {
	*Result
	Reason FallbackReason
}

func (o PrimaryOutcome) outcome() *Result  { return o.Result }
func (o FallbackOutcome) outcome() *Result { return o.Result }

// ResultOf unwraps an outcome.
func ResultOf(o Outcome) *Result {
	if o == nil {
		return nil
	}
	return o.outcome()
}

// LabelScore is one "label + score" pair returned by a zero-shot model.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Span is one entity span returned by an extraction model. Kind is free
// form; Start is a byte offset into the query.
type Span struct {
	Kind  string  `json:"kind"`
	Text  string  `json:"text"`
	Start int     `json:"start"`
	Score float64 `json:"score"`
}

// LabelScorer scores text against candidate labels. Implementations must be
// safe for concurrent use unless the classifier serialises inference.
type LabelScorer interface {
	ScoreLabels(ctx context.Context, text string, labels []string) ([]LabelScore, error)
}

// SpanExtractor finds entity spans in text.
type SpanExtractor interface {
	ExtractSpans(ctx context.Context, text string) ([]Span, error)
}

// Models is the loaded model handle shared by every request.
type Models struct {
	Scorer    LabelScorer
	Extractor SpanExtractor // optional
}

// Loader produces the model handle. It is called lazily, at most once at a
// time, and retried after a failure.
type Loader func(ctx context.Context) (*Models, error)

// StaticLoader returns a Loader that hands out m.
func StaticLoader(m *Models) Loader {
	return func(context.Context) (*Models, error) { return m, nil }
}
