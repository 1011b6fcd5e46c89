// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch merges a complexity analysis and an intent result into the
// routing decision handed to the engine manager and the request executor.
package dispatch

import (
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

// Decision is the routing contract for one query. It is reproducible from
// the two analyses and the caller bounds.
type Decision struct {
	Mode                intent.Mode    `json:"mode"`
	TimeoutBudgetMs     int            `json:"timeoutBudgetMs"`
	RequiresHeavyEngine bool           `json:"requiresHeavyEngine"`
	Priority            intent.Urgency `json:"priority"`
	GuidanceText        string         `json:"guidanceText"`

	// EscalatedBy names the rules that raised Priority above the intent
	// urgency, if any.
	EscalatedBy []string `json:"escalatedBy,omitempty"`
}

// Router is immutable after construction and safe for concurrent use.
type Router struct {
	analyzer *complexity.Analyzer
	rules    []compiledRule
}

// NewRouter builds a router. Extra escalation rules are compiled once; a
// rule that fails to compile is reported and the router is not built.
func NewRouter(analyzer *complexity.Analyzer, rules []EscalationRule) (*Router, error) {
	if analyzer == nil {
		analyzer = complexity.NewAnalyzer(complexity.DefaultConfig())
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &Router{analyzer: analyzer, rules: compiled}, nil
}

var defaultRouter = &Router{analyzer: complexity.NewAnalyzer(complexity.DefaultConfig())}

// Route merges the analyses with the built-in rules only.
func Route(analysis complexity.Analysis, result *intent.Result, opts complexity.TimeoutOptions) Decision {
	return defaultRouter.Route(analysis, result, opts)
}

// Route merges the analyses. Malformed bounds are repaired, never rejected.
func (r *Router) Route(analysis complexity.Analysis, result *intent.Result, opts complexity.TimeoutOptions) Decision {
	if result == nil {
		result = &intent.Result{
			Intent:        intent.IntentGeneralInquiry,
			Urgency:       intent.UrgencyLow,
			SuggestedMode: intent.ModeBasic,
		}
	}

	bounds := complexity.NormalizeBounds(opts.MinTimeout, opts.MaxTimeout)
	if bounds.Swapped || opts.MinTimeout < 0 || opts.MaxTimeout < 0 {
		log.Warnf("malformed timeout bounds min=%d max=%d, using %s", opts.MinTimeout, opts.MaxTimeout, bounds)
	}

	mode := intent.ModeBasic
	if result.SuggestedMode == intent.ModeAdvanced || analysis.Level.AtLeast(complexity.LevelComplex) {
		mode = intent.ModeAdvanced
	}

	// The platform cap is applied last so it wins over a caller minimum
	// that lies above it.
	budget := r.analyzer.DynamicTimeout(analysis, opts)
	budget = min(budget, r.analyzer.Config().MaxBudgetMs())

	priority := intent.MaxUrgency(result.Urgency, intent.UrgencyLow)
	var escalatedBy []string
	for _, hit := range r.escalations(analysis, result, opts) {
		if hit.priority.Rank() > priority.Rank() {
			escalatedBy = append(escalatedBy, hit.name)
		}
		priority = intent.MaxUrgency(priority, hit.priority)
	}

	return Decision{
		Mode:            mode,
		TimeoutBudgetMs: budget,
		RequiresHeavyEngine: result.NeedsPythonEngine || result.NeedsComplexML ||
			result.NeedsTimeSeries || result.NeedsAnomalyDetection,
		Priority:     priority,
		GuidanceText: complexity.TimeoutGuidance(analysis),
		EscalatedBy:  escalatedBy,
	}
}
