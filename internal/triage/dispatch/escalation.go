// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

// EscalationRule raises the decision priority when its condition holds.
// When is an expr-lang expression evaluated against RuleEnv, for example
//
//	Level == "very_complex" && "keyword_prediction" in Factors
type EscalationRule struct {
	Name     string         `yaml:"name" json:"name"`
	When     string         `yaml:"when" json:"when"`
	Priority intent.Urgency `yaml:"priority" json:"priority"`
}

// RuleEnv is the variable set visible to escalation expressions.
type RuleEnv struct {
	Level        string
	Score        int
	Factors      []string
	Intent       string
	Urgency      string
	Confidence   float64
	Method       string
	Entities     []string
	MessageCount int
}

type compiledRule struct {
	name     string
	priority intent.Urgency
	program  *vm.Program
}

type escalationHit struct {
	name     string
	priority intent.Urgency
}

// builtinMultiServerRootCause: a root-cause question spanning several
// servers is at least high priority.
const builtinMultiServerRootCause = "multi_server_root_cause"

func compileRules(rules []EscalationRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}
		if rule.Priority.Rank() == 0 && rule.Priority != intent.UrgencyLow {
			return nil, fmt.Errorf("escalation rule %q: unknown priority %q", name, rule.Priority)
		}
		program, err := expr.Compile(rule.When, expr.Env(RuleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile escalation rule %q: %w", name, err)
		}
		out = append(out, compiledRule{name: name, priority: rule.Priority, program: program})
	}
	return out, nil
}

func (r *Router) escalations(analysis complexity.Analysis, result *intent.Result, opts complexity.TimeoutOptions) []escalationHit {
	var hits []escalationHit
	if analysis.HasFactor(complexity.FactorMultiServer) && analysis.HasFactor(complexity.FactorDeepAnalysis) {
		hits = append(hits, escalationHit{name: builtinMultiServerRootCause, priority: intent.UrgencyHigh})
	}
	if len(r.rules) == 0 {
		return hits
	}

	env := RuleEnv{
		Level:        string(analysis.Level),
		Score:        analysis.Score,
		Factors:      analysis.Factors,
		Intent:       string(result.Intent),
		Urgency:      string(result.Urgency),
		Confidence:   result.Confidence,
		Method:       string(result.Method),
		Entities:     result.Entities,
		MessageCount: opts.MessageCount,
	}
	for _, rule := range r.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			log.Warnf("escalation rule %q failed: %v", rule.name, err)
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			hits = append(hits, escalationHit{name: rule.name, priority: rule.priority})
		}
	}
	return hits
}
