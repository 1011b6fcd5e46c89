// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package complexity scores how much work an operator query will cause
// downstream and turns that score into an execution-time budget.
// Scoring is a pure function of the query text: no I/O, no clock, no
// randomness.
package complexity

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Level is the ordered complexity classification of a query.
type Level string

const (
	LevelSimple      Level = "simple"
	LevelModerate    Level = "moderate"
	LevelComplex     Level = "complex"
	LevelVeryComplex Level = "very_complex"
)

// Rank returns the severity order of the level (simple = 0).
// Unknown levels rank as simple.
func (l Level) Rank() int {
	switch l {
	case LevelModerate:
		return 1
	case LevelComplex:
		return 2
	case LevelVeryComplex:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as other.
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

// Analysis is the result of scoring one query.
type Analysis struct {
	Level              Level    `json:"level"`
	Score              int      `json:"score"`
	Factors            []string `json:"factors"`
	RecommendedTimeout int      `json:"recommendedTimeout"`
	EstimatedTokens    int      `json:"estimatedTokens"`
}

// HasFactor reports whether the analysis emitted the given tag.
func (a Analysis) HasFactor(tag string) bool {
	for _, f := range a.Factors {
		if f == tag {
			return true
		}
	}
	return false
}

// Analyzer scores queries against a fixed rule table using the band and
// timeout constants in its Config. An Analyzer is immutable and safe for
// concurrent use.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer. Invalid or missing constants in cfg are
// replaced by defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	cfg.sanitize()
	return &Analyzer{cfg: cfg}
}

var defaultAnalyzer = NewAnalyzer(DefaultConfig())

// Analyze scores text with the default configuration.
func Analyze(text string) Analysis {
	return defaultAnalyzer.Analyze(text)
}

// Config returns a copy of the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze scores a query. Empty or whitespace-only input yields a simple
// analysis with score 0.
func (a *Analyzer) Analyze(text string) Analysis {
	normalized := normalize(text)
	analysis := Analysis{
		Factors:         []string{},
		EstimatedTokens: EstimateTokens(text),
	}

	if normalized == "" {
		return a.finish(analysis)
	}

	if isGreetingOrStatus(normalized) {
		analysis.Factors = append(analysis.Factors, FactorSimpleGreeting)
		return a.finish(analysis)
	}

	score := 0
	for _, rule := range keywordRules {
		if rule.re.MatchString(normalized) {
			score += rule.weight
			analysis.Factors = append(analysis.Factors, rule.tag)
		}
	}

	runes := utf8.RuneCountInString(normalized)
	for _, rule := range lengthRules {
		if runes > rule.minRunes {
			score += rule.weight
			analysis.Factors = append(analysis.Factors, rule.tag)
		}
	}

	if questions := countQuestions(normalized); questions >= multiQuestionThreshold {
		score += min(questions*multiQuestionStep, multiQuestionMax)
		analysis.Factors = append(analysis.Factors, MultiQuestionFactor(questions))
	}

	if hasDateTimeRange(normalized) {
		score += dateTimeRangeWeight
		analysis.Factors = append(analysis.Factors, FactorDateTimeRange)
	}

	analysis.Score = clampScore(score)
	return a.finish(analysis)
}

// finish derives level and timeout from the clamped score.
func (a *Analyzer) finish(analysis Analysis) Analysis {
	analysis.Score = clampScore(analysis.Score)
	analysis.Level = a.LevelForScore(analysis.Score)
	analysis.RecommendedTimeout = a.TimeoutForLevel(analysis.Level)
	return analysis
}

// LevelForScore maps a score to its band. Bands are non-overlapping and
// order-preserving.
func (a *Analyzer) LevelForScore(score int) Level {
	score = clampScore(score)
	switch {
	case score >= a.cfg.VeryComplexMinScore:
		return LevelVeryComplex
	case score >= a.cfg.ComplexMinScore:
		return LevelComplex
	case score >= a.cfg.ModerateMinScore:
		return LevelModerate
	default:
		return LevelSimple
	}
}

// TimeoutForLevel returns the recommended budget for a level in
// milliseconds, capped at the platform ceiling minus its safety margin.
func (a *Analyzer) TimeoutForLevel(level Level) int {
	var ms int
	switch level {
	case LevelModerate:
		ms = a.cfg.ModerateTimeoutMs
	case LevelComplex:
		ms = a.cfg.ComplexTimeoutMs
	case LevelVeryComplex:
		ms = a.cfg.VeryComplexTimeoutMs
	default:
		ms = a.cfg.SimpleTimeoutMs
	}
	return min(ms, a.cfg.MaxBudgetMs())
}

func normalize(text string) string {
	text = norm.NFKC.String(text)
	text = cases.Fold().String(text)
	return strings.Join(strings.Fields(text), " ")
}

func isGreetingOrStatus(normalized string) bool {
	for _, p := range greetingPatterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

func countQuestions(normalized string) int {
	return len(questionMarkerPattern.FindAllStringIndex(normalized, -1))
}

func hasDateTimeRange(normalized string) bool {
	for _, p := range dateTimePatterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
