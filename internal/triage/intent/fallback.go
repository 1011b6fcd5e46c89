// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/traylinx/querytriage/internal/triage/entities"
)

const (
	// fallbackBaseConfidence is reported for a single keyword hit. Every
	// additional hit adds fallbackHitBonus up to fallbackMaxConfidence.
	fallbackBaseConfidence = 0.6
	fallbackHitBonus       = 0.1
	fallbackMaxConfidence  = 0.9

	// fallbackNoMatchConfidence is reported for general_inquiry when no
	// keyword matched. It stays above the 0.5 usability floor.
	fallbackNoMatchConfidence = 0.55
)

// classifyKeywords is the dependency-free classifier. It scores every intent
// row by weight times distinct hits and keeps the best; ties go to the row
// listed first.
func classifyKeywords(text, normalized string) *Result {
	best := IntentGeneralInquiry
	bestScore := 0.0
	bestHits := 0

	for _, rule := range keywordRules {
		hits := distinctMatches(rule, normalized)
		if hits == 0 {
			continue
		}
		score := rule.weight * float64(hits)
		if score > bestScore {
			best, bestScore, bestHits = rule.intent, score, hits
		}
	}

	confidence := fallbackNoMatchConfidence
	if bestHits > 0 {
		confidence = min(fallbackBaseConfidence+fallbackHitBonus*float64(bestHits-1), fallbackMaxConfidence)
	}

	spans := entities.Extract(text)
	res := &Result{
		Intent:     best,
		Confidence: confidence,
		Method:     MethodFallback,
		Entities:   entities.Texts(spans),
		Spans:      spans,
	}
	applyRules(res, normalized, spans)
	return res
}

func distinctMatches(rule keywordRule, normalized string) int {
	seen := make(map[string]struct{})
	for _, m := range rule.re.FindAllString(normalized, -1) {
		seen[m] = struct{}{}
	}
	return len(seen)
}

// minimalResult is returned when the keyword classifier itself fails.
func minimalResult() *Result {
	res := &Result{
		Intent:     IntentGeneralInquiry,
		Confidence: fallbackNoMatchConfidence,
		Method:     MethodFallback,
		Entities:   []string{},
	}
	applyRules(res, "", nil)
	return res
}

// normalize folds case and compatibility forms and collapses whitespace so
// rule phrases match regardless of input script width.
func normalize(text string) string {
	text = norm.NFKC.String(text)
	text = cases.Fold().String(text)
	return strings.Join(strings.Fields(text), " ")
}
