// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package complexity

import "fmt"

// TimeoutOptions carries the caller-supplied bounds and the conversation
// length hint. Zero or negative values mean "not supplied".
type TimeoutOptions struct {
	MinTimeout   int `json:"minTimeout,omitempty"`
	MaxTimeout   int `json:"maxTimeout,omitempty"`
	MessageCount int `json:"messageCount,omitempty"`
}

// Bounds is a normalised [Min, Max] pair. A zero field is unbounded.
type Bounds struct {
	Min int
	Max int
	// Swapped is set when the caller passed Min > Max.
	Swapped bool
}

// NormalizeBounds drops negative values and swaps an inverted pair.
func NormalizeBounds(minTimeout, maxTimeout int) Bounds {
	b := Bounds{Min: max(minTimeout, 0), Max: max(maxTimeout, 0)}
	if b.Min > 0 && b.Max > 0 && b.Min > b.Max {
		b.Min, b.Max = b.Max, b.Min
		b.Swapped = true
	}
	return b
}

// Clamp limits ms to the bounds.
func (b Bounds) Clamp(ms int) int {
	if b.Max > 0 && ms > b.Max {
		ms = b.Max
	}
	if b.Min > 0 && ms < b.Min {
		ms = b.Min
	}
	return ms
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d]", b.Min, b.Max)
}

// CalculateDynamicTimeout scores text and returns its context-adjusted
// budget using the default configuration.
func CalculateDynamicTimeout(text string, opts TimeoutOptions) int {
	return defaultAnalyzer.CalculateDynamicTimeout(text, opts)
}

// CalculateDynamicTimeout scores text and returns its context-adjusted
// budget. The result never leaves the supplied bounds.
func (a *Analyzer) CalculateDynamicTimeout(text string, opts TimeoutOptions) int {
	return a.DynamicTimeout(a.Analyze(text), opts)
}

// DynamicTimeout adjusts an existing analysis' recommended timeout for
// conversation length and clamps it. Without a supplied maximum the result
// is capped at the platform budget.
func (a *Analyzer) DynamicTimeout(analysis Analysis, opts TimeoutOptions) int {
	ms := analysis.RecommendedTimeout
	if ms <= 0 {
		ms = a.TimeoutForLevel(analysis.Level)
	}

	switch {
	case opts.MessageCount > a.cfg.LargeContextMessages:
		ms += a.cfg.LargeContextExtraMs
	case opts.MessageCount > a.cfg.SmallContextMessages:
		ms += a.cfg.SmallContextExtraMs
	}

	bounds := NormalizeBounds(opts.MinTimeout, opts.MaxTimeout)
	if bounds.Max == 0 {
		ms = min(ms, a.cfg.MaxBudgetMs())
	}
	return bounds.Clamp(ms)
}
