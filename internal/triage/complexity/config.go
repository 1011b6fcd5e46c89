// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package complexity

const (
	// DefaultPlatformCeilingMs is the hosting platform's hard per-request
	// execution limit. Exceeding it aborts the request outright.
	DefaultPlatformCeilingMs = 60000

	// DefaultSafetyMarginMs keeps every budget strictly below the ceiling.
	DefaultSafetyMarginMs = 5000
)

// Config holds the score bands, the per-level timeout table and the
// context-size tiers. Band boundaries are tuning constants.
type Config struct {
	ModerateMinScore    int
	ComplexMinScore     int
	VeryComplexMinScore int

	SimpleTimeoutMs      int
	ModerateTimeoutMs    int
	ComplexTimeoutMs     int
	VeryComplexTimeoutMs int

	PlatformCeilingMs int
	SafetyMarginMs    int

	// Conversations longer than SmallContextMessages get SmallContextExtraMs;
	// longer than LargeContextMessages get LargeContextExtraMs instead.
	SmallContextMessages int
	SmallContextExtraMs  int
	LargeContextMessages int
	LargeContextExtraMs  int
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		ModerateMinScore:    20,
		ComplexMinScore:     45,
		VeryComplexMinScore: 70,

		SimpleTimeoutMs:      15000,
		ModerateTimeoutMs:    25000,
		ComplexTimeoutMs:     40000,
		VeryComplexTimeoutMs: 60000,

		PlatformCeilingMs: DefaultPlatformCeilingMs,
		SafetyMarginMs:    DefaultSafetyMarginMs,

		SmallContextMessages: 10,
		SmallContextExtraMs:  5000,
		LargeContextMessages: 20,
		LargeContextExtraMs:  10000,
	}
}

// MaxBudgetMs is the largest budget any component may hand out.
func (c Config) MaxBudgetMs() int {
	return c.PlatformCeilingMs - c.SafetyMarginMs
}

func (c *Config) sanitize() {
	def := DefaultConfig()

	if c.PlatformCeilingMs <= 0 {
		c.PlatformCeilingMs = def.PlatformCeilingMs
	}
	if c.SafetyMarginMs <= 0 || c.SafetyMarginMs >= c.PlatformCeilingMs {
		c.SafetyMarginMs = def.SafetyMarginMs
		if c.SafetyMarginMs >= c.PlatformCeilingMs {
			c.SafetyMarginMs = c.PlatformCeilingMs / 10
		}
	}

	if c.ModerateMinScore <= 0 || c.ComplexMinScore <= c.ModerateMinScore ||
		c.VeryComplexMinScore <= c.ComplexMinScore || c.VeryComplexMinScore > 100 {
		c.ModerateMinScore = def.ModerateMinScore
		c.ComplexMinScore = def.ComplexMinScore
		c.VeryComplexMinScore = def.VeryComplexMinScore
	}

	if c.SimpleTimeoutMs <= 0 {
		c.SimpleTimeoutMs = def.SimpleTimeoutMs
	}
	if c.ModerateTimeoutMs <= 0 {
		c.ModerateTimeoutMs = def.ModerateTimeoutMs
	}
	if c.ComplexTimeoutMs <= 0 {
		c.ComplexTimeoutMs = def.ComplexTimeoutMs
	}
	if c.VeryComplexTimeoutMs <= 0 {
		c.VeryComplexTimeoutMs = def.VeryComplexTimeoutMs
	}

	if c.SmallContextMessages <= 0 {
		c.SmallContextMessages = def.SmallContextMessages
	}
	if c.LargeContextMessages <= c.SmallContextMessages {
		c.LargeContextMessages = c.SmallContextMessages * 2
	}
	if c.SmallContextExtraMs <= 0 {
		c.SmallContextExtraMs = def.SmallContextExtraMs
	}
	if c.LargeContextExtraMs <= 0 {
		c.LargeContextExtraMs = def.LargeContextExtraMs
	}
	if c.LargeContextExtraMs < c.SmallContextExtraMs {
		c.LargeContextExtraMs = c.SmallContextExtraMs
	}
}
