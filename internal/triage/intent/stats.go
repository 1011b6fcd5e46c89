// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import "sync/atomic"

// Stats is a snapshot of the classifier counters. Counts only grow.
type Stats struct {
	TransformersAvailable bool             `json:"transformersAvailable"`
	Initialized           bool             `json:"initialized"`
	TransformersCount     int64            `json:"transformersCount"`
	FallbackCount         int64            `json:"fallbackCount"`
	FallbackReasons       map[string]int64 `json:"fallbackReasons"`
	InitFailures          int64            `json:"initFailures"`
}

type counters struct {
	primary      atomic.Int64
	fallback     atomic.Int64
	initFailures atomic.Int64
	// byReason is built once; only the values change.
	byReason map[FallbackReason]*atomic.Int64
}

func (c *counters) init() {
	c.byReason = make(map[FallbackReason]*atomic.Int64, len(fallbackReasons))
	for _, r := range fallbackReasons {
		c.byReason[r] = new(atomic.Int64)
	}
}

func (c *counters) recordFallback(reason FallbackReason) {
	c.fallback.Add(1)
	if n, ok := c.byReason[reason]; ok {
		n.Add(1)
	}
}

// Stats returns the current counters.
func (c *Classifier) Stats() Stats {
	reasons := make(map[string]int64, len(c.stats.byReason))
	for r, n := range c.stats.byReason {
		reasons[string(r)] = n.Load()
	}
	return Stats{
		TransformersAvailable: c.loader != nil,
		Initialized:           c.Ready(),
		TransformersCount:     c.stats.primary.Load(),
		FallbackCount:         c.stats.fallback.Load(),
		FallbackReasons:       reasons,
		InitFailures:          c.stats.initFailures.Load(),
	}
}
