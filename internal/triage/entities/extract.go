// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package entities pulls literal spans out of an operator query: server
// identifiers, metric names and time ranges. Extraction is best-effort and
// never fails; an empty result is a valid answer.
package entities

import (
	"regexp"
	"sort"
	"strings"
)

// Kind classifies an extracted span.
type Kind string

const (
	KindServer    Kind = "server"
	KindMetric    Kind = "metric"
	KindTimeRange Kind = "time_range"
)

// Entity is one literal substring of the query.
type Entity struct {
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Start int    `json:"start"`
}

func (e Entity) end() int { return e.Start + len(e.Text) }

type pattern struct {
	kind Kind
	re   *regexp.Regexp
	// accept filters raw matches; nil accepts everything.
	accept func(string) bool
}

// Overlapping candidates are resolved in favour of the earliest, then the
// longest, then the kind listed first here.
var patterns = []pattern{
	// Absolute dates and clock times.
	{KindTimeRange, regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b`), nil},
	{KindTimeRange, regexp.MustCompile(`(\d{4}년\s*)?\d{1,2}월\s*\d{1,2}일`), nil},
	{KindTimeRange, regexp.MustCompile(`\d{4}년\s*\d{1,2}월`), nil},
	{KindTimeRange, regexp.MustCompile(`\b\d{1,2}:\d{2}\b`), nil},

	// Relative ranges.
	{KindTimeRange, regexp.MustCompile(`\d+\s*(분|시간|일|주일|주|개월|달|년)(간|전|이내)?`), nil},
	{KindTimeRange, regexp.MustCompile(`(?i)\b(last|past|next|previous)\s+(\d+\s+)?(minutes?|hours?|days?|weeks?|months?|years?)\b`), nil},
	{KindTimeRange, regexp.MustCompile(`(?i)\b\d+\s*(minutes?|mins?|hours?|hrs?|h|days?|weeks?|months?)\b`), nil},
	{KindTimeRange, regexp.MustCompile(`(?i)\b(yesterday|today|tonight|this (week|month)|last (week|month|night))\b`), nil},
	{KindTimeRange, regexp.MustCompile(`지난\s?(주|달|해)|이번\s?(주|달)|그저께|어제|오늘|금일|전일`), nil},

	// Servers: hyphenated hostnames that start with a letter, or IPv4.
	{KindServer, regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*(-[A-Za-z0-9]+)+\b`), looksLikeHost},
	{KindServer, regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}\b`), nil},

	{KindMetric, metricPattern, nil},
}

var hostPrefixes = []string{
	"web", "was", "db", "api", "app", "srv", "server", "node", "cache", "redis", "mysql",
	"pg", "kafka", "worker", "batch", "lb", "proxy", "prod", "stg", "stage", "dev",
}

// looksLikeHost rejects ordinary hyphenated words such as "real-time".
// A host either carries a digit or starts with a well-known role prefix.
func looksLikeHost(s string) bool {
	if strings.ContainsAny(s, "0123456789") {
		return true
	}
	lower := strings.ToLower(s)
	for _, prefix := range hostPrefixes {
		if strings.HasPrefix(lower, prefix+"-") {
			return true
		}
	}
	return false
}

// Extract returns every entity found in text ordered by position. Repeated
// mentions of the same literal (case-insensitive) are reported once.
func Extract(text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return []Entity{}
	}

	type candidate struct {
		Entity
		rank int
	}
	var candidates []candidate
	for rank, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if p.accept != nil && !p.accept(text[loc[0]:loc[1]]) {
				continue
			}
			candidates = append(candidates, candidate{
				Entity: Entity{Kind: p.kind, Text: text[loc[0]:loc[1]], Start: loc[0]},
				rank:   rank,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if len(a.Text) != len(b.Text) {
			return len(a.Text) > len(b.Text)
		}
		return a.rank < b.rank
	})

	out := make([]Entity, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	lastEnd := 0
	for _, c := range candidates {
		if c.Start < lastEnd {
			continue
		}
		lastEnd = c.end()
		key := strings.ToLower(c.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c.Entity)
	}
	return out
}

// Texts flattens entities to their literal strings.
func Texts(ents []Entity) []string {
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.Text)
	}
	return out
}

// Merge combines two lists of spans over the same text (for example model
// spans and rule spans). Of two overlapping spans the earlier one is kept;
// on a tie primary wins.
func Merge(primary, secondary []Entity) []Entity {
	all := make([]Entity, 0, len(primary)+len(secondary))
	all = append(all, primary...)
	all = append(all, secondary...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })

	out := make([]Entity, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	lastEnd := -1
	for _, e := range all {
		if e.Start < lastEnd {
			continue
		}
		key := strings.ToLower(e.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		lastEnd = e.end()
		out = append(out, e)
	}
	return out
}

// HasKind reports whether any entity is of kind k.
func HasKind(ents []Entity, k Kind) bool {
	for _, e := range ents {
		if e.Kind == k {
			return true
		}
	}
	return false
}
