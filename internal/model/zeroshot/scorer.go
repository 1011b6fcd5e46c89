// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package zeroshot scores a query against a label catalogue by embedding
// similarity. It implements intent.LabelScorer on top of any sentence
// encoder.
package zeroshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/model/embedding"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

// DefaultTemperature sharpens the softmax over cosine similarities, which
// for sentence encoders sit in a narrow band.
const DefaultTemperature = 0.05

// ErrNoLabels is returned when none of the requested labels is known.
var ErrNoLabels = errors.New("no known labels requested")

// Embedder turns text into a unit-length sentence vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scorer is read-only after construction and safe for concurrent use when
// the embedder is.
type Scorer struct {
	embedder    Embedder
	centroids   map[string][]float32
	order       []string
	temperature float64
}

var _ intent.LabelScorer = (*Scorer)(nil)

// NewScorer embeds every catalogue text and keeps one normalised centroid
// per label. A label whose texts all fail to embed is dropped with a
// warning; an empty result is an error.
func NewScorer(ctx context.Context, embedder Embedder, cat *Catalogue, temperature float64) (*Scorer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cat == nil || len(cat.Labels) == 0 {
		return nil, fmt.Errorf("catalogue is empty")
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	s := &Scorer{
		embedder:    embedder,
		centroids:   make(map[string][]float32, len(cat.Labels)),
		temperature: temperature,
	}
	for _, l := range cat.Labels {
		centroid, err := s.centroid(ctx, l)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("zeroshot: skipping label %s: %v", l.Name, err)
			continue
		}
		s.centroids[l.Name] = centroid
		s.order = append(s.order, l.Name)
	}
	if len(s.order) == 0 {
		return nil, fmt.Errorf("failed to embed any label")
	}
	log.Debugf("zeroshot scorer ready with %d labels", len(s.order))
	return s, nil
}

func (s *Scorer) centroid(ctx context.Context, l Label) ([]float32, error) {
	var (
		sum  []float32
		n    int
		last error
	)
	for _, text := range l.texts() {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			last = err
			continue
		}
		if sum == nil {
			sum = make([]float32, len(vec))
		}
		if len(vec) != len(sum) {
			return nil, fmt.Errorf("embedding dimension changed from %d to %d", len(sum), len(vec))
		}
		for i, v := range vec {
			sum[i] += v
		}
		n++
	}
	if n == 0 {
		if last == nil {
			last = fmt.Errorf("no texts")
		}
		return nil, last
	}
	return embedding.Normalize(sum), nil
}

// Labels returns the scored label names in catalogue order.
func (s *Scorer) Labels() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ScoreLabels embeds text and returns a softmax distribution over the
// requested labels, highest first. Labels missing from the catalogue are
// ignored. A nil labels slice scores every catalogue label.
func (s *Scorer) ScoreLabels(ctx context.Context, text string, labels []string) ([]intent.LabelScore, error) {
	if labels == nil {
		labels = s.order
	}

	known := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := s.centroids[l]; ok {
			known = append(known, l)
		}
	}
	if len(known) == 0 {
		return nil, ErrNoLabels
	}

	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sims := make([]float64, len(known))
	for i, l := range known {
		sims[i] = embedding.CosineSimilarity(query, s.centroids[l])
	}
	probs := softmax(sims, s.temperature)

	out := make([]intent.LabelScore, len(known))
	for i, l := range known {
		out[i] = intent.LabelScore{Label: l, Score: probs[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func softmax(xs []float64, temperature float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	maxX := xs[0]
	for _, x := range xs[1:] {
		maxX = math.Max(maxX, x)
	}
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp((x - maxX) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
