// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/traylinx/querytriage/internal/triage/entities"
)

var (
	// ErrGuardTimeout is reported when a model call outlives the guard
	// interval and is abandoned.
	ErrGuardTimeout = errors.New("intent: model call exceeded guard interval")

	// ErrNoLoader is returned by Warmup when no model is configured.
	ErrNoLoader = errors.New("intent: no model loader configured")

	errEmptyScores = errors.New("intent: model returned no label scores")
)

const (
	DefaultGuardTimeout  = 2 * time.Second
	DefaultRetryInterval = 30 * time.Second
)

// Config tunes the classifier.
type Config struct {
	// GuardTimeout bounds every model call.
	GuardTimeout time.Duration

	// RetryInterval is the minimum gap between two model load attempts
	// after a failure.
	RetryInterval time.Duration

	// SerializeInference allows one model call at a time. Use it when the
	// model runtime is not safe for concurrent calls.
	SerializeInference bool

	// Strict re-panics when the keyword classifier panics. Meant for tests
	// and development builds.
	Strict bool
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		GuardTimeout:  DefaultGuardTimeout,
		RetryInterval: DefaultRetryInterval,
	}
}

// Classifier is safe for concurrent use. All requests share one model
// handle which is loaded lazily and never mutated afterwards.
type Classifier struct {
	cfg    Config
	loader Loader
	labels []string

	models      atomic.Pointer[Models]
	initGroup   singleflight.Group
	loading     atomic.Bool
	lastAttempt atomic.Int64
	gate        *semaphore.Weighted

	stats counters

	// keywords is swapped in tests to exercise the strict-mode panic path.
	keywords func(text, normalized string) *Result
	now      func() time.Time
}

// NewClassifier creates a classifier. A nil loader leaves the classifier on
// the keyword path permanently.
func NewClassifier(cfg Config, loader Loader) *Classifier {
	if cfg.GuardTimeout <= 0 {
		cfg.GuardTimeout = DefaultGuardTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}

	labels := make([]string, 0, len(taxonomy))
	for _, i := range taxonomy {
		labels = append(labels, string(i))
	}

	c := &Classifier{
		cfg:      cfg,
		loader:   loader,
		labels:   labels,
		keywords: classifyKeywords,
		now:      time.Now,
	}
	c.stats.init()
	if cfg.SerializeInference {
		c.gate = semaphore.NewWeighted(1)
	}
	return c
}

// Warmup loads the model synchronously. Concurrent callers share one load.
func (c *Classifier) Warmup(ctx context.Context) error {
	if c.loader == nil {
		return ErrNoLoader
	}
	return c.load(ctx)
}

// Ready reports whether the model handle is loaded.
func (c *Classifier) Ready() bool {
	return c.models.Load() != nil
}

// Classify returns the classification of text. It never fails.
func (c *Classifier) Classify(ctx context.Context, text string) *Result {
	return ResultOf(c.ClassifyOutcome(ctx, text))
}

// ClassifyOutcome classifies text and reports which path answered.
func (c *Classifier) ClassifyOutcome(ctx context.Context, text string) Outcome {
	start := c.now()
	normalized := normalize(text)

	if normalized == "" {
		return c.fallback(text, normalized, ReasonEmptyQuery, start)
	}

	m := c.models.Load()
	if m == nil {
		c.triggerLoad()
		return c.fallback(text, normalized, ReasonNotInitialized, start)
	}

	res, err := c.primary(ctx, m, text, normalized)
	if err != nil {
		reason := ReasonModelError
		if errors.Is(err, ErrGuardTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonModelTimeout
		}
		log.Debugf("intent model failed (%s): %v", reason, err)
		return c.fallback(text, normalized, reason, start)
	}

	res.ProcessingTime = elapsedMs(start, c.now())
	c.stats.primary.Add(1)
	return PrimaryOutcome{Result: res}
}

func (c *Classifier) primary(ctx context.Context, m *Models, text, normalized string) (*Result, error) {
	scores, spans, err := c.infer(ctx, m, text)
	if err != nil {
		return nil, err
	}

	best, ok := bestLabel(scores)
	if !ok {
		return nil, errEmptyScores
	}

	ruleSpans := entities.Extract(text)
	merged := entities.Merge(toEntities(spans), ruleSpans)

	res := &Result{
		Intent:     best.intent,
		Confidence: clamp01(best.score),
		Method:     MethodTransformers,
		Entities:   entities.Texts(merged),
		Spans:      merged,
	}
	applyRules(res, normalized, merged)
	return res, nil
}

type inference struct {
	scores []LabelScore
	spans  []Span
	err    error
}

// infer runs the model calls under the guard interval. On expiry the call
// is abandoned; the goroutine finishes in the background and, when the gate
// is on, keeps holding it until the runtime returns.
func (c *Classifier) infer(ctx context.Context, m *Models, text string) ([]LabelScore, []Span, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GuardTimeout)
	defer cancel()

	done := make(chan inference, 1)
	go func() {
		if c.gate != nil {
			if err := c.gate.Acquire(gctx, 1); err != nil {
				done <- inference{err: err}
				return
			}
			defer c.gate.Release(1)
		}

		var out inference
		out.scores, out.err = m.Scorer.ScoreLabels(gctx, text, c.labels)
		if out.err == nil && m.Extractor != nil {
			spans, err := m.Extractor.ExtractSpans(gctx, text)
			if err != nil {
				log.Debugf("entity extraction failed, using rule entities only: %v", err)
			} else {
				out.spans = spans
			}
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out.scores, out.spans, out.err
	case <-gctx.Done():
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w after %s", ErrGuardTimeout, c.cfg.GuardTimeout)
	}
}

// fallback answers with the keyword classifier. A panic there is a defect:
// strict mode re-raises it, otherwise a minimal result is returned.
func (c *Classifier) fallback(text, normalized string, reason FallbackReason, start time.Time) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			if c.cfg.Strict {
				panic(r)
			}
			log.Errorf("keyword classifier panicked: %v", r)
			res := minimalResult()
			res.FallbackReason = reason
			res.ProcessingTime = elapsedMs(start, c.now())
			out = FallbackOutcome{Result: res, Reason: reason}
		}
	}()

	c.stats.recordFallback(reason)

	var res *Result
	if reason == ReasonEmptyQuery {
		res = minimalResult()
	} else {
		res = c.keywords(text, normalized)
	}
	res.Method = MethodFallback
	res.FallbackReason = reason
	res.ProcessingTime = elapsedMs(start, c.now())
	return FallbackOutcome{Result: res, Reason: reason}
}

// triggerLoad starts a background load unless one is running, the model is
// loaded, or the last failure is too recent.
func (c *Classifier) triggerLoad() {
	if c.loader == nil || c.models.Load() != nil {
		return
	}
	if last := c.lastAttempt.Load(); last != 0 && c.now().Sub(time.Unix(0, last)) < c.cfg.RetryInterval {
		return
	}
	if !c.loading.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.loading.Store(false)
		_ = c.load(context.Background())
	}()
}

func (c *Classifier) load(ctx context.Context) error {
	_, err, _ := c.initGroup.Do("models", func() (any, error) {
		if m := c.models.Load(); m != nil {
			return m, nil
		}
		c.lastAttempt.Store(c.now().UnixNano())

		m, err := c.loader(ctx)
		if err == nil && (m == nil || m.Scorer == nil) {
			err = errors.New("loader returned no label scorer")
		}
		if err != nil {
			c.stats.initFailures.Add(1)
			log.Warnf("intent model unavailable, keyword classifier stays active: %v", err)
			return nil, fmt.Errorf("load intent model: %w", err)
		}

		c.models.Store(m)
		log.Infof("intent model loaded (%d labels)", len(c.labels))
		return m, nil
	})
	return err
}

type scoredIntent struct {
	intent Intent
	score  float64
}

// bestLabel picks the highest scoring label of the taxonomy. Unknown labels
// are ignored.
func bestLabel(scores []LabelScore) (scoredIntent, bool) {
	var candidates []scoredIntent
	for _, s := range scores {
		i := Intent(s.Label)
		if !i.Valid() {
			continue
		}
		candidates = append(candidates, scoredIntent{intent: i, score: s.Score})
	}
	if len(candidates) == 0 {
		return scoredIntent{}, false
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })
	return candidates[0], true
}

func toEntities(spans []Span) []entities.Entity {
	out := make([]entities.Entity, 0, len(spans))
	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		out = append(out, entities.Entity{Kind: spanKind(s.Kind), Text: s.Text, Start: s.Start})
	}
	return out
}

func spanKind(kind string) entities.Kind {
	switch kind {
	case "server", "host", "hostname":
		return entities.KindServer
	case "time", "date", "time_range", "duration":
		return entities.KindTimeRange
	default:
		return entities.KindMetric
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func elapsedMs(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
