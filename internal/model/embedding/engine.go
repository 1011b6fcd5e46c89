// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package embedding runs a MiniLM sentence encoder through ONNX runtime and
// returns L2-normalised sentence vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// DefaultModelName is a multilingual MiniLM export with a WordPiece
	// vocabulary that covers Hangul.
	DefaultModelName = "multilingual-MiniLM-L12-v2"

	// Dimension is the sentence vector size of the MiniLM family.
	Dimension = 384

	// MaxSequenceLength bounds the token count fed to the model.
	MaxSequenceLength = 128
)

// ErrNotInitialized is returned by Embed before Initialize succeeded or
// after Shutdown.
var ErrNotInitialized = errors.New("embedding engine not initialized")

var (
	envOnce sync.Once
	envErr  error
)

// Config locates the model files.
type Config struct {
	ModelPath         string
	VocabPath         string
	SharedLibraryPath string
}

// Engine is safe for concurrent use. ONNX runtime sessions accept parallel
// Run calls; the RWMutex only guards Initialize and Shutdown.
type Engine struct {
	cfg       Config
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	enabled   bool
	mu        sync.RWMutex
}

// NewEngine creates an engine. Nothing is loaded until Initialize.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	return &Engine{cfg: cfg}, nil
}

// Initialize loads the runtime, the model and the vocabulary.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.enabled {
		return nil
	}
	if _, err := os.Stat(e.cfg.ModelPath); err != nil {
		return fmt.Errorf("model file not found: %w", err)
	}

	if err := initEnvironment(e.cfg.SharedLibraryPath); err != nil {
		return err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		e.cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		options,
	)
	if err != nil {
		return fmt.Errorf("failed to load ONNX model: %w", err)
	}

	tokenizer, err := LoadTokenizer(e.cfg.VocabPath)
	if err != nil {
		session.Destroy()
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}

	e.session = session
	e.tokenizer = tokenizer
	e.enabled = true
	log.Infof("embedding engine ready (model: %s, vocab: %d tokens)", filepath.Base(filepath.Dir(e.cfg.ModelPath)), tokenizer.VocabSize())
	return nil
}

// initEnvironment loads the shared library once per process. A failure is
// sticky: the runtime cannot be initialised twice.
func initEnvironment(sharedLib string) error {
	envOnce.Do(func() {
		if sharedLib != "" {
			ort.SetSharedLibraryPath(sharedLib)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", envErr)
	}
	return nil
}

// IsEnabled reports whether the engine can embed.
func (e *Engine) IsEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Embed returns the sentence vector of text. The context is checked before
// inference starts; a running ONNX call cannot be interrupted.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled {
		return nil, ErrNotInitialized
	}

	tokens := e.tokenizer.Encode(text, MaxSequenceLength)
	vec, err := e.run(tokens)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return vec, nil
}

func (e *Engine) run(tokens *Encoding) ([]float32, error) {
	seqLen := int64(len(tokens.InputIDs))
	shape := ort.NewShape(1, seqLen)

	inputIDs, err := ort.NewTensor(shape, tokens.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	mask, err := ort.NewTensor(shape, tokens.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer mask.Destroy()

	typeIDs, err := ort.NewTensor(shape, tokens.TokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, Dimension))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run(
		[]ort.ArbitraryTensor{inputIDs, mask, typeIDs},
		[]ort.ArbitraryTensor{output},
	); err != nil {
		return nil, err
	}

	vec := MeanPool(output.GetData(), tokens.AttentionMask, Dimension)
	return Normalize(vec), nil
}

// MeanPool averages token vectors where the attention mask is set.
func MeanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var n float32
	for i, m := range mask {
		if m != 1 || (i+1)*dim > len(hidden) {
			continue
		}
		row := hidden[i*dim : (i+1)*dim]
		for j, v := range row {
			out[j] += v
		}
		n++
	}
	if n > 0 {
		for j := range out {
			out[j] /= n
		}
	}
	return out
}

// Normalize scales v to unit length in place. The zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 for
// mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Shutdown releases the ONNX session.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return nil
	}
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			log.Warnf("failed to destroy ONNX session: %v", err)
		}
		e.session = nil
	}
	e.enabled = false
	log.Info("embedding engine shut down")
	return nil
}
