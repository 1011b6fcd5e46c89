// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(Config{ModelPath: "/srv/models/m/model.onnx"})
	require.NoError(t, err)
	assert.False(t, e.IsEnabled())

	_, err = NewEngine(Config{VocabPath: "/srv/models/m/vocab.txt"})
	assert.ErrorContains(t, err, "model path is required")
}

func TestEngine_InitializeMissingModel(t *testing.T) {
	e, err := NewEngine(Config{ModelPath: filepath.Join(t.TempDir(), "model.onnx")})
	require.NoError(t, err)

	assert.ErrorContains(t, e.Initialize(), "model file not found")
	assert.False(t, e.IsEnabled())
}

func TestEngine_EmbedNotInitialized(t *testing.T) {
	e, err := NewEngine(Config{ModelPath: "/nowhere/model.onnx"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "cpu")
	assert.ErrorIs(t, err, ErrNotInitialized)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Embed(ctx, "cpu")
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, e.Shutdown())
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	got := MeanPool(hidden, []int64{1, 1, 0}, 2)
	assert.Equal(t, []float32{2, 3}, got)

	assert.Equal(t, []float32{0, 0}, MeanPool(hidden, []int64{0, 0, 0}, 2))
	// Rows beyond the hidden state are skipped.
	assert.Equal(t, []float32{1, 2}, MeanPool(hidden[:2], []int64{1, 1}, 2))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: -1},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 2}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "empty", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
