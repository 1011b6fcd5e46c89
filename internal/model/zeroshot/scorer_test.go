package zeroshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/querytriage/internal/triage/intent"
)

// axisEmbedder maps text onto fixed axes by keyword, so similarity is
// predictable without a model.
type axisEmbedder struct {
	axes []string
	fail map[string]bool

	mu    sync.Mutex
	calls int
}

func (e *axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.fail[text] {
		return nil, errors.New("embed failed")
	}
	vec := make([]float32, len(e.axes)+1)
	vec[len(e.axes)] = 0.1
	lower := strings.ToLower(text)
	for i, axis := range e.axes {
		if strings.Contains(lower, axis) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func testCatalogue() *Catalogue {
	return &Catalogue{Labels: []Label{
		{Name: "metric_query", Description: "cpu usage", Examples: []string{"cpu now"}},
		{Name: "log_analysis", Description: "logs", Examples: []string{"error logs"}},
		{Name: "troubleshooting", Examples: []string{"down", "outage down"}},
	}}
}

func newTestScorer(t *testing.T) (*Scorer, *axisEmbedder) {
	t.Helper()
	emb := &axisEmbedder{axes: []string{"cpu", "log", "down"}}
	s, err := NewScorer(context.Background(), emb, testCatalogue(), 0)
	require.NoError(t, err)
	return s, emb
}

func TestNewScorer(t *testing.T) {
	s, emb := newTestScorer(t)

	assert.Equal(t, []string{"metric_query", "log_analysis", "troubleshooting"}, s.Labels())
	assert.Equal(t, DefaultTemperature, s.temperature)
	// One embedding per description and example.
	assert.Equal(t, 6, emb.calls)
}

func TestNewScorer_Errors(t *testing.T) {
	emb := &axisEmbedder{axes: []string{"cpu"}}

	_, err := NewScorer(context.Background(), nil, testCatalogue(), 0)
	assert.Error(t, err)

	_, err = NewScorer(context.Background(), emb, &Catalogue{}, 0)
	assert.Error(t, err)

	failing := &axisEmbedder{axes: []string{"cpu"}, fail: map[string]bool{"cpu usage": true, "cpu now": true}}
	s, err := NewScorer(context.Background(), failing, testCatalogue(), 0)
	require.NoError(t, err)
	assert.NotContains(t, s.Labels(), "metric_query")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewScorer(ctx, emb, testCatalogue(), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoreLabels(t *testing.T) {
	s, _ := newTestScorer(t)
	labels := []string{"metric_query", "log_analysis", "troubleshooting"}

	tests := []struct {
		text string
		want string
	}{
		{text: "CPU usage on web-01", want: "metric_query"},
		{text: "show me the logs", want: "log_analysis"},
		{text: "db-7 is down", want: "troubleshooting"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			scores, err := s.ScoreLabels(context.Background(), tt.text, labels)
			require.NoError(t, err)
			require.Len(t, scores, 3)

			assert.Equal(t, tt.want, scores[0].Label)
			var sum float64
			for i, sc := range scores {
				assert.GreaterOrEqual(t, sc.Score, 0.0)
				assert.LessOrEqual(t, sc.Score, 1.0)
				if i > 0 {
					assert.GreaterOrEqual(t, scores[i-1].Score, sc.Score)
				}
				sum += sc.Score
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestScoreLabels_LabelSelection(t *testing.T) {
	s, _ := newTestScorer(t)

	scores, err := s.ScoreLabels(context.Background(), "cpu", []string{"log_analysis", "unknown_label"})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "log_analysis", scores[0].Label)
	assert.InDelta(t, 1.0, scores[0].Score, 1e-9)

	all, err := s.ScoreLabels(context.Background(), "cpu", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.ScoreLabels(context.Background(), "cpu", []string{"nope"})
	assert.ErrorIs(t, err, ErrNoLabels)
}

func TestScoreLabels_EmbedError(t *testing.T) {
	s, emb := newTestScorer(t)
	emb.fail = map[string]bool{"broken": true}

	_, err := s.ScoreLabels(context.Background(), "broken", nil)
	assert.ErrorContains(t, err, "embed query")
}

func TestScorer_ImplementsLabelScorer(t *testing.T) {
	s, _ := newTestScorer(t)

	c := intent.NewClassifier(intent.DefaultConfig(), intent.StaticLoader(&intent.Models{Scorer: s}))
	require.NoError(t, c.Warmup(context.Background()))

	res := c.Classify(context.Background(), "cpu usage now")
	assert.Equal(t, intent.MethodTransformers, res.Method)
	assert.Equal(t, intent.IntentMetricQuery, res.Intent)
}

func TestSoftmax(t *testing.T) {
	p := softmax([]float64{0.9, 0.9}, 0.05)
	assert.InDelta(t, 0.5, p[0], 1e-9)
	assert.InDelta(t, 0.5, p[1], 1e-9)

	p = softmax([]float64{0.9, 0.1}, 0.05)
	assert.Greater(t, p[0], 0.99)

	assert.Empty(t, softmax(nil, 1))
}

func TestLoader_MissingModel(t *testing.T) {
	dir := t.TempDir()
	load := Loader(LoaderConfig{})
	_, err := load(context.Background())
	assert.Error(t, err)

	load = Loader(LoaderConfig{IntentsFile: filepath.Join(dir, "missing.yaml")})
	_, err = load(context.Background())
	assert.ErrorContains(t, err, "intents file")

	path := filepath.Join(dir, "intents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intents:\n  - name: x\n    examples: [a]\n"), 0o644))
	load = Loader(LoaderConfig{IntentsFile: path})
	_, err = load(context.Background())
	assert.ErrorContains(t, err, "model path is required")
}
