package dispatch

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

func basicResult() *intent.Result {
	return &intent.Result{
		Intent:        intent.IntentMetricQuery,
		Confidence:    0.8,
		Method:        intent.MethodTransformers,
		Urgency:       intent.UrgencyLow,
		SuggestedMode: intent.ModeBasic,
	}
}

func TestRoute_ModeFromEitherSignal(t *testing.T) {
	simple := complexity.Analysis{Level: complexity.LevelSimple, RecommendedTimeout: 15000}
	complexA := complexity.Analysis{Level: complexity.LevelComplex, Score: 50, RecommendedTimeout: 40000}

	assert.Equal(t, intent.ModeBasic, Route(simple, basicResult(), complexity.TimeoutOptions{}).Mode)
	assert.Equal(t, intent.ModeAdvanced, Route(complexA, basicResult(), complexity.TimeoutOptions{}).Mode)

	adv := basicResult()
	adv.SuggestedMode = intent.ModeAdvanced
	assert.Equal(t, intent.ModeAdvanced, Route(simple, adv, complexity.TimeoutOptions{}).Mode)
}

func TestRoute_HeavyEngineIsOrOfFlags(t *testing.T) {
	a := complexity.Analysis{Level: complexity.LevelSimple, RecommendedTimeout: 15000}

	res := basicResult()
	assert.False(t, Route(a, res, complexity.TimeoutOptions{}).RequiresHeavyEngine)

	for _, set := range []func(*intent.Result){
		func(r *intent.Result) { r.NeedsPythonEngine = true },
		func(r *intent.Result) { r.NeedsComplexML = true },
		func(r *intent.Result) { r.NeedsTimeSeries = true },
		func(r *intent.Result) { r.NeedsAnomalyDetection = true },
	} {
		res := basicResult()
		set(res)
		assert.True(t, Route(a, res, complexity.TimeoutOptions{}).RequiresHeavyEngine)
	}
}

func TestRoute_TimeoutBudget(t *testing.T) {
	analysis := complexity.Analyze("cpu 사용률")
	require.Equal(t, 15000, analysis.RecommendedTimeout)

	tests := []struct {
		name string
		opts complexity.TimeoutOptions
		want int
	}{
		{"defaults", complexity.TimeoutOptions{}, 15000},
		{"large context", complexity.TimeoutOptions{MessageCount: 25}, 25000},
		{"caller max", complexity.TimeoutOptions{MaxTimeout: 8000}, 8000},
		{"swapped bounds", complexity.TimeoutOptions{MinTimeout: 30000, MaxTimeout: 20000}, 20000},
		{"negative bounds", complexity.TimeoutOptions{MinTimeout: -100, MaxTimeout: -1}, 15000},
		{"minimum above platform cap", complexity.TimeoutOptions{MinTimeout: 90000}, 55000},
		{"maximum above platform cap", complexity.TimeoutOptions{MaxTimeout: 90000, MessageCount: 25}, 25000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(analysis, basicResult(), tt.opts).TimeoutBudgetMs)
		})
	}
}

func TestRoute_PlatformCapOnVeryComplex(t *testing.T) {
	a := complexity.Analysis{Level: complexity.LevelVeryComplex, Score: 90, RecommendedTimeout: 55000}
	d := Route(a, basicResult(), complexity.TimeoutOptions{MessageCount: 30, MaxTimeout: 120000})
	assert.Equal(t, 55000, d.TimeoutBudgetMs)
}

func TestRoute_PriorityEscalation(t *testing.T) {
	rootCause := complexity.Analysis{
		Level:              complexity.LevelComplex,
		Score:              60,
		Factors:            []string{complexity.FactorDeepAnalysis, complexity.FactorMultiServer},
		RecommendedTimeout: 40000,
	}

	d := Route(rootCause, basicResult(), complexity.TimeoutOptions{})
	assert.Equal(t, intent.UrgencyHigh, d.Priority)
	assert.Equal(t, []string{builtinMultiServerRootCause}, d.EscalatedBy)

	critical := basicResult()
	critical.Urgency = intent.UrgencyCritical
	d = Route(rootCause, critical, complexity.TimeoutOptions{})
	assert.Equal(t, intent.UrgencyCritical, d.Priority)
	assert.Empty(t, d.EscalatedBy)
}

func TestRoute_GuidanceVerbatim(t *testing.T) {
	a := complexity.Analyze("안녕하세요")
	d := Route(a, basicResult(), complexity.TimeoutOptions{})
	assert.Equal(t, complexity.TimeoutGuidance(a), d.GuidanceText)
	assert.NotEmpty(t, d.GuidanceText)
}

func TestRoute_NilResult(t *testing.T) {
	d := Route(complexity.Analyze(""), nil, complexity.TimeoutOptions{})
	assert.Equal(t, intent.ModeBasic, d.Mode)
	assert.Equal(t, intent.UrgencyLow, d.Priority)
	assert.False(t, d.RequiresHeavyEngine)
	assert.Equal(t, 15000, d.TimeoutBudgetMs)
}

func TestRouter_ExpressionRules(t *testing.T) {
	router, err := NewRouter(nil, []EscalationRule{
		{Name: "forecast_on_big_context", When: `"keyword_prediction" in Factors && MessageCount > 10`, Priority: intent.UrgencyMedium},
		{Name: "low_confidence_fallback", When: `Method == "fallback" && Confidence < 0.6`, Priority: intent.UrgencyHigh},
	})
	require.NoError(t, err)

	a := complexity.Analysis{
		Level:              complexity.LevelModerate,
		Score:              25,
		Factors:            []string{complexity.FactorPrediction},
		RecommendedTimeout: 25000,
	}

	d := router.Route(a, basicResult(), complexity.TimeoutOptions{MessageCount: 12})
	assert.Equal(t, intent.UrgencyMedium, d.Priority)
	assert.Equal(t, []string{"forecast_on_big_context"}, d.EscalatedBy)

	fb := basicResult()
	fb.Method = intent.MethodFallback
	fb.Confidence = 0.55
	d = router.Route(a, fb, complexity.TimeoutOptions{MessageCount: 12})
	assert.Equal(t, intent.UrgencyHigh, d.Priority)
	assert.Equal(t, []string{"forecast_on_big_context", "low_confidence_fallback"}, d.EscalatedBy)
}

func TestNewRouter_RejectsBadRules(t *testing.T) {
	_, err := NewRouter(nil, []EscalationRule{{Name: "broken", When: "Level ==", Priority: intent.UrgencyHigh}})
	assert.Error(t, err)

	_, err = NewRouter(nil, []EscalationRule{{Name: "not_bool", When: "Score + 1", Priority: intent.UrgencyHigh}})
	assert.Error(t, err)

	_, err = NewRouter(nil, []EscalationRule{{Name: "no_priority", When: "true"}})
	assert.Error(t, err)
}

func TestProperty_RouteDeterministicAndBounded(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same inputs give the same decision within bounds", prop.ForAll(
		func(text string, lo, hi, messages int) bool {
			a := complexity.Analyze(text)
			opts := complexity.TimeoutOptions{MinTimeout: lo, MaxTimeout: hi, MessageCount: messages}
			d1 := Route(a, basicResult(), opts)
			d2 := Route(a, basicResult(), opts)
			if d1.TimeoutBudgetMs != d2.TimeoutBudgetMs || d1.Mode != d2.Mode || d1.Priority != d2.Priority {
				return false
			}
			b := complexity.NormalizeBounds(lo, hi)
			return d1.TimeoutBudgetMs <= 55000 && d1.TimeoutBudgetMs <= b.Max &&
				(b.Min > 55000 || d1.TimeoutBudgetMs >= b.Min)
		},
		gen.OneConstOf("안녕하세요", "모든 서버 병목 원인 분석", "다음 달 트래픽 예측", "cpu"),
		gen.IntRange(1, 100000),
		gen.IntRange(1, 100000),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
