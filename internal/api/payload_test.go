package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/querytriage/internal/triage"
	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/dispatch"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  triage.Query
		isErr bool
	}{
		{
			name: "plain",
			body: `{"query":"서버 상태","messageCount":7,"minTimeout":5000,"maxTimeout":30000}`,
			want: triage.Query{Text: "서버 상태", MessageCount: 7, MinTimeout: 5000, MaxTimeout: 30000},
		},
		{
			name: "empty query is valid",
			body: `{"query":""}`,
			want: triage.Query{},
		},
		{
			name: "chat string content",
			body: `{"messages":[{"role":"user","content":"first"},{"role":"assistant","content":"ok"},{"role":"user","content":"cpu 사용률"}]}`,
			want: triage.Query{Text: "cpu 사용률", MessageCount: 3},
		},
		{
			name: "chat skips trailing assistant turn",
			body: `{"messages":[{"role":"user","content":"로그 확인"},{"role":"assistant","content":"done"}]}`,
			want: triage.Query{Text: "로그 확인", MessageCount: 2},
		},
		{
			name: "chat content parts",
			body: `{"messages":[{"role":"user","content":[{"type":"text","text":"web-01"},{"type":"image_url","image_url":{}},{"type":"text","text":"status"}]}]}`,
			want: triage.Query{Text: "web-01\nstatus", MessageCount: 1},
		},
		{
			name: "explicit count wins over messages",
			body: `{"messages":[{"role":"user","content":"hi"}],"messageCount":40}`,
			want: triage.Query{Text: "hi", MessageCount: 40},
		},
		{name: "non-string query", body: `{"query":42}`, isErr: true},
		{name: "no query", body: `{"model":"x"}`, isErr: true},
		{name: "malformed", body: `{"query":`, isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery([]byte(tt.body))
			if tt.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnnotate(t *testing.T) {
	body := []byte(`{"model":"gpt","messages":[{"role":"user","content":"hi"}],"metadata":{"team":"sre"}}`)
	report := &triage.Report{
		Complexity: complexity.Analysis{Level: complexity.LevelModerate},
		Intent:     &intent.Result{Intent: intent.IntentMetricQuery, Confidence: 0.9, Method: intent.MethodFallback},
		Decision: dispatch.Decision{
			Mode:            intent.ModeBasic,
			Priority:        intent.UrgencyMedium,
			TimeoutBudgetMs: 25000,
		},
	}

	out, err := Annotate(body, report)
	require.NoError(t, err)

	assert.Equal(t, "gpt", gjson.GetBytes(out, "model").String())
	assert.Equal(t, "sre", gjson.GetBytes(out, "metadata.team").String())
	assert.Equal(t, "metric_query", gjson.GetBytes(out, "metadata.triage.intent").String())
	assert.Equal(t, "moderate", gjson.GetBytes(out, "metadata.triage.level").String())
	assert.Equal(t, int64(25000), gjson.GetBytes(out, "metadata.triage.timeoutMs").Int())
	assert.False(t, gjson.GetBytes(out, "metadata.triage.requiresHeavyEngine").Bool())
}
