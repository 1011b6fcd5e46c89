package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Entity
	}{
		{
			name: "korean relative range with host and metric",
			text: "지난 24시간 동안 web-01 CPU 사용률",
			want: []Entity{
				{Kind: KindTimeRange, Text: "24시간", Start: len("지난 ")},
				{Kind: KindServer, Text: "web-01", Start: len("지난 24시간 동안 ")},
				{Kind: KindMetric, Text: "CPU", Start: len("지난 24시간 동안 web-01 ")},
				{Kind: KindMetric, Text: "사용률", Start: len("지난 24시간 동안 web-01 CPU ")},
			},
		},
		{
			name: "absolute dates",
			text: "2024-01-15부터 1월 20일까지 db-master 메모리",
			want: []Entity{
				{Kind: KindTimeRange, Text: "2024-01-15", Start: 0},
				{Kind: KindTimeRange, Text: "1월 20일", Start: len("2024-01-15부터 ")},
				{Kind: KindServer, Text: "db-master", Start: len("2024-01-15부터 1월 20일까지 ")},
				{Kind: KindMetric, Text: "메모리", Start: len("2024-01-15부터 1월 20일까지 db-master ")},
			},
		},
		{
			name: "english relative range",
			text: "show latency for api-gw-2 over the last 7 days",
			want: []Entity{
				{Kind: KindMetric, Text: "latency", Start: len("show ")},
				{Kind: KindServer, Text: "api-gw-2", Start: len("show latency for ")},
				{Kind: KindTimeRange, Text: "last 7 days", Start: len("show latency for api-gw-2 over the ")},
			},
		},
		{
			name: "longest metric phrase wins",
			text: "response time of 10.0.0.12",
			want: []Entity{
				{Kind: KindMetric, Text: "response time", Start: 0},
				{Kind: KindServer, Text: "10.0.0.12", Start: len("response time of ")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtract_IgnoresPlainHyphenatedWords(t *testing.T) {
	got := Extract("give me a real-time, in-depth view")
	assert.False(t, HasKind(got, KindServer), "got %v", got)
}

func TestExtract_DeduplicatesRepeatedMentions(t *testing.T) {
	got := Extract("CPU on web-01 and cpu on web-02")
	assert.Equal(t, []string{"CPU", "web-01", "web-02"}, Texts(got))
}

func TestExtract_MetricNeedsWordBoundary(t *testing.T) {
	got := Extract("download the report")
	assert.Empty(t, got)
}

func TestExtract_Empty(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.NotNil(t, Extract("   "))
	assert.Empty(t, Extract("안녕하세요"))
}

func TestMerge(t *testing.T) {
	primary := []Entity{{Kind: KindServer, Text: "web-01", Start: 4}}
	secondary := []Entity{
		{Kind: KindMetric, Text: "cpu", Start: 0},
		{Kind: KindServer, Text: "web", Start: 4},
		{Kind: KindMetric, Text: "WEB-01", Start: 20},
	}

	got := Merge(primary, secondary)
	assert.Equal(t, []Entity{
		{Kind: KindMetric, Text: "cpu", Start: 0},
		{Kind: KindServer, Text: "web-01", Start: 4},
	}, got)
}
