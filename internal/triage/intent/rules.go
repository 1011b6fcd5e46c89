// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"regexp"
	"strings"

	"github.com/traylinx/querytriage/internal/triage/entities"
)

// capability is the per-intent row of the downstream requirements table.
type capability struct {
	mode       Mode
	python     bool
	complexML  bool
	timeSeries bool
	anomaly    bool
	urgency    Urgency
}

var capabilities = map[Intent]capability{
	IntentServerStatus:        {mode: ModeBasic, urgency: UrgencyLow},
	IntentMetricQuery:         {mode: ModeBasic, timeSeries: true, urgency: UrgencyLow},
	IntentPerformanceAnalysis: {mode: ModeAdvanced, python: true, timeSeries: true, urgency: UrgencyMedium},
	IntentPrediction:          {mode: ModeAdvanced, python: true, complexML: true, timeSeries: true, urgency: UrgencyMedium},
	IntentCapacityPlanning:    {mode: ModeAdvanced, python: true, complexML: true, timeSeries: true, urgency: UrgencyMedium},
	IntentTroubleshooting:     {mode: ModeAdvanced, anomaly: true, urgency: UrgencyHigh},
	IntentAnomalyDetection:    {mode: ModeAdvanced, python: true, complexML: true, timeSeries: true, anomaly: true, urgency: UrgencyHigh},
	IntentLogAnalysis:         {mode: ModeAdvanced, python: true, anomaly: true, urgency: UrgencyMedium},
	IntentGeneralInquiry:      {mode: ModeBasic, urgency: UrgencyLow},
}

// escalation rows are applied on top of the intent row whenever one of the
// phrases appears in the query, whatever the classified intent.
type escalation struct {
	urgency       Urgency
	forceAdvanced bool
	python        bool
	complexML     bool
	anomaly       bool
	re            *regexp.Regexp
}

var escalations = []escalation{
	{
		urgency:       UrgencyCritical,
		forceAdvanced: true,
		anomaly:       true,
		re: phraseMatcher(
			[]string{"down", "outage*", "crash*", "urgent*", "not responding", "unreachable", "emergency"},
			[]string{"다운", "장애", "먹통", "응답 없", "응답없", "접속 불가", "접속이 안", "긴급"},
		),
	},
	{
		urgency: UrgencyHigh,
		re: phraseMatcher(
			[]string{"error*", "warning*", "slow*", "fail*", "timeout*", "timed out"},
			[]string{"에러", "오류", "경고", "느려", "실패", "타임아웃"},
		),
	},
	{
		anomaly: true,
		re: phraseMatcher(
			[]string{"anomal*", "abnormal*", "spike*", "outlier*", "unusual"},
			[]string{"이상 징후", "이상징후", "이상치", "이상 감지", "비정상", "급증", "급감"},
		),
	},
	{
		python:    true,
		complexML: true,
		re: phraseMatcher(
			[]string{"predict*", "forecast*", "projection*"},
			[]string{"예측", "전망"},
		),
	},
}

// applyRules fills urgency, mode and capability flags from the intent row,
// the escalation rows and the extracted entities.
func applyRules(res *Result, normalized string, spans []entities.Entity) {
	row, ok := capabilities[res.Intent]
	if !ok {
		row = capabilities[IntentGeneralInquiry]
	}

	res.SuggestedMode = row.mode
	res.Urgency = row.urgency
	res.NeedsPythonEngine = row.python
	res.NeedsComplexML = row.complexML
	res.NeedsTimeSeries = row.timeSeries
	res.NeedsAnomalyDetection = row.anomaly

	for _, e := range escalations {
		if !e.re.MatchString(normalized) {
			continue
		}
		if e.urgency != "" {
			res.Urgency = MaxUrgency(res.Urgency, e.urgency)
		}
		if e.forceAdvanced {
			res.SuggestedMode = ModeAdvanced
		}
		res.NeedsPythonEngine = res.NeedsPythonEngine || e.python
		res.NeedsComplexML = res.NeedsComplexML || e.complexML
		res.NeedsAnomalyDetection = res.NeedsAnomalyDetection || e.anomaly
	}

	// An explicit window over a metric is a time-series lookup.
	if entities.HasKind(spans, entities.KindTimeRange) && entities.HasKind(spans, entities.KindMetric) {
		res.NeedsTimeSeries = true
	}
}

// keywordRule is one intent row of the fallback table.
type keywordRule struct {
	intent Intent
	weight float64
	re     *regexp.Regexp
}

// keywordRules is ordered by tie-break priority.
var keywordRules = []keywordRule{
	{
		intent: IntentPrediction,
		weight: 1.3,
		re: phraseMatcher(
			[]string{"predict*", "forecast*", "projection*", "will it", "going to", "next month", "next week"},
			[]string{"예측", "전망", "향후", "예상", "다음 달", "다음 주", "미래"},
		),
	},
	{
		intent: IntentAnomalyDetection,
		weight: 1.25,
		re: phraseMatcher(
			[]string{"anomal*", "abnormal*", "outlier*", "spike*", "unusual", "strange"},
			[]string{"이상 징후", "이상징후", "이상치", "이상 감지", "비정상", "급증", "급감", "튀는", "이상한"},
		),
	},
	// Ties with troubleshooting go to the log row.
	{
		intent: IntentLogAnalysis,
		weight: 1.2,
		re: phraseMatcher(
			[]string{"log", "logs", "logging", "syslog", "journal*", "stack trace"},
			[]string{"로그", "스택"},
		),
	},
	{
		intent: IntentTroubleshooting,
		weight: 1.2,
		re: phraseMatcher(
			[]string{"down", "outage*", "crash*", "fail*", "troubleshoot*", "fix", "broken", "not responding", "error*", "issue*"},
			[]string{"다운", "장애", "먹통", "해결", "고장", "안 돼", "안돼", "접속 불가", "응답 없", "문제", "에러", "오류"},
		),
	},
	{
		intent: IntentCapacityPlanning,
		weight: 1.15,
		re: phraseMatcher(
			[]string{"capacity", "scale", "scaling", "provision*", "headroom", "run out"},
			[]string{"용량", "증설", "확장", "스케일", "부족", "여유"},
		),
	},
	{
		intent: IntentPerformanceAnalysis,
		weight: 1.0,
		re: phraseMatcher(
			[]string{"performance", "analy*", "bottleneck*", "slow*", "optimi*", "latency", "throughput"},
			[]string{"성능", "분석", "병목", "느려", "느린", "최적화", "지연"},
		),
	},
	{
		intent: IntentMetricQuery,
		weight: 0.8,
		re: phraseMatcher(
			[]string{"usage", "utili*", "cpu", "memory", "disk", "network", "traffic", "how much", "current*"},
			[]string{"사용률", "사용량", "메모리", "디스크", "네트워크", "트래픽", "얼마", "현재", "수치"},
		),
	},
	{
		intent: IntentServerStatus,
		weight: 0.7,
		re: phraseMatcher(
			[]string{"status", "alive", "running", "health*", "uptime", "online"},
			[]string{"상태", "살아", "가동", "정상", "헬스", "온라인"},
		),
	},
}

// phraseMatcher compiles one alternation. English entries match whole words
// unless they end in "*", which makes them a word-start stem. Hangul entries
// match anywhere.
func phraseMatcher(english, hangul []string) *regexp.Regexp {
	alts := make([]string, 0, len(english)+len(hangul))
	for _, w := range english {
		if stem, ok := strings.CutSuffix(w, "*"); ok {
			alts = append(alts, `\b`+regexp.QuoteMeta(stem))
			continue
		}
		alts = append(alts, `\b`+regexp.QuoteMeta(w)+`\b`)
	}
	for _, w := range hangul {
		alts = append(alts, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(strings.Join(alts, "|"))
}
