// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package complexity

import (
	"regexp"
	"strconv"
	"strings"
)

// Factor tags. A given rule always emits the same tag.
const (
	FactorSimpleGreeting = "simple_greeting_or_status"
	FactorAggregation    = "keyword_aggregation"
	FactorDeepAnalysis   = "keyword_deep_analysis"
	FactorPrediction     = "keyword_prediction"
	FactorMultiServer    = "keyword_multi_server"
	FactorTimeRange      = "keyword_time_range"
	FactorMediumLength   = "medium_length_query"
	FactorLongQuery      = "long_query"
	FactorDateTimeRange  = "date_time_range"

	// factorMultiQuestionPrefix is completed with the question count,
	// e.g. multiple_questions_3.
	factorMultiQuestionPrefix = "multiple_questions_"
)

// MultiQuestionFactor returns the tag emitted for n question markers.
func MultiQuestionFactor(n int) string {
	return factorMultiQuestionPrefix + strconv.Itoa(n)
}

// keywordRule is one row of the keyword category table. It matches
// case-folded, NFKC-normalised text.
type keywordRule struct {
	tag    string
	weight int
	re     *regexp.Regexp
}

// keywordRules is evaluated in order; every matching row contributes.
var keywordRules = []keywordRule{
	{
		tag:    FactorAggregation,
		weight: 15,
		re: keywordMatcher(
			[]string{"average", "averages", "avg", "sum of", "total", "totals", "aggregat*", "statistic*",
				"summar*", "trend", "trends", "percentile*", "p95", "p99"},
			[]string{"평균", "합계", "총합", "통계", "추이", "집계", "요약", "상위"},
		),
	},
	{
		tag:    FactorDeepAnalysis,
		weight: 20,
		re: keywordMatcher(
			[]string{"analy*", "root cause", "correlat*", "investigat*", "diagnos*",
				"deep dive", "why is", "why does", "bottleneck*"},
			[]string{"분석", "원인", "상관관계", "진단", "심층", "병목", "왜 "},
		),
	},
	{
		tag:    FactorPrediction,
		weight: 25,
		re: keywordMatcher(
			[]string{"predict*", "forecast*", "projection", "will it", "going to", "in the future", "expected to"},
			[]string{"예측", "전망", "향후", "미래", "예상"},
		),
	},
	{
		tag:    FactorMultiServer,
		weight: 20,
		re: keywordMatcher(
			[]string{"all servers", "every server", "multiple servers", "each server", "servers", "cluster",
				"clusters", "fleet", "compar*", "across"},
			[]string{"모든 서버", "전체 서버", "서버들", "여러 서버", "서버별", "비교", "클러스터"},
		),
	},
	{
		tag:    FactorTimeRange,
		weight: 10,
		re: keywordMatcher(
			[]string{"last week", "last month", "yesterday", "today", "past", "recent*", "since"},
			[]string{"지난", "어제", "오늘", "최근", "이번 주", "주간", "월간", "동안"},
		),
	},
}

// keywordMatcher compiles one row into a single alternation. English entries
// match whole words, or a word start when they end in "*". Hangul entries
// match anywhere since particles attach directly to the noun.
func keywordMatcher(english, hangul []string) *regexp.Regexp {
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

// Length rules are non-exclusive: a very long query triggers both.
var lengthRules = []struct {
	minRunes int
	tag      string
	weight   int
}{
	{minRunes: 100, tag: FactorMediumLength, weight: 10},
	{minRunes: 200, tag: FactorLongQuery, weight: 15},
}

const (
	multiQuestionThreshold = 2
	multiQuestionStep      = 5
	multiQuestionMax       = 20

	dateTimeRangeWeight = 10
)

var (
	// greetingPatterns short-circuit trivial queries. They are anchored so a
	// greeting followed by a real question is still scored.
	greetingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(hi|hello|hey|good (morning|afternoon|evening)|안녕(하세요|하십니까)?|반가워요?|하이)[\s!.~?]*$`),
		regexp.MustCompile(`^((server )?status( check)?|상태( 확인)?|서버 상태( 확인)?|ping)[\s!.~?]*$`),
		regexp.MustCompile(`^(help|도움말|도와줘|도와주세요|사용법)[\s!.~?]*$`),
	}

	// questionMarkerPattern counts explicit question marks (ASCII and
	// full-width after NFKC) and common Korean interrogative endings.
	questionMarkerPattern = regexp.MustCompile(`\?|(나요|까요|습니까|인가요|을까)(\s|$)`)

	// dateTimePatterns detect absolute dates or a number followed by a
	// duration unit.
	dateTimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b`),
		regexp.MustCompile(`\d{1,2}월\s*\d{1,2}일`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}\b`),
		regexp.MustCompile(`\d+\s*(시간|분|일|주|개월|달|년)`),
		regexp.MustCompile(`\b\d+\s*(minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\b`),
	}
)
