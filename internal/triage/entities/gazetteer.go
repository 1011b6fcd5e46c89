// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package entities

import (
	"regexp"
	"sort"
	"strings"
)

// englishMetrics are matched on word boundaries, case-insensitively.
var englishMetrics = []string{
	"cpu", "memory", "mem", "ram", "swap", "disk", "disk io", "iops", "network", "bandwidth",
	"traffic", "latency", "response time", "throughput", "load average", "load", "error rate",
	"uptime", "connections", "qps", "rps", "tps", "gpu", "temperature", "inode",
}

// koreanMetrics are matched as plain substrings since Hangul has no ASCII
// word boundary.
var koreanMetrics = []string{
	"메모리", "디스크", "네트워크", "대역폭", "트래픽", "응답시간", "응답 시간", "지연시간", "지연 시간",
	"처리량", "사용률", "사용량", "부하", "에러율", "오류율", "가동률", "가동시간", "연결 수", "온도",
}

var metricPattern = compileGazetteer(englishMetrics, koreanMetrics)

// compileGazetteer builds a single alternation. Longer phrases come first so
// "response time" wins over a shorter prefix at the same position.
func compileGazetteer(words, hangul []string) *regexp.Regexp {
	quote := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, w := range in {
			out = append(out, regexp.QuoteMeta(w))
		}
		sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
		return out
	}
	expr := `(?i)\b(` + strings.Join(quote(words), "|") + `)\b|` + strings.Join(quote(hangul), "|")
	return regexp.MustCompile(expr)
}
