// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package complexity

import "fmt"

// TimeoutGuidance returns the operator-facing "why this is taking a while"
// text for an analysis. It only ever names the expected wait.
func TimeoutGuidance(analysis Analysis) string {
	seconds := (analysis.RecommendedTimeout + 999) / 1000
	if seconds <= 0 {
		seconds = (DefaultConfig().SimpleTimeoutMs + 999) / 1000
	}

	switch analysis.Level {
	case LevelModerate:
		return fmt.Sprintf("몇 가지 지표를 함께 확인하는 질문이에요. 최대 약 %d초 정도 걸릴 수 있어요.", seconds)
	case LevelComplex:
		return fmt.Sprintf("심층 분석이 필요한 질문이에요. 여러 데이터를 살펴보느라 최대 약 %d초가 걸릴 수 있어요.", seconds)
	case LevelVeryComplex:
		return fmt.Sprintf("매우 복잡한 심층 분석이 필요한 질문이에요. 정확한 결과를 위해 최대 약 %d초가 걸릴 수 있으니 잠시만 기다려 주세요.", seconds)
	default:
		return fmt.Sprintf("간단한 질문이에요. 약 %d초 안에 빠르게 답변드릴게요.", seconds)
	}
}
