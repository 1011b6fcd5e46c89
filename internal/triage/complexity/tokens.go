// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package complexity

import (
	"sync"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// maxEncodedBytes bounds the text handed to the BPE codec. Byte-pair merging
// is quadratic on long runs without spaces; longer inputs are sampled and
// scaled.
const maxEncodedBytes = 4 << 10

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// EstimateTokens returns the cl100k token count of text. The count is
// informational and never feeds the score. Text longer than maxEncodedBytes
// is estimated from its prefix. If the codec cannot be loaded it falls back
// to a runes/4 approximation.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("tiktoken codec unavailable, using rune estimate: %v", err)
			return
		}
		codec = c
	})

	if prefix := truncateUTF8(text, maxEncodedBytes); codec != nil && prefix != "" {
		if ids, _, err := codec.Encode(prefix); err == nil {
			if len(prefix) == len(text) {
				return len(ids)
			}
			return int(float64(len(ids)) * float64(len(text)) / float64(len(prefix)))
		}
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
