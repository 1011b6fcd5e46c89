// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// maxWordRunes is the longest word WordPiece will try to split; longer
// words become [UNK].
const maxWordRunes = 100

// Encoding is one tokenised input ready for the model.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Tokenizer is a BERT-style WordPiece tokenizer. It works on runes, so
// Hangul and other multi-byte scripts are split on character boundaries.
// A Tokenizer is read-only after loading and safe for concurrent use.
type Tokenizer struct {
	vocab map[string]int64

	cls int64
	sep int64
	unk int64
}

// LoadTokenizer reads a vocab.txt with one token per line. An empty path
// yields the small built-in vocabulary.
func LoadTokenizer(path string) (*Tokenizer, error) {
	if path == "" {
		return NewTokenizer(builtinVocab), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocabulary %s is empty", path)
	}
	return NewTokenizer(tokens), nil
}

// NewTokenizer builds a tokenizer from tokens in id order.
func NewTokenizer(tokens []string) *Tokenizer {
	t := &Tokenizer{vocab: make(map[string]int64, len(tokens))}
	for id, tok := range tokens {
		if _, dup := t.vocab[tok]; !dup {
			t.vocab[tok] = int64(id)
		}
	}
	t.cls = t.vocab["[CLS]"]
	t.sep = t.vocab["[SEP]"]
	t.unk = t.vocab["[UNK]"]
	return t
}

// VocabSize returns the number of distinct tokens.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// Encode tokenises text into at most maxLen ids including [CLS] and [SEP].
func (t *Tokenizer) Encode(text string, maxLen int) *Encoding {
	if maxLen < 2 {
		maxLen = 2
	}

	ids := []int64{t.cls}
	for _, word := range t.Words(text) {
		pieces := t.wordPieces(word)
		if len(ids)+len(pieces) > maxLen-1 {
			pieces = pieces[:max(maxLen-1-len(ids), 0)]
		}
		ids = append(ids, pieces...)
		if len(ids) >= maxLen-1 {
			break
		}
	}
	ids = append(ids, t.sep)

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return &Encoding{
		InputIDs:      ids,
		AttentionMask: mask,
		TokenTypeIDs:  make([]int64, len(ids)),
	}
}

// Words applies the BERT basic tokenizer: NFKC, case folding, punctuation
// split and one token per CJK ideograph.
func (t *Tokenizer) Words(text string) []string {
	text = cases.Fold().String(norm.NFKC.String(text))

	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || unicode.IsControl(r) && !unicode.IsSpace(r):
			continue
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.Is(unicode.Han, r):
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

// wordPieces splits a word greedily into the longest known prefixes.
func (t *Tokenizer) wordPieces(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int64{t.unk}
	}

	var pieces []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64
		found := false
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if v, ok := t.vocab[sub]; ok {
				id, found = v, true
				break
			}
		}
		if !found {
			// BERT maps the whole word to [UNK] when any piece is unknown.
			return []int64{t.unk}
		}
		pieces = append(pieces, id)
		start = end
	}
	return pieces
}

// builtinVocab keeps the tokenizer usable in tests and without a model
// download. Ids follow the BERT convention for the special tokens.
var builtinVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
	"server", "status", "cpu", "memory", "disk", "network", "latency", "log", "logs",
	"error", "down", "predict", "forecast", "capacity", "anomaly", "usage", "the", "of", "is",
	"서버", "상태", "메모리", "디스크", "로그", "예측", "장애", "용량", "이상",
	"##s", "##ing", "##ed", "##가", "##는", "##의", "##를", "##이", "##요",
	"?", "!", ".", ",", "-",
}
