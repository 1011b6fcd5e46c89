// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/querytriage/internal/triage"
)

// ErrNoQuery is returned for bodies with neither a query nor messages.
var ErrNoQuery = errors.New("request has neither \"query\" nor \"messages\"")

// ParseQuery accepts either a plain request
//
//	{"query": "...", "messageCount": 3, "minTimeout": 5000, "maxTimeout": 30000}
//
// or a chat completion payload, whose last user turn becomes the query and
// whose message count feeds the context tiers.
func ParseQuery(body []byte) (triage.Query, error) {
	if !gjson.ValidBytes(body) {
		return triage.Query{}, fmt.Errorf("malformed JSON body")
	}

	var q triage.Query
	if v := gjson.GetBytes(body, "query"); v.Exists() {
		if v.Type != gjson.String {
			return triage.Query{}, fmt.Errorf("\"query\" must be a string")
		}
		q.Text = v.String()
	} else if messages := gjson.GetBytes(body, "messages"); messages.IsArray() {
		arr := messages.Array()
		q.Text = lastUserMessage(arr)
		q.MessageCount = len(arr)
	} else {
		return triage.Query{}, ErrNoQuery
	}

	if v := gjson.GetBytes(body, "messageCount"); v.Exists() {
		q.MessageCount = int(v.Int())
	}
	q.MinTimeout = int(gjson.GetBytes(body, "minTimeout").Int())
	q.MaxTimeout = int(gjson.GetBytes(body, "maxTimeout").Int())
	return q, nil
}

// lastUserMessage returns the text of the last user turn. Content may be a
// string or an array of typed parts.
func lastUserMessage(messages []gjson.Result) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if role := msg.Get("role").String(); role != "" && role != "user" {
			continue
		}
		content := msg.Get("content")
		if content.Type == gjson.String {
			return content.String()
		}
		if content.IsArray() {
			var parts []string
			for _, part := range content.Array() {
				if part.Get("type").String() == "text" {
					parts = append(parts, part.Get("text").String())
				}
			}
			return strings.Join(parts, "\n")
		}
		return ""
	}
	return ""
}

// Annotation is the routing summary written into forwarded payloads.
type Annotation struct {
	Intent              string  `json:"intent"`
	Confidence          float64 `json:"confidence"`
	Method              string  `json:"method"`
	Level               string  `json:"level"`
	Mode                string  `json:"mode"`
	Priority            string  `json:"priority"`
	TimeoutMs           int     `json:"timeoutMs"`
	RequiresHeavyEngine bool    `json:"requiresHeavyEngine"`
}

// AnnotationPath is where Annotate writes the summary.
const AnnotationPath = "metadata.triage"

// Annotate returns body with the report summary set at AnnotationPath. The
// rest of the payload is preserved byte for byte.
func Annotate(body []byte, r *triage.Report) ([]byte, error) {
	a := Annotation{
		Level:               string(r.Complexity.Level),
		Mode:                string(r.Decision.Mode),
		Priority:            string(r.Decision.Priority),
		TimeoutMs:           r.Decision.TimeoutBudgetMs,
		RequiresHeavyEngine: r.Decision.RequiresHeavyEngine,
	}
	if r.Intent != nil {
		a.Intent = string(r.Intent.Intent)
		a.Confidence = r.Intent.Confidence
		a.Method = string(r.Intent.Method)
	}
	out, err := sjson.SetBytes(body, AnnotationPath, a)
	if err != nil {
		return nil, fmt.Errorf("annotate payload: %w", err)
	}
	return out, nil
}
