// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"
	// RequestIDField is the logrus field and gin context key.
	RequestIDField = "request_id"

	maxRequestIDLen = 128
)

type requestIDKey struct{}

// WithRequestID stores id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored on ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns a log entry tagged with the request id of ctx.
func FromContext(ctx context.Context) *log.Entry {
	if id := RequestIDFrom(ctx); id != "" {
		return log.WithField(RequestIDField, id)
	}
	return log.NewEntry(log.StandardLogger())
}

// RequestID accepts a caller supplied X-Request-ID or generates a UUID, and
// exposes it on the gin context, the request context and the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}
		c.Set(RequestIDField, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs one line per request through logrus.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := FromContext(c.Request.Context()).WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond).String(),
		})
		msg := c.Request.Method + " " + c.Request.URL.Path
		switch {
		case c.Writer.Status() >= 500:
			entry.Error(msg)
		case c.Writer.Status() >= 400:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}
