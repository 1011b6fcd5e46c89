// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the triage engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/buildinfo"
	"github.com/traylinx/querytriage/internal/config"
	"github.com/traylinx/querytriage/internal/feedback"
	"github.com/traylinx/querytriage/internal/logging"
	"github.com/traylinx/querytriage/internal/triage"
)

const maxBodyBytes = 1 << 20

// Server serves the triage endpoints.
type Server struct {
	cfg     *config.Config
	engine  *triage.Engine
	log     *feedback.Collector
	metrics http.Handler
	router  *gin.Engine
	http    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithDecisionLog exposes decision log statistics on /v1/triage/stats.
func WithDecisionLog(c *feedback.Collector) Option {
	return func(s *Server) { s.log = c }
}

// WithMetrics mounts h on the configured metrics path.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer builds the router.
func NewServer(cfg *config.Config, engine *triage.Engine, opts ...Option) *Server {
	s := &Server{cfg: cfg, engine: engine}
	for _, opt := range opts {
		opt(s)
	}

	if !cfg.Debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logging.RequestID(), logging.AccessLog(), gin.Recovery())

	r.GET("/healthz", s.health)
	v1 := r.Group("/v1/triage")
	{
		v1.POST("", s.triage)
		v1.POST("/annotate", s.annotate)
		v1.GET("/stats", s.stats)
	}
	if s.metrics != nil && cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(s.metrics))
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("API server listening on %s", s.cfg.Addr())
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) readQuery(c *gin.Context) ([]byte, triage.Query, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large or unreadable"})
		return nil, triage.Query{}, false
	}
	q, err := ParseQuery(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, triage.Query{}, false
	}
	q.RequestID = c.GetString(logging.RequestIDField)
	return body, q, true
}

// triage handles POST /v1/triage.
func (s *Server) triage(c *gin.Context) {
	_, q, ok := s.readQuery(c)
	if !ok {
		return
	}
	report := s.engine.Triage(c.Request.Context(), q)
	c.JSON(http.StatusOK, report)
}

// annotate handles POST /v1/triage/annotate. The chat payload is returned
// with the routing summary embedded and mirrored in response headers.
func (s *Server) annotate(c *gin.Context) {
	body, q, ok := s.readQuery(c)
	if !ok {
		return
	}
	report := s.engine.Triage(c.Request.Context(), q)

	out, err := Annotate(body, report)
	if err != nil {
		logging.FromContext(c.Request.Context()).Errorf("annotate: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to annotate payload"})
		return
	}
	c.Header("X-Triage-Mode", string(report.Decision.Mode))
	c.Header("X-Triage-Timeout-Ms", strconv.Itoa(report.Decision.TimeoutBudgetMs))
	c.Header("X-Triage-Priority", string(report.Decision.Priority))
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// stats handles GET /v1/triage/stats.
func (s *Server) stats(c *gin.Context) {
	resp := gin.H{"classifier": s.engine.Classifier().Stats()}
	if s.log != nil && s.log.IsEnabled() {
		st, err := s.log.GetStats(c.Request.Context())
		if err != nil {
			logging.FromContext(c.Request.Context()).Warnf("decision log stats: %v", err)
			resp["decisionLogError"] = "decision log unavailable"
		} else {
			resp["decisionLog"] = st
		}
	}
	c.JSON(http.StatusOK, resp)
}

// health handles GET /healthz. The service is healthy without a model; the
// keyword classifier answers every request.
func (s *Server) health(c *gin.Context) {
	st := s.engine.Classifier().Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"modelConfigured":  st.TransformersAvailable,
		"modelInitialized": st.Initialized,
		"build":            buildinfo.Current(),
	})
}
