// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package feedback keeps a SQLite log of triage decisions. It stores a hash
// and a short preview of each query plus the decision metadata, never the
// conversation itself.
package feedback

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/triage"
)

const (
	previewRunes    = 80
	cleanupInterval = time.Hour
)

// ErrNotEnabled is returned by queries before Initialize or after Shutdown.
var ErrNotEnabled = errors.New("decision log not enabled")

// DecisionRecord is one stored triage decision.
type DecisionRecord struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	RequestID      string         `json:"request_id,omitempty"`
	QueryHash      string         `json:"query_hash"`
	QueryPreview   string         `json:"query_preview"`
	Intent         string         `json:"intent"`
	Method         string         `json:"method"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
	Confidence     float64        `json:"confidence"`
	Level          string         `json:"level"`
	Score          int            `json:"score"`
	Mode           string         `json:"mode"`
	Priority       string         `json:"priority"`
	TimeoutMs      int            `json:"timeout_ms"`
	HeavyEngine    bool           `json:"heavy_engine"`
	LatencyMs      float64        `json:"latency_ms"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Options configures a Collector.
type Options struct {
	DBPath        string
	RetentionDays int
	QueueSize     int
}

// Collector implements triage.Sink. Record enqueues without blocking; a
// single worker writes to the database.
type Collector struct {
	opts    Options
	db      *sql.DB
	queue   chan *DecisionRecord
	done    chan struct{}
	enabled bool
	mu      sync.RWMutex

	dropped atomic.Int64
	written atomic.Int64
}

var _ triage.Sink = (*Collector)(nil)

// NewCollector validates opts. Nothing is opened until Initialize.
func NewCollector(opts Options) (*Collector, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Collector{opts: opts}, nil
}

// Initialize opens the database, creates the schema and starts the writer.
func (c *Collector) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.opts.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", c.opts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := c.attach(ctx, db); err != nil {
		db.Close()
		return err
	}
	log.Infof("decision log initialized (db: %s, retention: %d days)", c.opts.DBPath, c.opts.RetentionDays)
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	request_id TEXT,
	query_hash TEXT NOT NULL,
	query_preview TEXT,
	intent TEXT NOT NULL,
	method TEXT NOT NULL,
	fallback_reason TEXT,
	confidence REAL,
	level TEXT NOT NULL,
	score INTEGER NOT NULL,
	mode TEXT NOT NULL,
	priority TEXT NOT NULL,
	timeout_ms INTEGER NOT NULL,
	heavy_engine INTEGER NOT NULL DEFAULT 0,
	latency_ms REAL,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_intent ON decisions(intent);
CREATE INDEX IF NOT EXISTS idx_decisions_query_hash ON decisions(query_hash);
`

// attach creates the schema on db and starts the worker.
func (c *Collector) attach(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
	c.queue = make(chan *DecisionRecord, c.opts.QueueSize)
	c.done = make(chan struct{})
	c.enabled = true
	go c.run(c.queue, c.done)
	return nil
}

// IsEnabled returns whether the collector is active.
func (c *Collector) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Record converts the report and queues it. When the queue is full the
// record is dropped and counted.
func (c *Collector) Record(_ context.Context, r *triage.Report) {
	rec := NewDecisionRecord(r)
	if rec == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return
	}
	select {
	case c.queue <- rec:
	default:
		if c.dropped.Add(1)%100 == 1 {
			log.Warnf("decision log queue full, dropped %d records so far", c.dropped.Load())
		}
	}
}

func (c *Collector) run(queue <-chan *DecisionRecord, done chan<- struct{}) {
	defer close(done)

	c.cleanup(context.Background())
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-queue:
			if !ok {
				return
			}
			if err := c.Store(context.Background(), rec); err != nil {
				log.Warnf("decision log: %v", err)
			}
		case <-ticker.C:
			c.cleanup(context.Background())
		}
	}
}

// NewDecisionRecord flattens a report. The query text is hashed and cut to
// a short preview.
func NewDecisionRecord(r *triage.Report) *DecisionRecord {
	if r == nil || r.Intent == nil {
		return nil
	}
	sum := sha256.Sum256([]byte(r.Query.Text))

	rec := &DecisionRecord{
		Timestamp:      r.Timestamp,
		RequestID:      r.RequestID,
		QueryHash:      hex.EncodeToString(sum[:]),
		QueryPreview:   preview(r.Query.Text),
		Intent:         string(r.Intent.Intent),
		Method:         string(r.Intent.Method),
		FallbackReason: string(r.Intent.FallbackReason),
		Confidence:     r.Intent.Confidence,
		Level:          string(r.Complexity.Level),
		Score:          r.Complexity.Score,
		Mode:           string(r.Decision.Mode),
		Priority:       string(r.Decision.Priority),
		TimeoutMs:      r.Decision.TimeoutBudgetMs,
		HeavyEngine:    r.Decision.RequiresHeavyEngine,
		LatencyMs:      r.DurationMs,
		Metadata: map[string]any{
			"factors":       r.Complexity.Factors,
			"entities":      r.Intent.Entities,
			"urgency":       string(r.Intent.Urgency),
			"message_count": r.Query.MessageCount,
		},
	}
	if len(r.Decision.EscalatedBy) > 0 {
		rec.Metadata["escalated_by"] = r.Decision.EscalatedBy
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return rec
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "…"
}

// Store writes one record synchronously.
func (c *Collector) Store(ctx context.Context, rec *DecisionRecord) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()
	if db == nil {
		return ErrNotEnabled
	}
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}

	var metadata []byte
	if rec.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(rec.Metadata); err != nil {
			log.Warnf("failed to marshal decision metadata: %v", err)
			metadata = []byte("{}")
		}
	}

	result, err := db.ExecContext(ctx, `
	INSERT INTO decisions (
		timestamp, request_id, query_hash, query_preview, intent, method,
		fallback_reason, confidence, level, score, mode, priority,
		timeout_ms, heavy_engine, latency_ms, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC(),
		rec.RequestID,
		rec.QueryHash,
		rec.QueryPreview,
		rec.Intent,
		rec.Method,
		rec.FallbackReason,
		rec.Confidence,
		rec.Level,
		rec.Score,
		rec.Mode,
		rec.Priority,
		rec.TimeoutMs,
		boolToInt(rec.HeavyEngine),
		rec.LatencyMs,
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	c.written.Add(1)
	return nil
}

// GetRecent returns the newest records first.
func (c *Collector) GetRecent(ctx context.Context, limit int) ([]*DecisionRecord, error) {
	db, err := c.activeDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, `
	SELECT id, timestamp, request_id, query_hash, query_preview, intent, method,
	       fallback_reason, confidence, level, score, mode, priority,
	       timeout_ms, heavy_engine, latency_ms, metadata
	FROM decisions
	ORDER BY timestamp DESC, id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []*DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			log.Warnf("failed to scan decision: %v", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return records, nil
}

func scanDecision(rows *sql.Rows) (*DecisionRecord, error) {
	var (
		rec                     DecisionRecord
		requestID, reason, prev sql.NullString
		metadata                sql.NullString
		confidence, latency     sql.NullFloat64
		heavy                   int
	)
	err := rows.Scan(
		&rec.ID,
		&rec.Timestamp,
		&requestID,
		&rec.QueryHash,
		&prev,
		&rec.Intent,
		&rec.Method,
		&reason,
		&confidence,
		&rec.Level,
		&rec.Score,
		&rec.Mode,
		&rec.Priority,
		&rec.TimeoutMs,
		&heavy,
		&latency,
		&metadata,
	)
	if err != nil {
		return nil, err
	}
	rec.RequestID = requestID.String
	rec.QueryPreview = prev.String
	rec.FallbackReason = reason.String
	rec.Confidence = confidence.Float64
	rec.LatencyMs = latency.Float64
	rec.HeavyEngine = heavy == 1

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			log.Warnf("failed to unmarshal decision metadata: %v", err)
		}
	}
	return &rec, nil
}

// Stats aggregates the stored decisions.
type Stats struct {
	TotalRecords    int64            `json:"total_records"`
	FallbackRate    float64          `json:"fallback_rate"`
	AvgLatencyMs    float64          `json:"avg_latency_ms"`
	ByIntent        map[string]int64 `json:"by_intent"`
	ByLevel         map[string]int64 `json:"by_level"`
	FallbackReasons map[string]int64 `json:"fallback_reasons"`
	Written         int64            `json:"written"`
	Dropped         int64            `json:"dropped"`
}

// GetStats returns aggregate counts over the retained decisions.
func (c *Collector) GetStats(ctx context.Context) (*Stats, error) {
	db, err := c.activeDB()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Written: c.written.Load(),
		Dropped: c.dropped.Load(),
	}

	var fallback int64
	err = db.QueryRowContext(ctx, `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN method = 'fallback' THEN 1 ELSE 0 END), 0),
	       COALESCE(AVG(latency_ms), 0)
	FROM decisions`).Scan(&stats.TotalRecords, &fallback, &stats.AvgLatencyMs)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}
	if stats.TotalRecords > 0 {
		stats.FallbackRate = float64(fallback) / float64(stats.TotalRecords)
	}

	if stats.ByIntent, err = countBy(ctx, db, "intent"); err != nil {
		return nil, err
	}
	if stats.ByLevel, err = countBy(ctx, db, "level"); err != nil {
		return nil, err
	}
	if stats.FallbackReasons, err = countBy(ctx, db, "fallback_reason"); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy groups on a fixed column name; it is never user input.
func countBy(ctx context.Context, db *sql.DB, column string) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %[1]s, COUNT(*) FROM decisions WHERE %[1]s IS NOT NULL AND %[1]s != '' GROUP BY %[1]s", column))
	if err != nil {
		return nil, fmt.Errorf("failed to count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		out[key] = count
	}
	return out, rows.Err()
}

// Cleanup deletes records older than the retention period.
func (c *Collector) Cleanup(ctx context.Context) (int64, error) {
	db, err := c.activeDB()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -c.opts.RetentionDays)
	result, err := db.ExecContext(ctx, "DELETE FROM decisions WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old decisions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (c *Collector) cleanup(ctx context.Context) {
	n, err := c.Cleanup(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotEnabled) {
			log.Warnf("failed to cleanup old decisions: %v", err)
		}
		return
	}
	if n > 0 {
		log.Infof("cleaned up %d decisions older than %d days", n, c.opts.RetentionDays)
	}
}

func (c *Collector) activeDB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return nil, ErrNotEnabled
	}
	return c.db, nil
}

// Shutdown stops accepting records, drains the queue and closes the
// database. Records still queued when ctx expires are lost.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.enabled = false
	close(c.queue)
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("decision log: shutdown before queue drained")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		c.db = nil
	}
	log.Info("decision log shut down")
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
