// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/querytriage/internal/triage"
	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/dispatch"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

func sampleReport(text string) *triage.Report {
	return &triage.Report{
		RequestID: "req-42",
		Timestamp: time.Now(),
		Query:     triage.Query{Text: text, MessageCount: 3},
		Complexity: complexity.Analysis{
			Score:   60,
			Level:   complexity.LevelComplex,
			Factors: []string{"multi_server", "deep_analysis"},
		},
		Intent: &intent.Result{
			Intent:         intent.IntentTroubleshooting,
			Confidence:     0.6,
			Method:         intent.MethodFallback,
			FallbackReason: intent.ReasonNotInitialized,
			Entities:       []string{"db-7"},
			Urgency:        intent.UrgencyCritical,
		},
		Decision: dispatch.Decision{
			Mode:                intent.ModeAdvanced,
			TimeoutBudgetMs:     40000,
			RequiresHeavyEngine: true,
			Priority:            intent.UrgencyCritical,
			EscalatedBy:         []string{"multi_server_root_cause"},
		},
		DurationMs: 0.8,
	}
}

func TestNewCollector(t *testing.T) {
	_, err := NewCollector(Options{})
	assert.Error(t, err)

	c, err := NewCollector(Options{DBPath: "/tmp/decisions.db"})
	require.NoError(t, err)
	assert.Equal(t, 30, c.opts.RetentionDays)
	assert.Equal(t, 256, c.opts.QueueSize)
	assert.False(t, c.IsEnabled())
}

func TestNewDecisionRecord(t *testing.T) {
	long := strings.Repeat("서", 100)
	rec := NewDecisionRecord(sampleReport(long))
	require.NotNil(t, rec)

	assert.Len(t, rec.QueryHash, 64)
	assert.Equal(t, strings.Repeat("서", previewRunes)+"…", rec.QueryPreview)
	assert.Equal(t, "troubleshooting", rec.Intent)
	assert.Equal(t, "not_initialized", rec.FallbackReason)
	assert.Equal(t, "complex", rec.Level)
	assert.Equal(t, 40000, rec.TimeoutMs)
	assert.True(t, rec.HeavyEngine)
	assert.Equal(t, []string{"multi_server_root_cause"}, rec.Metadata["escalated_by"])

	short := NewDecisionRecord(sampleReport("db-7 다운"))
	assert.Equal(t, "db-7 다운", short.QueryPreview)
	assert.NotEqual(t, rec.QueryHash, short.QueryHash)

	assert.Nil(t, NewDecisionRecord(nil))
	assert.Nil(t, NewDecisionRecord(&triage.Report{}))
}

func TestStore_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &Collector{opts: Options{RetentionDays: 30}, db: db, enabled: true}

	args := make([]driver.Value, 16)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decisions")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decisions")).
		WillReturnError(errors.New("disk full"))

	rec := NewDecisionRecord(sampleReport("db-7 다운"))
	require.NoError(t, c.Store(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)

	err = c.Store(context.Background(), NewDecisionRecord(sampleReport("again")))
	assert.ErrorContains(t, err, "disk full")

	assert.Error(t, c.Store(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStats_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &Collector{opts: Options{RetentionDays: 30}, db: db, enabled: true}
	c.dropped.Store(2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*),")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "fallback", "avg"}).AddRow(4, 3, 2.5))
	mock.ExpectQuery("GROUP BY intent").
		WillReturnRows(sqlmock.NewRows([]string{"intent", "count"}).
			AddRow("troubleshooting", 3).
			AddRow("metric_query", 1))
	mock.ExpectQuery("GROUP BY level").
		WillReturnRows(sqlmock.NewRows([]string{"level", "count"}).AddRow("complex", 4))
	mock.ExpectQuery("GROUP BY fallback_reason").
		WillReturnRows(sqlmock.NewRows([]string{"fallback_reason", "count"}).AddRow("not_initialized", 3))

	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalRecords)
	assert.InDelta(t, 0.75, stats.FallbackRate, 1e-9)
	assert.InDelta(t, 2.5, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, map[string]int64{"troubleshooting": 3, "metric_query": 1}, stats.ByIntent)
	assert.Equal(t, map[string]int64{"complex": 4}, stats.ByLevel)
	assert.Equal(t, map[string]int64{"not_initialized": 3}, stats.FallbackReasons)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &Collector{opts: Options{RetentionDays: 7}, db: db, enabled: true}
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM decisions WHERE timestamp < ?")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := c.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotEnabled(t *testing.T) {
	c, err := NewCollector(Options{DBPath: filepath.Join(t.TempDir(), "d.db")})
	require.NoError(t, err)

	_, err = c.GetStats(context.Background())
	assert.ErrorIs(t, err, ErrNotEnabled)
	_, err = c.GetRecent(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotEnabled)
	_, err = c.Cleanup(context.Background())
	assert.ErrorIs(t, err, ErrNotEnabled)

	// Record before Initialize is a no-op.
	c.Record(context.Background(), sampleReport("cpu"))
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestCollector_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "decisions.db")
	ctx := context.Background()

	c, err := NewCollector(Options{DBPath: dbPath, RetentionDays: 30, QueueSize: 16})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))
	assert.True(t, c.IsEnabled())

	for _, q := range []string{"서버가 다운됐어요", "cpu 사용률", "web-01 로그"} {
		c.Record(ctx, sampleReport(q))
	}
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsEnabled())
	c.Record(ctx, sampleReport("after shutdown"))

	reopened, err := NewCollector(Options{DBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, reopened.Initialize(ctx))
	defer reopened.Shutdown(ctx)

	recent, err := reopened.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "req-42", recent[0].RequestID)
	assert.Equal(t, "troubleshooting", recent[0].Intent)
	assert.True(t, recent[0].HeavyEngine)
	assert.Equal(t, "critical", recent[0].Metadata["urgency"])

	stats, err := reopened.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRecords)
	assert.InDelta(t, 1.0, stats.FallbackRate, 1e-9)
	assert.Equal(t, int64(3), stats.ByIntent["troubleshooting"])

	old := NewDecisionRecord(sampleReport("old"))
	old.Timestamp = time.Now().AddDate(0, 0, -60)
	require.NoError(t, reopened.Store(ctx, old))
	_, err = reopened.Cleanup(ctx)
	require.NoError(t, err)

	// The worker may have swept first; either way the old row is gone.
	stats, err = reopened.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRecords)
}
