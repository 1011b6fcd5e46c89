// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "" {
		t.Errorf("Host should be empty by default (bind all), got: %s", cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Port)
	}
	if got := cfg.Triage.ComplexityConfig(); got != complexity.DefaultConfig() {
		t.Errorf("Triage defaults drifted from complexity defaults: %+v", got)
	}
	if cfg.Triage.GuardTimeout != 2*time.Second {
		t.Errorf("Expected 2s guard timeout, got %s", cfg.Triage.GuardTimeout)
	}
	if cfg.Model.Enabled {
		t.Error("Model should be disabled by default")
	}
	if !cfg.Model.Lazy {
		t.Error("Model loading should be lazy by default")
	}
	if cfg.Feedback.Enabled || cfg.Feedback.RetentionDays != DefaultRetentionDays {
		t.Errorf("Unexpected feedback defaults: %+v", cfg.Feedback)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected metrics defaults: %+v", cfg.Metrics)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
host: "127.0.0.1"
port: 9090
debug: true
triage:
  safety-margin-ms: 8000
  bands:
    moderate: 25
    complex: 50
    very-complex: 75
  timeouts:
    simple: 10000
  guard-timeout: 750ms
  serialize-inference: true
  strict: true
  escalation-rules:
    - name: forecast_everything
      when: 'Intent == "server_performance_prediction" && "multi_server" in Factors'
      priority: " High "
    - name: empty
      when: "  "
model:
  enabled: true
  base-dir: /srv/models
  lazy: false
metrics:
  path: prom
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("Unexpected addr %s", cfg.Addr())
	}
	cc := cfg.Triage.ComplexityConfig()
	if cc.SafetyMarginMs != 8000 || cc.ModerateMinScore != 25 || cc.SimpleTimeoutMs != 10000 {
		t.Errorf("Overrides not applied: %+v", cc)
	}
	// Keys absent from the file keep their defaults.
	if cc.ComplexTimeoutMs != 40000 || cc.PlatformCeilingMs != 60000 {
		t.Errorf("Defaults lost: %+v", cc)
	}

	ic := cfg.Triage.ClassifierConfig()
	if ic.GuardTimeout != 750*time.Millisecond || !ic.SerializeInference || !ic.Strict {
		t.Errorf("Unexpected classifier config: %+v", ic)
	}

	if len(cfg.Triage.EscalationRules) != 1 {
		t.Fatalf("Expected 1 escalation rule, got %d", len(cfg.Triage.EscalationRules))
	}
	if cfg.Triage.EscalationRules[0].Priority != intent.UrgencyHigh {
		t.Errorf("Priority not normalised: %q", cfg.Triage.EscalationRules[0].Priority)
	}

	ec := cfg.Model.EmbeddingConfig()
	if ec.ModelPath != filepath.Join("/srv/models", cfg.Model.Name, "model.onnx") {
		t.Errorf("Unexpected model path %s", ec.ModelPath)
	}
	if cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics path should gain a leading slash, got %s", cfg.Metrics.Path)
	}
}

func TestLoadConfigOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := LoadConfig(missing); err == nil {
		t.Error("Expected error for missing required config")
	}

	cfg, err := LoadConfigOptional(missing, true)
	if err != nil {
		t.Fatalf("Optional missing config should not fail: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Expected defaults, got port %d", cfg.Port)
	}

	if _, err := LoadConfigOptional(writeConfig(t, "port: [nope"), true); err == nil {
		t.Error("Malformed config must be reported even when optional")
	}
}

func TestSanitize(t *testing.T) {
	cfg := &Config{
		Port:               -1,
		LogsMaxTotalSizeMB: -5,
		Feedback:           FeedbackConfig{RetentionDays: -1},
		Model:              ModelConfig{Temperature: -1},
	}
	cfg.Sanitize()

	if cfg.Port != DefaultPort {
		t.Errorf("Expected default port, got %d", cfg.Port)
	}
	if cfg.LogsMaxTotalSizeMB != 0 || cfg.Feedback.RetentionDays != 0 || cfg.Model.Temperature != 0 {
		t.Errorf("Negative values not clamped: %+v", cfg)
	}
	if cfg.Feedback.QueueSize != DefaultQueueSize || cfg.Feedback.DBPath != DefaultFeedbackDBPath {
		t.Errorf("Feedback defaults not filled: %+v", cfg.Feedback)
	}
	if cfg.Triage.GuardTimeout != intent.DefaultGuardTimeout {
		t.Errorf("Guard timeout not filled: %s", cfg.Triage.GuardTimeout)
	}

	var nilCfg *Config
	nilCfg.Sanitize()
}
