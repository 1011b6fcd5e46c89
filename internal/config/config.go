// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the querytriage server configuration from YAML and
// converts it into the settings of the triage components.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/traylinx/querytriage/internal/model/embedding"
	"github.com/traylinx/querytriage/internal/triage/complexity"
	"github.com/traylinx/querytriage/internal/triage/dispatch"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

const (
	DefaultPort           = 8080
	DefaultMetricsPath    = "/metrics"
	DefaultFeedbackDBPath = "./data/decisions.db"
	DefaultRetentionDays  = 30
	DefaultQueueSize      = 256
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the interface the API server binds to. Empty binds all
	// interfaces.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether logs go to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsDir is where rotating log files are written.
	LogsDir string `yaml:"logs-dir" json:"logs-dir"`

	// LogsMaxTotalSizeMB limits the total size of the logs directory. The
	// oldest files are deleted when it is exceeded. 0 disables the limit.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	Triage   TriageConfig   `yaml:"triage" json:"triage"`
	Model    ModelConfig    `yaml:"model" json:"model"`
	Feedback FeedbackConfig `yaml:"feedback" json:"feedback"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// TriageConfig holds the tunables that may be hot reloaded.
type TriageConfig struct {
	PlatformCeilingMs int `yaml:"platform-ceiling-ms" json:"platform-ceiling-ms"`
	SafetyMarginMs    int `yaml:"safety-margin-ms" json:"safety-margin-ms"`

	Bands    BandConfig    `yaml:"bands" json:"bands"`
	Timeouts LevelTimeouts `yaml:"timeouts" json:"timeouts"`
	Context  ContextTiers  `yaml:"context" json:"context"`

	// GuardTimeout bounds every model call, e.g. "2s".
	GuardTimeout time.Duration `yaml:"guard-timeout" json:"guard-timeout"`
	// RetryInterval is the minimum gap between model load attempts.
	RetryInterval time.Duration `yaml:"retry-interval" json:"retry-interval"`

	SerializeInference bool `yaml:"serialize-inference" json:"serialize-inference"`
	Strict             bool `yaml:"strict" json:"strict"`

	EscalationRules []dispatch.EscalationRule `yaml:"escalation-rules" json:"escalation-rules"`
}

// BandConfig holds the minimum score of each level above simple.
type BandConfig struct {
	Moderate    int `yaml:"moderate" json:"moderate"`
	Complex     int `yaml:"complex" json:"complex"`
	VeryComplex int `yaml:"very-complex" json:"very-complex"`
}

// LevelTimeouts is the recommended timeout per level in milliseconds.
type LevelTimeouts struct {
	Simple      int `yaml:"simple" json:"simple"`
	Moderate    int `yaml:"moderate" json:"moderate"`
	Complex     int `yaml:"complex" json:"complex"`
	VeryComplex int `yaml:"very-complex" json:"very-complex"`
}

// ContextTiers extends budgets for long conversations.
type ContextTiers struct {
	SmallMessages int `yaml:"small-messages" json:"small-messages"`
	SmallExtraMs  int `yaml:"small-extra-ms" json:"small-extra-ms"`
	LargeMessages int `yaml:"large-messages" json:"large-messages"`
	LargeExtraMs  int `yaml:"large-extra-ms" json:"large-extra-ms"`
}

// ModelConfig locates the ONNX encoder behind the zero-shot classifier.
type ModelConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	Name              string  `yaml:"name" json:"name"`
	BaseDir           string  `yaml:"base-dir" json:"base-dir"`
	IntentsFile       string  `yaml:"intents-file" json:"intents-file"`
	SharedLibraryPath string  `yaml:"shared-library-path" json:"shared-library-path"`
	Temperature       float64 `yaml:"temperature" json:"temperature"`

	// Lazy defers loading to the first request instead of startup.
	Lazy bool `yaml:"lazy" json:"lazy"`
}

// FeedbackConfig controls the SQLite decision log.
type FeedbackConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	DBPath        string `yaml:"db-path" json:"db-path"`
	RetentionDays int    `yaml:"retention-days" json:"retention-days"`
	QueueSize     int    `yaml:"queue-size" json:"queue-size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	cfg.Sanitize()
	return &cfg
}

func (cfg *Config) setDefaults() {
	cfg.Host = ""
	cfg.Port = DefaultPort
	cfg.LogsDir = "logs"

	c := complexity.DefaultConfig()
	cfg.Triage = TriageConfig{
		PlatformCeilingMs: c.PlatformCeilingMs,
		SafetyMarginMs:    c.SafetyMarginMs,
		Bands: BandConfig{
			Moderate:    c.ModerateMinScore,
			Complex:     c.ComplexMinScore,
			VeryComplex: c.VeryComplexMinScore,
		},
		Timeouts: LevelTimeouts{
			Simple:      c.SimpleTimeoutMs,
			Moderate:    c.ModerateTimeoutMs,
			Complex:     c.ComplexTimeoutMs,
			VeryComplex: c.VeryComplexTimeoutMs,
		},
		Context: ContextTiers{
			SmallMessages: c.SmallContextMessages,
			SmallExtraMs:  c.SmallContextExtraMs,
			LargeMessages: c.LargeContextMessages,
			LargeExtraMs:  c.LargeContextExtraMs,
		},
		GuardTimeout:  intent.DefaultGuardTimeout,
		RetryInterval: intent.DefaultRetryInterval,
	}

	cfg.Model.Name = embedding.DefaultModelName
	cfg.Model.Lazy = true

	cfg.Feedback.DBPath = DefaultFeedbackDBPath
	cfg.Feedback.RetentionDays = DefaultRetentionDays
	cfg.Feedback.QueueSize = DefaultQueueSize

	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = DefaultMetricsPath
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile. When optional is true a
// missing or empty file yields the defaults.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults, so absent keys keep them.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	cfg.setDefaults()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Sanitize clamps values that would break the server. Triage tunables are
// left to the component sanitizers, which know their invariants.
func (cfg *Config) Sanitize() {
	if cfg == nil {
		return
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
	}
	if cfg.LogsMaxTotalSizeMB < 0 {
		cfg.LogsMaxTotalSizeMB = 0
	}
	if strings.TrimSpace(cfg.LogsDir) == "" {
		cfg.LogsDir = "logs"
	}

	if cfg.Triage.GuardTimeout <= 0 {
		cfg.Triage.GuardTimeout = intent.DefaultGuardTimeout
	}
	if cfg.Triage.RetryInterval <= 0 {
		cfg.Triage.RetryInterval = intent.DefaultRetryInterval
	}
	rules := cfg.Triage.EscalationRules[:0]
	for _, r := range cfg.Triage.EscalationRules {
		r.Name = strings.TrimSpace(r.Name)
		r.When = strings.TrimSpace(r.When)
		if r.When == "" {
			continue
		}
		r.Priority = intent.Urgency(strings.ToLower(strings.TrimSpace(string(r.Priority))))
		rules = append(rules, r)
	}
	cfg.Triage.EscalationRules = rules

	if strings.TrimSpace(cfg.Model.Name) == "" {
		cfg.Model.Name = embedding.DefaultModelName
	}
	if cfg.Model.Temperature < 0 {
		cfg.Model.Temperature = 0
	}

	if strings.TrimSpace(cfg.Feedback.DBPath) == "" {
		cfg.Feedback.DBPath = DefaultFeedbackDBPath
	}
	if cfg.Feedback.RetentionDays < 0 {
		cfg.Feedback.RetentionDays = 0
	}
	if cfg.Feedback.QueueSize <= 0 {
		cfg.Feedback.QueueSize = DefaultQueueSize
	}

	cfg.Metrics.Path = strings.TrimSpace(cfg.Metrics.Path)
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		cfg.Metrics.Path = "/" + cfg.Metrics.Path
	}
}

// Addr returns the listen address.
func (cfg *Config) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// ComplexityConfig converts the triage section for the complexity scorer.
func (t TriageConfig) ComplexityConfig() complexity.Config {
	return complexity.Config{
		ModerateMinScore:     t.Bands.Moderate,
		ComplexMinScore:      t.Bands.Complex,
		VeryComplexMinScore:  t.Bands.VeryComplex,
		SimpleTimeoutMs:      t.Timeouts.Simple,
		ModerateTimeoutMs:    t.Timeouts.Moderate,
		ComplexTimeoutMs:     t.Timeouts.Complex,
		VeryComplexTimeoutMs: t.Timeouts.VeryComplex,
		PlatformCeilingMs:    t.PlatformCeilingMs,
		SafetyMarginMs:       t.SafetyMarginMs,
		SmallContextMessages: t.Context.SmallMessages,
		SmallContextExtraMs:  t.Context.SmallExtraMs,
		LargeContextMessages: t.Context.LargeMessages,
		LargeContextExtraMs:  t.Context.LargeExtraMs,
	}
}

// ClassifierConfig converts the triage section for the intent classifier.
func (t TriageConfig) ClassifierConfig() intent.Config {
	return intent.Config{
		GuardTimeout:       t.GuardTimeout,
		RetryInterval:      t.RetryInterval,
		SerializeInference: t.SerializeInference,
		Strict:             t.Strict,
	}
}

// EmbeddingConfig resolves the model files for the encoder.
func (m ModelConfig) EmbeddingConfig() embedding.Config {
	return embedding.NewLocator(m.BaseDir).Config(m.Name, m.SharedLibraryPath)
}
