// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main runs the query triage HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/api"
	"github.com/traylinx/querytriage/internal/buildinfo"
	"github.com/traylinx/querytriage/internal/config"
	"github.com/traylinx/querytriage/internal/feedback"
	"github.com/traylinx/querytriage/internal/logging"
	"github.com/traylinx/querytriage/internal/metrics"
	"github.com/traylinx/querytriage/internal/model/zeroshot"
	"github.com/traylinx/querytriage/internal/triage"
	"github.com/traylinx/querytriage/internal/triage/intent"
	"github.com/traylinx/querytriage/internal/watcher"
)

// DefaultConfigPath may be overridden with -ldflags -X.
var DefaultConfigPath = "config.yaml"

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var (
		configPath string
		envFile    string
	)
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configuration file path")
	flag.StringVar(&envFile, "env", ".env", "Optional .env file")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("failed to load %s: %v", envFile, err)
	}

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.SetLevel(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsDir, cfg.LogsMaxTotalSizeMB); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}

	log.Infof("querytriage %s starting", buildinfo.Current())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, configPath, cfg)
	stop()
	if err != nil {
		log.Errorf("server stopped: %v", err)
		logging.Close()
		os.Exit(1)
	}
	logging.Close()
}

func run(ctx context.Context, configPath string, cfg *config.Config) error {
	classifier := newClassifier(ctx, cfg)

	var (
		engineOpts []triage.Option
		apiOpts    []api.Option
	)
	if cfg.Metrics.Enabled {
		exporter := metrics.NewExporter(metrics.DefaultConfig())
		if err := exporter.RegisterClassifier(classifier); err != nil {
			return err
		}
		engineOpts = append(engineOpts, triage.WithSink(exporter))
		apiOpts = append(apiOpts, api.WithMetrics(exporter.Handler()))
	}

	if cfg.Feedback.Enabled {
		collector, err := feedback.NewCollector(feedback.Options{
			DBPath:        cfg.Feedback.DBPath,
			RetentionDays: cfg.Feedback.RetentionDays,
			QueueSize:     cfg.Feedback.QueueSize,
		})
		if err != nil {
			return err
		}
		if err := collector.Initialize(ctx); err != nil {
			log.Warnf("decision log disabled: %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := collector.Shutdown(shutdownCtx); err != nil {
					log.Warnf("decision log shutdown: %v", err)
				}
			}()
			engineOpts = append(engineOpts, triage.WithSink(collector))
			apiOpts = append(apiOpts, api.WithDecisionLog(collector))
		}
	}

	engine, err := triage.New(classifier, cfg.Triage.ComplexityConfig(), cfg.Triage.EscalationRules, engineOpts...)
	if err != nil {
		return err
	}

	w, err := watcher.NewWatcher(configPath, watcher.ReconfigureEngine(engine))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		log.Warnf("config hot reload disabled: %v", err)
	} else {
		defer func() { _ = w.Stop() }()
	}

	return api.NewServer(cfg, engine, apiOpts...).Run(ctx)
}

// newClassifier returns a keyword-only classifier unless a model is
// configured. A failed eager warmup is logged and retried on later requests.
func newClassifier(ctx context.Context, cfg *config.Config) *intent.Classifier {
	if !cfg.Model.Enabled {
		log.Info("zero-shot model disabled, using keyword classification")
		return intent.NewClassifier(cfg.Triage.ClassifierConfig(), nil)
	}

	loader := zeroshot.Loader(zeroshot.LoaderConfig{
		Engine:      cfg.Model.EmbeddingConfig(),
		IntentsFile: cfg.Model.IntentsFile,
		Temperature: cfg.Model.Temperature,
	})
	classifier := intent.NewClassifier(cfg.Triage.ClassifierConfig(), loader)
	if !cfg.Model.Lazy {
		if err := classifier.Warmup(ctx); err != nil {
			log.Warnf("model warmup failed, using keywords until it loads: %v", err)
		}
	}
	return classifier
}
