// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package zeroshot

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/model/embedding"
	"github.com/traylinx/querytriage/internal/triage/intent"
)

// LoaderConfig selects the encoder and catalogue.
type LoaderConfig struct {
	Engine      embedding.Config
	IntentsFile string
	Temperature float64
}

// Loader returns an intent.Loader that starts the ONNX encoder and builds
// the scorer. The classifier calls it lazily and retries after failures.
func Loader(cfg LoaderConfig) intent.Loader {
	return func(ctx context.Context) (*intent.Models, error) {
		cat, err := LoadCatalogue(cfg.IntentsFile)
		if err != nil {
			return nil, err
		}

		engine, err := embedding.NewEngine(cfg.Engine)
		if err != nil {
			return nil, err
		}
		if err := engine.Initialize(); err != nil {
			return nil, fmt.Errorf("start embedding engine: %w", err)
		}

		scorer, err := NewScorer(ctx, engine, cat, cfg.Temperature)
		if err != nil {
			if errShutdown := engine.Shutdown(); errShutdown != nil {
				log.Warnf("zeroshot: engine shutdown after failed load: %v", errShutdown)
			}
			return nil, err
		}
		return &intent.Models{Scorer: scorer}, nil
	}
}
