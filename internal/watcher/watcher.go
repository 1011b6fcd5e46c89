// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher reloads the configuration file when it changes on disk
// and hands the result to a callback.
package watcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/querytriage/internal/config"
	"github.com/traylinx/querytriage/internal/triage"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 150 * time.Millisecond

// ReloadFunc applies a freshly parsed configuration. Returning an error
// keeps the previous configuration in force.
type ReloadFunc func(cfg *config.Config) error

// Watcher watches one configuration file.
type Watcher struct {
	path     string
	reload   ReloadFunc
	debounce time.Duration

	fsw  *fsnotify.Watcher
	stop chan struct{}
	done chan struct{}

	mu       sync.Mutex
	lastHash []byte
}

// NewWatcher creates a watcher for configPath. Nothing happens until Start.
func NewWatcher(configPath string, reload ReloadFunc) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if reload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Watcher{path: abs, reload: reload, debounce: DefaultDebounce}, nil
}

// SetDebounce overrides the event coalescing interval. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching. The parent directory is watched so that editors
// replacing the file by rename are noticed. The current file content is
// taken as already applied.
func (w *Watcher) Start(ctx context.Context) error {
	if data, err := os.ReadFile(w.path); err == nil {
		w.setHash(hash(data))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.fsw = fsw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(ctx)

	log.Infof("watching %s for configuration changes", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("config watcher error: %v", err)
		case <-timer.C:
			w.Reload()
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Reload reads the file and applies it when its content changed. It
// reports whether the callback accepted a new configuration.
func (w *Watcher) Reload() bool {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Warnf("config reload skipped: %v", err)
		return false
	}
	sum := hash(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if bytes.Equal(sum, w.lastHash) {
		log.Debug("config file touched but unchanged")
		return false
	}

	cfg, err := config.Parse(data)
	if err != nil {
		log.Errorf("config reload rejected, keeping previous: %v", err)
		return false
	}
	if err := w.reload(cfg); err != nil {
		log.Errorf("config reload rejected, keeping previous: %v", err)
		return false
	}
	w.lastHash = sum
	log.Info("configuration reloaded")
	return true
}

func (w *Watcher) setHash(sum []byte) {
	w.mu.Lock()
	w.lastHash = sum
	w.mu.Unlock()
}

func hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	err := w.fsw.Close()
	<-w.done
	w.fsw = nil
	return err
}

// ReconfigureEngine returns a ReloadFunc that swaps the engine's scoring
// constants and escalation rules. Listener, model and storage settings need
// a restart and are ignored here.
func ReconfigureEngine(engine *triage.Engine) ReloadFunc {
	return func(cfg *config.Config) error {
		return engine.Reconfigure(cfg.Triage.ComplexityConfig(), cfg.Triage.EscalationRules)
	}
}
