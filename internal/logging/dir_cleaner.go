// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

const cleanInterval = time.Minute

var cleanerStop chan struct{}

// configureLogDirCleanerLocked restarts the cleaner. writerMu must be held.
func configureLogDirCleanerLocked(dir string, maxTotalMB int, protected string) {
	stopLogDirCleanerLocked()
	if maxTotalMB <= 0 {
		return
	}

	limit := int64(maxTotalMB) * 1024 * 1024
	stop := make(chan struct{})
	cleanerStop = stop

	go func() {
		ticker := time.NewTicker(cleanInterval)
		defer ticker.Stop()
		for {
			if _, err := cleanLogDir(dir, limit, protected); err != nil {
				log.Debugf("log dir cleaner: %v", err)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func stopLogDirCleanerLocked() {
	if cleanerStop != nil {
		close(cleanerStop)
		cleanerStop = nil
	}
}

// cleanLogDir deletes the oldest regular files in dir until the total size
// is at most limit. The protected file is never removed. It returns the
// number of files deleted.
func cleanLogDir(dir string, limit int64, protected string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	type logFile struct {
		path    string
		size    int64
		modTime time.Time
	}
	var (
		files []logFile
		total int64
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, logFile{
			path:    filepath.Join(dir, e.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	if total <= limit {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	removed := 0
	for _, f := range files {
		if total <= limit {
			break
		}
		if protected != "" && filepath.Clean(f.path) == filepath.Clean(protected) {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			log.Debugf("log dir cleaner: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		removed++
	}
	return removed, nil
}
