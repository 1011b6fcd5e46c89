// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"os"
	"path/filepath"
	"runtime"
)

// SharedLibraryEnv overrides the ONNX runtime library lookup.
const SharedLibraryEnv = "ONNXRUNTIME_LIB_PATH"

// Locator resolves model files below BaseDir/<model>/.
type Locator struct {
	BaseDir string
}

// NewLocator returns a locator rooted at baseDir, or at
// ~/.querytriage/models when baseDir is empty.
func NewLocator(baseDir string) *Locator {
	if baseDir == "" {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, ".querytriage", "models")
	}
	return &Locator{BaseDir: baseDir}
}

// Config returns the engine config for modelName. An explicit sharedLib
// wins over the lookup.
func (l *Locator) Config(modelName, sharedLib string) Config {
	if modelName == "" {
		modelName = DefaultModelName
	}
	if sharedLib == "" {
		sharedLib = l.SharedLibraryPath()
	}
	return Config{
		ModelPath:         l.ModelPath(modelName),
		VocabPath:         l.VocabPath(modelName),
		SharedLibraryPath: sharedLib,
	}
}

// ModelPath returns BaseDir/<model>/model.onnx.
func (l *Locator) ModelPath(modelName string) string {
	return filepath.Join(l.BaseDir, modelName, "model.onnx")
}

// VocabPath returns BaseDir/<model>/vocab.txt.
func (l *Locator) VocabPath(modelName string) string {
	return filepath.Join(l.BaseDir, modelName, "vocab.txt")
}

// ModelExists reports whether the model file is present.
func (l *Locator) ModelExists(modelName string) bool {
	_, err := os.Stat(l.ModelPath(modelName))
	return err == nil
}

// SharedLibraryPath finds the ONNX runtime library: the environment
// variable first, then the usual install locations for this OS. It returns
// "" when nothing is found.
func (l *Locator) SharedLibraryPath() string {
	if p := os.Getenv(SharedLibraryEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	libDir := filepath.Join(l.BaseDir, "..", "lib")
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
			filepath.Join(libDir, "libonnxruntime.dylib"),
		}
	case "windows":
		candidates = []string{filepath.Join(libDir, "onnxruntime.dll")}
	default:
		candidates = []string{
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
			"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
			filepath.Join(libDir, "libonnxruntime.so"),
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
