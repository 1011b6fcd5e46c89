// Copyright 2026 The querytriage Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package zeroshot

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed intents.yaml
var defaultCatalogue []byte

// Label is one candidate label with the texts that describe it.
type Label struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Examples    []string `yaml:"examples" json:"examples"`
}

// texts returns the description followed by the examples, skipping blanks.
func (l Label) texts() []string {
	out := make([]string, 0, len(l.Examples)+1)
	if s := strings.TrimSpace(l.Description); s != "" {
		out = append(out, s)
	}
	for _, ex := range l.Examples {
		if s := strings.TrimSpace(ex); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Catalogue is the on-disk intents file.
type Catalogue struct {
	Labels []Label `yaml:"intents" json:"intents"`
}

// DefaultCatalogue returns the built-in catalogue.
func DefaultCatalogue() (*Catalogue, error) {
	return ParseCatalogue(defaultCatalogue)
}

// LoadCatalogue reads a catalogue file. An empty path returns the built-in
// catalogue.
func LoadCatalogue(path string) (*Catalogue, error) {
	if path == "" {
		return DefaultCatalogue()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents file: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates a YAML catalogue.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse intents file: %w", err)
	}
	if len(c.Labels) == 0 {
		return nil, fmt.Errorf("no intents found in file")
	}

	seen := make(map[string]bool, len(c.Labels))
	for i, l := range c.Labels {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return nil, fmt.Errorf("intent #%d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("intent %q defined twice", name)
		}
		if len(l.texts()) == 0 {
			return nil, fmt.Errorf("intent %q has neither description nor examples", name)
		}
		seen[name] = true
		c.Labels[i].Name = name
	}
	return &c, nil
}

// Names returns the label names in file order.
func (c *Catalogue) Names() []string {
	out := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		out[i] = l.Name
	}
	return out
}
