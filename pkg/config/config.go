// copyright 2021 - 2023 matrix origin
//
// licensed under the apache license, version 2.0 (the "license");
// you may not use this file except in compliance with the license.
// you may obtain a copy of the license at
//
//      http://www.apache.org/licenses/license-2.0
//
// unless required by applicable law or agreed to in writing, software
// distributed under the license is distributed on an "as is" basis,
// without warranties or conditions of any kind, either express or implied.
// see the license for the specific language governing permissions and
// limitations under the license.

// Package config loads the optional ownership.yaml file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the name LoadOptional looks for.
const FileName = "ownership.yaml"

// Config represents ownership.yaml.
type Config struct {
	Heap Heap `yaml:"heap"`
	Diag Diag `yaml:"diag"`
}

// Heap contains settings for reference-counted heaps.
type Heap struct {
	// ChunkSize is the size of each off-heap chunk of control blocks,
	// rounded up to a page. Zero means one page.
	ChunkSize int `yaml:"chunk_size,omitempty"`
	// ReportLeaks reports cells still alive when a heap is closed.
	ReportLeaks bool `yaml:"report_leaks"`
}

// Diag contains diagnostics settings.
type Diag struct {
	Verbose bool `yaml:"verbose"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Heap: Heap{ReportLeaks: true},
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOptional reads ownership.yaml from dir if present.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	return Parse(data)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Heap.ChunkSize < 0 {
		return fmt.Errorf("invalid heap.chunk_size %d: must not be negative", c.Heap.ChunkSize)
	}
	return nil
}
