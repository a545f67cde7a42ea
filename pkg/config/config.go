// Package config loads the optional per-project settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/log"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// FileName is looked up under the project root when no --config is given.
const FileName = ".cov-loupe.yml"

// Output formats accepted by --format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var formats = []string{FormatTable, FormatJSON, FormatYAML}

// AppConfig mirrors the persistent CLI flags. Flags given on the command
// line win over values from the file.
type AppConfig struct {
	Root         string   `yaml:"root"`
	Resultset    string   `yaml:"resultset"`
	TrackedGlobs []string `yaml:"tracked_globs"`
	RaiseOnStale bool     `yaml:"raise_on_stale"`
	SortOrder    string   `yaml:"sort_order"`
	Format       string   `yaml:"format"`
	LogFile      string   `yaml:"log_file"`
	Verbosity    string   `yaml:"verbosity"`

	History  HistoryConfig  `yaml:"history"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
}

// HistoryConfig locates the snapshot database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// BigQueryConfig names the export destination.
type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// Default returns the settings used when no file exists.
func Default() AppConfig {
	return AppConfig{
		Root:      ".",
		SortOrder: string(model.DefaultSortOrder),
		Format:    FormatTable,
		Verbosity: "info",
		History:   HistoryConfig{Path: filepath.Join("coverage", "cov-loupe-history.db")},
	}
}

// Load reads path over the defaults. A missing file is not an error unless
// required is set.
func Load(path string, required bool) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, &coverage.ConfigError{Reason: fmt.Sprintf("failed to read config file %s: %v", path, err)}
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, &coverage.ConfigError{Reason: fmt.Sprintf("invalid config file %s: %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode applies YAML from r onto cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *AppConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the enum fields.
func (c AppConfig) Validate() error {
	if _, err := model.ParseSortOrder(c.SortOrder); err != nil {
		return &coverage.ConfigError{Reason: err.Error()}
	}
	if !contains(formats, strings.ToLower(c.Format)) {
		return &coverage.ConfigError{Reason: fmt.Sprintf("invalid format: %s (valid: %s)", c.Format, strings.Join(formats, ", "))}
	}
	if _, err := log.ParseLevel(c.Verbosity); err != nil {
		return &coverage.ConfigError{Reason: err.Error()}
	}
	for _, g := range c.TrackedGlobs {
		if strings.TrimSpace(g) == "" {
			return &coverage.ConfigError{Reason: "tracked_globs must not contain empty patterns"}
		}
	}
	return nil
}

// ModelConfig converts the settings into a model.Config.
func (c AppConfig) ModelConfig(logger coverage.Logger) model.Config {
	return model.Config{
		Root:         c.Root,
		Resultset:    c.Resultset,
		TrackedGlobs: c.TrackedGlobs,
		RaiseOnStale: c.RaiseOnStale,
		Logger:       logger,
	}
}

// HistoryPath resolves the history database against the root.
func (c AppConfig) HistoryPath() string {
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(c.Root, c.History.Path)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
