// Package config manages the facetdb.yaml configuration file stored in the
// data directory.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/facetdb/internal/facets"
	"github.com/maruel/facetdb/internal/operations"
	"github.com/maruel/facetdb/internal/recon"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file in the data directory.
const FileName = "facetdb.yaml"

// Config is the whole configuration. It is created with defaults if missing.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// DataDir holds the projects. Empty means the directory containing the
	// configuration file.
	DataDir string `yaml:"data_dir,omitempty"`

	Binning Binning `yaml:"binning"`
	Process Process `yaml:"process"`
	Recon   Recon   `yaml:"recon"`
	History History `yaml:"history"`
}

// Binning configures the numeric bin indices.
type Binning struct {
	MaxBins int `yaml:"max_bins"`
}

// Process configures background processes.
type Process struct {
	// BatchDelay is the minimum interval between two recon batches.
	BatchDelay time.Duration `yaml:"batch_delay"`
	// Concurrency is the number of recon batches in flight.
	Concurrency int `yaml:"concurrency"`
}

// Recon configures reconciliation.
type Recon struct {
	// Rate caps service calls per second. 0 means unlimited.
	Rate float64 `yaml:"rate"`
	// BatchSize applies to services without their own batch size.
	BatchSize int `yaml:"batch_size"`
}

// History configures the history log.
type History struct {
	Fsync bool `yaml:"fsync"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Binning:  Binning{MaxBins: 100},
		Process:  Process{BatchDelay: 50 * time.Millisecond, Concurrency: 1},
		Recon:    Recon{BatchSize: 10},
	}
}

// Validate checks that every value is in range.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Binning.MaxBins <= 0 {
		return errors.New("binning.max_bins must be positive")
	}
	if c.Process.BatchDelay < 0 {
		return errors.New("process.batch_delay must be non-negative")
	}
	if c.Process.Concurrency <= 0 {
		return errors.New("process.concurrency must be positive")
	}
	if c.Recon.Rate < 0 {
		return errors.New("recon.rate must be non-negative")
	}
	if c.Recon.BatchSize <= 0 {
		return errors.New("recon.batch_size must be positive")
	}
	return nil
}

// ProjectsDir returns where projects live for a configuration loaded from
// dataDir.
func (c *Config) ProjectsDir(dataDir string) string {
	switch {
	case c.DataDir == "":
		return dataDir
	case filepath.IsAbs(c.DataDir):
		return c.DataDir
	}
	return filepath.Join(dataDir, c.DataDir)
}

// Env returns the operation settings.
func (c *Config) Env() *operations.Env {
	return &operations.Env{
		Facets: facets.Options{MaxBins: c.Binning.MaxBins},
		Recon: recon.RunOptions{
			Concurrency: c.Process.Concurrency,
			BatchDelay:  c.Process.BatchDelay,
		},
		ReconRate:      c.Recon.Rate,
		ReconBatchSize: c.Recon.BatchSize,
	}
}

// ParseLevel converts a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %q", s)
}

// Load loads dataDir/facetdb.yaml. Missing fields keep their default and the
// file is created with defaults if it does not exist.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir.
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save writes the configuration to dataDir/facetdb.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: data directory.
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o644); err != nil { //nolint:gosec // G306: not a secret.
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
