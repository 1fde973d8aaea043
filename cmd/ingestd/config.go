package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/compliance-io/compliance/internal/config"
)

// DefaultConfigPath is the default location for the ingestion daemon
// configuration file.
const DefaultConfigPath = ".compliance.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "INGEST_CONFIG_PATH"

// Scan defaults.
const (
	defaultInboundDir      = "./inbound"
	defaultWorkers         = 4
	maxWorkers             = 64
	defaultMaxDocumentSize = 32 << 20 // 32 MiB
)

// ScanConfig holds the folder scanning configuration for the ingestion
// daemon. Values come from an optional YAML file, overridden field by field
// by environment variables.
type ScanConfig struct {
	// InboundDir is the directory scanned for documents to ingest.
	InboundDir string `yaml:"inbound_dir"`

	// Extensions lists the file extensions picked up by a scan (with dot,
	// lowercase). Files with other extensions are ignored.
	Extensions []string `yaml:"extensions"`

	// Workers bounds how many documents are processed concurrently. Rows
	// within a document always stay ordered regardless of this setting.
	Workers int `yaml:"workers"`

	// MaxDocumentSize is the largest file (in bytes) a scan will pick up;
	// larger files are skipped with a warning. Zero disables the limit.
	MaxDocumentSize int64 `yaml:"max_document_size_bytes"`

	// DeleteAfterIngest removes a file from the inbound directory once
	// every stage of its ingestion succeeded. Files with any failure stay
	// put for inspection and re-ingestion.
	DeleteAfterIngest bool `yaml:"delete_after_ingest"`

	// LogLevel is parsed separately from LOG_LEVEL; it is not a YAML field
	// so that log configuration stays uniform across all binaries.
	LogLevel slog.Level `yaml:"-"`
}

// LoadScanConfig loads the scan configuration: YAML file first (missing file
// is fine, scanning is fully configurable from the environment), then
// environment overrides, then validation.
//
// Environment variables:
//   - INGEST_INBOUND_DIR: directory to scan
//   - INGEST_EXTENSIONS: comma-separated extension list (e.g. ".csv,.pdf")
//   - INGEST_WORKERS: concurrent document limit
//   - INGEST_MAX_DOCUMENT_SIZE: per-file byte limit (0 = unlimited)
//   - INGEST_DELETE_AFTER_INGEST: remove fully ingested files
//   - LOG_LEVEL: debug, info, warn, error
func LoadScanConfig() (*ScanConfig, error) {
	cfg := &ScanConfig{
		InboundDir:      defaultInboundDir,
		Extensions:      []string{".csv", ".pdf", ".txt"},
		Workers:         defaultWorkers,
		MaxDocumentSize: defaultMaxDocumentSize,
	}

	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)
	if err := loadConfigFile(cfg, path); err != nil {
		return nil, err
	}

	cfg.InboundDir = config.GetEnvStr("INGEST_INBOUND_DIR", cfg.InboundDir)
	cfg.Workers = config.GetEnvInt("INGEST_WORKERS", cfg.Workers)
	cfg.MaxDocumentSize = config.GetEnvInt64("INGEST_MAX_DOCUMENT_SIZE", cfg.MaxDocumentSize)
	cfg.DeleteAfterIngest = config.GetEnvBool("INGEST_DELETE_AFTER_INGEST", cfg.DeleteAfterIngest)
	cfg.LogLevel = config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo)

	if raw := config.GetEnvStr("INGEST_EXTENSIONS", ""); raw != "" {
		cfg.Extensions = config.ParseCommaSeparatedList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadConfigFile merges the YAML file at path into cfg. A missing file is
// not an error; a malformed one is, so a typo never silently reverts the
// daemon to defaults.
func loadConfigFile(cfg *ScanConfig, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, using defaults",
				slog.String("path", path))

			return nil
		}

		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// Validate checks the scan configuration for invalid values.
func (c *ScanConfig) Validate() error {
	if strings.TrimSpace(c.InboundDir) == "" {
		return errors.New("inbound directory must not be empty")
	}

	if c.Workers < 1 || c.Workers > maxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", maxWorkers, c.Workers)
	}

	if c.MaxDocumentSize < 0 {
		return fmt.Errorf("max document size must not be negative, got %d", c.MaxDocumentSize)
	}

	if len(c.Extensions) == 0 {
		return errors.New("at least one file extension must be configured")
	}

	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}

	return nil
}
