// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the explorer configuration.
//
// Sources, lowest precedence first: the embedded explorer_defaults.yaml, an
// overlay file, EXPLORER_* and OTEL_* environment variables. Command-line
// flags are applied on top by the caller.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/libexplorer/services/explorer/telemetry"
)

//go:embed explorer_defaults.yaml
var defaultConfigYAML []byte

// DefaultConfigFile is the overlay file looked up in the working directory
// when no path is given.
const DefaultConfigFile = "explorer.config.yaml"

// MaxYAMLFileSize bounds the overlay file (1 MiB).
const MaxYAMLFileSize = 1 << 20

var tracer = otel.Tracer("aleutian.explorer.config")

var (
	// ErrConfigNotFound is returned when an explicitly named overlay file
	// does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the complete explorer configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent reads.
type Config struct {
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Discovery DiscoveryConfig  `yaml:"discovery"`
	Server    ServerConfig     `yaml:"server"`
	Snapshots SnapshotConfig   `yaml:"snapshots"`
	Watch     WatchConfig      `yaml:"watch"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// AnalysisConfig bounds a single run.
type AnalysisConfig struct {
	// MaxFiles caps discovery. 0 means unbounded.
	MaxFiles int `yaml:"max_files" validate:"gte=0"`

	MaxExternalPerModule int `yaml:"max_external_per_module" validate:"gte=0"`

	// MaxEdges caps non-contains edges. 0 means unbounded.
	MaxEdges int `yaml:"max_edges" validate:"gte=0"`

	// Workers is the parse concurrency. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0,lte=256"`

	MaxFileSize int64 `yaml:"max_file_size" validate:"gt=0"`

	InferCalls bool `yaml:"infer_calls"`
}

// DiscoveryConfig controls how library roots and files are found.
type DiscoveryConfig struct {
	SearchPaths   []string          `yaml:"search_paths" validate:"dive,required"`
	UsePythonPath bool              `yaml:"use_python_path"`
	UseVirtualEnv bool              `yaml:"use_virtual_env"`
	Aliases       map[string]string `yaml:"aliases" validate:"dive,keys,required,endkeys,required"`
	Exclude       []string          `yaml:"exclude"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required,hostname_port"`
	RateLimit    float64       `yaml:"rate_limit" validate:"gt=0"`
	RateBurst    int           `yaml:"rate_burst" validate:"gte=1"`
	RunCacheSize int           `yaml:"run_cache_size" validate:"gte=1"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
}

// SnapshotConfig locates the snapshot store.
type SnapshotConfig struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var (
	configMu      sync.RWMutex
	configOnce    sync.Once
	cachedConfig  *Config
	configLoadErr error
)

// Get returns the cached configuration, loading it from DefaultConfigFile
// on first call.
//
// Thread Safety: Safe for concurrent use.
func Get(ctx context.Context) (*Config, error) {
	if ctx == nil {
		return nil, fmt.Errorf("config.Get: ctx must not be nil")
	}

	configMu.RLock()
	if cachedConfig != nil || configLoadErr != nil {
		cfg, err := cachedConfig, configLoadErr
		configMu.RUnlock()
		return cfg, err
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()
	configOnce.Do(func() {
		cachedConfig, configLoadErr = Load(ctx, "")
	})
	return cachedConfig, configLoadErr
}

// Reset clears the cached configuration. Used by tests.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	cachedConfig = nil
	configLoadErr = nil
	configOnce = sync.Once{}
}

// Default returns the embedded defaults with no overlay or environment.
func Default() *Config {
	cfg, err := parse(defaultConfigYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded explorer_defaults.yaml is invalid: %v", err))
	}
	applyDefaults(cfg)
	return cfg
}

// Load builds the configuration from all sources.
//
// Description:
//
//	Parses the embedded defaults, overlays path (or DefaultConfigFile in
//	the working directory when path is empty), applies environment
//	overrides, fills computed defaults and validates the result.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - Overlay file. Empty means DefaultConfigFile, which may be absent.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - ErrConfigNotFound when an explicit path is missing, or a parse
//	or validation error.
func Load(ctx context.Context, path string) (*Config, error) {
	_, span := tracer.Start(ctx, "config.Load")
	defer span.End()

	cfg, err := parse(defaultConfigYAML, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	overlay, source, err := readOverlay(path)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		if cfg, err = parse(overlay, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", source, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("config.source", source),
		attribute.Int("analysis.max_files", cfg.Analysis.MaxFiles),
		attribute.Int("analysis.max_edges", cfg.Analysis.MaxEdges),
	)
	slog.Debug("explorer config loaded",
		slog.String("source", source),
		slog.Int("max_files", cfg.Analysis.MaxFiles),
		slog.Int("search_paths", len(cfg.Discovery.SearchPaths)),
	)
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// parse decodes data over base, or over a fresh Config when base is nil.
func parse(data []byte, base *Config) (*Config, error) {
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}
	cfg := base
	if cfg == nil {
		cfg = &Config{}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readOverlay returns the overlay bytes and a label for the source. A
// missing DefaultConfigFile yields nil bytes and no error.
func readOverlay(path string) ([]byte, string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil, "defaults", nil
		}
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	return data, path, nil
}

// applyEnv applies EXPLORER_* and OTEL_* overrides.
func applyEnv(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"EXPLORER_MAX_FILES", &cfg.Analysis.MaxFiles},
		{"EXPLORER_MAX_EXTERNAL_PER_MODULE", &cfg.Analysis.MaxExternalPerModule},
		{"EXPLORER_MAX_EDGES", &cfg.Analysis.MaxEdges},
		{"EXPLORER_WORKERS", &cfg.Analysis.Workers},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := os.Getenv("EXPLORER_SEARCH_PATHS"); v != "" {
		cfg.Discovery.SearchPaths = filepath.SplitList(v)
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"EXPLORER_SERVER_ADDR", &cfg.Server.Addr},
		{"EXPLORER_SNAPSHOT_DIR", &cfg.Snapshots.Dir},
		{"EXPLORER_LOG_LEVEL", &cfg.Log.Level},
		{"EXPLORER_LOG_FORMAT", &cfg.Log.Format},
		{"EXPLORER_ENV", &cfg.Telemetry.Environment},
		{"OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter},
		{"OTEL_METRICS_EXPORTER", &cfg.Telemetry.MetricExporter},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint},
	}
	for _, e := range strs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}
	return nil
}

// applyDefaults fills values the YAML leaves empty.
func applyDefaults(cfg *Config) {
	if cfg.Snapshots.Dir == "" && !cfg.Snapshots.InMemory {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cfg.Snapshots.Dir = filepath.Join(base, "libexplorer", "snapshots")
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
}
