// Package config provides configuration loading for digestd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LLM_ENDPOINT, HIERARCHICAL_THRESHOLD_THREADS, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/digestd/internal/evidence"
	"github.com/fyrsmithlabs/digestd/internal/gateway"
	"github.com/fyrsmithlabs/digestd/internal/logging"
	"github.com/fyrsmithlabs/digestd/internal/strategy"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Config is the full digestd configuration.
type Config struct {
	UnitID       string                  `koanf:"unit_id"`
	LLM          gateway.Config          `koanf:"llm"`
	Hierarchical strategy.Config         `koanf:"hierarchical"`
	Scoring      evidence.ScoreWeights   `koanf:"scoring"`
	Chunking     evidence.ChunkingConfig `koanf:"chunking"`
	Logging      *logging.Config         `koanf:"logging"`
}

// Load reads configuration from an optional YAML file, then overrides
// with environment variables. Environment variables map section_field:
// LLM_ENDPOINT -> llm.endpoint, HIERARCHICAL_ENABLE_AUTO ->
// hierarchical.enable_auto.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		// SECTION_FIELD_NAME -> section.field_name: split on the first
		// underscore only; field names keep theirs.
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	// An all-zero weight table is a legal policy, so presence of the
	// scoring section decides, not the zero value.
	if !k.Exists("scoring") {
		cfg.Scoring = evidence.DefaultScoreWeights()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.UnitID == "" {
		cfg.UnitID = "default"
	}
	if cfg.LLM.Language == "" {
		cfg.LLM.Language = "ru"
	}
	if cfg.LLM.PrivacyMode == "" {
		cfg.LLM.PrivacyMode = "strict"
	}
	if cfg.LLM.MaxBatchTokens == 0 {
		cfg.LLM.MaxBatchTokens = 6000
	}
	if cfg.LLM.MaxConcurrent == 0 {
		cfg.LLM.MaxConcurrent = 4
	}

	zero := strategy.Config{}
	if cfg.Hierarchical == zero {
		cfg.Hierarchical = strategy.DefaultConfig()
	}

	if cfg.Chunking.MaxChunkChars == 0 {
		cfg.Chunking.MaxChunkChars = evidence.DefaultChunkingConfig().MaxChunkChars
	}

	if cfg.Logging == nil {
		cfg.Logging = logging.NewDefaultConfig()
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if c.LLM.Enabled && c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required when llm.enabled is true")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must be non-negative, got %d", c.LLM.Timeout)
	}
	if c.LLM.MaxConcurrent < 1 {
		return fmt.Errorf("llm.max_concurrent must be at least 1, got %d", c.LLM.MaxConcurrent)
	}
	if err := c.Hierarchical.Validate(); err != nil {
		return fmt.Errorf("hierarchical: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	return nil
}
