// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides, e.g. LISREL_BATCH_OUTPUT_DIR.
const envPrefix = "LISREL_"

// Config holds every setting the pipeline needs
type Config struct {
	Report     ReportConfig     `koanf:"report"`
	Acceptance AcceptanceConfig `koanf:"acceptance"`
	Dimensions DimensionsConfig `koanf:"dimensions"`
	Batch      BatchConfig      `koanf:"batch"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ReportConfig lists the marker strings of the LISREL output format.
type ReportConfig struct {
	ModelStart string `koanf:"model_start" validate:"required"`
	FitSection string `koanf:"fit_section" validate:"required"`
	Terminator string `koanf:"terminator" validate:"required"`
	BlockLabel string `koanf:"block_label" validate:"required"`
	VarPrefix  string `koanf:"var_prefix" validate:"required"`
	RMSEALabel string `koanf:"rmsea_label" validate:"required"`
	NNFILabel  string `koanf:"nnfi_label" validate:"required"`
	CFILabel   string `koanf:"cfi_label" validate:"required"`
	SRMRLabel  string `koanf:"srmr_label" validate:"required"`
	Encoding   string `koanf:"encoding" validate:"required"`
}

// AcceptanceConfig is the "excellent fit" rule.
type AcceptanceConfig struct {
	RMSEAMax float64 `koanf:"rmsea_max"`
	NNFIMin  float64 `koanf:"nnfi_min"`
	CFIMin   float64 `koanf:"cfi_min"`
	SRMRMax  float64 `koanf:"srmr_max"`
	// How many of the four thresholds have to be met
	Required int `koanf:"required" validate:"gte=1,lte=4"`
}

// DimensionsConfig is the modeled variable set: lagged variables come first.
type DimensionsConfig struct {
	Variables int `koanf:"variables" validate:"gt=0"`
	Lagged    int `koanf:"lagged" validate:"gt=0,ltfield=Variables"`
}

// BatchConfig controls which files are read and where artifacts go.
type BatchConfig struct {
	InputDir  string `koanf:"input_dir"`
	OutputDir string `koanf:"output_dir"`
	Pattern   string `koanf:"pattern" validate:"required"`
	Workbook  bool   `koanf:"workbook"`
}

// LoggingConfig holds the logger settings
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the settings used for GIMME uSEM output with 18 regions.
func DefaultConfig() Config {
	return Config{
		Report: ReportConfig{
			ModelStart: "LISREL Estimates (Maximum Likelihood)",
			FitSection: "Goodness of Fit Statistics",
			Terminator: "Covariance Matrix of ETA",
			BlockLabel: "BETA",
			VarPrefix:  "VAR",
			RMSEALabel: "Root Mean Square Error of Approximation (RMSEA)",
			NNFILabel:  "Non-Normed Fit Index (NNFI)",
			CFILabel:   "Comparative Fit Index (CFI)",
			SRMRLabel:  "Standardized RMR",
			Encoding:   "ISO-8859-1",
		},
		Acceptance: AcceptanceConfig{
			RMSEAMax: 0.05,
			NNFIMin:  0.95,
			CFIMin:   0.95,
			SRMRMax:  0.05,
			Required: 2,
		},
		Dimensions: DimensionsConfig{
			Variables: 36,
			Lagged:    18,
		},
		Batch: BatchConfig{
			InputDir:  ".",
			OutputDir: "extracted",
			Pattern:   "*.txt",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig builds the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (LISREL_BATCH_OUTPUT_DIR, LISREL_ACCEPTANCE_REQUIRED, ...)
//  2. YAML file at path, if path is not empty
//  3. DefaultConfig
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// LISREL_BATCH_OUTPUT_DIR -> batch.output_dir
	// Only the first underscore separates section from field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
