// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables read by Load.
const envPrefix = "AUTHSHIELD_"

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates it. A missing config file is not
// an error; a malformed one is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps an environment variable to a koanf path. Only the
// first underscore separates the section from the key; the rest of the
// name is the key verbatim, so AUTHSHIELD_RISK_MIN_BASELINE_SAMPLES maps
// to risk.min_baseline_samples. Every section name is a single word.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

// Validate checks structural constraints plus the cross-field rules the
// tag language cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	weightSum := cfg.Risk.DeviceWeight + cfg.Risk.TLSWeight + cfg.Risk.BehavioralWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("invalid configuration: trust weights sum to %v, must sum to 1.0", weightSum)
	}

	if cfg.Risk.StepUpThreshold >= cfg.Risk.AllowThreshold {
		return fmt.Errorf("invalid configuration: step_up_threshold %v must be below allow_threshold %v",
			cfg.Risk.StepUpThreshold, cfg.Risk.AllowThreshold)
	}

	if cfg.Risk.CriticalSpeedKmh <= cfg.Risk.ImpossibleSpeedKmh {
		return fmt.Errorf("invalid configuration: critical_speed_kmh %v must exceed impossible_speed_kmh %v",
			cfg.Risk.CriticalSpeedKmh, cfg.Risk.ImpossibleSpeedKmh)
	}

	if cfg.NATS.Enabled && !cfg.NATS.Embedded && cfg.NATS.URL == "" {
		return errors.New("invalid configuration: nats.url required when nats is enabled and not embedded")
	}
	return nil
}
