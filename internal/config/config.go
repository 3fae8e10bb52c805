// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package config loads and validates service configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// then AUTHSHIELD_-prefixed environment variables (AUTHSHIELD_SERVER_PORT
// overrides server.port).
package config

import "time"

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Badger    BadgerConfig    `koanf:"badger"`
	NATS      NATSConfig      `koanf:"nats"`
	Risk      RiskConfig      `koanf:"risk"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
	WebSocket WebSocketConfig `koanf:"websocket"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the DuckDB analytical store.
type DatabaseConfig struct {
	// Path is the DuckDB database file; empty means in-memory.
	Path string `koanf:"path"`
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `koanf:"max_open_conns" validate:"min=1"`
	// RetentionDays prunes behavioral samples and geolocation history
	// older than this. 0 disables pruning.
	RetentionDays int `koanf:"retention_days" validate:"min=0"`
}

// BadgerConfig configures the embedded key-value store used for device
// profiles and TLS fingerprints.
type BadgerConfig struct {
	// Dir is the Badger data directory; empty means in-memory.
	Dir string `koanf:"dir"`
	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// NATSConfig configures the event pipeline.
type NATSConfig struct {
	// Enabled switches event publication on. When false the engine still
	// broadcasts to websocket clients directly.
	Enabled bool `koanf:"enabled"`
	// Embedded runs an in-process NATS server instead of dialing URL.
	Embedded bool `koanf:"embedded"`
	// URL is the server address when Embedded is false.
	URL string `koanf:"url"`
	// StoreDir holds JetStream state for the embedded server.
	StoreDir       string        `koanf:"store_dir"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// RiskConfig carries the scoring and detection policy knobs. Weights and
// thresholds live here rather than in code so operators can tune the
// engine without a rebuild.
type RiskConfig struct {
	MinBaselineSamples int     `koanf:"min_baseline_samples" validate:"min=2"`
	BaselineWindow     int     `koanf:"baseline_window" validate:"min=3"`
	NoBaselineScore    float64 `koanf:"no_baseline_score" validate:"min=0,max=1"`

	// Trust aggregation weights; must sum to 1.0 (validated at load).
	DeviceWeight     float64 `koanf:"device_weight" validate:"min=0,max=1"`
	TLSWeight        float64 `koanf:"tls_weight" validate:"min=0,max=1"`
	BehavioralWeight float64 `koanf:"behavioral_weight" validate:"min=0,max=1"`

	AllowThreshold  float64 `koanf:"allow_threshold" validate:"min=0,max=1"`
	StepUpThreshold float64 `koanf:"step_up_threshold" validate:"min=0,max=1"`

	// Geo-velocity thresholds.
	ImpossibleSpeedKmh float64 `koanf:"impossible_speed_kmh" validate:"min=1"`
	CriticalSpeedKmh   float64 `koanf:"critical_speed_kmh" validate:"min=1"`
}

// SecurityConfig configures transport-level protections.
type SecurityConfig struct {
	// RateLimit is requests per window per client IP on scoring routes.
	RateLimit       int           `koanf:"rate_limit" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// WebSocketConfig configures the live activity feed.
type WebSocketConfig struct {
	// BroadcastBuffer is the per-hub pending message capacity; messages
	// beyond it are dropped with a warning.
	BroadcastBuffer int `koanf:"broadcast_buffer" validate:"min=1"`
	// ClientBuffer is the per-client send queue capacity.
	ClientBuffer int `koanf:"client_buffer" validate:"min=1"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:          "data/authshield.db",
			MaxOpenConns:  4,
			RetentionDays: 90,
		},
		Badger: BadgerConfig{
			Dir:        "data/badger",
			GCInterval: 10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:        true,
			Embedded:       true,
			URL:            "nats://127.0.0.1:4222",
			StoreDir:       "data/nats",
			ConnectTimeout: 5 * time.Second,
		},
		Risk: RiskConfig{
			MinBaselineSamples: 3,
			BaselineWindow:     50,
			NoBaselineScore:    0.85,
			DeviceWeight:       0.35,
			TLSWeight:          0.25,
			BehavioralWeight:   0.40,
			AllowThreshold:     0.72,
			StepUpThreshold:    0.45,
			ImpossibleSpeedKmh: 1000,
			CriticalSpeedKmh:   5000,
		},
		Security: SecurityConfig{
			RateLimit:       120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     nil,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			BroadcastBuffer: 256,
			ClientBuffer:    64,
		},
	}
}
