/*
Copyright 2025 The Pebble Webhook Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config provides layered configuration loading for the Pebble
// webhook: defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahoma/pebble-webhook/pkg/logging"
)

// Config represents the complete webhook configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ServerConfig contains the HTTPS serving configuration
type ServerConfig struct {
	// Port is the HTTPS listen port
	Port int `yaml:"port" json:"port"`

	// CertDir is the directory holding the serving certificate pair
	CertDir string `yaml:"certDir" json:"certDir"`

	// CertName is the certificate file name inside CertDir
	CertName string `yaml:"certName" json:"certName"`

	// KeyName is the private key file name inside CertDir
	KeyName string `yaml:"keyName" json:"keyName"`

	// MaxRequestBytes caps the admission request body size; larger bodies
	// are rejected before decoding
	MaxRequestBytes int64 `yaml:"maxRequestBytes" json:"maxRequestBytes"`

	// ReadHeaderTimeout bounds how long reading request headers may take
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" json:"readHeaderTimeout"`

	// GracefulShutdownTimeout bounds the drain period on shutdown
	GracefulShutdownTimeout time.Duration `yaml:"gracefulShutdownTimeout" json:"gracefulShutdownTimeout"`

	// RateLimit configures optional request throttling on the mutate endpoint
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
}

// RateLimitConfig contains token-bucket throttling settings
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	QPS     float64 `yaml:"qps" json:"qps"`
	Burst   int     `yaml:"burst" json:"burst"`
}

// MetricsConfig contains metrics endpoint settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns the default webhook configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                    8443,
			CertDir:                 "/etc/admission-webhook/tls",
			CertName:                "tls.crt",
			KeyName:                 "tls.key",
			MaxRequestBytes:         3 << 20,
			ReadHeaderTimeout:       5 * time.Second,
			GracefulShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: false,
				QPS:     100.0,
				Burst:   200,
			},
		},
		Logging: *logging.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true},
	}
}

// CertPath returns the full path of the certificate file.
func (s *ServerConfig) CertPath() string {
	return filepath.Join(s.CertDir, s.CertName)
}

// KeyPath returns the full path of the private key file.
func (s *ServerConfig) KeyPath() string {
	return filepath.Join(s.CertDir, s.KeyName)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.CertDir == "" {
		return fmt.Errorf("certificate directory must not be empty")
	}
	if c.Server.CertName == "" || c.Server.KeyName == "" {
		return fmt.Errorf("certificate and key file names must not be empty")
	}
	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("max request bytes must be positive, got %d", c.Server.MaxRequestBytes)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.QPS <= 0 {
			return fmt.Errorf("rate limit QPS must be positive, got %v", c.Server.RateLimit.QPS)
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive, got %d", c.Server.RateLimit.Burst)
		}
	}
	return nil
}

// Loader loads configuration from all sources in priority order
type Loader struct {
	// ConfigFile is the optional YAML configuration file path
	ConfigFile string

	// EnvPrefix is the prefix for environment variables (defaults to "PEBBLE_WEBHOOK")
	EnvPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		EnvPrefix: "PEBBLE_WEBHOOK",
	}
}

// WithConfigFile sets the configuration file path
func (l *Loader) WithConfigFile(path string) *Loader {
	l.ConfigFile = path
	return l
}

// Load loads configuration from all sources in priority order:
// 1. Default configuration
// 2. Configuration file (if specified)
// 3. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if l.ConfigFile != "" {
		if err := l.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	l.loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func (l *Loader) loadFromFile(config *Config) error {
	data, err := os.ReadFile(l.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.ConfigFile, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (l *Loader) loadFromEnv(config *Config) {
	if val := l.getEnv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.Port = port
		}
	}
	if val := l.getEnv("CERT_DIR"); val != "" {
		config.Server.CertDir = val
	}
	if val := l.getEnv("CERT_NAME"); val != "" {
		config.Server.CertName = val
	}
	if val := l.getEnv("KEY_NAME"); val != "" {
		config.Server.KeyName = val
	}
	if val := l.getEnv("MAX_REQUEST_BYTES"); val != "" {
		if limit, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Server.MaxRequestBytes = limit
		}
	}
	if val := l.getEnv("GRACEFUL_SHUTDOWN_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			config.Server.GracefulShutdownTimeout = timeout
		}
	}
	if val := l.getEnv("RATE_LIMIT_ENABLED"); val != "" {
		config.Server.RateLimit.Enabled = l.parseBool(val, config.Server.RateLimit.Enabled)
	}
	if val := l.getEnv("RATE_LIMIT_QPS"); val != "" {
		if qps, err := strconv.ParseFloat(val, 64); err == nil {
			config.Server.RateLimit.QPS = qps
		}
	}
	if val := l.getEnv("RATE_LIMIT_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil {
			config.Server.RateLimit.Burst = burst
		}
	}
	if val := l.getEnv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := l.getEnv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := l.getEnv("METRICS_ENABLED"); val != "" {
		config.Metrics.Enabled = l.parseBool(val, config.Metrics.Enabled)
	}
}

// getEnv returns the value of a prefixed environment variable
func (l *Loader) getEnv(key string) string {
	return os.Getenv(l.EnvPrefix + "_" + key)
}

// parseBool parses a boolean string, returning the fallback on failure
func (l *Loader) parseBool(val string, fallback bool) bool {
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
