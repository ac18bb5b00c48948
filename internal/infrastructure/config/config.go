// Package config provides configuration structs and utilities for flowctl.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the root configuration for flowctl, read from
// .speckit/speckit-flow.yaml at the repository root.
type Config struct {
	Agent         AgentConfig         `yaml:"agent"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// AgentConfig identifies which agent adapter drives each session.
type AgentConfig struct {
	Type string `yaml:"type"` // e.g. "copilot"
}

// SessionsConfig controls how many concurrent sessions are assigned work.
type SessionsConfig struct {
	Count int `yaml:"count"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// Default configuration values.
const (
	DefaultAgentType       = "copilot"
	MinSessionCount        = 1
	MaxSessionCount        = 10
	DefaultSessionCount    = 3
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultTracingEnabled  = false
	DefaultTracingExporter = "none"
	DefaultTracingSample   = 1.0
	DefaultTracingService  = "flowctl"

	// PollInterval is the default completion-monitor polling cadence.
	PollInterval = 500 * time.Millisecond

	// CheckpointRetention is the default number of checkpoints kept in the ring.
	CheckpointRetention = 10
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"json": true, "text": true}
var validTracingExporterTypes = map[string]bool{"none": true, "stdout": true, "otlp": true}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{Type: DefaultAgentType},
		Sessions: SessionsConfig{
			Count: DefaultSessionCount,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporter,
				SampleRate:   DefaultTracingSample,
				ServiceName:  DefaultTracingService,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Agent.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("agent: %w", err))
	}
	if err := c.Sessions.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks if the AgentConfig is valid.
func (a *AgentConfig) Validate() error {
	if strings.TrimSpace(a.Type) == "" {
		return errors.New("type is required")
	}
	return nil
}

// Validate checks if the SessionsConfig is valid.
func (s *SessionsConfig) Validate() error {
	if s.Count < MinSessionCount || s.Count > MaxSessionCount {
		return fmt.Errorf("count must be between %d and %d, got %d", MinSessionCount, MaxSessionCount, s.Count)
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error
	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	return o.Tracing.Validate()
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error
	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
