package config

import "testing"

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg == nil {
		t.Fatal("NewDefaultConfig returned nil")
	}
	if cfg.Agent.Type != DefaultAgentType {
		t.Errorf("expected agent type %q, got %q", DefaultAgentType, cfg.Agent.Type)
	}
	if cfg.Sessions.Count != DefaultSessionCount {
		t.Errorf("expected session count %d, got %d", DefaultSessionCount, cfg.Sessions.Count)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("expected log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("expected log format %q, got %q", DefaultLogFormat, cfg.Logging.Format)
	}
}

func TestConfig_Validate_DefaultIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestAgentConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AgentConfig
		wantErr bool
	}{
		{name: "valid type", config: AgentConfig{Type: "copilot"}, wantErr: false},
		{name: "empty type", config: AgentConfig{Type: ""}, wantErr: true},
		{name: "whitespace-only type", config: AgentConfig{Type: "   "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		wantErr bool
	}{
		{name: "minimum", count: 1, wantErr: false},
		{name: "maximum", count: 10, wantErr: false},
		{name: "below minimum", count: 0, wantErr: true},
		{name: "above maximum", count: 11, wantErr: true},
		{name: "negative", count: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := SessionsConfig{Count: tt.count}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{name: "valid debug level", config: LoggingConfig{Level: "debug", Format: "json"}, wantErr: false},
		{name: "valid info level", config: LoggingConfig{Level: "info", Format: "text"}, wantErr: false},
		{name: "invalid log level", config: LoggingConfig{Level: "invalid", Format: "json"}, wantErr: true},
		{name: "invalid log format", config: LoggingConfig{Level: "info", Format: "invalid"}, wantErr: true},
		{name: "empty values are valid", config: LoggingConfig{Level: "", Format: ""}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
	}{
		{
			name:    "disabled is always valid",
			config:  TracingConfig{Enabled: false},
			wantErr: false,
		},
		{
			name:    "enabled stdout is valid",
			config:  TracingConfig{Enabled: true, ExporterType: "stdout", ServiceName: "flowctl", SampleRate: 1},
			wantErr: false,
		},
		{
			name:    "enabled otlp without endpoint is invalid",
			config:  TracingConfig{Enabled: true, ExporterType: "otlp", ServiceName: "flowctl", SampleRate: 1},
			wantErr: true,
		},
		{
			name:    "sample rate out of range is invalid",
			config:  TracingConfig{Enabled: true, ExporterType: "none", ServiceName: "flowctl", SampleRate: 2},
			wantErr: true,
		},
		{
			name:    "missing service name is invalid",
			config:  TracingConfig{Enabled: true, ExporterType: "none", SampleRate: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Agent:    AgentConfig{Type: ""},
		Sessions: SessionsConfig{Count: 0},
		Logging:  LoggingConfig{Level: "invalid", Format: "text"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Error("expected validation error, got nil")
	}
}
