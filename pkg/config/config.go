// Package config loads the procflow runtime configuration.
//
// Values are resolved in three layers: built-in defaults, then an optional
// YAML file, then PROCFLOW_* environment variables. The result is checked
// with struct validation before use.
//
// A minimal file selecting the embedded engine:
//
//	engine:
//	  type: embedded
//	  embedded:
//	    path: /var/lib/procflow/engine.db
//	server:
//	  address: 0.0.0.0:8080
//
// The same setting through the environment:
//
//	PROCFLOW_ENGINE_TYPE=flowable
//	PROCFLOW_ENGINE_FLOWABLE_BASE_URL=http://flowable:8080/flowable-rest/service
package config

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/procflow/procflow/pkg/api"
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/telemetry"
)

// Config is the complete runtime configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" envPrefix:"ENGINE_"`
	Banking   BankingConfig   `yaml:"banking" envPrefix:"BANKING_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Bridge    BridgeConfig    `yaml:"bridge" envPrefix:"BRIDGE_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Watch     WatchConfig     `yaml:"watch" envPrefix:"WATCH_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`

	// envPrefix is set by Load and applied to the backend section.
	envPrefix string
}

// EngineConfig selects and configures the process engine.
type EngineConfig struct {
	// Type is the engine type tag, matched case-insensitively. Resolving it
	// is left to the engine selector, which rejects unknown and blank values
	// alike.
	Type string `yaml:"type" env:"TYPE"`

	// Backends holds the settings section of each engine type, keyed by the
	// lower-case type name. Only the section of the selected type is
	// decoded, by the backend itself.
	Backends map[string]yaml.Node `yaml:",inline"`
}

// BankingConfig configures the core-banking client. Banking operations are
// unavailable when BaseURL is empty.
type BankingConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	TenantID string        `yaml:"tenant_id" env:"TENANT_ID"`
	Username string        `yaml:"username" env:"USERNAME"`
	Password string        `yaml:"password" env:"PASSWORD"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
}

// AuthConfig controls the authentication gate.
type AuthConfig struct {
	// Required gates every operation except login on a held credential.
	Required bool `yaml:"required" env:"REQUIRED"`

	// LoginOnStart logs in with the banking credentials at startup.
	LoginOnStart bool `yaml:"login_on_start" env:"LOGIN_ON_START"`
}

// BridgeConfig bounds the wait on asynchronous calls.
type BridgeConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"ADDRESS" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
}

// WatchConfig configures the deployment directory watcher. Watching is off
// when Dir is empty.
type WatchConfig struct {
	Dir         string        `yaml:"dir" env:"DIR"`
	Debounce    time.Duration `yaml:"debounce" env:"DEBOUNCE" validate:"gte=0"`
	InitialSync bool          `yaml:"initial_sync" env:"INITIAL_SYNC"`
}

// TelemetryConfig configures logging, tracing and metrics.
type TelemetryConfig struct {
	Environment     string  `yaml:"environment" env:"ENVIRONMENT"`
	LogLevel        string  `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=trace debug info warn error fatal"`
	LogFormat       string  `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=console json"`
	TracingEnabled  bool    `yaml:"tracing_enabled" env:"TRACING_ENABLED"`
	TracingExporter string  `yaml:"tracing_exporter" env:"TRACING_EXPORTER" validate:"oneof=otlp stdout none"`
	TracingEndpoint string  `yaml:"tracing_endpoint" env:"TRACING_ENDPOINT"`
	SamplingRate    float64 `yaml:"sampling_rate" env:"SAMPLING_RATE" validate:"gte=0,lte=1"`
	MetricsEnabled  bool    `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	MetricsAddress  string  `yaml:"metrics_address" env:"METRICS_ADDRESS"`

	// EventLevel is the lowest lifecycle event level serve writes to the log.
	EventLevel string `yaml:"event_level" env:"EVENT_LEVEL" validate:"oneof=info warning error"`
}

// Default returns the built-in configuration: the embedded engine in
// memory, no core-banking API and the HTTP API on port 8080.
func Default() *Config {
	srv := api.DefaultServerConfig()
	tel := telemetry.DefaultConfig()
	return &Config{
		Engine: EngineConfig{Type: "EMBEDDED"},
		Banking: BankingConfig{
			TenantID: "default",
			Timeout:  60 * time.Second,
		},
		Bridge: BridgeConfig{Timeout: 30 * time.Second},
		Server: ServerConfig{
			Address:      srv.Address,
			ReadTimeout:  srv.ReadTimeout,
			WriteTimeout: srv.WriteTimeout,
		},
		Watch: WatchConfig{Debounce: 500 * time.Millisecond},
		Telemetry: TelemetryConfig{
			Environment:     tel.Environment,
			LogLevel:        tel.Logging.Level,
			LogFormat:       tel.Logging.Format,
			TracingExporter: tel.Tracing.Exporter,
			SamplingRate:    tel.Tracing.SamplingRate,
			MetricsEnabled:  tel.Metrics.Enabled,
			EventLevel:      telemetry.EventLevelWarning,
		},
	}
}

// Backend returns the settings section of the configured engine type.
func (c *Config) Backend() engine.BackendConfig {
	name := strings.ToLower(engine.NormalizeType(c.Engine.Type))
	sec := &backendSection{name: name}
	if node, ok := c.Engine.Backends[name]; ok {
		sec.node = &node
	}
	if c.envPrefix != "" {
		sec.envPrefix = c.envPrefix + "ENGINE_" + strings.ToUpper(name) + "_"
	}
	return sec
}

// APIServer returns the HTTP server settings.
func (c *Config) APIServer() api.ServerConfig {
	return api.ServerConfig{
		Address:      c.Server.Address,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
	}
}

// TelemetryConfig returns the telemetry settings for version, starting
// from the profile of the configured environment.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tel := telemetry.ForEnvironment(c.Telemetry.Environment)
	tel.ServiceVersion = version
	tel.Logging.Level = c.Telemetry.LogLevel
	tel.Logging.Format = c.Telemetry.LogFormat
	tel.Tracing.Enabled = c.Telemetry.TracingEnabled
	tel.Tracing.Exporter = c.Telemetry.TracingExporter
	tel.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	tel.Tracing.SamplingRate = c.Telemetry.SamplingRate
	tel.Metrics.Enabled = c.Telemetry.MetricsEnabled
	tel.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	return tel
}
