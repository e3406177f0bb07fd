package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config groups the logging, tracing, metrics and event settings of one
// procflow process.
type Config struct {
	ServiceName    string `validate:"required"`
	ServiceVersion string `validate:"required"`

	// Environment selects the profile applied by ForEnvironment.
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn error fatal"`
	Format string `validate:"oneof=console json"`

	// Output is stdout, stderr or a file path opened for append.
	Output string

	EnableCaller bool

	// Sampling lets SamplingInitial messages through per second, then every
	// SamplingThereafter-th.
	EnableSampling     bool
	SamplingInitial    int `validate:"gte=0"`
	SamplingThereafter int `validate:"gte=0"`

	// TimeFormat is rfc3339, unix, unixms or unixmicro.
	TimeFormat string
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled  bool
	Exporter string `validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint     string
	SamplingRate float64 `validate:"gte=0,lte=1"`

	MaxExportBatchSize int `validate:"gte=0"`
	ExportTimeout      time.Duration
	Headers            map[string]string
	Insecure           bool
}

// MetricsConfig configures the Prometheus registry and its optional
// dedicated listener.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string `validate:"required_with=ListenAddress"`
	Namespace     string

	// DefaultHistogramBuckets are latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the lifecycle event publisher.
type EventsConfig struct {
	Enabled bool

	// BufferSize bounds the queue drained by the async worker.
	BufferSize    int `validate:"required_if=Enabled true,gte=0"`
	FlushInterval time.Duration
	MaxBatchSize  int `validate:"gte=0"`
	EnableAsync   bool
}

// Environment profiles understood by ForEnvironment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultConfig returns the settings used when nothing is configured:
// console logs at info, tracing off and events delivered asynchronously.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "procflow",
		ServiceVersion: "dev",
		Environment:    EnvDevelopment,
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stdout",
			EnableCaller:       true,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "procflow",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		Events: EventsConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
			MaxBatchSize:  100,
			EnableAsync:   true,
		},
	}
}

// ForEnvironment returns DefaultConfig adjusted for env. Production logs
// JSON with sampling and unix timestamps, drops caller info and exports
// traces over TLS. Any other value keeps the development defaults under
// that environment name.
func ForEnvironment(env string) *Config {
	cfg := DefaultConfig()
	if env == "" {
		return cfg
	}
	cfg.Environment = env
	if !strings.EqualFold(env, EnvProduction) {
		return cfg
	}

	cfg.Logging.Format = "json"
	cfg.Logging.EnableCaller = false
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// Validate checks the struct tags and reports every violation at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %q constraint failed for %v", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid telemetry configuration: %s", strings.Join(msgs, "; "))
}
