package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/procflow/procflow/pkg/faults"
)

// flowableSettings and embeddedSettings mirror the settings types the
// backends decode their section into.
type flowableSettings struct {
	BaseURL  string `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type embeddedSettings struct {
	Path string `yaml:"path" env:"PATH"`
}

func fieldsOf(err error) []string {
	fields, _ := faults.From(err).Details["fields"].([]string)
	return fields
}

func hasField(fields []string, want string) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.Type != "EMBEDDED" {
		t.Errorf("engine type = %s", cfg.Engine.Type)
	}
	var settings embeddedSettings
	if err := cfg.Backend().Decode(&settings); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if settings.Path != "" {
		t.Errorf("embedded path = %s", settings.Path)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  type: flowable
  flowable:
    base_url: http://flowable:8080/flowable-rest/service
    username: rest-admin
    password: test
banking:
  base_url: https://bank.example.com/fineract-provider/api/v1
  tenant_id: acme
auth:
  required: true
bridge:
  timeout: 5s
watch:
  dir: /srv/processes
  debounce: 250ms
telemetry:
  log_level: debug
  log_format: json
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Engine.Type != "flowable" {
		t.Errorf("engine type = %s", cfg.Engine.Type)
	}
	var settings flowableSettings
	if err := cfg.Backend().Decode(&settings); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if settings.BaseURL != "http://flowable:8080/flowable-rest/service" || settings.Username != "rest-admin" {
		t.Errorf("unexpected flowable settings %+v", settings)
	}
	if cfg.Banking.TenantID != "acme" || !cfg.Auth.Required {
		t.Errorf("unexpected banking/auth %+v %+v", cfg.Banking, cfg.Auth)
	}
	if cfg.Bridge.Timeout != 5*time.Second || cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("durations not parsed: bridge=%s debounce=%s", cfg.Bridge.Timeout, cfg.Watch.Debounce)
	}
	if cfg.Server.Address != "0.0.0.0:8080" {
		t.Errorf("server address default lost: %s", cfg.Server.Address)
	}

	tel := cfg.TelemetryConfig("1.2.3")
	if tel.ServiceVersion != "1.2.3" || tel.Logging.Level != "debug" || tel.Logging.Format != "json" {
		t.Errorf("unexpected telemetry config %+v", tel.Logging)
	}
	if err := tel.Validate(); err != nil {
		t.Errorf("telemetry config invalid: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "scalar backend section",
			yaml:  "engine:\n  flowable: http://flowable\n",
			field: "Config.Engine.flowable",
		},
		{
			name:  "bad log level",
			yaml:  "telemetry:\n  log_level: loud\n",
			field: "Config.Telemetry.LogLevel",
		},
		{
			name:  "bad event level",
			yaml:  "telemetry:\n  event_level: debug\n",
			field: "Config.Telemetry.EventLevel",
		},
		{
			name:  "zero bridge timeout",
			yaml:  "bridge:\n  timeout: 0s\n",
			field: "Config.Bridge.Timeout",
		},
		{
			name:  "bad banking url",
			yaml:  "banking:\n  base_url: not a url\n",
			field: "Config.Banking.BaseURL",
		},
		{
			name:  "login on start without banking",
			yaml:  "auth:\n  login_on_start: true\n",
			field: "Config.Auth.LoginOnStart",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !faults.IsKind(err, faults.KindConfiguration) {
				t.Fatalf("expected configuration fault, got %v", err)
			}
			if fields := fieldsOf(err); !hasField(fields, tt.field) {
				t.Errorf("fields %v do not name %s", fields, tt.field)
			}
		})
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	for _, doc := range []string{"engine:\n  kind: embedded\n", "engines:\n  type: embedded\n"} {
		_, err := Parse([]byte(doc))
		if !faults.IsKind(err, faults.KindConfiguration) {
			t.Fatalf("%q: expected configuration fault, got %v", doc, err)
		}
	}
}

// Engine types are resolved by the selector, so a blank and a whitespace
// type both pass here and fail there with the same fault.
func TestParse_BlankEngineTypeLeftToSelector(t *testing.T) {
	for _, typ := range []string{`""`, `"   "`} {
		cfg, err := Parse([]byte("engine:\n  type: " + typ + "\n"))
		if err != nil {
			t.Fatalf("type %s: Parse: %v", typ, err)
		}
		if strings.TrimSpace(cfg.Engine.Type) != "" {
			t.Errorf("type %s decoded as %q", typ, cfg.Engine.Type)
		}
	}
}

func TestBackend_DecodesSelectedSectionOnly(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  type: " Embedded "
  embedded:
    path: /var/lib/procflow/engine.db
  flowable:
    base_url: http://flowable:8080
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var settings embeddedSettings
	if err := cfg.Backend().Decode(&settings); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if settings.Path != "/var/lib/procflow/engine.db" {
		t.Errorf("path = %s", settings.Path)
	}
}

func TestBackend_Failures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
		field   string
	}{
		{
			name:    "missing required setting",
			yaml:    "engine:\n  type: flowable\n",
			message: "invalid engine.flowable configuration",
			field:   "flowableSettings.BaseURL",
		},
		{
			name:    "malformed url",
			yaml:    "engine:\n  type: flowable\n  flowable:\n    base_url: not a url\n",
			message: "invalid engine.flowable configuration",
			field:   "flowableSettings.BaseURL",
		},
		{
			name:    "unknown setting",
			yaml:    "engine:\n  type: flowable\n  flowable:\n    baseurl: http://flowable\n",
			message: "failed to parse engine.flowable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			var settings flowableSettings
			err = cfg.Backend().Decode(&settings)
			if !faults.IsKind(err, faults.KindConfiguration) {
				t.Fatalf("expected configuration fault, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not mention %q", err, tt.message)
			}
			if tt.field != "" && !hasField(fieldsOf(err), tt.field) {
				t.Errorf("fields %v do not name %s", fieldsOf(err), tt.field)
			}
		})
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procflow.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  type: embedded\n  embedded:\n    path: /tmp/from-file.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PROCFLOW_ENGINE_EMBEDDED_PATH", "/tmp/from-env.db")
	t.Setenv("PROCFLOW_AUTH_REQUIRED", "true")
	t.Setenv("PROCFLOW_BRIDGE_TIMEOUT", "2s")
	t.Setenv("PROCFLOW_SERVER_ADDRESS", "127.0.0.1:9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Type != "embedded" {
		t.Errorf("file value lost: %s", cfg.Engine.Type)
	}
	var settings embeddedSettings
	if err := cfg.Backend().Decode(&settings); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if settings.Path != "/tmp/from-env.db" {
		t.Errorf("env override ignored: %s", settings.Path)
	}
	if !cfg.Auth.Required || cfg.Bridge.Timeout != 2*time.Second {
		t.Errorf("env values not applied: auth=%v bridge=%s", cfg.Auth.Required, cfg.Bridge.Timeout)
	}
	if cfg.APIServer().Address != "127.0.0.1:9090" {
		t.Errorf("server address = %s", cfg.APIServer().Address)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !faults.IsKind(err, faults.KindConfiguration) {
		t.Fatalf("expected configuration fault, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Type != "EMBEDDED" {
		t.Errorf("engine type = %s", cfg.Engine.Type)
	}
}

func TestLoad_BackendSectionFromEnvironmentOnly(t *testing.T) {
	t.Setenv("PROCFLOW_ENGINE_TYPE", "flowable")
	t.Setenv("PROCFLOW_ENGINE_FLOWABLE_BASE_URL", "http://flowable:8080/flowable-rest/service")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var settings flowableSettings
	if err := cfg.Backend().Decode(&settings); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if settings.BaseURL != "http://flowable:8080/flowable-rest/service" {
		t.Errorf("base url = %s", settings.BaseURL)
	}
}
