package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/procflow/procflow/pkg/faults"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PROCFLOW_"

// Load resolves the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, faults.Configuration(fmt.Sprintf("failed to read config file: %v", err))
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, faults.Configuration(fmt.Sprintf("failed to parse config file %s: %v", path, err))
		}
	}

	cfg.envPrefix = EnvPrefix
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, faults.Configuration(fmt.Sprintf("failed to parse environment: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decodeYAML(data); err != nil {
		return nil, faults.Configuration(fmt.Sprintf("failed to parse config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// Validate checks the configuration. Failures are configuration faults
// listing every offending field. The engine type and the settings of the
// selected backend are checked when the engine is selected.
func (c *Config) Validate() error {
	fields, problems, err := structErrors(validator.New().Struct(c))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(c.Engine.Backends))
	for name := range c.Engine.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		node := c.Engine.Backends[name]
		if node.Kind != yaml.MappingNode && !isNull(&node) {
			fields = append(fields, "Config.Engine."+name)
			problems = append(problems, fmt.Sprintf("engine.%s must be a backend settings section", name))
		}
	}

	if c.Auth.LoginOnStart && (c.Banking.BaseURL == "" || c.Banking.Username == "") {
		fields = append(fields, "Config.Auth.LoginOnStart")
		problems = append(problems, "auth.login_on_start needs banking.base_url and banking.username")
	}

	if len(problems) == 0 {
		return nil
	}
	return faults.Configuration("invalid configuration: " + strings.Join(problems, "; ")).WithDetail("fields", fields)
}

// structErrors flattens a validator result into field namespaces and
// readable problems.
func structErrors(err error) (fields, problems []string, _ error) {
	if err == nil {
		return nil, nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, nil, faults.Configuration(err.Error())
	}
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
		problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fields, problems, nil
}
