package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/procflow/procflow/pkg/faults"
)

// backendSection is the engine.<type> section handed to the selected
// backend. It decodes strictly, applies PROCFLOW_ENGINE_<TYPE>_* overrides
// when loaded from the environment, then validates the struct tags of the
// backend's own settings type.
type backendSection struct {
	name      string
	node      *yaml.Node
	envPrefix string
}

// Decode implements engine.BackendConfig.
func (s *backendSection) Decode(target interface{}) error {
	if s.node != nil && !isNull(s.node) {
		data, err := yaml.Marshal(s.node)
		if err != nil {
			return faults.Configuration(fmt.Sprintf("failed to read engine.%s: %v", s.name, err))
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(target); err != nil {
			return faults.Configuration(fmt.Sprintf("failed to parse engine.%s: %v", s.name, err))
		}
	}

	if s.envPrefix != "" {
		if err := env.ParseWithOptions(target, env.Options{Prefix: s.envPrefix}); err != nil {
			return faults.Configuration(fmt.Sprintf("failed to parse environment for engine.%s: %v", s.name, err))
		}
	}

	fields, problems, err := structErrors(validator.New().Struct(target))
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return faults.Configuration(fmt.Sprintf("invalid engine.%s configuration: %s", s.name, strings.Join(problems, "; "))).
			WithDetail("fields", fields)
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
