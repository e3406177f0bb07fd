// Package providers wires the built-in process engine backends into an
// engine registry.
package providers

import (
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/providers/embedded"
	"github.com/procflow/procflow/pkg/providers/flowable"
)

// NewRegistry returns a registry holding every built-in backend.
func NewRegistry() *engine.Registry {
	r := engine.NewRegistry()
	r.MustRegister(flowable.Type, flowable.Factory)
	r.MustRegister(embedded.Type, embedded.Factory)
	return r
}
