// Package engine provides the domain types and the backend abstraction for
// running business processes against a process-execution engine.
//
// # Domain Types
//
//   - ProcessDefinition: a named, versioned template owned by a deployment
//   - ProcessInstance: one execution of a definition (active/completed/terminated)
//   - TaskInfo: a unit of pending work inside an instance
//   - ProcessVariables: name to value mapping used as input and output
//   - DeploymentInfo / DeploymentResult: uploaded artifacts and their outcome
//   - HistoricProcessInstance / ProcessHistory: write-once records of finished instances
//
// # Backends
//
// Every backend implements Engine. Backends are registered in a Registry
// under an engine-type name and exactly one is instantiated at startup
// through NewSelector:
//
//	registry := engine.NewRegistry()
//	registry.MustRegister(flowable.Type, flowable.Factory)
//	registry.MustRegister(embedded.Type, embedded.Factory)
//
//	selector, err := engine.NewSelector(ctx, registry, cfg.Engine.Type, cfg.Backend())
//	if err != nil {
//	    // configuration fault, the process must not start
//	}
//	eng := selector.Engine()
//
// Engine-type names are matched case-insensitively after trimming, so
// "FLOWABLE", "flowable" and "Flowable" resolve to the same backend.
//
// A Factory receives a BackendConfig and decodes its own settings type from
// it, so adding a backend only needs another Register call:
//
//	type Config struct {
//	    BaseURL string `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
//	}
//
//	func Factory(ctx context.Context, cfg engine.BackendConfig) (engine.Engine, error) {
//	    var c Config
//	    if err := cfg.Decode(&c); err != nil {
//	        return nil, err
//	    }
//	    return New(c)
//	}
//
// # Errors
//
// Backends report failures as *faults.Fault values of kind engine carrying
// one of the engine codes in package faults.
//
// # Thread Safety
//
// Registry and all Engine implementations are safe for concurrent use.
package engine
