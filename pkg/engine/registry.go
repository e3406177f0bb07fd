package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/procflow/procflow/pkg/faults"
)

// BackendConfig gives a Factory access to the settings section of its own
// engine type. Each backend defines its settings type and decodes into it;
// the selector and the registry never look inside.
type BackendConfig interface {
	// Decode fills target from the section. A missing section leaves target
	// untouched. Invalid settings yield a configuration fault.
	Decode(target interface{}) error
}

// ConfigFunc adapts a function to BackendConfig.
type ConfigFunc func(target interface{}) error

// Decode implements BackendConfig.
func (f ConfigFunc) Decode(target interface{}) error {
	return f(target)
}

// NoConfig is a BackendConfig without settings. Backends fall back to their
// defaults.
var NoConfig BackendConfig = ConfigFunc(func(interface{}) error { return nil })

// Factory constructs a backend.
type Factory func(ctx context.Context, cfg BackendConfig) (Engine, error)

// Registry maps normalised engine-type names to backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NormalizeType trims and upper-cases an engine-type name.
func NormalizeType(engineType string) string {
	return strings.ToUpper(strings.TrimSpace(engineType))
}

// Register adds a factory under engineType.
func (r *Registry) Register(engineType string, factory Factory) error {
	key := NormalizeType(engineType)
	if key == "" {
		return fmt.Errorf("engine type is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for engine type %s is nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("engine type %s already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(engineType string, factory Factory) {
	if err := r.Register(engineType, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for engineType. The configured value is
// normalised first; an empty or whitespace-only value is never found.
func (r *Registry) Lookup(engineType string) (Factory, bool) {
	key := NormalizeType(engineType)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[key]
	return f, ok
}

// Types lists the registered engine types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for k := range r.factories {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Selector owns the single backend chosen at startup. The backend is never
// replaced for the lifetime of the selector.
type Selector struct {
	engineType string
	engine     Engine
}

// NewSelector resolves engineType against the registry and instantiates the
// backend. An unknown, empty or blank type yields a configuration fault
// naming the configured value.
func NewSelector(ctx context.Context, registry *Registry, engineType string, cfg BackendConfig) (*Selector, error) {
	factory, ok := registry.Lookup(engineType)
	if !ok {
		return nil, faults.Configuration(fmt.Sprintf("unsupported engine type: %q", engineType)).
			WithDetail("engine_type", engineType).
			WithDetail("supported", registry.Types())
	}

	if cfg == nil {
		cfg = NoConfig
	}
	eng, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s engine: %w", NormalizeType(engineType), err)
	}

	return &Selector{
		engineType: NormalizeType(engineType),
		engine:     eng,
	}, nil
}

// Engine returns the selected backend.
func (s *Selector) Engine() Engine {
	return s.engine
}

// Type returns the normalised engine type that was selected.
func (s *Selector) Type() string {
	return s.engineType
}

// Close closes the selected backend.
func (s *Selector) Close() error {
	return s.engine.Close()
}
