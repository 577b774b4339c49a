package strategy

import (
	"fmt"
	"sync"

	"github.com/taurusjun/barbacktest/pkg/engine"
)

// Factory builds a configured Strategy from a parameter map, mirroring the
// teacher's IndicatorFactory convention (pkg/indicators/indicator.go).
type Factory func(config map[string]interface{}) engine.Strategy

// Registry is a named collection of strategy factories, grounded on the
// teacher's IndicatorLibrary: a name-keyed factory map with a default
// instance pre-populated with this package's built-in strategies.
type Registry struct {
	mu       sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds a Strategy by name, mirroring IndicatorLibrary.Create's
// "unknown factory" error convention.
func (r *Registry) Create(name string, config map[string]interface{}) (engine.Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy type: %s", name)
	}
	return factory(config), nil
}

// DefaultRegistry returns a Registry pre-populated with this package's
// built-in reference strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("sma_cross", func(config map[string]interface{}) engine.Strategy {
		return NewSMACrossFromConfig(config)
	})
	return r
}
