// Package platform supplies the payload producers that decide where a
// unit's code lands and what platform guidance travels with it.
package platform

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/forge/internal/delivery"
)

// Generic is the producer used when a component names no platform.
const Generic = "generic"

// Request carries everything a producer may look at.
type Request struct {
	Component string
	Unit      delivery.WorkUnit
}

// Producer fills the opaque payload of a work unit.
type Producer interface {
	Name() string
	Produce(Request) (delivery.Payload, error)
}

// Factory constructs a producer.
type Factory func() (Producer, error)

// Registry maintains known producer factories keyed by platform name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry holding the built-in producers.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, rules := range builtinRules() {
		reg.MustRegister(rules.Name, rules.Factory())
	}
	return reg
}

// Register installs a producer factory. Returns an error if the name already exists.
func (r *Registry) Register(name string, factory Factory) error {
	key := normalizeName(name)
	if key == "" {
		return fmt.Errorf("platform: name is required")
	}
	if factory == nil {
		return fmt.Errorf("platform: factory is required for %s", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("platform: %s already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// Replace installs factory, overriding any existing registration.
func (r *Registry) Replace(name string, factory Factory) error {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return fmt.Errorf("platform: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs the producer registered under name. An empty name
// resolves to the generic producer.
func (r *Registry) Resolve(name string) (Producer, error) {
	key := normalizeName(name)
	if key == "" {
		key = Generic
	}
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("platform: unknown platform %s", key)
	}
	producer, err := factory()
	if err != nil {
		return nil, fmt.Errorf("platform: build %s: %w", key, err)
	}
	return producer, nil
}

// Names returns a sorted list of registered platforms.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
