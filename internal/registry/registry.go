// Package registry maps transport names to their factories.
package registry

import (
	"sort"
	"sync"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/providers/factory"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]common.Factory
}

// New returns a registry preloaded with the built-in transports.
func New() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// NewEmpty returns a registry with nothing registered.
func NewEmpty() *Registry {
	return &Registry{factories: make(map[string]common.Factory)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Register adds factory under name. Names are never overwritten.
func (r *Registry) Register(name string, f common.Factory) error {
	if name == "" || f == nil {
		return common.NewConfiguration("Transport name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return common.NewConfiguration("Transport %q is already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (common.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, common.NewConfiguration("Transport %q not found", name)
	}
	return f, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]common.Factory)
}

// Reset clears the registry and registers the built-in transports again.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = factory.Defaults()
}
