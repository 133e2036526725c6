package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/dispatch/pkg/errors"
)

// Constructor builds an adapter instance on first use.
type Constructor func() (Adapter, error)

// PluginSpec describes a deferred adapter living outside the binary.
// It is resolved by a PluginLoader on first use.
type PluginSpec struct {
	// Module is the plugin module path or shared-object location
	Module string `yaml:"module" json:"module"`

	// Symbol is the constructor symbol inside the module
	Symbol string `yaml:"symbol" json:"symbol"`

	// Param is an optional constructor parameter
	Param string `yaml:"param,omitempty" json:"param,omitempty"`
}

// PluginLoader resolves plugin specs into adapter instances.
// The core does not require plugins to function; a registry without a
// loader reports plugin entries as construction failures.
type PluginLoader interface {
	Load(spec PluginSpec) (Adapter, error)
}

// entry holds one registration in whichever of the three modes it was
// made: prebuilt instance, constructor, or plugin descriptor.
type entry struct {
	instance Adapter
	ctor     Constructor
	plugin   *PluginSpec
}

// Registry is a keyed mapping from adapter key to adapter, with lazy
// construction and failure memoization. First construction per key is
// serialized; later lookups hit the cache.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	failed  map[string]error
	loader  PluginLoader
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		failed:  make(map[string]error),
	}
}

// WithPluginLoader sets the loader used to resolve plugin entries.
func (r *Registry) WithPluginLoader(loader PluginLoader) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = loader
	return r
}

// Register adds a prebuilt adapter instance under the given key.
func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{instance: a}
	delete(r.failed, name)
}

// RegisterConstructor adds a lazily-constructed adapter under the key.
// The constructor runs at most once; its failure is remembered so later
// lookups short-circuit with the same diagnostic.
func (r *Registry) RegisterConstructor(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{ctor: ctor}
	delete(r.failed, name)
}

// RegisterPlugin adds a deferred plugin entry under the key.
func (r *Registry) RegisterPlugin(name string, spec PluginSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{plugin: &spec}
	delete(r.failed, name)
}

// Get returns the adapter registered under name, constructing it on
// first use. Failed constructions are remembered; repeated lookups
// return the original diagnostic without re-running the constructor.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	if ok && e.instance != nil {
		r.mu.RUnlock()
		return e.instance, nil
	}
	if prev, failed := r.failed[name]; failed {
		r.mu.RUnlock()
		return nil, prev
	}
	r.mu.RUnlock()

	if !ok {
		return nil, &errors.NotFoundError{Resource: "adapter", ID: name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock: another goroutine may have won the
	// construction race while we waited.
	if e.instance != nil {
		return e.instance, nil
	}
	if prev, failed := r.failed[name]; failed {
		return nil, prev
	}

	instance, err := r.construct(name, e)
	if err != nil {
		r.failed[name] = err
		return nil, err
	}
	e.instance = instance
	return instance, nil
}

// construct runs the entry's constructor or plugin loader.
// Caller holds the write lock.
func (r *Registry) construct(name string, e *entry) (Adapter, error) {
	switch {
	case e.ctor != nil:
		a, err := e.ctor()
		if err != nil {
			return nil, &errors.AdapterError{
				Adapter: name,
				Message: "construction failed",
				Cause:   err,
			}
		}
		return a, nil
	case e.plugin != nil:
		if r.loader == nil {
			return nil, &errors.AdapterError{
				Adapter:    name,
				Message:    "plugin entry registered but no plugin loader configured",
				Suggestion: "configure a PluginLoader or register a constructor",
			}
		}
		a, err := r.loader.Load(*e.plugin)
		if err != nil {
			return nil, &errors.AdapterError{
				Adapter: name,
				Message: fmt.Sprintf("plugin load failed for %s.%s", e.plugin.Module, e.plugin.Symbol),
				Cause:   err,
			}
		}
		return a, nil
	default:
		return nil, &errors.AdapterError{Adapter: name, Message: "empty registry entry"}
	}
}

// Has reports whether a key is registered in any mode.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns all registered keys in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors enumerates registered adapters without forcing
// construction. Constructed entries report their real kind and
// availability; lazy entries get a default deterministic, available
// descriptor so the router may still consider them.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.entries))
	for name, e := range r.entries {
		if e.instance != nil {
			descriptors = append(descriptors, Descriptor{
				Name:        name,
				Kind:        e.instance.Kind(),
				Description: e.instance.Description(),
				Available:   e.instance.IsAvailable(),
			})
			continue
		}
		if _, failed := r.failed[name]; failed {
			descriptors = append(descriptors, Descriptor{Name: name, Kind: KindDeterministic, Available: false})
			continue
		}
		descriptors = append(descriptors, Descriptor{Name: name, Kind: KindDeterministic, Available: true})
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	return descriptors
}

// Available returns an adapter only when it resolves and reports
// IsAvailable. The error distinguishes "not found", "construction
// failed", and "unavailable"; all surface as non-fatal routing
// information.
func (r *Registry) Available(name string) (Adapter, error) {
	a, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !a.IsAvailable() {
		return nil, &errors.AdapterError{
			Adapter:    name,
			Message:    "adapter unavailable",
			Suggestion: "check required binaries, API keys, or network",
		}
	}
	return a, nil
}
