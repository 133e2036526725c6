package adapter

import (
	"os"
	"path/filepath"

	"github.com/tombee/dispatch/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk shape of a plugin manifest: adapter keys
// mapped to plugin descriptors. Manifests live in a well-known plugin
// directory and are consulted once at factory build time.
type Manifest struct {
	// Adapters maps adapter key to plugin descriptor
	Adapters map[string]PluginSpec `yaml:"adapters"`
}

// Factory assembles a Registry from the three registration modes plus
// optional plugin-manifest discovery. The factory itself holds no
// execution state; Build hands everything to the registry.
type Factory struct {
	instances    map[string]Adapter
	constructors map[string]Constructor
	plugins      map[string]PluginSpec
	loader       PluginLoader
	pluginDir    string
}

// NewFactory creates an empty adapter factory.
func NewFactory() *Factory {
	return &Factory{
		instances:    make(map[string]Adapter),
		constructors: make(map[string]Constructor),
		plugins:      make(map[string]PluginSpec),
	}
}

// WithInstance registers a prebuilt adapter.
func (f *Factory) WithInstance(name string, a Adapter) *Factory {
	f.instances[name] = a
	return f
}

// WithConstructor registers a constructor for deferred building.
func (f *Factory) WithConstructor(name string, ctor Constructor) *Factory {
	f.constructors[name] = ctor
	return f
}

// WithPlugin registers a plugin descriptor for deferred loading.
func (f *Factory) WithPlugin(name string, spec PluginSpec) *Factory {
	f.plugins[name] = spec
	return f
}

// WithPluginLoader sets the loader used to resolve plugin descriptors.
func (f *Factory) WithPluginLoader(loader PluginLoader) *Factory {
	f.loader = loader
	return f
}

// WithPluginDir points discovery at a directory of *.yaml manifests.
// Missing directories are not an error; the core does not require
// plugins to function.
func (f *Factory) WithPluginDir(dir string) *Factory {
	f.pluginDir = dir
	return f
}

// Build constructs the registry: explicit registrations first, then any
// manifest-discovered plugin entries. Explicit registrations win over
// manifest entries with the same key.
func (f *Factory) Build() (*Registry, error) {
	registry := NewRegistry()
	if f.loader != nil {
		registry.WithPluginLoader(f.loader)
	}

	if f.pluginDir != "" {
		discovered, err := DiscoverPlugins(f.pluginDir)
		if err != nil {
			return nil, err
		}
		for name, spec := range discovered {
			registry.RegisterPlugin(name, spec)
		}
	}

	for name, spec := range f.plugins {
		registry.RegisterPlugin(name, spec)
	}
	for name, ctor := range f.constructors {
		registry.RegisterConstructor(name, ctor)
	}
	for name, a := range f.instances {
		registry.Register(name, a)
	}

	return registry, nil
}

// DiscoverPlugins reads every *.yaml manifest in dir and merges their
// adapter entries. A missing directory yields an empty map.
func DiscoverPlugins(dir string) (map[string]PluginSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]PluginSpec{}, nil
		}
		return nil, errors.Wrapf(err, "reading plugin directory %s", dir)
	}

	specs := make(map[string]PluginSpec)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading plugin manifest %s", path)
		}
		var manifest Manifest
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, &errors.ConfigError{
				Key:    path,
				Reason: "invalid plugin manifest",
				Cause:  err,
			}
		}
		for name, spec := range manifest.Adapters {
			specs[name] = spec
		}
	}
	return specs, nil
}
