package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgerrors "github.com/tombee/dispatch/pkg/errors"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscoverPluginsMergesManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "lint.yaml", `
adapters:
  mega_linter:
    module: example.com/megalint
    symbol: New
`)
	writeManifest(t, dir, "scan.yaml", `
adapters:
  secret_scanner:
    module: example.com/scan
    symbol: NewScanner
    param: deep
`)
	writeManifest(t, dir, "notes.txt", "not a manifest")

	specs, err := DiscoverPlugins(dir)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "example.com/megalint", specs["mega_linter"].Module)
	assert.Equal(t, "NewScanner", specs["secret_scanner"].Symbol)
	assert.Equal(t, "deep", specs["secret_scanner"].Param)
}

func TestDiscoverPluginsMissingDir(t *testing.T) {
	specs, err := DiscoverPlugins(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestDiscoverPluginsRejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken.yaml", "adapters: [not, a, map]\n")

	_, err := DiscoverPlugins(dir)

	var ce *pkgerrors.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestFactoryBuildResolvesManifestPlugins(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "plugins.yaml", `
adapters:
  mega_linter:
    module: example.com/megalint
    symbol: mega_linter
`)
	loader := &stubLoader{}
	registry, err := NewFactory().
		WithPluginDir(dir).
		WithPluginLoader(loader).
		Build()
	require.NoError(t, err)

	a, err := registry.Get("mega_linter")
	require.NoError(t, err)
	assert.Equal(t, "mega_linter", a.Name())
	assert.Equal(t, 1, loader.loads)
}

func TestFactoryExplicitRegistrationWinsOverManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "plugins.yaml", `
adapters:
  code_fixers:
    module: example.com/fixers
    symbol: New
`)
	local := NewDeterministic("code_fixers", "in-process", Profile{})
	registry, err := NewFactory().
		WithPluginDir(dir).
		WithInstance("code_fixers", local).
		Build()
	require.NoError(t, err)

	a, err := registry.Get("code_fixers")
	require.NoError(t, err)
	assert.Same(t, local, a.(*Deterministic))
}

func TestDefaultFactoryRegistersBuiltins(t *testing.T) {
	registry, err := DefaultFactory(BuiltinConfig{ArtifactRoot: t.TempDir()}).Build()
	require.NoError(t, err)

	for _, name := range []string{KeyCodeFixers, KeyVSCodeDiagnostics, KeyPytestRunner, KeyAIEditor} {
		assert.True(t, registry.Has(name), name)
	}
}
