package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatorLookupOrder(t *testing.T) {
	pricing := NewPricing(PricingTable{
		"acme": {
			"acme-large": {InputPer1K: 0.01, OutputPer1K: 0.03},
			"acme-flat":  {Per1K: 0.002},
		},
	})
	calc := NewCalculator(pricing)

	// Registry hit: input/output averaged.
	assert.InDelta(t, 0.02/1000, calc.PerToken("acme-large"), 1e-12)
	// Registry hit: flat rate.
	assert.InDelta(t, 0.002/1000, calc.PerToken("acme-flat"), 1e-12)
	// Built-in fallback table.
	assert.InDelta(t, 3e-5, calc.PerToken("gpt-4"), 1e-12)
	// Unknown model: conservative flat rate, calculation still defined.
	assert.InDelta(t, FallbackPerToken, calc.PerToken("no-such-model"), 1e-12)

	assert.InDelta(t, 1000*3e-5, calc.Cost("gpt-4", 1000), 1e-12)
	assert.Equal(t, 0.0, calc.Cost("gpt-4", 0))
}

func TestPricingLoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
acme:
  acme-large:
    input_per_1k: 0.01
    output_per_1k: 0.03
`), 0o644))

	pricing, err := LoadPricing(path)
	require.NoError(t, err)

	rate, ok := pricing.Rate("acme", "acme-large")
	require.True(t, ok)
	assert.InDelta(t, 0.02/1000, rate.PerToken(), 1e-12)

	// Cache ignores file changes until an explicit reload.
	require.NoError(t, os.WriteFile(path, []byte(`
acme:
  acme-large:
    per_1k: 0.1
`), 0o644))
	rate, _ = pricing.Rate("acme", "acme-large")
	assert.InDelta(t, 0.02/1000, rate.PerToken(), 1e-12)

	require.NoError(t, pricing.Reload())
	rate, _ = pricing.Rate("acme", "acme-large")
	assert.InDelta(t, 0.1/1000, rate.PerToken(), 1e-12)
}

func TestPricingMissingFile(t *testing.T) {
	pricing, err := LoadPricing(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	_, ok := pricing.Rate("", "anything")
	assert.False(t, ok)
}
