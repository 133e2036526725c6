// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cost

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tombee/dispatch/pkg/errors"
)

// ModelRate prices one model. Rates are USD per 1000 tokens; either
// the input/output pair or the flat per_1k rate may be set.
type ModelRate struct {
	// InputPer1K is the USD price per 1000 input tokens
	InputPer1K float64 `yaml:"input_per_1k,omitempty" json:"input_per_1k,omitempty"`

	// OutputPer1K is the USD price per 1000 output tokens
	OutputPer1K float64 `yaml:"output_per_1k,omitempty" json:"output_per_1k,omitempty"`

	// Per1K is a flat USD price per 1000 tokens
	Per1K float64 `yaml:"per_1k,omitempty" json:"per_1k,omitempty"`
}

// PerToken derives a single USD-per-token rate: the flat rate when
// set, otherwise the average of input and output (or whichever is
// present). Returns 0 when the rate is empty.
func (r ModelRate) PerToken() float64 {
	if r.Per1K > 0 {
		return r.Per1K / 1000
	}
	switch {
	case r.InputPer1K > 0 && r.OutputPer1K > 0:
		return (r.InputPer1K + r.OutputPer1K) / 2 / 1000
	case r.InputPer1K > 0:
		return r.InputPer1K / 1000
	case r.OutputPer1K > 0:
		return r.OutputPer1K / 1000
	}
	return 0
}

// PricingTable maps vendor to model to rate.
type PricingTable map[string]map[string]ModelRate

// Pricing is a cached pricing registry loaded from a YAML file. The
// cache invalidates only on an explicit Reload, never on file watch.
type Pricing struct {
	mu    sync.RWMutex
	path  string
	table PricingTable
}

// NewPricing creates a registry from an in-memory table. A nil table
// yields an empty registry.
func NewPricing(table PricingTable) *Pricing {
	if table == nil {
		table = PricingTable{}
	}
	return &Pricing{table: table}
}

// LoadPricing reads a pricing table from a YAML file. A missing file
// yields an empty registry without error so callers can run on the
// fallback rates alone.
func LoadPricing(path string) (*Pricing, error) {
	p := &Pricing{path: path, table: PricingTable{}}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the backing file and replaces the cached table.
// No-op for registries built from an in-memory table.
func (p *Pricing) Reload() error {
	if p.path == "" {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &errors.ConfigError{Key: "pricing", Reason: "reading pricing file", Cause: err}
	}
	table := PricingTable{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return &errors.ConfigError{Key: "pricing", Reason: "parsing pricing file", Cause: err}
	}

	p.mu.Lock()
	p.table = table
	p.mu.Unlock()
	return nil
}

// Rate looks a model up across all vendors, preferring an exact
// vendor:model hit when vendor is non-empty.
func (p *Pricing) Rate(vendor, model string) (ModelRate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if vendor != "" {
		if models, ok := p.table[vendor]; ok {
			if rate, ok := models[model]; ok {
				return rate, true
			}
		}
		return ModelRate{}, false
	}
	for _, models := range p.table {
		if rate, ok := models[model]; ok {
			return rate, true
		}
	}
	return ModelRate{}, false
}

// Vendors returns the vendors with pricing data.
func (p *Pricing) Vendors() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	vendors := make([]string, 0, len(p.table))
	for v := range p.table {
		vendors = append(vendors, v)
	}
	return vendors
}
