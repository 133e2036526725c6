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

package gate

import (
	"fmt"
	"os"

	"github.com/tombee/dispatch/pkg/errors"
	"gopkg.in/yaml.v3"
)

// specFile is the YAML document shape for a gate file: a top-level
// gates list, each entry a Spec.
type specFile struct {
	Gates []Spec `yaml:"gates"`
}

// LoadSpecs reads gate specs from a YAML file.
func LoadSpecs(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading gate file %s", path)
	}
	return ParseSpecs(data)
}

// ParseSpecs parses gate specs from YAML bytes and checks that every
// gate names a type.
func ParseSpecs(data []byte) ([]Spec, error) {
	var doc specFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing gate file")
	}
	if len(doc.Gates) == 0 {
		return nil, &errors.ValidationError{
			Field:      "gates",
			Message:    "gate file must declare at least one gate",
			Suggestion: "add a top-level gates list with type per entry",
		}
	}
	for i, spec := range doc.Gates {
		if spec.Type == "" {
			return nil, &errors.ValidationError{
				Field:   fmt.Sprintf("gates[%d].type", i),
				Message: "gate type is required",
			}
		}
	}
	return doc.Gates, nil
}
