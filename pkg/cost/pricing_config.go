// Copyright 2025 The Sah Authors
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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// PriceOverride is one model's entry in a user pricing override file. Prices
// are given per million tokens (the common public-pricing unit) and
// converted to PricingModel's per-token figures on load.
type PriceOverride struct {
	Model                 string    `yaml:"model"`
	InputPricePerMillion  float64   `yaml:"input_price_per_million"`
	OutputPricePerMillion float64   `yaml:"output_price_per_million"`
	EffectiveDate         time.Time `yaml:"effective_date"`
}

// PriceOverrideFile is the top-level shape of a user pricing override file.
type PriceOverrideFile struct {
	Version string          `yaml:"version"`
	Models  []PriceOverride `yaml:"models"`
}

// StalenessThreshold is how old an override's EffectiveDate can be before
// LoadPricingOverrides reports it in the returned warnings.
const StalenessThreshold = 30 * 24 * time.Hour

// LoadPricingOverrides reads a YAML override file at path and merges its
// entries into base, replacing any matching model and adding any new one.
// A missing file is not an error — base is returned unchanged. Overrides
// older than StalenessThreshold are reported as warning strings rather than
// rejected, since stale pricing is still usable pricing.
func LoadPricingOverrides(base *PricingModel, path string) (warnings []string, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, nil
		}
		return nil, &errors.ResourceError{Resource: "filesystem", Message: "read pricing overrides", Cause: readErr}
	}

	var file PriceOverrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &errors.ParseError{Source: "pricing overrides", Message: err.Error()}
	}

	now := time.Now()
	for _, override := range file.Models {
		base.Prices[override.Model] = ModelPrice{
			InputPerToken:  override.InputPricePerMillion / 1e6,
			OutputPerToken: override.OutputPricePerMillion / 1e6,
		}
		if !override.EffectiveDate.IsZero() && now.Sub(override.EffectiveDate) > StalenessThreshold {
			days := int(now.Sub(override.EffectiveDate).Hours() / 24)
			warnings = append(warnings, fmt.Sprintf("pricing for %s is %d days old", override.Model, days))
		}
	}

	return warnings, nil
}
