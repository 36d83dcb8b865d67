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

import "github.com/wballard/swissarmyhammer-sub003/pkg/errors"

// ModelPrice is the per-token price for one model, in dollars per token
// (not per million — §8 scenario 3 states pricing directly as
// in=3e-6, out=1.5e-5).
type ModelPrice struct {
	InputPerToken  float64
	OutputPerToken float64
}

// UnknownModelMode controls PricingModel.Price's behavior for a model
// absent from the table.
type UnknownModelMode int

const (
	// UnknownModelZero returns zero cost for unrecognised models.
	UnknownModelZero UnknownModelMode = iota
	// UnknownModelError returns a ProviderError for unrecognised models.
	UnknownModelError
)

// PricingModel looks up per-token prices by model name.
type PricingModel struct {
	Name   string
	Prices map[string]ModelPrice
	Mode   UnknownModelMode
}

// DefaultPricingModel returns a pricing table seeded with the public
// per-token prices for commonly used Claude models, matching §8 scenario
// 3's claude-3-sonnet figures (in=$3/M, out=$15/M tokens).
func DefaultPricingModel() *PricingModel {
	return &PricingModel{
		Name: "default",
		Prices: map[string]ModelPrice{
			"claude-3-sonnet":   {InputPerToken: 3e-6, OutputPerToken: 1.5e-5},
			"claude-3-opus":     {InputPerToken: 1.5e-5, OutputPerToken: 7.5e-5},
			"claude-3-haiku":    {InputPerToken: 2.5e-7, OutputPerToken: 1.25e-6},
			"claude-3-5-sonnet": {InputPerToken: 3e-6, OutputPerToken: 1.5e-5},
		},
		Mode: UnknownModelZero,
	}
}

// Price computes the cost of one call against model with the given token
// counts.
func (p *PricingModel) Price(model string, inputTokens, outputTokens int) (float64, error) {
	price, ok := p.Prices[model]
	if !ok {
		if p.Mode == UnknownModelError {
			return 0, &errors.ProviderError{Provider: model, Message: "no pricing entry for model"}
		}
		return 0, nil
	}
	return float64(inputTokens)*price.InputPerToken + float64(outputTokens)*price.OutputPerToken, nil
}

// SessionCost sums Price over every completed, successful call in s.
func (p *PricingModel) SessionCost(s *CostSession) (float64, error) {
	var total float64
	for _, c := range s.ApiCalls {
		if c.Status != ApiCallSuccess {
			continue
		}
		cost, err := p.Price(c.Model, c.InputTokens, c.OutputTokens)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}
