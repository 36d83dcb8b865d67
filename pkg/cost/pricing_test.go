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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPricingModel_Price_KnownModel(t *testing.T) {
	p := DefaultPricingModel()
	got, err := p.Price("claude-3-sonnet", 1000, 500)
	require.NoError(t, err)
	require.InDelta(t, 0.0105, got, 1e-9)
}

func TestPricingModel_Price_UnknownModelZero(t *testing.T) {
	p := DefaultPricingModel()
	got, err := p.Price("nonexistent-model", 1000, 500)
	require.NoError(t, err)
	require.Equal(t, 0.0, got)
}

func TestPricingModel_Price_UnknownModelError(t *testing.T) {
	p := DefaultPricingModel()
	p.Mode = UnknownModelError
	_, err := p.Price("nonexistent-model", 1000, 500)
	require.Error(t, err)
}

func TestPricingModel_SessionCost_SkipsFailedAndPending(t *testing.T) {
	p := DefaultPricingModel()
	s := &CostSession{
		ApiCalls: []ApiCall{
			{Model: "claude-3-sonnet", InputTokens: 1000, OutputTokens: 500, Status: ApiCallSuccess},
			{Model: "claude-3-sonnet", InputTokens: 9999, OutputTokens: 9999, Status: ApiCallFailed},
			{Model: "claude-3-sonnet", InputTokens: 9999, OutputTokens: 9999, Status: ApiCallPending},
		},
	}
	got, err := p.SessionCost(s)
	require.NoError(t, err)
	require.InDelta(t, 0.0105, got, 1e-9)
}
