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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsageFromResponseJSON_Present(t *testing.T) {
	body := []byte(`{"usage":{"input_tokens":1000,"output_tokens":500}}`)
	usage, ok := UsageFromResponseJSON(body)
	require.True(t, ok)
	require.Equal(t, ConfidenceExact, usage.Confidence)
	require.Equal(t, SourceAPI, usage.Source)
	require.Equal(t, 1500, usage.TotalTokens)
}

func TestUsageFromResponseJSON_Absent(t *testing.T) {
	_, ok := UsageFromResponseJSON([]byte(`{"result":"ok"}`))
	require.False(t, ok)

	_, ok = UsageFromResponseJSON([]byte(`not json`))
	require.False(t, ok)
}

func TestEstimateTokens_ConfidenceDecay(t *testing.T) {
	long := strings.Repeat("word ", 200)
	medium := strings.Repeat("word ", 20)
	short := "hi"

	longUsage := EstimateTokens(long, ContentNaturalLanguage)
	require.Equal(t, ConfidenceHigh, longUsage.Confidence)
	require.Equal(t, SourceEstimated, longUsage.Source)

	mediumUsage := EstimateTokens(medium, ContentNaturalLanguage)
	require.Equal(t, ConfidenceMedium, mediumUsage.Confidence)

	shortUsage := EstimateTokens(short, ContentNaturalLanguage)
	require.Equal(t, ConfidenceLow, shortUsage.Confidence)
}

func TestEstimateTokens_RatioVariesByKind(t *testing.T) {
	text := strings.Repeat("a", 400)
	nl := EstimateTokens(text, ContentNaturalLanguage)
	code := EstimateTokens(text, ContentCode)
	cjk := EstimateTokens(text, ContentCJK)

	require.Less(t, nl.TotalTokens, code.TotalTokens)
	require.Less(t, code.TotalTokens, cjk.TotalTokens)
}

func TestDetectContentKind(t *testing.T) {
	require.Equal(t, ContentCode, DetectContentKind(`func main() { fmt.Println("hi"); }`))
	require.Equal(t, ContentNaturalLanguage, DetectContentKind("The quick brown fox jumps over the lazy dog"))
	require.Equal(t, ContentCJK, DetectContentKind("こんにちは世界、これはテストです"))
}
