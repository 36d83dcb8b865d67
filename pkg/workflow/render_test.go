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

package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstituteVars_ResolvesKnownKeys(t *testing.T) {
	ctx := map[string]any{"name": "world", "count": 3, "missing_handled": nil}
	out := substituteVars("hello ${name}, count=${count}", ctx)
	require.Equal(t, "hello world, count=3", out)
}

func TestSubstituteVars_LeavesUnknownReferenceLiteral(t *testing.T) {
	out := substituteVars("value: ${nope}", map[string]any{})
	require.Equal(t, "value: ${nope}", out)
}

func TestSubstituteVars_NilValueRendersEmpty(t *testing.T) {
	out := substituteVars("x=${v}", map[string]any{"v": nil})
	require.Equal(t, "x=", out)
}

func TestNoopRenderer_ReturnsTextUnchanged(t *testing.T) {
	out, err := NoopRenderer{}.Render("${still_literal}", map[string]any{"still_literal": "x"})
	require.NoError(t, err)
	require.Equal(t, "${still_literal}", out)
}
