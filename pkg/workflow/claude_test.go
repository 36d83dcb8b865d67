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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseClaudeStreamJSON_ConcatenatesContentFields(t *testing.T) {
	stream := `{"content":"Hello, "}
not valid json, skipped
{"content":"world."}
`
	out, err := parseClaudeStreamJSON([]byte(stream))
	require.NoError(t, err)
	require.Equal(t, "Hello, world.", out)
}

func TestParseClaudeStreamJSON_SkipsObjectsWithoutContent(t *testing.T) {
	stream := `{"type":"meta"}
{"content":"kept"}
`
	out, err := parseClaudeStreamJSON([]byte(stream))
	require.NoError(t, err)
	require.Equal(t, "kept", out)
}

func TestStaticClaudeRunner_ReturnsConfiguredResponse(t *testing.T) {
	r := &StaticClaudeRunner{Response: "canned"}
	out, err := r.Run(context.Background(), "prompt", nil)
	require.NoError(t, err)
	require.Equal(t, "canned", out)
}

func TestStaticClaudeRunner_ReturnsConfiguredError(t *testing.T) {
	wantErr := errors.New("boom")
	r := &StaticClaudeRunner{Err: wantErr}
	_, err := r.Run(context.Background(), "prompt", nil)
	require.Equal(t, wantErr, err)
}

func TestStaticClaudeRunner_RespectsCancellation(t *testing.T) {
	r := &StaticClaudeRunner{Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "prompt", nil)
	require.ErrorIs(t, err, context.Canceled)
}
