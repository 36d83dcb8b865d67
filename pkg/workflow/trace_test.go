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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRun() *WorkflowRun {
	t0 := time.Now()
	return &WorkflowRun{
		ID:       "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Workflow: &Workflow{Name: "greet"},
		Status:   RunStatusCompleted,
		History: []HistoryEntry{
			{StateID: "Greeting", Timestamp: t0},
			{StateID: "Done", Timestamp: t0.Add(50 * time.Millisecond)},
		},
	}
}

func TestBuildTrace_MatchesHistoryOrder(t *testing.T) {
	trace := BuildTrace(sampleRun())
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", trace.RunID)
	require.Equal(t, "greet", trace.WorkflowName)
	require.Len(t, trace.Steps, 2)
	require.Equal(t, StateID("Greeting"), trace.Steps[0].StateID)
	require.Equal(t, StateID("Done"), trace.Steps[1].StateID)
	require.Equal(t, 50*time.Millisecond, trace.Steps[0].Duration)
}

func TestExecutionTrace_ToJSON_RoundTripsStably(t *testing.T) {
	trace := BuildTrace(sampleRun())
	b, err := trace.ToJSON()
	require.NoError(t, err)
	require.Contains(t, string(b), `"run_id"`)
	require.Contains(t, string(b), "Greeting")
}

func TestExecutionTrace_ToJSON_CapsOversizedTraces(t *testing.T) {
	trace := &ExecutionTrace{RunID: "x"}
	for i := 0; i < MaxExecutionSteps+1; i++ {
		trace.Steps = append(trace.Steps, ExecutionStep{StateID: "s"})
	}
	b, err := trace.ToJSON()
	require.NoError(t, err)
	require.Contains(t, string(b), "exceeds maximum renderable steps")
}

func TestExecutionTrace_ToMermaid_HeaderAndLinksSteps(t *testing.T) {
	trace := BuildTrace(sampleRun())
	out := trace.ToMermaid()
	require.True(t, strings.HasPrefix(out, "stateDiagram-v2\n"))
	require.Contains(t, out, "Greeting --> Done")
}

func TestExecutionTrace_ToHTML_EscapesErrorDetails(t *testing.T) {
	trace := BuildTrace(sampleRun())
	trace.ErrorDetails = "<script>alert(1)</script>"
	out := trace.ToHTML()
	require.NotContains(t, out, "<script>alert(1)</script>")
	require.Contains(t, out, "&lt;script&gt;")
}

func TestExecutionTrace_ToMarkdown_ListsPathAndError(t *testing.T) {
	trace := BuildTrace(sampleRun())
	trace.ErrorDetails = "boom"
	out := trace.ToMarkdown()
	require.Contains(t, out, "1. `Greeting` (50ms)")
	require.Contains(t, out, "2. `Done`")
	require.Contains(t, out, "## Error")
	require.Contains(t, out, "boom")
}
