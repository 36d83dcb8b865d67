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
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"
)

// MaxExecutionSteps bounds the steps a trace will render; ToJSON and
// ToMermaid (and so ToHTML) replace traces beyond this with an error
// placeholder to prevent rendering a pathologically large diagram (§4.3
// DoS protection). ToMarkdown does not apply this bound.
const MaxExecutionSteps = 10_000

// MaxPathLengthMinimal and MaxPathLengthFull bound how many states a path
// enumeration query may return in minimal vs. full detail modes.
const (
	MaxPathLengthMinimal = 25
	MaxPathLengthFull    = 250
)

// ExecutionStep is one recorded step of a run's history.
type ExecutionStep struct {
	StateID         StateID       `json:"state_id"`
	Duration        time.Duration `json:"duration_ns,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	Success         bool          `json:"success"`
	Error           string        `json:"error,omitempty"`
	TransitionTaken string        `json:"transition_taken,omitempty"`
}

// ExecutionTrace is a post-hoc record of a run's steps, used for
// visualization.
type ExecutionTrace struct {
	RunID        string           `json:"run_id"`
	WorkflowName string           `json:"workflow_name"`
	Status       RunStatus        `json:"status"`
	Steps        []ExecutionStep  `json:"steps"`
	ErrorDetails string           `json:"error_details,omitempty"`
}

// BuildTrace derives an ExecutionTrace from a completed or in-flight run.
// Step order matches run.History (§3.1 invariant).
func BuildTrace(run *WorkflowRun) *ExecutionTrace {
	trace := &ExecutionTrace{
		RunID:        run.ID,
		WorkflowName: run.Workflow.Name,
		Status:       run.Status,
		ErrorDetails: run.ErrorDetails,
	}
	for i, h := range run.History {
		step := ExecutionStep{
			StateID:   h.StateID,
			Timestamp: h.Timestamp,
			Success:   run.ErrorDetails == "" || i < len(run.History)-1,
		}
		if i+1 < len(run.History) {
			step.Duration = run.History[i+1].Timestamp.Sub(h.Timestamp)
		}
		trace.Steps = append(trace.Steps, step)
	}
	return trace
}

// ToJSON serializes the trace with stable field names.
func (t *ExecutionTrace) ToJSON() ([]byte, error) {
	if len(t.Steps) > MaxExecutionSteps {
		return json.Marshal(map[string]string{"error": "execution trace exceeds maximum renderable steps"})
	}
	return json.MarshalIndent(t, "", "  ")
}

// ToMermaid renders a stateDiagram-v2 annotated with a checkmark and step
// index on every visited state. The state name inside each label is
// HTML-escaped even though Mermaid itself is not HTML, matching the
// conservative escaping the HTML report also needs; the state ids used as
// node names and in edges are written unescaped.
func (t *ExecutionTrace) ToMermaid() string {
	if len(t.Steps) > MaxExecutionSteps {
		return "stateDiagram-v2\n  note \"execution trace exceeds maximum renderable steps\" as N\n"
	}
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	for i, step := range t.Steps {
		label := fmt.Sprintf("%d: %s ✓", i+1, html.EscapeString(string(step.StateID)))
		if step.Duration > 0 {
			label = fmt.Sprintf("%s (%dms)", label, step.Duration.Milliseconds())
		}
		fmt.Fprintf(&sb, "  %s: %s\n", step.StateID, label)
	}
	for i := 0; i+1 < len(t.Steps); i++ {
		fmt.Fprintf(&sb, "  %s --> %s\n", t.Steps[i].StateID, t.Steps[i+1].StateID)
	}
	return sb.String()
}

// ToHTML renders a self-contained HTML report with an embedded mermaid.js
// script tag reference. All interpolated text is escaped.
func (t *ExecutionTrace) ToHTML() string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	sb.WriteString("<script src=\"https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js\"></script>")
	sb.WriteString("<title>Execution trace: ")
	sb.WriteString(html.EscapeString(t.WorkflowName))
	sb.WriteString("</title></head><body>")
	fmt.Fprintf(&sb, "<h1>%s (%s)</h1>", html.EscapeString(t.WorkflowName), html.EscapeString(string(t.Status)))
	if t.ErrorDetails != "" {
		fmt.Fprintf(&sb, "<pre class=\"error\">%s</pre>", html.EscapeString(t.ErrorDetails))
	}
	sb.WriteString("<pre class=\"mermaid\">\n")
	sb.WriteString(html.EscapeString(t.ToMermaid()))
	sb.WriteString("\n</pre>")
	sb.WriteString("<script>mermaid.initialize({startOnLoad:true});</script>")
	sb.WriteString("</body></html>")
	return sb.String()
}

// ToMarkdown renders an ordered execution path and an error section.
func (t *ExecutionTrace) ToMarkdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Execution trace: %s\n\n", t.WorkflowName)
	fmt.Fprintf(&sb, "Status: **%s**\n\n", t.Status)
	sb.WriteString("## Path\n\n")
	for i, step := range t.Steps {
		fmt.Fprintf(&sb, "%d. `%s`", i+1, step.StateID)
		if step.Duration > 0 {
			fmt.Fprintf(&sb, " (%dms)", step.Duration.Milliseconds())
		}
		sb.WriteString("\n")
	}
	if t.ErrorDetails != "" {
		sb.WriteString("\n## Error\n\n")
		fmt.Fprintf(&sb, "%s\n", t.ErrorDetails)
	}
	return sb.String()
}
