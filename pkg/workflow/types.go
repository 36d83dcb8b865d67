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

// Package workflow implements the state-machine workflow execution engine:
// parsing, validation, scheduling, transition evaluation, sub-workflow
// recursion and cancellation.
package workflow

import (
	"fmt"
	"time"
)

// StateID identifies a state within a Workflow. Must be non-empty and
// unique within the owning workflow.
type StateID string

// ConditionKind tags the variant of a Condition.
type ConditionKind string

const (
	// ConditionAlways fires unconditionally.
	ConditionAlways ConditionKind = "always"
	// ConditionOnSuccess fires iff the prior action's last_action_result is true.
	ConditionOnSuccess ConditionKind = "on_success"
	// ConditionOnFailure fires iff the prior action's last_action_result is false.
	ConditionOnFailure ConditionKind = "on_failure"
	// ConditionCustom fires iff Expr evaluates true against the run context.
	ConditionCustom ConditionKind = "custom"
)

// Condition gates a Transition.
type Condition struct {
	Kind ConditionKind
	// Expr holds the boolean expression for ConditionCustom; empty otherwise.
	Expr string
}

// String renders the condition the way it appears in a workflow diagram
// edge label, e.g. "on success" or "on custom(...)".
func (c Condition) String() string {
	switch c.Kind {
	case ConditionAlways:
		return "always"
	case ConditionOnSuccess:
		return "on success"
	case ConditionOnFailure:
		return "on failure"
	case ConditionCustom:
		return fmt.Sprintf("on custom(%s)", c.Expr)
	default:
		return "unknown"
	}
}

// State is one node of a Workflow's state machine.
type State struct {
	ID             StateID
	Description    string
	IsTerminal     bool
	AllowsParallel bool
}

// Transition connects two states, gated by a Condition. Transitions are
// evaluated in declaration order; the first one whose Condition fires wins.
type Transition struct {
	From StateID
	To   StateID
	Cond Condition
}

// Workflow is an immutable, validated state-machine definition.
type Workflow struct {
	Name         string
	Description  string
	InitialState StateID
	States       map[StateID]*State
	// StateOrder preserves declaration order for deterministic iteration
	// (graph analysis, visualization) independent of map ordering.
	StateOrder []StateID
	// Transitions preserves declaration order, which is also evaluation order.
	Transitions []Transition
}

// State looks up a state by id.
func (w *Workflow) State(id StateID) (*State, bool) {
	s, ok := w.States[id]
	return s, ok
}

// OutgoingTransitions returns the transitions leaving a state, in
// declaration order.
func (w *Workflow) OutgoingTransitions(from StateID) []Transition {
	var out []Transition
	for _, t := range w.Transitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// RunStatus is the lifecycle status of a WorkflowRun.
type RunStatus string

const (
	// RunStatusRunning indicates the run is actively progressing.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the run reached a terminal state cleanly.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run terminated due to an error or a
	// state with no firing transition.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled indicates cooperative cancellation was observed.
	RunStatusCancelled RunStatus = "cancelled"
)

// HistoryEntry records one visited state and when it was entered.
type HistoryEntry struct {
	StateID   StateID
	Timestamp time.Time
}

// Reserved context keys written by the executor and readable by conditions
// and templates.
const (
	CtxLastActionResult = "last_action_result"
	CtxSuccess          = "success"
	CtxFailure          = "failure"
	CtxExitCode         = "exit_code"
	CtxStdout           = "stdout"
	CtxStderr           = "stderr"
	CtxDurationMs       = "duration_ms"
	CtxClaudeResponse   = "claude_response"
	CtxWorkflowStack    = "_workflow_stack"
	CtxTimeoutSecs      = "_timeout_secs"
)

// WorkflowRun is a single execution of a Workflow, owning a mutable context.
type WorkflowRun struct {
	ID           string // ULID
	Workflow     *Workflow
	CurrentState StateID
	Context      map[string]any
	History      []HistoryEntry
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	// ErrorDetails explains why a run ended Failed, when applicable.
	ErrorDetails string
}

// cloneContext returns a shallow copy of a context map, safe to hand to a
// parallel child so the parent's map is never mutated concurrently.
func cloneContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
