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
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, logBuf *bytes.Buffer, store WorkflowStore) *Executor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewExecutor(NoopRenderer{}, &StaticClaudeRunner{}, store, logger)
}

// TestLogWorkflow covers spec §8 scenario 1: a single-state workflow that
// logs a variable-substituted message and completes.
func TestLogWorkflow(t *testing.T) {
	wf := &Workflow{
		Name:         "greet",
		InitialState: "start",
		States: map[StateID]*State{
			"start": {ID: "start", Description: `Log "Hello ${user}"`, IsTerminal: true},
		},
		StateOrder: []StateID{"start"},
	}
	require.NoError(t, Validate(wf))

	var buf bytes.Buffer
	exec := newTestExecutor(t, &buf, nil)
	run := exec.NewRun(wf, map[string]any{"user": "Alice"})

	require.NoError(t, exec.Run(context.Background(), run))
	require.Equal(t, RunStatusCompleted, run.Status)
	require.Equal(t, []StateID{"start"}, []StateID{run.History[0].StateID})
	require.Contains(t, buf.String(), "Hello Alice")
}

// TestShellSuccessWorkflow covers spec §8 scenario 2.
func TestShellSuccessWorkflow(t *testing.T) {
	wf := &Workflow{
		Name:         "shellflow",
		InitialState: "run",
		States: map[StateID]*State{
			"run": {ID: "run", Description: `Shell "echo hello"`},
			"ok":  {ID: "ok", IsTerminal: true},
			"err": {ID: "err", IsTerminal: true},
		},
		StateOrder: []StateID{"run", "ok", "err"},
		Transitions: []Transition{
			{From: "run", To: "ok", Cond: Condition{Kind: ConditionOnSuccess}},
			{From: "run", To: "err", Cond: Condition{Kind: ConditionOnFailure}},
		},
	}
	require.NoError(t, Validate(wf))

	var buf bytes.Buffer
	exec := newTestExecutor(t, &buf, nil)
	run := exec.NewRun(wf, nil)
	require.NoError(t, exec.Run(context.Background(), run))

	require.Equal(t, RunStatusCompleted, run.Status)
	require.Equal(t, StateID("ok"), run.CurrentState)
	require.Equal(t, 0, run.Context[CtxExitCode])
	require.Contains(t, run.Context[CtxStdout], "hello")
}

func TestShellFailureWorkflow(t *testing.T) {
	wf := &Workflow{
		Name:         "shellflow",
		InitialState: "run",
		States: map[StateID]*State{
			"run": {ID: "run", Description: `Shell "exit 1"`},
			"ok":  {ID: "ok", IsTerminal: true},
			"err": {ID: "err", IsTerminal: true},
		},
		StateOrder: []StateID{"run", "ok", "err"},
		Transitions: []Transition{
			{From: "run", To: "ok", Cond: Condition{Kind: ConditionOnSuccess}},
			{From: "run", To: "err", Cond: Condition{Kind: ConditionOnFailure}},
		},
	}
	require.NoError(t, Validate(wf))

	var buf bytes.Buffer
	exec := newTestExecutor(t, &buf, nil)
	run := exec.NewRun(wf, nil)
	require.NoError(t, exec.Run(context.Background(), run))

	require.Equal(t, RunStatusCompleted, run.Status)
	require.Equal(t, StateID("err"), run.CurrentState)
	require.Equal(t, 1, run.Context[CtxExitCode])
	require.Equal(t, false, run.Context[CtxSuccess])
}

// TestSubWorkflowCircularGuard covers spec §8 scenario 5: workflow a calls
// b, b calls a; the run fails with CircularSubWorkflow semantics and b is
// invoked at most once.
func TestSubWorkflowCircularGuard(t *testing.T) {
	invocations := 0

	store := NewMemoryStore()
	a := &Workflow{
		Name:         "a",
		InitialState: "call",
		States: map[StateID]*State{
			"call": {ID: "call", Description: `Run workflow "b"`, IsTerminal: true},
		},
		StateOrder: []StateID{"call"},
	}
	b := &Workflow{
		Name:         "b",
		InitialState: "call",
		States: map[StateID]*State{
			"call": {ID: "call", Description: `Run workflow "a"`, IsTerminal: true},
		},
		StateOrder: []StateID{"call"},
	}
	store.Register(a)
	store.Register(b)

	var buf bytes.Buffer
	exec := newTestExecutor(t, &buf, countingStore{store, &invocations, "b"})
	run := exec.NewRun(a, nil)
	require.NoError(t, exec.Run(context.Background(), run))

	require.Equal(t, RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorDetails, "circular sub-workflow")
	require.LessOrEqual(t, invocations, 1)
}

type countingStore struct {
	inner WorkflowStore
	count *int
	name  string
}

func (c countingStore) Get(name string) (*Workflow, error) {
	if name == c.name {
		*c.count++
	}
	return c.inner.Get(name)
}

func TestCancel_StopsRun(t *testing.T) {
	wf := &Workflow{
		Name:         "waiter",
		InitialState: "wait",
		States: map[StateID]*State{
			"wait": {ID: "wait", Description: "Wait 1 hours"},
			"done": {ID: "done", IsTerminal: true},
		},
		StateOrder:  []StateID{"wait", "done"},
		Transitions: []Transition{{From: "wait", To: "done", Cond: Condition{Kind: ConditionAlways}}},
	}
	require.NoError(t, Validate(wf))

	var buf bytes.Buffer
	exec := newTestExecutor(t, &buf, nil)
	run := exec.NewRun(wf, nil)
	exec.Cancel(run.ID)

	require.NoError(t, exec.Run(context.Background(), run))
	require.Equal(t, RunStatusCancelled, run.Status)
}

func TestNoTransitionFails(t *testing.T) {
	wf := &Workflow{
		Name:         "deadend",
		InitialState: "stuck",
		States: map[StateID]*State{
			"stuck": {ID: "stuck"},
			"end":   {ID: "end", IsTerminal: true},
		},
		StateOrder:  []StateID{"stuck", "end"},
		Transitions: []Transition{{From: "stuck", To: "end", Cond: Condition{Kind: ConditionCustom, Expr: "false"}}},
	}

	var buf bytes.Buffer
	exec := newTestExecutor(t, &buf, nil)
	run := exec.NewRun(wf, nil)
	require.NoError(t, exec.Run(context.Background(), run))
	require.Equal(t, RunStatusFailed, run.Status)
	require.Equal(t, "no-transition", run.ErrorDetails)
}
