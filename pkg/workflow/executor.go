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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wballard/swissarmyhammer-sub003/internal/log"
	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
	"github.com/wballard/swissarmyhammer-sub003/pkg/workflow/expression"
)

// WorkflowStore resolves a workflow by name, for Run-workflow sub-workflow
// actions (§4.1 "Resolved from a workflow storage (memory or filesystem)").
type WorkflowStore interface {
	Get(name string) (*Workflow, error)
}

// Executor drives WorkflowRuns through their states. One Executor can
// drive many concurrent runs; it holds no per-run mutable state itself
// beyond the cancellation registry.
type Executor struct {
	renderer     TemplateRenderer
	claude       ClaudeRunner
	store        WorkflowStore
	exprEval     *expression.Evaluator
	logger       *slog.Logger
	parallelSem  chan struct{}

	mu        sync.Mutex
	cancelled map[string]bool
}

// DefaultParallelConcurrency bounds concurrent parallel-state actions.
const DefaultParallelConcurrency = 4

// NewExecutor constructs an Executor. renderer and store may be nil; a
// nil renderer defaults to NoopRenderer, a nil store means sub-workflow
// actions always fail to resolve.
func NewExecutor(renderer TemplateRenderer, claude ClaudeRunner, store WorkflowStore, logger *slog.Logger) *Executor {
	if renderer == nil {
		renderer = NoopRenderer{}
	}
	if claude == nil {
		claude = &StaticClaudeRunner{}
	}
	if logger == nil {
		logger = log.New(log.FromEnv())
	}
	return &Executor{
		renderer:    renderer,
		claude:      claude,
		store:       store,
		exprEval:    expression.New(),
		logger:      logger,
		parallelSem: make(chan struct{}, DefaultParallelConcurrency),
		cancelled:   make(map[string]bool),
	}
}

// NewRun initialises a fresh WorkflowRun at the workflow's initial state.
func (e *Executor) NewRun(wf *Workflow, inputs map[string]any) *WorkflowRun {
	ctx := cloneContext(inputs)
	return &WorkflowRun{
		ID:           ulid.Make().String(),
		Workflow:     wf,
		CurrentState: wf.InitialState,
		Context:      ctx,
		Status:       RunStatusRunning,
		StartedAt:    time.Now(),
	}
}

// Cancel cooperatively signals a run for cancellation. The next
// suspension point (action boundary, Wait, sub-workflow join) observes it.
func (e *Executor) Cancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled[runID] = true
}

func (e *Executor) isCancelled(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[runID]
}

func (e *Executor) clearCancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelled, runID)
}

// Run drives a WorkflowRun from its current state to a terminal state,
// cancellation, or timeout, calling ExecuteState repeatedly. Per-run
// budget comes from the context key CtxTimeoutSecs, if present.
func (e *Executor) Run(ctx context.Context, run *WorkflowRun) error {
	defer e.clearCancel(run.ID)

	var deadline time.Time
	if secs, ok := run.Context[CtxTimeoutSecs]; ok {
		if f, ok := toFloat(secs); ok && f > 0 {
			deadline = run.StartedAt.Add(time.Duration(f * float64(time.Second)))
		}
	}

	for run.Status == RunStatusRunning {
		if e.isCancelled(run.ID) {
			run.Status = RunStatusCancelled
			now := time.Now()
			run.CompletedAt = &now
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			run.Status = RunStatusFailed
			run.ErrorDetails = "run exceeded _timeout_secs budget"
			now := time.Now()
			run.CompletedAt = &now
			return nil
		}
		if err := e.ExecuteState(ctx, run); err != nil {
			run.Status = RunStatusFailed
			run.ErrorDetails = err.Error()
			now := time.Now()
			run.CompletedAt = &now
			return err
		}
	}
	return nil
}

// ExecuteState runs one round: execute the current state's action (if
// any), record history, evaluate outgoing transitions in order, and move
// to the first one that fires. If no transition fires, a terminal state
// completes the run and a non-terminal state fails it with "no-transition".
func (e *Executor) ExecuteState(ctx context.Context, run *WorkflowRun) error {
	state, ok := run.Workflow.State(run.CurrentState)
	if !ok {
		return &errors.StateError{Entity: "state", ID: string(run.CurrentState), Reason: "not found in workflow"}
	}

	run.History = append(run.History, HistoryEntry{StateID: state.ID, Timestamp: time.Now()})

	desc, err := e.renderer.Render(state.Description, run.Context)
	if err != nil {
		return &errors.ParseError{Source: "state description", Line: state.Description, Message: err.Error()}
	}

	if desc != "" {
		action, perr := ParseAction(desc)
		if perr != nil {
			return perr
		}
		if action != nil {
			if state.AllowsParallel {
				e.executeParallel(ctx, run, action)
			} else {
				e.executeAction(ctx, run, action)
			}
		}
	}

	if e.isCancelled(run.ID) {
		run.Status = RunStatusCancelled
		now := time.Now()
		run.CompletedAt = &now
		return nil
	}

	// The action itself may already have ended the run (e.g. a circular
	// sub-workflow call fails the run from inside runSubWorkflow); don't
	// let terminal-state bookkeeping below overwrite that outcome.
	if run.Status != RunStatusRunning {
		if run.CompletedAt == nil {
			now := time.Now()
			run.CompletedAt = &now
		}
		return nil
	}

	transitions := run.Workflow.OutgoingTransitions(state.ID)
	for _, t := range transitions {
		fires, err := e.conditionFires(t.Cond, run)
		if err != nil {
			return err
		}
		if fires {
			run.CurrentState = t.To
			return nil
		}
	}

	if state.IsTerminal {
		run.Status = RunStatusCompleted
		now := time.Now()
		run.CompletedAt = &now
		return nil
	}

	if len(transitions) == 0 {
		run.Status = RunStatusFailed
		run.ErrorDetails = "no-transition"
		now := time.Now()
		run.CompletedAt = &now
		return nil
	}

	// Transitions existed but none fired, and the state is not terminal.
	run.Status = RunStatusFailed
	run.ErrorDetails = "no-transition"
	now := time.Now()
	run.CompletedAt = &now
	return nil
}

func (e *Executor) conditionFires(c Condition, run *WorkflowRun) (bool, error) {
	switch c.Kind {
	case ConditionAlways:
		return true, nil
	case ConditionOnSuccess:
		b, _ := run.Context[CtxLastActionResult].(bool)
		return b, nil
	case ConditionOnFailure:
		b, ok := run.Context[CtxLastActionResult].(bool)
		return ok && !b, nil
	case ConditionCustom:
		return e.exprEval.Evaluate(c.Expr, run.Context)
	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// executeAction runs a single action and mutates run.Context with its
// reserved result keys. Action failure sets success=false/failure=true in
// context rather than failing the run (§4.1 failure semantics).
func (e *Executor) executeAction(ctx context.Context, run *WorkflowRun, a *Action) {
	switch a.Kind {
	case ActionPrompt:
		e.runPrompt(ctx, run, a)
	case ActionWait:
		e.runWait(ctx, run, a)
	case ActionLog:
		e.runLog(run, a)
	case ActionSetVariable:
		e.runSetVariable(run, a)
	case ActionShell:
		e.runShellAction(ctx, run, a)
	case ActionSubWorkflow:
		e.runSubWorkflow(ctx, run, a)
	}
}

func (e *Executor) runPrompt(ctx context.Context, run *WorkflowRun, a *Action) {
	rendered := make(map[string]string, len(a.PromptArgs))
	for k, v := range a.PromptArgs {
		rendered[k] = substituteVars(v, run.Context)
	}

	actionCtx := ctx
	var cancel context.CancelFunc
	if a.PromptTimeout > 0 {
		actionCtx, cancel = context.WithTimeout(ctx, a.PromptTimeout)
		defer cancel()
	}

	response, err := e.claude.Run(actionCtx, a.PromptName, rendered)
	if err != nil {
		run.Context[CtxLastActionResult] = false
		run.Context[CtxSuccess] = false
		run.Context[CtxFailure] = true
		e.logger.Warn("prompt action failed", "prompt", a.PromptName, "error", err)
		return
	}

	run.Context[CtxClaudeResponse] = response
	run.Context[CtxLastActionResult] = true
	run.Context[CtxSuccess] = true
	run.Context[CtxFailure] = false
	if a.PromptResultVar != "" {
		run.Context[a.PromptResultVar] = response
	}
}

func (e *Executor) runWait(ctx context.Context, run *WorkflowRun, a *Action) {
	if a.WaitForUser {
		// Blocking on stdin is a front-end concern; the covered core only
		// guarantees the suspension point is observable for cancellation.
		select {
		case <-ctx.Done():
		case <-time.After(0):
		}
		run.Context[CtxLastActionResult] = true
		return
	}
	timer := time.NewTimer(a.WaitDuration)
	defer timer.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	for !e.isCancelled(run.ID) {
		select {
		case <-timer.C:
			run.Context[CtxLastActionResult] = true
			return
		case <-ctx.Done():
			run.Context[CtxLastActionResult] = false
			return
		case <-poll.C:
		}
	}
	run.Context[CtxLastActionResult] = false
}

func (e *Executor) runLog(run *WorkflowRun, a *Action) {
	msg := substituteVars(a.LogMessage, run.Context)
	switch a.LogLevel {
	case "error":
		e.logger.Error(msg)
	case "warning":
		e.logger.Warn(msg)
	default:
		e.logger.Info(msg)
	}
	run.Context[CtxLastActionResult] = true
}

func (e *Executor) runSetVariable(run *WorkflowRun, a *Action) {
	rendered := substituteVars(a.SetVarValue, run.Context)
	run.Context[a.SetVarName] = parseSetValue(rendered)
	run.Context[CtxLastActionResult] = true
}

func (e *Executor) runShellAction(ctx context.Context, run *WorkflowRun, a *Action) {
	rendered := *a
	rendered.ShellCommand = substituteVars(a.ShellCommand, run.Context)
	rendered.ShellCwd = substituteVars(a.ShellCwd, run.Context)
	env := make(map[string]string, len(a.ShellEnv))
	for k, v := range a.ShellEnv {
		env[k] = substituteVars(v, run.Context)
	}
	rendered.ShellEnv = env

	result, err := runShell(ctx, &rendered, e.logger)
	if err != nil {
		run.Context[CtxLastActionResult] = false
		run.Context[CtxSuccess] = false
		run.Context[CtxFailure] = true
		e.logger.Warn("shell action rejected", "error", err)
		return
	}

	run.Context[CtxStdout] = result.Stdout
	run.Context[CtxStderr] = result.Stderr
	run.Context[CtxExitCode] = result.ExitCode
	run.Context[CtxDurationMs] = result.Duration.Milliseconds()
	run.Context[CtxSuccess] = result.Success
	run.Context[CtxFailure] = !result.Success
	run.Context[CtxLastActionResult] = result.Success
	if a.ShellResult != "" {
		run.Context[a.ShellResult] = result.Stdout
	}
}

func (e *Executor) runSubWorkflow(ctx context.Context, run *WorkflowRun, a *Action) {
	if e.store == nil {
		run.Context[CtxLastActionResult] = false
		run.Context[CtxSuccess] = false
		run.Context[CtxFailure] = true
		e.logger.Warn("sub-workflow action failed: no workflow store configured")
		return
	}

	stack := workflowStack(run.Context)
	for _, name := range stack {
		if name == a.SubWorkflowName {
			run.Context[CtxLastActionResult] = false
			run.Context[CtxSuccess] = false
			run.Context[CtxFailure] = true
			run.Status = RunStatusFailed
			run.ErrorDetails = fmt.Sprintf("circular sub-workflow: %q already on stack %v", a.SubWorkflowName, stack)
			return
		}
	}

	child, err := e.store.Get(a.SubWorkflowName)
	if err != nil {
		run.Context[CtxLastActionResult] = false
		run.Context[CtxSuccess] = false
		run.Context[CtxFailure] = true
		e.logger.Warn("sub-workflow resolve failed", "name", a.SubWorkflowName, "error", err)
		return
	}

	childInputs := make(map[string]any, len(a.SubWorkflowArgs)+1)
	for k, v := range a.SubWorkflowArgs {
		childInputs[k] = substituteVars(v, run.Context)
	}
	childInputs[CtxWorkflowStack] = append(append([]string{}, stack...), run.Workflow.Name)

	childRun := e.NewRun(child, childInputs)

	childCtx := ctx
	var cancel context.CancelFunc
	if a.SubWorkflowTimeout > 0 {
		childCtx, cancel = context.WithTimeout(ctx, a.SubWorkflowTimeout)
		defer cancel()
	}

	if err := e.Run(childCtx, childRun); err != nil || childRun.Status != RunStatusCompleted {
		run.Context[CtxLastActionResult] = false
		run.Context[CtxSuccess] = false
		run.Context[CtxFailure] = true
		if childRun.Status == RunStatusFailed && strings.Contains(childRun.ErrorDetails, "circular sub-workflow") {
			run.Status = RunStatusFailed
			run.ErrorDetails = childRun.ErrorDetails
		}
		return
	}

	run.Context[CtxLastActionResult] = true
	run.Context[CtxSuccess] = true
	run.Context[CtxFailure] = false
	if a.SubWorkflowResult != "" {
		run.Context[a.SubWorkflowResult] = childRun.Context
	}
}

func workflowStack(ctx map[string]any) []string {
	raw, ok := ctx[CtxWorkflowStack]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// executeParallel runs the action once per a "parallel" state. In this
// executor a single state has exactly one action line, so the parallelism
// this enables is across the *children* a sub-workflow or tool spawns; we
// still honor the concurrency semaphore and last-writer-wins merge
// contract for forward compatibility with multi-action parallel states.
func (e *Executor) executeParallel(ctx context.Context, run *WorkflowRun, a *Action) {
	e.parallelSem <- struct{}{}
	defer func() { <-e.parallelSem }()

	childCtx := cloneContext(run.Context)
	childRun := &WorkflowRun{ID: run.ID, Workflow: run.Workflow, Context: childCtx}
	e.executeAction(ctx, childRun, a)
	mergeContext(run.Context, childCtx, e.logger)
}

// mergeContext merges a parallel child's context changes back into the
// parent using last-writer-wins; a collision on an existing differing
// value is logged as a warning (§4.1).
func mergeContext(parent, child map[string]any, logger *slog.Logger) {
	for k, v := range child {
		if existing, ok := parent[k]; ok && !valuesEqual(existing, v) {
			if logger != nil {
				logger.Warn("parallel context merge conflict", "key", k)
			}
		}
		parent[k] = v
	}
}

func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
