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
	"fmt"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// Validate checks the §3.1 structural invariants of a Workflow: every
// state id is non-empty, the initial state exists, every transition
// references existing states, and at least one terminal state is
// reachable from the initial state.
func Validate(w *Workflow) error {
	if w.InitialState == "" {
		return &errors.ValidationError{Field: "initial_state", Message: "workflow has no initial state (missing [*] --> state edge)"}
	}
	for _, id := range w.StateOrder {
		if id == "" {
			return &errors.ValidationError{Field: "state.id", Message: "state id must not be empty"}
		}
	}
	if _, ok := w.States[w.InitialState]; !ok {
		return &errors.ValidationError{Field: "initial_state", Message: fmt.Sprintf("initial state %q is not a declared state", w.InitialState)}
	}
	for _, t := range w.Transitions {
		if _, ok := w.States[t.From]; !ok {
			return &errors.ValidationError{Field: "transition.from", Message: fmt.Sprintf("transition references unknown state %q", t.From)}
		}
		if _, ok := w.States[t.To]; !ok {
			return &errors.ValidationError{Field: "transition.to", Message: fmt.Sprintf("transition references unknown state %q", t.To)}
		}
	}

	reachable := ReachableStates(w)
	hasReachableTerminal := false
	for id := range reachable {
		if s, ok := w.States[id]; ok && s.IsTerminal {
			hasReachableTerminal = true
			break
		}
	}
	if !hasReachableTerminal {
		return &errors.ValidationError{
			Field:      "states",
			Message:    "no terminal state is reachable from the initial state",
			Suggestion: "add a transition from a reachable state to [*], or mark a reachable state terminal",
		}
	}

	return nil
}
