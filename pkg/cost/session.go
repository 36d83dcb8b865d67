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
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// Tracker is the in-memory cost-session state machine: start_session,
// add_api_call, complete_api_call, complete_session, get_session. It is
// safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*CostSession
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*CostSession)}
}

// StartSession creates a new Active CostSession for issueID.
func (t *Tracker) StartSession(issueID string) (string, error) {
	if issueID == "" {
		return "", &errors.ValidationError{Field: "issue_id", Message: "must not be empty"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := ulid.Make().String()
	t.sessions[id] = &CostSession{
		SessionID: id,
		IssueID:   issueID,
		Status:    SessionActive,
		StartedAt: time.Now(),
	}
	return id, nil
}

// AddApiCall appends a Pending ApiCall to sessionID's session.
func (t *Tracker) AddApiCall(sessionID string, call ApiCall) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return "", &errors.NotFoundError{Resource: "cost_session", ID: sessionID}
	}
	if s.Status.IsTerminal() {
		return "", &errors.StateError{Entity: "cost_session", ID: sessionID, Reason: "SessionAlreadyCompleted"}
	}
	if len(s.ApiCalls) >= MaxCallsPerSession {
		return "", &errors.ResourceError{Resource: "cost_session", Message: "call limit reached"}
	}

	call.ID = ulid.Make().String()
	call.StartedAt = time.Now()
	call.Status = ApiCallPending
	s.ApiCalls = append(s.ApiCalls, call)
	return call.ID, nil
}

// CompleteApiCall finalises a Pending call with its token counts and
// outcome. Calling it again with identical values is a no-op; calling it
// again with different values returns CallAlreadyCompleted.
func (t *Tracker) CompleteApiCall(sessionID, callID string, inputTokens, outputTokens int, status ApiCallStatus, callErr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return &errors.NotFoundError{Resource: "cost_session", ID: sessionID}
	}
	if s.Status.IsTerminal() {
		return &errors.StateError{Entity: "cost_session", ID: sessionID, Reason: "SessionAlreadyCompleted"}
	}

	for i := range s.ApiCalls {
		c := &s.ApiCalls[i]
		if c.ID != callID {
			continue
		}
		if c.CompletedAt != nil {
			if c.InputTokens == inputTokens && c.OutputTokens == outputTokens && c.Status == status && c.Error == callErr {
				return nil
			}
			return &errors.StateError{Entity: "api_call", ID: callID, Reason: "CallAlreadyCompleted"}
		}
		now := time.Now()
		c.CompletedAt = &now
		c.InputTokens = inputTokens
		c.OutputTokens = outputTokens
		c.Status = status
		c.Error = callErr
		return nil
	}
	return &errors.NotFoundError{Resource: "api_call", ID: callID}
}

// CompleteSession transitions a session to a terminal status.
func (t *Tracker) CompleteSession(sessionID string, status SessionStatus) error {
	if !status.IsTerminal() {
		return &errors.ValidationError{Field: "status", Message: "complete_session requires a terminal status"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return &errors.NotFoundError{Resource: "cost_session", ID: sessionID}
	}
	if s.Status.IsTerminal() {
		return &errors.StateError{Entity: "cost_session", ID: sessionID, Reason: "SessionAlreadyCompleted"}
	}

	now := time.Now()
	s.Status = status
	s.CompletedAt = &now
	return nil
}

// GetSession returns a copy of the session's current state, or nil if
// unknown. The returned value is safe to read without holding the
// Tracker's lock.
func (t *Tracker) GetSession(sessionID string) *CostSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	cp.ApiCalls = append([]ApiCall(nil), s.ApiCalls...)
	return &cp
}
