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

// Package cost tracks per-issue LLM API spend: a session state machine
// over API calls, token-count estimation with confidence tracking, model
// pricing lookup, an async write-behind durable store, and report
// formatting.
package cost

import "time"

// MaxCallsPerSession bounds how many API calls a single session may
// accumulate before add_api_call is rejected.
const MaxCallsPerSession = 500

// TokenSource records whether a TokenUsage's counts came from the
// provider's own response or were estimated locally.
type TokenSource string

const (
	SourceAPI       TokenSource = "api"
	SourceEstimated TokenSource = "estimated"
)

// Confidence ranks how much a TokenUsage value can be trusted, decaying
// from Exact (provider-reported) through estimation tiers.
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TokenUsage is a single call's token accounting.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Source       TokenSource
	Confidence   Confidence
}

// ApiCallStatus is the lifecycle state of one ApiCall.
type ApiCallStatus string

const (
	ApiCallPending ApiCallStatus = "pending"
	ApiCallSuccess ApiCallStatus = "success"
	ApiCallFailed  ApiCallStatus = "failed"
)

// ApiCall is one request/response pair billed to a CostSession.
type ApiCall struct {
	ID           string
	Endpoint     string
	Model        string
	StartedAt    time.Time
	CompletedAt  *time.Time
	InputTokens  int
	OutputTokens int
	Status       ApiCallStatus
	Error        string
}

// SessionStatus is the lifecycle state of a CostSession.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further mutation is allowed.
func (s SessionStatus) IsTerminal() bool {
	return s != SessionActive
}

// CostSession accumulates ApiCalls against one issue.
type CostSession struct {
	SessionID   string
	IssueID     string
	Status      SessionStatus
	ApiCalls    []ApiCall
	StartedAt   time.Time
	CompletedAt *time.Time
}

// TotalTokens sums input+output tokens over completed successful calls.
func (s *CostSession) TotalTokens() (input, output int) {
	for _, c := range s.ApiCalls {
		if c.Status == ApiCallSuccess {
			input += c.InputTokens
			output += c.OutputTokens
		}
	}
	return input, output
}

// SummaryStats holds derived aggregate numbers for an IssueCostData report.
type SummaryStats struct {
	TotalCalls        int
	SuccessfulCalls   int
	FailedCalls       int
	TotalInputTokens  int
	TotalOutputTokens int
	SessionDuration   time.Duration
}

// IssueCostData is the input to the Report Formatter: one issue's session
// plus derived totals.
type IssueCostData struct {
	SessionData  CostSession
	TotalCost    float64
	PricingModel string
	SummaryStats SummaryStats
}
