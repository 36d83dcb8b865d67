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
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCostPipeline_ScenarioThree reproduces spec §8 scenario 3 exactly:
// total_cost = 1000*3e-6 + 500*1.5e-5 = 0.0105.
func TestCostPipeline_ScenarioThree(t *testing.T) {
	tracker := NewTracker()

	sessionID, err := tracker.StartSession("iss-1")
	require.NoError(t, err)

	callID, err := tracker.AddApiCall(sessionID, ApiCall{Endpoint: "/v1/messages", Model: "claude-3-sonnet"})
	require.NoError(t, err)

	require.NoError(t, tracker.CompleteApiCall(sessionID, callID, 1000, 500, ApiCallSuccess, ""))
	require.NoError(t, tracker.CompleteSession(sessionID, SessionCompleted))

	session := tracker.GetSession(sessionID)
	require.Equal(t, SessionCompleted, session.Status)

	pricing := DefaultPricingModel()
	totalCost, err := pricing.SessionCost(session)
	require.NoError(t, err)
	require.InDelta(t, 0.0105, totalCost, 1e-9)

	input, output := session.TotalTokens()
	data := IssueCostData{
		SessionData:  *session,
		TotalCost:    totalCost,
		PricingModel: pricing.Name,
		SummaryStats: SummaryStats{
			TotalCalls:        len(session.ApiCalls),
			SuccessfulCalls:   1,
			TotalInputTokens:  input,
			TotalOutputTokens: output,
		},
	}

	gen := NewReportGenerator(DefaultReportOptions())
	report := gen.GenerateReport(data)
	md, err := gen.ExportReport(report, data, FormatMarkdown)
	require.NoError(t, err)

	require.Contains(t, md, "**Total Cost**: $0.0105")
	require.Contains(t, md, "**Total API Calls**: 1")
	require.Contains(t, md, "**Total Input Tokens**: 1000")
	require.Contains(t, md, "**Total Output Tokens**: 500")
}

func TestTracker_StartSession_RejectsEmptyIssueID(t *testing.T) {
	tracker := NewTracker()
	_, err := tracker.StartSession("")
	require.Error(t, err)
}

func TestTracker_AddApiCall_RejectsUnknownSession(t *testing.T) {
	tracker := NewTracker()
	_, err := tracker.AddApiCall("nope", ApiCall{})
	require.Error(t, err)
}

func TestTracker_ImmutableAfterTermination(t *testing.T) {
	tracker := NewTracker()
	sessionID, err := tracker.StartSession("iss-1")
	require.NoError(t, err)
	require.NoError(t, tracker.CompleteSession(sessionID, SessionFailed))

	_, err = tracker.AddApiCall(sessionID, ApiCall{Model: "m"})
	require.Error(t, err)

	err = tracker.CompleteSession(sessionID, SessionCompleted)
	require.Error(t, err)

	session := tracker.GetSession(sessionID)
	require.Equal(t, SessionFailed, session.Status)
}

func TestTracker_CompleteApiCall_IdempotentOnIdenticalValues(t *testing.T) {
	tracker := NewTracker()
	sessionID, _ := tracker.StartSession("iss-1")
	callID, _ := tracker.AddApiCall(sessionID, ApiCall{Model: "m"})

	require.NoError(t, tracker.CompleteApiCall(sessionID, callID, 10, 20, ApiCallSuccess, ""))
	require.NoError(t, tracker.CompleteApiCall(sessionID, callID, 10, 20, ApiCallSuccess, ""))

	err := tracker.CompleteApiCall(sessionID, callID, 99, 20, ApiCallSuccess, "")
	require.Error(t, err)
}

func TestTracker_AddApiCall_RejectsAtCallLimit(t *testing.T) {
	tracker := NewTracker()
	sessionID, _ := tracker.StartSession("iss-1")
	for i := 0; i < MaxCallsPerSession; i++ {
		_, err := tracker.AddApiCall(sessionID, ApiCall{Model: "m"})
		require.NoError(t, err)
	}
	_, err := tracker.AddApiCall(sessionID, ApiCall{Model: "m"})
	require.Error(t, err)
}
