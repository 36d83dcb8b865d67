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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAction_Prompt(t *testing.T) {
	a, err := ParseAction(`Execute prompt "plan" with topic="refactor" result="plan_out"`)
	require.NoError(t, err)
	require.Equal(t, ActionPrompt, a.Kind)
	require.Equal(t, "plan", a.PromptName)
	require.Equal(t, "refactor", a.PromptArgs["topic"])
	require.Equal(t, "plan_out", a.PromptResultVar)
}

func TestParseAction_Wait(t *testing.T) {
	a, err := ParseAction("Wait 5 minutes")
	require.NoError(t, err)
	require.Equal(t, ActionWait, a.Kind)
	require.Equal(t, 5*time.Minute, a.WaitDuration)

	a2, err := ParseAction("Wait for user to confirm")
	require.NoError(t, err)
	require.True(t, a2.WaitForUser)
}

func TestParseAction_Log(t *testing.T) {
	a, err := ParseAction(`Log "Hello ${user}"`)
	require.NoError(t, err)
	require.Equal(t, ActionLog, a.Kind)
	require.Equal(t, "", a.LogLevel)
	require.Equal(t, "Hello ${user}", a.LogMessage)

	a2, err := ParseAction(`Log error "something broke"`)
	require.NoError(t, err)
	require.Equal(t, "error", a2.LogLevel)
}

func TestParseAction_SetVariable(t *testing.T) {
	a, err := ParseAction(`Set count="42"`)
	require.NoError(t, err)
	require.Equal(t, ActionSetVariable, a.Kind)
	require.Equal(t, "count", a.SetVarName)
	require.Equal(t, "42", a.SetVarValue)
}

func TestParseAction_Shell(t *testing.T) {
	a, err := ParseAction(`Shell "echo hello" timeout=10s result="out" cwd="/tmp"`)
	require.NoError(t, err)
	require.Equal(t, ActionShell, a.Kind)
	require.Equal(t, "echo hello", a.ShellCommand)
	require.Equal(t, 10*time.Second, a.ShellTimeout)
	require.Equal(t, "out", a.ShellResult)
	require.Equal(t, "/tmp", a.ShellCwd)
}

func TestParseAction_SubWorkflow(t *testing.T) {
	a, err := ParseAction(`Run workflow "child" with x="1" result="r" timeout="30s"`)
	require.NoError(t, err)
	require.Equal(t, ActionSubWorkflow, a.Kind)
	require.Equal(t, "child", a.SubWorkflowName)
	require.Equal(t, "1", a.SubWorkflowArgs["x"])
	require.Equal(t, "r", a.SubWorkflowResult)
	require.Equal(t, 30*time.Second, a.SubWorkflowTimeout)
}

func TestParseAction_NoGrammarMatches(t *testing.T) {
	_, err := ParseAction("do something nonsensical")
	require.Error(t, err)
}

func TestParseAction_Empty(t *testing.T) {
	a, err := ParseAction("   ")
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestSubstituteVars_MissingLeftLiteral(t *testing.T) {
	out := substituteVars("hello ${name}, bye ${missing}", map[string]any{"name": "Alice"})
	require.Equal(t, "hello Alice, bye ${missing}", out)
}
