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
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunShell_CapturesStdoutAndSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell command")
	}
	a := &Action{Kind: ActionShell, ShellCommand: "echo hello"}
	result, err := runShell(context.Background(), a, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 0, result.ExitCode)
	require.Contains(t, result.Stdout, "hello")
}

func TestRunShell_NonZeroExitIsNotAGoError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell command")
	}
	a := &Action{Kind: ActionShell, ShellCommand: "exit 7"}
	result, err := runShell(context.Background(), a, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 7, result.ExitCode)
}

func TestRunShell_RejectsInjectionBeforeSpawning(t *testing.T) {
	a := &Action{Kind: ActionShell, ShellCommand: "echo hi; rm -rf /"}
	_, err := runShell(context.Background(), a, nil)
	require.Error(t, err)
}
