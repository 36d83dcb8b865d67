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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// ClaudeRunner invokes the claude subprocess. Only this contract is used
// by the executor; spawning, flags, and stream parsing are implemented
// here because they are part of the covered workflow-action surface, but
// the claude binary itself is an external collaborator (§1).
type ClaudeRunner interface {
	Run(ctx context.Context, promptName string, args map[string]string) (string, error)
}

// SubprocessClaudeRunner invokes `claude --dangerously-skip-permissions
// --print --output-format stream-json <prompt> [--<k> <v>]*` and
// concatenates every streamed object's "content" string field (§6).
type SubprocessClaudeRunner struct {
	// BinaryPath overrides the "claude" executable name, for testing.
	BinaryPath string
}

// Run executes the prompt and returns the concatenated response content.
func (r *SubprocessClaudeRunner) Run(ctx context.Context, promptName string, args map[string]string) (string, error) {
	bin := r.BinaryPath
	if bin == "" {
		bin = "claude"
	}

	cmdArgs := []string{"--dangerously-skip-permissions", "--print", "--output-format", "stream-json", promptName}
	for k, v := range args {
		cmdArgs = append(cmdArgs, "--"+k, v)
	}

	cmd := exec.CommandContext(ctx, bin, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = nil

	startErr := cmd.Run()
	if startErr != nil {
		return "", &errors.ResourceError{
			Resource: "claude",
			Message:  strings.TrimSpace(stderr.String()),
			Cause:    startErr,
		}
	}

	return parseClaudeStreamJSON(stdout.Bytes())
}

// parseClaudeStreamJSON concatenates the "content" field of every
// newline-delimited JSON object in the stream. Lines that are not valid
// JSON objects, or that lack a "content" string field, are skipped.
func parseClaudeStreamJSON(data []byte) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if content, ok := obj["content"].(string); ok {
			sb.WriteString(content)
		}
	}
	return sb.String(), nil
}

// StaticClaudeRunner returns a fixed response, for tests and for fallback
// use without a claude binary installed.
type StaticClaudeRunner struct {
	Response string
	Err      error
	Delay    time.Duration
}

// Run implements ClaudeRunner.
func (r *StaticClaudeRunner) Run(ctx context.Context, promptName string, args map[string]string) (string, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.Response, r.Err
}
