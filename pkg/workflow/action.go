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
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// ActionKind tags the parsed variant of an Action.
type ActionKind string

const (
	ActionPrompt      ActionKind = "prompt"
	ActionWait        ActionKind = "wait"
	ActionLog         ActionKind = "log"
	ActionSetVariable ActionKind = "set_variable"
	ActionShell       ActionKind = "shell"
	ActionSubWorkflow ActionKind = "sub_workflow"
)

// Action is the parsed, executable form of a state's action-description
// line. Exactly one of the kind-specific fields is populated, matching Kind.
type Action struct {
	Kind ActionKind
	Raw  string

	// Prompt
	PromptName       string
	PromptArgs       map[string]string
	PromptResultVar  string
	PromptTimeout    time.Duration

	// Wait
	WaitDuration  time.Duration // zero when WaitForUser is set
	WaitForUser   bool

	// Log
	LogLevel   string // "", "error", "warning"
	LogMessage string

	// SetVariable
	SetVarName  string
	SetVarValue string

	// Shell
	ShellCommand string
	ShellTimeout time.Duration
	ShellResult  string
	ShellCwd     string
	ShellEnv     map[string]string

	// SubWorkflow
	SubWorkflowName    string
	SubWorkflowArgs    map[string]string
	SubWorkflowResult  string
	SubWorkflowTimeout time.Duration
}

// kvRe matches one `key="value"` or `key=value` pair inside an action line.
var kvRe = regexp.MustCompile(`(\w+)=(?:"((?:[^"\\]|\\.)*)"|(\S+))`)

func parseKVPairs(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range kvRe.FindAllStringSubmatch(s, -1) {
		key := m[1]
		val := m[2]
		if val == "" && m[3] != "" {
			val = m[3]
		}
		val = strings.ReplaceAll(val, `\"`, `"`)
		out[key] = val
	}
	return out
}

var (
	promptRe = regexp.MustCompile(`(?i)^Execute prompt\s+"([^"]+)"(.*)$`)
	waitDurRe = regexp.MustCompile(`(?i)^Wait\s+(\d+)\s+(seconds?|minutes?|hours?)\s*$`)
	waitUserRe = regexp.MustCompile(`(?i)^Wait for user\b.*$`)
	logRe = regexp.MustCompile(`(?i)^Log\s+(error|warning)?\s*"([^"]*)"\s*$`)
	setRe = regexp.MustCompile(`(?i)^Set\s+(\w+)\s*=\s*"((?:[^"\\]|\\.)*)"\s*$`)
	shellRe = regexp.MustCompile(`(?i)^Shell\s+"((?:[^"\\]|\\.)*)"(.*)$`)
	subWorkflowRe = regexp.MustCompile(`(?i)^Run workflow\s+"([^"]+)"(.*)$`)
)

// ParseAction parses a state's natural-language action description into a
// typed Action. Parsers are tried in the fixed order prompt, wait, log,
// set-variable, shell, sub-workflow (§4.1). Returns an *errors.ParseError
// when no grammar matches.
func ParseAction(line string) (*Action, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	if m := promptRe.FindStringSubmatch(trimmed); m != nil {
		rest := parseKVPairs(m[2])
		a := &Action{Kind: ActionPrompt, Raw: line, PromptName: m[1], PromptArgs: map[string]string{}, PromptTimeout: DefaultShellTimeoutSecs * time.Second}
		for k, v := range rest {
			switch k {
			case "result":
				a.PromptResultVar = v
			default:
				a.PromptArgs[k] = v
			}
		}
		return a, nil
	}

	if waitUserRe.MatchString(trimmed) {
		return &Action{Kind: ActionWait, Raw: line, WaitForUser: true}, nil
	}
	if m := waitDurRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		var d time.Duration
		switch {
		case strings.HasPrefix(unit, "second"):
			d = time.Duration(n) * time.Second
		case strings.HasPrefix(unit, "minute"):
			d = time.Duration(n) * time.Minute
		case strings.HasPrefix(unit, "hour"):
			d = time.Duration(n) * time.Hour
		}
		return &Action{Kind: ActionWait, Raw: line, WaitDuration: d}, nil
	}

	if m := logRe.FindStringSubmatch(trimmed); m != nil {
		return &Action{Kind: ActionLog, Raw: line, LogLevel: strings.ToLower(m[1]), LogMessage: m[2]}, nil
	}

	if m := setRe.FindStringSubmatch(trimmed); m != nil {
		return &Action{Kind: ActionSetVariable, Raw: line, SetVarName: m[1], SetVarValue: strings.ReplaceAll(m[2], `\"`, `"`)}, nil
	}

	if m := shellRe.FindStringSubmatch(trimmed); m != nil {
		a := &Action{Kind: ActionShell, Raw: line, ShellCommand: strings.ReplaceAll(m[1], `\"`, `"`), ShellTimeout: DefaultShellTimeoutSecs * time.Second, ShellEnv: map[string]string{}}
		rest := parseKVPairs(m[2])
		for k, v := range rest {
			switch k {
			case "timeout":
				if secs, err := strconv.Atoi(strings.TrimSuffix(v, "s")); err == nil {
					a.ShellTimeout = time.Duration(secs) * time.Second
				}
			case "result":
				a.ShellResult = v
			case "cwd":
				a.ShellCwd = v
			case "env":
				var m map[string]string
				if err := json.Unmarshal([]byte(v), &m); err == nil {
					a.ShellEnv = m
				}
			}
		}
		return a, nil
	}

	if m := subWorkflowRe.FindStringSubmatch(trimmed); m != nil {
		a := &Action{Kind: ActionSubWorkflow, Raw: line, SubWorkflowName: m[1], SubWorkflowArgs: map[string]string{}}
		rest := parseKVPairs(m[2])
		for k, v := range rest {
			switch k {
			case "result":
				a.SubWorkflowResult = v
			case "timeout":
				if secs, err := strconv.Atoi(strings.TrimSuffix(v, "s")); err == nil {
					a.SubWorkflowTimeout = time.Duration(secs) * time.Second
				}
			default:
				a.SubWorkflowArgs[k] = v
			}
		}
		return a, nil
	}

	return nil, &errors.ParseError{Source: "action", Line: line, Message: "no grammar matched (expected prompt, wait, log, set, shell, or sub-workflow syntax)"}
}

// jsonScalarString renders a Go value the way the Set action does when it
// needs to interpolate a non-string context value into ${var} substitution.
func jsonScalarString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return strings.Trim(string(b), `"`)
}

// parseSetValue parses a Set action's already rendered value: JSON if it
// parses as valid JSON, otherwise the literal rendered string.
func parseSetValue(rendered string) any {
	var v any
	if err := json.Unmarshal([]byte(rendered), &v); err == nil {
		return v
	}
	return rendered
}
