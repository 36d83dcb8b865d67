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
	"regexp"
	"strings"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// MaxShellCommandLen is the maximum accepted length of a shell command string.
const MaxShellCommandLen = 4096

// MaxEnvValueLen is the maximum accepted length of a shell env var value.
const MaxEnvValueLen = 1024

// DefaultShellTimeoutSecs and MaxShellTimeoutSecs bound per-action shell timeouts.
const (
	DefaultShellTimeoutSecs = 300
	MaxShellTimeoutSecs     = 3600
)

// shellMetaChars are rejected anywhere in a shell command: they would let
// an attacker chain or substitute additional commands.
var shellMetaChars = []string{";", "&&", "||", "`", "$(", "\n", "\x00"}

// knownListeners matches commands whose right-hand side of a pipe would
// start a long-lived network listener rather than transform data.
var knownListeners = regexp.MustCompile(`(^|\s)nc\s+-l\b|(^|\s)netcat\s+-l\b|(^|\s)ncat\s+-l\b`)

var envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sensitiveEnvNames warn (but do not reject) when overridden, since doing
// so can silently redirect dynamic linking or search paths.
var sensitiveEnvNames = map[string]bool{
	"PATH":                  true,
	"LD_PRELOAD":            true,
	"LD_LIBRARY_PATH":       true,
	"DYLD_INSERT_LIBRARIES": true,
}

// sensitiveDirs warn (but do not reject) when used as a shell working directory.
var sensitiveDirs = []string{"/etc", "/root", "/boot", "/sys", "/proc"}

// ValidateShellCommand rejects commands containing shell metacharacters,
// empty commands, and commands over MaxShellCommandLen. A single pipe is
// permitted when neither side contains a rejected operator and the
// right-hand side is not a known network listener.
func ValidateShellCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return &errors.ValidationError{Field: "command", Message: "command must not be empty"}
	}
	if len(command) > MaxShellCommandLen {
		return &errors.ValidationError{
			Field:   "command",
			Message: fmt.Sprintf("command exceeds %d characters", MaxShellCommandLen),
		}
	}
	for _, bad := range shellMetaChars {
		if strings.Contains(command, bad) {
			return &errors.ValidationError{
				Field:      "command",
				Message:    fmt.Sprintf("command contains disallowed operator %q", bad),
				Suggestion: "split chained commands into separate workflow states",
			}
		}
	}
	if strings.Contains(command, "|") {
		parts := strings.SplitN(command, "|", 2)
		rhs := parts[1]
		if knownListeners.MatchString(rhs) {
			return &errors.ValidationError{
				Field:   "command",
				Message: "command pipes into a network listener, which is not permitted",
			}
		}
	}
	return nil
}

// ValidateWorkingDir rejects paths containing ".." traversal segments and
// returns a warning (non-fatal) for well-known sensitive directories.
func ValidateWorkingDir(dir string) (warning string, err error) {
	if dir == "" {
		return "", nil
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == ".." {
			return "", &errors.ValidationError{
				Field:   "cwd",
				Message: "working directory must not contain \"..\" segments",
			}
		}
	}
	for _, sensitive := range sensitiveDirs {
		if dir == sensitive || strings.HasPrefix(dir, sensitive+"/") {
			return fmt.Sprintf("working directory %q is a sensitive system path", dir), nil
		}
	}
	return "", nil
}

// ValidateEnvVar validates a shell action environment variable name/value
// pair, returning a non-fatal warning when the name overrides something
// sensitive like PATH or LD_PRELOAD.
func ValidateEnvVar(name, value string) (warning string, err error) {
	if !envNameRe.MatchString(name) {
		return "", &errors.ValidationError{
			Field:   "env",
			Message: fmt.Sprintf("invalid environment variable name %q", name),
		}
	}
	if len(value) > MaxEnvValueLen {
		return "", &errors.ValidationError{
			Field:   "env",
			Message: fmt.Sprintf("environment value for %q exceeds %d bytes", name, MaxEnvValueLen),
		}
	}
	if strings.ContainsAny(value, "\x00\n") {
		return "", &errors.ValidationError{
			Field:   "env",
			Message: fmt.Sprintf("environment value for %q contains a NUL or newline byte", name),
		}
	}
	if sensitiveEnvNames[strings.ToUpper(name)] {
		return fmt.Sprintf("overriding sensitive environment variable %q", name), nil
	}
	return "", nil
}

// ValidateShellTimeout rejects zero and above-maximum timeouts. Zero is not
// replaced by the default; callers that want the default pass
// DefaultShellTimeoutSecs explicitly.
func ValidateShellTimeout(secs int) error {
	if secs == 0 {
		return &errors.ValidationError{Field: "timeout", Message: "timeout of 0 is rejected; omit the clause for the default"}
	}
	if secs > MaxShellTimeoutSecs {
		return &errors.ValidationError{
			Field:   "timeout",
			Message: fmt.Sprintf("timeout %ds exceeds maximum of %ds", secs, MaxShellTimeoutSecs),
		}
	}
	return nil
}
