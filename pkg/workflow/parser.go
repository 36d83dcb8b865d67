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
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
	"gopkg.in/yaml.v3"
)

// frontMatter is the YAML header of a workflow definition file.
type frontMatter struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

var (
	frontMatterRe  = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)
	mermaidFenceRe = regexp.MustCompile("(?s)```mermaid\\s*\\n(.*?)```")
	edgeRe         = regexp.MustCompile(`^\s*(\S+)\s*-->\s*(\S+)\s*(?::\s*(.*))?$`)
	actionLineRe   = regexp.MustCompile(`^\s*-\s*([A-Za-z0-9_]+)\s*:\s*(.*)$`)
)

// startPseudostate is mermaid's [*] marker, used for both the synthetic
// start and end nodes of a stateDiagram-v2.
const (
	startPseudostate = "[*]"
)

// ParseDefinitionFile parses a workflow definition file: YAML front-matter,
// a fenced ```mermaid stateDiagram-v2 block, and a trailing list of
// `- <StateId>: <action-description>` lines (§6).
func ParseDefinitionFile(path string, content []byte) (*Workflow, error) {
	m := frontMatterRe.FindSubmatch(content)
	if m == nil {
		return nil, &errors.ParseError{Source: "workflow", Message: "missing YAML front-matter delimited by --- lines"}
	}

	var fm frontMatter
	if err := yaml.Unmarshal(m[1], &fm); err != nil {
		return nil, &errors.ParseError{Source: "front-matter", Message: err.Error()}
	}

	body := string(m[2])
	mermaidMatch := mermaidFenceRe.FindStringSubmatch(body)
	if mermaidMatch == nil {
		return nil, &errors.ParseError{Source: "workflow", Message: "missing fenced ```mermaid stateDiagram-v2 block"}
	}

	name := fm.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	wf := &Workflow{
		Name:        name,
		Description: fm.Description,
		States:      make(map[StateID]*State),
	}

	descriptions, err := parseActionDescriptions(body)
	if err != nil {
		return nil, err
	}

	if err := parseMermaidBody(mermaidMatch[1], wf, descriptions); err != nil {
		return nil, err
	}

	if err := Validate(wf); err != nil {
		return nil, err
	}

	return wf, nil
}

func parseActionDescriptions(body string) (map[StateID]string, error) {
	out := make(map[StateID]string)
	for _, line := range strings.Split(body, "\n") {
		if m := actionLineRe.FindStringSubmatch(line); m != nil {
			out[StateID(m[1])] = strings.TrimSpace(m[2])
		}
	}
	return out, nil
}

func parseMermaidBody(body string, wf *Workflow, descriptions map[StateID]string) error {
	ensureState := func(id StateID) *State {
		if id == startPseudostate {
			return nil
		}
		if s, ok := wf.States[id]; ok {
			return s
		}
		s := &State{ID: id, Description: descriptions[id]}
		wf.States[id] = s
		wf.StateOrder = append(wf.StateOrder, id)
		return s
	}

	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "stateDiagram") || strings.HasPrefix(line, "%%") {
			continue
		}
		m := edgeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		from, to, label := StateID(m[1]), StateID(m[2]), strings.TrimSpace(m[3])

		fromState := ensureState(from)
		toState := ensureState(to)

		if from == startPseudostate {
			wf.InitialState = to
			continue
		}
		if to == startPseudostate {
			if fromState != nil {
				fromState.IsTerminal = true
			}
			continue
		}

		cond, err := parseConditionLabel(label)
		if err != nil {
			return err
		}
		_ = toState
		wf.Transitions = append(wf.Transitions, Transition{From: from, To: to, Cond: cond})
	}
	return nil
}

var customCondRe = regexp.MustCompile(`(?i)^on\s+custom\((.*)\)$`)

// parseConditionLabel parses a mermaid edge label ("on always", "on success",
// "on failure" or "on custom(...)", case-insensitive; the "on" may be omitted
// for the first three) into a Condition. An empty label defaults to Always.
func parseConditionLabel(label string) (Condition, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Condition{Kind: ConditionAlways}, nil
	}
	lower := strings.ToLower(label)
	switch {
	case lower == "on always" || lower == "always":
		return Condition{Kind: ConditionAlways}, nil
	case lower == "on success" || lower == "success":
		return Condition{Kind: ConditionOnSuccess}, nil
	case lower == "on failure" || lower == "failure":
		return Condition{Kind: ConditionOnFailure}, nil
	}
	if m := customCondRe.FindStringSubmatch(label); m != nil {
		return Condition{Kind: ConditionCustom, Expr: m[1]}, nil
	}
	return Condition{}, &errors.ParseError{Source: "transition condition", Line: label, Message: "expected 'on Always', 'on Success', 'on Failure', or 'on Custom(...)'"}
}
