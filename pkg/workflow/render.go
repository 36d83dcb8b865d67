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

import "regexp"

// TemplateRenderer is the external liquid-template collaborator's
// contract: render(text, variables) -> text. Only this interface is used
// by the executor; the template language itself (front-matter parsing,
// liquid syntax) lives outside this module's scope.
type TemplateRenderer interface {
	Render(text string, variables map[string]any) (string, error)
}

// NoopRenderer implements TemplateRenderer by returning text unchanged.
// Used when no external renderer is configured, e.g. in unit tests that
// only exercise ${var} substitution.
type NoopRenderer struct{}

// Render returns text unchanged.
func (NoopRenderer) Render(text string, _ map[string]any) (string, error) {
	return text, nil
}

var varRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteVars resolves ${var} references against ctx. A reference to a
// missing key is left as the literal "${var}" token, per the action
// grammar's variable-substitution contract (§4.1).
func substituteVars(text string, ctx map[string]any) string {
	return varRefRe.ReplaceAllStringFunc(text, func(match string) string {
		name := varRefRe.FindStringSubmatch(match)[1]
		val, ok := ctx[name]
		if !ok {
			return match
		}
		return stringifyValue(val)
	})
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return jsonScalarString(t)
	}
}
