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

// Package issues implements markdown-backed storage for issues and memos,
// wrapped by an instrumented layer that records per-operation counters and
// latencies.
package issues

import "time"

// Issue is a unit of tracked work backed by a markdown file.
type Issue struct {
	Number    int
	Name      string
	Content   string
	Completed bool
	FilePath  string
	CreatedAt time.Time
}

// Memo is a freeform markdown note identified by a ULID.
type Memo struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
