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

package issues

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wballard/swissarmyhammer-sub003/pkg/cost"
	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// MockStorage is an API-compatible, in-memory Storage implementation for
// tests: it can simulate a fixed failure, a capacity limit on the number of
// issues it holds, and an artificial per-operation delay.
type MockStorage struct {
	mu sync.Mutex

	issues map[string]Issue
	memos  map[string]Memo

	// FailNext, when true, causes the next call (read or write) to fail and then
	// resets to false.
	FailNext bool
	// FailAll, when true, causes every call to fail until cleared.
	FailAll bool
	// Capacity caps the number of issues MockStorage will hold; 0 means
	// unlimited. CreateIssue fails with a ResourceError once reached.
	Capacity int
	// Delay is slept (respecting ctx cancellation) before every operation.
	Delay time.Duration
}

// NewMockStorage returns an empty, unconstrained mock.
func NewMockStorage() *MockStorage {
	return &MockStorage{issues: make(map[string]Issue), memos: make(map[string]Memo)}
}

func (m *MockStorage) fail() error {
	if m.FailAll {
		return &errors.ResourceError{Resource: "mock-storage", Message: "simulated failure"}
	}
	if m.FailNext {
		m.FailNext = false
		return &errors.ResourceError{Resource: "mock-storage", Message: "simulated failure"}
	}
	return nil
}

func (m *MockStorage) delay(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(m.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockStorage) CreateIssue(ctx context.Context, name, content string) (Issue, error) {
	if err := m.delay(ctx); err != nil {
		return Issue{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Issue{}, err
	}
	if err := validateName(name); err != nil {
		return Issue{}, err
	}
	if _, exists := m.issues[name]; exists {
		return Issue{}, &errors.StateError{Entity: "issue", ID: name, Reason: "already exists"}
	}
	if m.Capacity > 0 && len(m.issues) >= m.Capacity {
		return Issue{}, &errors.ResourceError{Resource: "mock-storage", Message: "capacity limit reached"}
	}
	issue := Issue{Number: len(m.issues) + 1, Name: name, Content: content, CreatedAt: time.Now()}
	m.issues[name] = issue
	return issue, nil
}

func (m *MockStorage) GetIssue(ctx context.Context, name string) (Issue, error) {
	if err := m.delay(ctx); err != nil {
		return Issue{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Issue{}, err
	}
	issue, ok := m.issues[name]
	if !ok {
		return Issue{}, &errors.NotFoundError{Resource: "issue", ID: name}
	}
	return issue, nil
}

func (m *MockStorage) UpdateIssue(ctx context.Context, name, content string) (Issue, error) {
	if err := m.delay(ctx); err != nil {
		return Issue{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Issue{}, err
	}
	issue, ok := m.issues[name]
	if !ok {
		return Issue{}, &errors.NotFoundError{Resource: "issue", ID: name}
	}
	if issue.Completed {
		return Issue{}, &errors.StateError{Entity: "issue", ID: name, Reason: "already completed"}
	}
	issue.Content = content
	m.issues[name] = issue
	return issue, nil
}

func (m *MockStorage) ListIssues(ctx context.Context) ([]Issue, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(m.issues))
	for _, issue := range m.issues {
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStorage) MarkComplete(ctx context.Context, name string, costData *cost.IssueCostData) (Issue, error) {
	if err := m.delay(ctx); err != nil {
		return Issue{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Issue{}, err
	}
	issue, ok := m.issues[name]
	if !ok {
		return Issue{}, &errors.NotFoundError{Resource: "issue", ID: name}
	}
	if issue.Completed {
		return Issue{}, &errors.StateError{Entity: "issue", ID: name, Reason: "already completed"}
	}
	issue.Completed = true
	if costData != nil {
		issue.Content += renderCostAnalysis(*costData)
	}
	m.issues[name] = issue
	return issue, nil
}

func (m *MockStorage) CreateIssuesBatch(ctx context.Context, items []IssueInput) ([]Issue, error) {
	out := make([]Issue, 0, len(items))
	for _, item := range items {
		issue, err := m.CreateIssue(ctx, item.Name, item.Content)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

func (m *MockStorage) GetIssuesBatch(ctx context.Context, names []string) ([]Issue, error) {
	out := make([]Issue, 0, len(names))
	for _, name := range names {
		issue, err := m.GetIssue(ctx, name)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

func (m *MockStorage) UpdateIssuesBatch(ctx context.Context, updates []IssueUpdate) ([]Issue, error) {
	out := make([]Issue, 0, len(updates))
	for _, u := range updates {
		issue, err := m.UpdateIssue(ctx, u.Name, u.Content)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

func (m *MockStorage) MarkCompleteBatch(ctx context.Context, names []string) ([]Issue, error) {
	out := make([]Issue, 0, len(names))
	for _, name := range names {
		issue, err := m.MarkComplete(ctx, name, nil)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

func (m *MockStorage) CreateMemo(ctx context.Context, title, content string) (Memo, error) {
	if err := m.delay(ctx); err != nil {
		return Memo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Memo{}, err
	}
	now := time.Now()
	memo := Memo{ID: uuid.NewString(), Title: title, Content: content, CreatedAt: now, UpdatedAt: now}
	m.memos[memo.ID] = memo
	return memo, nil
}

func (m *MockStorage) GetMemo(ctx context.Context, id string) (Memo, error) {
	if err := m.delay(ctx); err != nil {
		return Memo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Memo{}, err
	}
	memo, ok := m.memos[id]
	if !ok {
		return Memo{}, &errors.NotFoundError{Resource: "memo", ID: id}
	}
	return memo, nil
}

func (m *MockStorage) UpdateMemo(ctx context.Context, id, content string) (Memo, error) {
	if err := m.delay(ctx); err != nil {
		return Memo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Memo{}, err
	}
	memo, ok := m.memos[id]
	if !ok {
		return Memo{}, &errors.NotFoundError{Resource: "memo", ID: id}
	}
	memo.Content = content
	memo.UpdatedAt = time.Now()
	m.memos[id] = memo
	return memo, nil
}

func (m *MockStorage) ListMemos(ctx context.Context) ([]Memo, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	out := make([]Memo, 0, len(m.memos))
	for _, memo := range m.memos {
		out = append(out, memo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Storage = (*MockStorage)(nil)
