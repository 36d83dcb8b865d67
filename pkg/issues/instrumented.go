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
	"time"

	"github.com/wballard/swissarmyhammer-sub003/pkg/cost"
)

// InstrumentedStorage wraps any Storage implementation and records
// per-operation counters and latencies via PerformanceMetrics. Batch
// operations record one sample per successfully produced item, each
// attributed an even share of the batch's total measured time — exactly as
// the original instrumented_storage.rs does — so a slow batch of N items
// does not register as N slow single-item operations, nor as one
// unrepresentative fast one.
type InstrumentedStorage struct {
	inner   Storage
	metrics *PerformanceMetrics
}

// NewInstrumentedStorage wraps inner with a fresh PerformanceMetrics.
func NewInstrumentedStorage(inner Storage) *InstrumentedStorage {
	return &InstrumentedStorage{inner: inner, metrics: NewPerformanceMetrics()}
}

// Metrics returns the underlying collector, e.g. to Register it.
func (s *InstrumentedStorage) Metrics() *PerformanceMetrics { return s.metrics }

// Snapshot is a convenience for s.Metrics().Snapshot().
func (s *InstrumentedStorage) Snapshot() MetricsSnapshot { return s.metrics.Snapshot() }

func (s *InstrumentedStorage) CreateIssue(ctx context.Context, name, content string) (Issue, error) {
	start := time.Now()
	issue, err := s.inner.CreateIssue(ctx, name, content)
	s.metrics.RecordOperation(OpCreate, time.Since(start))
	return issue, err
}

func (s *InstrumentedStorage) GetIssue(ctx context.Context, name string) (Issue, error) {
	start := time.Now()
	issue, err := s.inner.GetIssue(ctx, name)
	s.metrics.RecordOperation(OpRead, time.Since(start))
	return issue, err
}

func (s *InstrumentedStorage) UpdateIssue(ctx context.Context, name, content string) (Issue, error) {
	start := time.Now()
	issue, err := s.inner.UpdateIssue(ctx, name, content)
	s.metrics.RecordOperation(OpUpdate, time.Since(start))
	return issue, err
}

func (s *InstrumentedStorage) ListIssues(ctx context.Context) ([]Issue, error) {
	start := time.Now()
	list, err := s.inner.ListIssues(ctx)
	s.metrics.RecordOperation(OpList, time.Since(start))
	return list, err
}

func (s *InstrumentedStorage) MarkComplete(ctx context.Context, name string, costData *cost.IssueCostData) (Issue, error) {
	start := time.Now()
	issue, err := s.inner.MarkComplete(ctx, name, costData)
	s.metrics.RecordOperation(OpDelete, time.Since(start))
	return issue, err
}

// recordBatch distributes duration evenly across n successfully produced
// items and records one sample per item. No-op when n is 0.
func (s *InstrumentedStorage) recordBatch(op Operation, duration time.Duration, n int) {
	if n == 0 {
		return
	}
	per := duration / time.Duration(n)
	for i := 0; i < n; i++ {
		s.metrics.RecordOperation(op, per)
	}
}

func (s *InstrumentedStorage) CreateIssuesBatch(ctx context.Context, items []IssueInput) ([]Issue, error) {
	start := time.Now()
	created, err := s.inner.CreateIssuesBatch(ctx, items)
	s.recordBatch(OpCreate, time.Since(start), len(created))
	return created, err
}

func (s *InstrumentedStorage) GetIssuesBatch(ctx context.Context, names []string) ([]Issue, error) {
	start := time.Now()
	got, err := s.inner.GetIssuesBatch(ctx, names)
	s.recordBatch(OpRead, time.Since(start), len(got))
	return got, err
}

func (s *InstrumentedStorage) UpdateIssuesBatch(ctx context.Context, updates []IssueUpdate) ([]Issue, error) {
	start := time.Now()
	updated, err := s.inner.UpdateIssuesBatch(ctx, updates)
	s.recordBatch(OpUpdate, time.Since(start), len(updated))
	return updated, err
}

func (s *InstrumentedStorage) MarkCompleteBatch(ctx context.Context, names []string) ([]Issue, error) {
	start := time.Now()
	completed, err := s.inner.MarkCompleteBatch(ctx, names)
	s.recordBatch(OpDelete, time.Since(start), len(completed))
	return completed, err
}

func (s *InstrumentedStorage) CreateMemo(ctx context.Context, title, content string) (Memo, error) {
	start := time.Now()
	memo, err := s.inner.CreateMemo(ctx, title, content)
	s.metrics.RecordOperation(OpCreate, time.Since(start))
	return memo, err
}

func (s *InstrumentedStorage) GetMemo(ctx context.Context, id string) (Memo, error) {
	start := time.Now()
	memo, err := s.inner.GetMemo(ctx, id)
	s.metrics.RecordOperation(OpRead, time.Since(start))
	return memo, err
}

func (s *InstrumentedStorage) UpdateMemo(ctx context.Context, id, content string) (Memo, error) {
	start := time.Now()
	memo, err := s.inner.UpdateMemo(ctx, id, content)
	s.metrics.RecordOperation(OpUpdate, time.Since(start))
	return memo, err
}

func (s *InstrumentedStorage) ListMemos(ctx context.Context) ([]Memo, error) {
	start := time.Now()
	list, err := s.inner.ListMemos(ctx)
	s.metrics.RecordOperation(OpList, time.Since(start))
	return list, err
}

var _ Storage = (*InstrumentedStorage)(nil)
