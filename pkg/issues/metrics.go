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
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names one of the five storage operation kinds tracked by
// PerformanceMetrics. MarkComplete is recorded as Delete, matching its
// remove-from-active/write-to-complete shape.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

var allOperations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpList}

// PerformanceMetrics counts operations and sums their latencies in
// microseconds, both via plain atomics (for the zero-dependency snapshot
// view) and via a Prometheus CounterVec/HistogramVec pair (for scraping).
// The Prometheus vectors are constructed, not auto-registered, so a test can
// build many PerformanceMetrics instances without colliding on the default
// registry; call Register to expose one to a collector.
type PerformanceMetrics struct {
	counts  map[Operation]*atomic.Int64
	timings map[Operation]*atomic.Int64 // microseconds

	opCounter  *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

// NewPerformanceMetrics builds a fresh, zeroed metrics collector.
func NewPerformanceMetrics() *PerformanceMetrics {
	m := &PerformanceMetrics{
		counts:  make(map[Operation]*atomic.Int64, len(allOperations)),
		timings: make(map[Operation]*atomic.Int64, len(allOperations)),
		opCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sah_issue_storage_operations_total",
			Help: "Total issue/memo storage operations by kind.",
		}, []string{"operation"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sah_issue_storage_operation_duration_seconds",
			Help:    "Issue/memo storage operation duration by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, op := range allOperations {
		m.counts[op] = &atomic.Int64{}
		m.timings[op] = &atomic.Int64{}
	}
	return m
}

// Register exposes this collector's vectors to reg.
func (m *PerformanceMetrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.opCounter); err != nil {
		return err
	}
	return reg.Register(m.opDuration)
}

// RecordOperation records one occurrence of op with the given wall-clock
// duration, regardless of whether the underlying operation succeeded —
// failure paths still increment counters per the storage contract.
func (m *PerformanceMetrics) RecordOperation(op Operation, duration time.Duration) {
	m.counts[op].Add(1)
	m.timings[op].Add(duration.Microseconds())
	m.opCounter.WithLabelValues(string(op)).Inc()
	m.opDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

// Reset zeroes every counter and timing sum.
func (m *PerformanceMetrics) Reset() {
	for _, op := range allOperations {
		m.counts[op].Store(0)
		m.timings[op].Store(0)
	}
}

// MetricsSnapshot is a point-in-time read of PerformanceMetrics.
type MetricsSnapshot struct {
	Counts map[Operation]int64
	// AvgMicros maps each operation to total-time/count, 0 when count is 0.
	AvgMicros map[Operation]float64
}

// TotalOperations sums counts across all operation kinds.
func (s MetricsSnapshot) TotalOperations() int64 {
	var total int64
	for _, c := range s.Counts {
		total += c
	}
	return total
}

// Snapshot reads every counter and derives each average atomically with
// respect to itself (not across operations — the snapshot is not a single
// consistent point for the whole collector under concurrent writers, matching
// the original's per-field atomic loads).
func (m *PerformanceMetrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counts:    make(map[Operation]int64, len(allOperations)),
		AvgMicros: make(map[Operation]float64, len(allOperations)),
	}
	for _, op := range allOperations {
		count := m.counts[op].Load()
		total := m.timings[op].Load()
		snap.Counts[op] = count
		if count == 0 {
			snap.AvgMicros[op] = 0
		} else {
			snap.AvgMicros[op] = float64(total) / float64(count)
		}
	}
	return snap
}
