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

package cost

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.Join(t.TempDir(), "cost.db"))
	m, err := NewManager(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_UpsertAndGetSession_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	session := &CostSession{
		SessionID: "sess-1",
		IssueID:   "iss-1",
		Status:    SessionActive,
		StartedAt: time.Now(),
		ApiCalls: []ApiCall{
			{ID: "call-1", Endpoint: "/v1/messages", Model: "claude-3-sonnet", StartedAt: time.Now(), Status: ApiCallSuccess, InputTokens: 1000, OutputTokens: 500},
		},
	}

	require.NoError(t, m.UpsertSession(ctx, session))
	require.NoError(t, m.Flush(ctx))

	got, err := m.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "iss-1", got.IssueID)
	require.Len(t, got.ApiCalls, 1)
	require.Equal(t, 1000, got.ApiCalls[0].InputTokens)
}

func TestManager_GetSession_CacheHitAfterUpsert(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	session := &CostSession{SessionID: "sess-2", IssueID: "iss-2", Status: SessionActive, StartedAt: time.Now()}
	require.NoError(t, m.UpsertSession(ctx, session))

	_, err := m.GetSession(ctx, "sess-2")
	require.NoError(t, err)

	stats := m.Stats()
	require.GreaterOrEqual(t, stats.CacheHits, int64(1))
}

func TestManager_GetSession_UnknownReturnsNilNoError(t *testing.T) {
	m := newTestManager(t)
	got, err := m.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestManager_Stats_TrackFlushes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		session := &CostSession{SessionID: fmt.Sprintf("sess-%d", i), IssueID: "iss", StartedAt: time.Now()}
		require.NoError(t, m.UpsertSession(ctx, session))
	}
	require.NoError(t, m.Flush(ctx))

	stats := m.Stats()
	require.GreaterOrEqual(t, stats.FlushCount, int64(1))
	require.GreaterOrEqual(t, stats.BatchedOperations, int64(3))
}
