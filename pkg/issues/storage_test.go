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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wballard/swissarmyhammer-sub003/pkg/cost"
)

func newTestFileStorage(t *testing.T) *FileStorage {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFileStorage(filepath.Join(dir, "issues"), filepath.Join(dir, "memos"))
	require.NoError(t, err)
	return fs
}

// TestStorageRoundTrip reproduces spec §8's "Storage round-trip" property.
func TestStorageRoundTrip(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	_, err := fs.CreateIssue(ctx, "my-issue", "hello world")
	require.NoError(t, err)

	got, err := fs.GetIssue(ctx, "my-issue")
	require.NoError(t, err)
	require.Equal(t, "my-issue", got.Name)
	require.Equal(t, "hello world", got.Content)
	require.False(t, got.Completed)
}

func TestStorage_CreateIssue_RejectsDuplicateAndPathTraversal(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	_, err := fs.CreateIssue(ctx, "dup", "a")
	require.NoError(t, err)
	_, err = fs.CreateIssue(ctx, "dup", "b")
	require.Error(t, err)

	_, err = fs.CreateIssue(ctx, "../escape", "x")
	require.Error(t, err)
}

func TestStorage_UpdateIssue_RejectsAfterCompletion(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	_, err := fs.CreateIssue(ctx, "iss", "v1")
	require.NoError(t, err)
	_, err = fs.MarkComplete(ctx, "iss", nil)
	require.NoError(t, err)

	_, err = fs.UpdateIssue(ctx, "iss", "v2")
	require.Error(t, err)
}

func TestStorage_MarkComplete_AppendsCostAnalysis(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	_, err := fs.CreateIssue(ctx, "costly", "body")
	require.NoError(t, err)

	data := cost.IssueCostData{TotalCost: 0.0105, PricingModel: "claude-3-sonnet"}
	completed, err := fs.MarkComplete(ctx, "costly", &data)
	require.NoError(t, err)
	require.True(t, completed.Completed)
	require.Contains(t, completed.Content, "## Cost Analysis")
	require.Contains(t, completed.Content, "0.0105")

	got, err := fs.GetIssue(ctx, "costly")
	require.NoError(t, err)
	require.True(t, got.Completed)
}

func TestStorage_ListIssues_SortedAcrossActiveAndComplete(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	_, err := fs.CreateIssue(ctx, "bravo", "b")
	require.NoError(t, err)
	_, err = fs.CreateIssue(ctx, "alpha", "a")
	require.NoError(t, err)
	_, err = fs.MarkComplete(ctx, "bravo", nil)
	require.NoError(t, err)

	list, err := fs.ListIssues(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alpha", list[0].Name)
	require.Equal(t, "bravo", list[1].Name)
	require.True(t, list[1].Completed)
}

func TestStorage_MemoRoundTrip(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	memo, err := fs.CreateMemo(ctx, "Title", "Body text")
	require.NoError(t, err)
	require.NotEmpty(t, memo.ID)

	got, err := fs.GetMemo(ctx, memo.ID)
	require.NoError(t, err)
	require.Equal(t, "Title", got.Title)
	require.Equal(t, "Body text", got.Content)

	updated, err := fs.UpdateMemo(ctx, memo.ID, "New body")
	require.NoError(t, err)
	require.Equal(t, "New body", updated.Content)

	list, err := fs.ListMemos(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestStorage_BatchOperations(t *testing.T) {
	fs := newTestFileStorage(t)
	ctx := context.Background()

	created, err := fs.CreateIssuesBatch(ctx, []IssueInput{{Name: "a", Content: "1"}, {Name: "b", Content: "2"}})
	require.NoError(t, err)
	require.Len(t, created, 2)

	got, err := fs.GetIssuesBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	updated, err := fs.UpdateIssuesBatch(ctx, []IssueUpdate{{Name: "a", Content: "1-updated"}})
	require.NoError(t, err)
	require.Equal(t, "1-updated", updated[0].Content)

	completed, err := fs.MarkCompleteBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, completed, 2)
	for _, issue := range completed {
		require.True(t, issue.Completed)
	}
}
