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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wballard/swissarmyhammer-sub003/pkg/cost"
	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// IssueUpdate names an issue and its replacement content, for batch updates.
type IssueUpdate struct {
	Name    string
	Content string
}

// IssueInput names a new issue to create, for batch creation.
type IssueInput struct {
	Name    string
	Content string
}

// Storage is the contract every issue/memo backend implements: the
// filesystem-backed default, the instrumented wrapper, and the mock used in
// tests.
type Storage interface {
	CreateIssue(ctx context.Context, name, content string) (Issue, error)
	GetIssue(ctx context.Context, name string) (Issue, error)
	UpdateIssue(ctx context.Context, name, content string) (Issue, error)
	ListIssues(ctx context.Context) ([]Issue, error)
	MarkComplete(ctx context.Context, name string, costData *cost.IssueCostData) (Issue, error)

	CreateIssuesBatch(ctx context.Context, items []IssueInput) ([]Issue, error)
	GetIssuesBatch(ctx context.Context, names []string) ([]Issue, error)
	UpdateIssuesBatch(ctx context.Context, updates []IssueUpdate) ([]Issue, error)
	MarkCompleteBatch(ctx context.Context, names []string) ([]Issue, error)

	CreateMemo(ctx context.Context, title, content string) (Memo, error)
	GetMemo(ctx context.Context, id string) (Memo, error)
	UpdateMemo(ctx context.Context, id, content string) (Memo, error)
	ListMemos(ctx context.Context) ([]Memo, error)
}

// FileStorage is the default backend: each issue is a markdown file under
// issuesDir (active) or issuesDir/complete (completed); each memo is a
// markdown file named by its ULID under memosDir.
type FileStorage struct {
	issuesDir string
	memosDir  string

	mu        sync.Mutex
	nextIssue atomic.Int64
}

// NewFileStorage creates issuesDir, issuesDir/complete, and memosDir if
// missing, and seeds the issue numbering counter from existing files.
func NewFileStorage(issuesDir, memosDir string) (*FileStorage, error) {
	completeDir := filepath.Join(issuesDir, "complete")
	for _, dir := range []string{issuesDir, completeDir, memosDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &errors.ResourceError{Resource: "filesystem", Message: fmt.Sprintf("create %s", dir), Cause: err}
		}
	}

	fs := &FileStorage{issuesDir: issuesDir, memosDir: memosDir}

	count := 0
	for _, dir := range []string{issuesDir, completeDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				count++
			}
		}
	}
	fs.nextIssue.Store(int64(count))

	return fs, nil
}

func validateName(name string) error {
	if name == "" {
		return &errors.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return &errors.ValidationError{Field: "name", Message: "must not contain path separators"}
	}
	return nil
}

func (f *FileStorage) activePath(name string) string   { return filepath.Join(f.issuesDir, name+".md") }
func (f *FileStorage) completePath(name string) string {
	return filepath.Join(f.issuesDir, "complete", name+".md")
}

// CreateIssue writes a new active issue file. The issue number is assigned
// from a monotonic, process-local counter seeded at startup.
func (f *FileStorage) CreateIssue(ctx context.Context, name, content string) (Issue, error) {
	if err := validateName(name); err != nil {
		return Issue{}, err
	}
	if err := ctx.Err(); err != nil {
		return Issue{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.activePath(name)
	if _, err := os.Stat(path); err == nil {
		return Issue{}, &errors.StateError{Entity: "issue", ID: name, Reason: "already exists"}
	}

	number := int(f.nextIssue.Add(1))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Issue{}, &errors.ResourceError{Resource: "filesystem", Message: "write issue", Cause: err}
	}

	return Issue{
		Number:    number,
		Name:      name,
		Content:   content,
		Completed: false,
		FilePath:  path,
		CreatedAt: time.Now(),
	}, nil
}

func (f *FileStorage) readIssue(name string) (Issue, error) {
	if err := validateName(name); err != nil {
		return Issue{}, err
	}

	if info, err := os.Stat(f.completePath(name)); err == nil {
		content, err := os.ReadFile(f.completePath(name))
		if err != nil {
			return Issue{}, &errors.ResourceError{Resource: "filesystem", Message: "read issue", Cause: err}
		}
		return Issue{Name: name, Content: string(content), Completed: true, FilePath: f.completePath(name), CreatedAt: info.ModTime()}, nil
	}

	info, err := os.Stat(f.activePath(name))
	if err != nil {
		return Issue{}, &errors.NotFoundError{Resource: "issue", ID: name}
	}
	content, err := os.ReadFile(f.activePath(name))
	if err != nil {
		return Issue{}, &errors.ResourceError{Resource: "filesystem", Message: "read issue", Cause: err}
	}
	return Issue{Name: name, Content: string(content), Completed: false, FilePath: f.activePath(name), CreatedAt: info.ModTime()}, nil
}

// GetIssue reads an issue from either the active or completed directory.
func (f *FileStorage) GetIssue(ctx context.Context, name string) (Issue, error) {
	if err := ctx.Err(); err != nil {
		return Issue{}, err
	}
	return f.readIssue(name)
}

// UpdateIssue overwrites an active issue's content. Updating a completed
// issue is rejected; completion is a terminal state for this storage.
func (f *FileStorage) UpdateIssue(ctx context.Context, name, content string) (Issue, error) {
	if err := validateName(name); err != nil {
		return Issue{}, err
	}
	if err := ctx.Err(); err != nil {
		return Issue{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.completePath(name)); err == nil {
		return Issue{}, &errors.StateError{Entity: "issue", ID: name, Reason: "already completed"}
	}

	path := f.activePath(name)
	if _, err := os.Stat(path); err != nil {
		return Issue{}, &errors.NotFoundError{Resource: "issue", ID: name}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Issue{}, &errors.ResourceError{Resource: "filesystem", Message: "write issue", Cause: err}
	}

	return f.readIssue(name)
}

// ListIssues returns every active and completed issue, sorted by name.
func (f *FileStorage) ListIssues(ctx context.Context) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	seen := map[string]bool{}
	for _, dir := range []string{f.issuesDir, filepath.Join(f.issuesDir, "complete")} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".md")
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	issues := make([]Issue, 0, len(names))
	for _, name := range names {
		issue, err := f.readIssue(name)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// MarkComplete moves an issue's file from the active to the completed
// directory, appending a "## Cost Analysis" section when costData is given.
func (f *FileStorage) MarkComplete(ctx context.Context, name string, costData *cost.IssueCostData) (Issue, error) {
	if err := validateName(name); err != nil {
		return Issue{}, err
	}
	if err := ctx.Err(); err != nil {
		return Issue{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	srcPath := f.activePath(name)
	content, err := os.ReadFile(srcPath)
	if err != nil {
		if _, statErr := os.Stat(f.completePath(name)); statErr == nil {
			return Issue{}, &errors.StateError{Entity: "issue", ID: name, Reason: "already completed"}
		}
		return Issue{}, &errors.NotFoundError{Resource: "issue", ID: name}
	}

	final := string(content)
	if costData != nil {
		final += renderCostAnalysis(*costData)
	}

	dstPath := f.completePath(name)
	if err := os.WriteFile(dstPath, []byte(final), 0o644); err != nil {
		return Issue{}, &errors.ResourceError{Resource: "filesystem", Message: "write completed issue", Cause: err}
	}
	if err := os.Remove(srcPath); err != nil {
		return Issue{}, &errors.ResourceError{Resource: "filesystem", Message: "remove active issue", Cause: err}
	}

	return Issue{Name: name, Content: final, Completed: true, FilePath: dstPath, CreatedAt: time.Now()}, nil
}

func renderCostAnalysis(data cost.IssueCostData) string {
	var b strings.Builder
	b.WriteString("\n\n## Cost Analysis\n\n")
	fmt.Fprintf(&b, "- **Total cost**: %.4f\n", data.TotalCost)
	fmt.Fprintf(&b, "- **Pricing model**: %s\n", data.PricingModel)
	fmt.Fprintf(&b, "- **Total calls**: %d\n", data.SummaryStats.TotalCalls)
	fmt.Fprintf(&b, "- **Total input tokens**: %d\n", data.SummaryStats.TotalInputTokens)
	fmt.Fprintf(&b, "- **Total output tokens**: %d\n", data.SummaryStats.TotalOutputTokens)
	return b.String()
}

// CreateIssuesBatch creates each issue independently; the first failure
// aborts the remainder and is returned alongside whatever succeeded.
func (f *FileStorage) CreateIssuesBatch(ctx context.Context, items []IssueInput) ([]Issue, error) {
	out := make([]Issue, 0, len(items))
	for _, item := range items {
		issue, err := f.CreateIssue(ctx, item.Name, item.Content)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

// GetIssuesBatch reads each named issue independently.
func (f *FileStorage) GetIssuesBatch(ctx context.Context, names []string) ([]Issue, error) {
	out := make([]Issue, 0, len(names))
	for _, name := range names {
		issue, err := f.GetIssue(ctx, name)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

// UpdateIssuesBatch updates each issue independently.
func (f *FileStorage) UpdateIssuesBatch(ctx context.Context, updates []IssueUpdate) ([]Issue, error) {
	out := make([]Issue, 0, len(updates))
	for _, u := range updates {
		issue, err := f.UpdateIssue(ctx, u.Name, u.Content)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

// MarkCompleteBatch completes each named issue independently, without a
// cost payload.
func (f *FileStorage) MarkCompleteBatch(ctx context.Context, names []string) ([]Issue, error) {
	out := make([]Issue, 0, len(names))
	for _, name := range names {
		issue, err := f.MarkComplete(ctx, name, nil)
		if err != nil {
			return out, err
		}
		out = append(out, issue)
	}
	return out, nil
}

func (f *FileStorage) memoPath(id string) string { return filepath.Join(f.memosDir, id+".md") }

// CreateMemo writes a new memo file named by a fresh ULID.
func (f *FileStorage) CreateMemo(ctx context.Context, title, content string) (Memo, error) {
	if err := ctx.Err(); err != nil {
		return Memo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := ulid.Make().String()
	now := time.Now()
	body := title + "\n\n" + content
	if err := os.WriteFile(f.memoPath(id), []byte(body), 0o644); err != nil {
		return Memo{}, &errors.ResourceError{Resource: "filesystem", Message: "write memo", Cause: err}
	}

	return Memo{ID: id, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// GetMemo reads a memo by ULID. The stored file's first line is the title;
// the remainder (after a blank line) is the content.
func (f *FileStorage) GetMemo(ctx context.Context, id string) (Memo, error) {
	if err := ctx.Err(); err != nil {
		return Memo{}, err
	}

	path := f.memoPath(id)
	info, err := os.Stat(path)
	if err != nil {
		return Memo{}, &errors.NotFoundError{Resource: "memo", ID: id}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Memo{}, &errors.ResourceError{Resource: "filesystem", Message: "read memo", Cause: err}
	}
	title, content := splitMemoBody(string(raw))
	return Memo{ID: id, Title: title, Content: content, CreatedAt: info.ModTime(), UpdatedAt: info.ModTime()}, nil
}

// UpdateMemo overwrites a memo's content, preserving its title.
func (f *FileStorage) UpdateMemo(ctx context.Context, id, content string) (Memo, error) {
	if err := ctx.Err(); err != nil {
		return Memo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.GetMemo(ctx, id)
	if err != nil {
		return Memo{}, err
	}

	body := existing.Title + "\n\n" + content
	if err := os.WriteFile(f.memoPath(id), []byte(body), 0o644); err != nil {
		return Memo{}, &errors.ResourceError{Resource: "filesystem", Message: "write memo", Cause: err}
	}

	existing.Content = content
	existing.UpdatedAt = time.Now()
	return existing, nil
}

// ListMemos returns every memo, sorted by ULID (which sorts chronologically).
func (f *FileStorage) ListMemos(ctx context.Context) ([]Memo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.memosDir)
	if err != nil {
		return nil, &errors.ResourceError{Resource: "filesystem", Message: "list memos", Cause: err}
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Strings(ids)

	memos := make([]Memo, 0, len(ids))
	for _, id := range ids {
		memo, err := f.GetMemo(ctx, id)
		if err != nil {
			return nil, err
		}
		memos = append(memos, memo)
	}
	return memos, nil
}

func splitMemoBody(raw string) (title, content string) {
	parts := strings.SplitN(raw, "\n\n", 2)
	title = parts[0]
	if len(parts) == 2 {
		content = parts[1]
	}
	return title, content
}
