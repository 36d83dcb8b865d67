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

package search

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// VectorStore is an in-memory index of CodeChunks and their Embeddings,
// keyed by chunk id, plus per-file indexing metadata keyed by path. Reads
// never block each other; RemoveFile is atomic with respect to readers.
type VectorStore struct {
	mu sync.RWMutex

	chunks     map[string]CodeChunk
	embeddings map[string]Embedding
	files      map[string]IndexedFile
}

// NewVectorStore creates an empty VectorStore.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		chunks:     make(map[string]CodeChunk),
		embeddings: make(map[string]Embedding),
		files:      make(map[string]IndexedFile),
	}
}

// StoreChunk inserts or replaces a CodeChunk by id.
func (s *VectorStore) StoreChunk(c CodeChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[c.ID] = c
}

// StoreEmbedding inserts or replaces an Embedding by its chunk id.
func (s *VectorStore) StoreEmbedding(e Embedding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[e.ChunkID] = e
}

// StoreIndexedFile records a file's last-indexed state.
func (s *VectorStore) StoreIndexedFile(f IndexedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.Path] = f
}

// IndexFile records a freshly (re)indexed file, assigning it a new FileID
// when the caller leaves one unset. Re-indexing the same path keeps
// generating a new id, matching "a content-hash mismatch means this is a
// new indexing pass" rather than an in-place update.
func (s *VectorStore) IndexFile(f IndexedFile) IndexedFile {
	if f.FileID == "" {
		f.FileID = uuid.NewString()
	}
	s.StoreIndexedFile(f)
	return f
}

// RemoveFile removes every chunk and embedding belonging to path, then the
// file record itself, under a single write lock so observers never see a
// partially-removed file.
func (s *VectorStore) RemoveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.chunks {
		if c.FilePath == path {
			delete(s.chunks, id)
			delete(s.embeddings, id)
		}
	}
	delete(s.files, path)
}

// NeedsReindexing reports whether path is unindexed or its stored content
// hash differs from currentHash.
func (s *VectorStore) NeedsReindexing(path string, currentHash ContentHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[path]
	if !ok {
		return true
	}
	return f.ContentHash != currentHash
}

// GetIndexStats summarises the store's current size.
func (s *VectorStore) GetIndexStats() IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IndexStats{
		FileCount:      len(s.files),
		ChunkCount:     len(s.chunks),
		EmbeddingCount: len(s.embeddings),
	}
}

// SimilaritySearch scans all embeddings, scores them by cosine similarity
// against query, keeps scores >= threshold, and returns the top limit
// results sorted by descending score.
func (s *VectorStore) SimilaritySearch(query []float32, limit int, threshold float32) []SemanticSearchResult {
	details := s.SimilaritySearchWithDetails(query, limit, threshold)
	out := make([]SemanticSearchResult, 0, len(details))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range details {
		chunk, ok := s.chunks[d.ChunkID]
		if !ok {
			continue
		}
		out = append(out, SemanticSearchResult{
			Chunk:           chunk,
			SimilarityScore: d.Score,
			Excerpt:         excerpt(chunk.Content, 200),
		})
	}
	return out
}

// SimilaritySearchWithDetails is SimilaritySearch's raw form, returning
// (chunk_id, score, vector) triples for debugging instead of joined
// CodeChunks.
func (s *VectorStore) SimilaritySearchWithDetails(query []float32, limit int, threshold float32) []SimilarityDetail {
	s.mu.RLock()
	candidates := make([]SimilarityDetail, 0, len(s.embeddings))
	for id, e := range s.embeddings {
		score := cosineSimilarity(query, e.Vector)
		if score >= threshold {
			candidates = append(candidates, SimilarityDetail{ChunkID: id, Score: score, Vector: e.Vector})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// cosineSimilarity computes a·b; vectors produced by Engine.Embed are
// already unit-norm, so this is exactly cosine similarity.
func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float32
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

func excerpt(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
