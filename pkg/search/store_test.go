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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVectorStore_StoreAndSearch(t *testing.T) {
	e := NewEngine(nil)
	store := NewVectorStore()

	texts := map[string]string{
		"c1": "func add(a, b int) int { return a + b }",
		"c2": "func subtract(a, b int) int { return a - b }",
		"c3": "The quick brown fox jumps over the lazy dog",
	}
	for id, text := range texts {
		vec, err := e.Embed(text)
		require.NoError(t, err)
		store.StoreChunk(CodeChunk{ID: id, FilePath: "pkg/math.go", Content: text, ChunkType: ChunkFunction})
		store.StoreEmbedding(Embedding{ChunkID: id, Vector: vec})
	}

	query, err := e.Embed("func multiply(a, b int) int { return a * b }")
	require.NoError(t, err)

	results := store.SimilaritySearch(query, 2, -1)
	require.Len(t, results, 2)
	require.GreaterOrEqual(t, results[0].SimilarityScore, results[1].SimilarityScore)
	require.Contains(t, []string{"c1", "c2"}, idFor(results[0].Chunk, texts))
}

func idFor(c CodeChunk, texts map[string]string) string {
	for id, text := range texts {
		if c.Content == text {
			return id
		}
	}
	return ""
}

func TestVectorStore_ThresholdFilters(t *testing.T) {
	e := NewEngine(nil)
	store := NewVectorStore()

	vec, err := e.Embed("func add(a, b int) int { return a + b }")
	require.NoError(t, err)
	store.StoreChunk(CodeChunk{ID: "c1", Content: "x"})
	store.StoreEmbedding(Embedding{ChunkID: "c1", Vector: vec})

	results := store.SimilaritySearch(vec, 10, 2.0)
	require.Empty(t, results, "threshold above max possible cosine similarity excludes everything")
}

func TestVectorStore_RemoveFile_RemovesChunksAndEmbeddings(t *testing.T) {
	store := NewVectorStore()
	store.StoreChunk(CodeChunk{ID: "a", FilePath: "x.go"})
	store.StoreEmbedding(Embedding{ChunkID: "a", Vector: []float32{1, 0}})
	store.StoreChunk(CodeChunk{ID: "b", FilePath: "y.go"})
	store.StoreEmbedding(Embedding{ChunkID: "b", Vector: []float32{0, 1}})
	store.StoreIndexedFile(IndexedFile{Path: "x.go", IndexedAt: time.Now()})

	store.RemoveFile("x.go")

	stats := store.GetIndexStats()
	require.Equal(t, 1, stats.ChunkCount)
	require.Equal(t, 1, stats.EmbeddingCount)
	require.Equal(t, 0, stats.FileCount)

	results := store.SimilaritySearchWithDetails([]float32{1, 0}, 10, -1)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].ChunkID)
}

func TestVectorStore_NeedsReindexing(t *testing.T) {
	store := NewVectorStore()
	require.True(t, store.NeedsReindexing("new.go", "abc"))

	store.StoreIndexedFile(IndexedFile{Path: "new.go", ContentHash: "abc"})
	require.False(t, store.NeedsReindexing("new.go", "abc"))
	require.True(t, store.NeedsReindexing("new.go", "def"))
}

func TestVectorStore_IndexFile_AssignsFileID(t *testing.T) {
	store := NewVectorStore()

	first := store.IndexFile(IndexedFile{Path: "a.go", ContentHash: "h1"})
	require.NotEmpty(t, first.FileID)

	second := store.IndexFile(IndexedFile{Path: "a.go", ContentHash: "h2"})
	require.NotEmpty(t, second.FileID)
	require.NotEqual(t, first.FileID, second.FileID)

	preset := store.IndexFile(IndexedFile{Path: "b.go", FileID: "explicit-id"})
	require.Equal(t, "explicit-id", preset.FileID)
}
