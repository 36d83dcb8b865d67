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

// Package search implements a dependency-free semantic code search engine:
// a deterministic local embedding function and an in-memory vector store
// with cosine similarity search.
package search

import "time"

// Language identifies the source language a CodeChunk was extracted from.
type Language string

const (
	LanguageRust       Language = "rust"
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguageGo         Language = "go"
	LanguageUnknown    Language = "unknown"
)

// ContentHash is an opaque content-addressed hash string.
type ContentHash string

// ChunkType classifies the syntactic unit a CodeChunk represents.
type ChunkType string

const (
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
	ChunkModule   ChunkType = "module"
	ChunkBlock    ChunkType = "block"
	ChunkOther    ChunkType = "other"
)

// CodeChunk is one indexed unit of source text.
type CodeChunk struct {
	ID          string
	FilePath    string
	Language    Language
	Content     string
	StartLine   int
	EndLine     int
	ChunkType   ChunkType
	ContentHash ContentHash
}

// Embedding is a unit-norm vector associated with a CodeChunk.
type Embedding struct {
	ChunkID string
	Vector  []float32
}

// IndexedFile records the last-indexed state of a file.
type IndexedFile struct {
	FileID     string
	Path       string
	Language   Language
	ContentHash ContentHash
	ChunkCount int
	IndexedAt  time.Time
}

// SemanticSearchResult is one ranked similarity-search hit.
type SemanticSearchResult struct {
	Chunk           CodeChunk
	SimilarityScore float32
	Excerpt         string
}

// IndexStats summarises the store's current contents.
type IndexStats struct {
	FileCount      int
	ChunkCount     int
	EmbeddingCount int
}

// SimilarityDetail is the raw per-candidate result from
// SimilaritySearchWithDetails, exposing the chunk id, score, and vector for
// debugging beyond what SemanticSearchResult carries.
type SimilarityDetail struct {
	ChunkID string
	Score   float32
	Vector  []float32
}
