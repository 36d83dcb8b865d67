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
	"hash/fnv"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

// Dim is the fixed embedding dimensionality. The engine guarantees only
// unit-norm, determinism, and this dimension; it is a stand-in for a real
// local embedding model, not an approximation of one.
const Dim = 384

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var keywordSet = map[string]bool{
	"func": true, "func()": true, "return": true, "if": true, "else": true,
	"for": true, "while": true, "def": true, "class": true, "import": true,
	"package": true, "let": true, "const": true, "var": true, "struct": true,
	"interface": true, "type": true, "fn": true, "impl": true, "match": true,
	"switch": true, "case": true, "async": true, "await": true, "export": true,
	"public": true, "private": true, "static": true, "void": true, "null": true,
}

// Engine computes deterministic, dependency-free text embeddings. It is
// safe for concurrent use; per-word vectors are memoised.
type Engine struct {
	mu        sync.Mutex
	wordCache map[string][]float32
	logger    *slog.Logger
}

// NewEngine constructs an embedding Engine. A nil logger defaults to
// slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{wordCache: make(map[string][]float32), logger: logger}
}

// Embed computes a unit-norm Dim-dimensional embedding of text. Embedding
// is deterministic: the same text always produces the same vector.
func (e *Engine) Embed(text string) ([]float32, error) {
	normalized := normalizeWhitespace(text)
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return nil, &errors.ValidationError{Field: "text", Message: "cannot embed empty text"}
	}

	n := float64(len(tokens))
	sum := make([]float64, Dim)
	for idx, tok := range tokens {
		wv := e.wordVector(tok)
		weight := 1 + float64(idx)/n*0.1
		for d := 0; d < Dim; d++ {
			sum[d] += float64(wv[d]) * weight
		}
	}
	for d := range sum {
		sum[d] /= n
	}

	addTextFeatures(sum, text, tokens)
	return unitNormalize(sum), nil
}

// EmbedBatch embeds texts in fixed-size batches with a small inter-batch
// delay, mirroring a real model client's rate-limited batch API. A failure
// embedding an individual text is logged and skipped rather than failing
// the whole batch; the returned slice omits skipped entries.
func (e *Engine) EmbedBatch(texts []string, batchSize int) []Embedding {
	if batchSize <= 0 {
		batchSize = 16
	}
	var out []Embedding
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		for _, t := range texts[start:end] {
			vec, err := e.Embed(t)
			if err != nil {
				e.logger.Warn("embed_batch: skipping text", "error", err)
				continue
			}
			out = append(out, Embedding{Vector: vec})
		}
		if end < len(texts) {
			time.Sleep(time.Millisecond)
		}
	}
	return out
}

// normalizeWhitespace trims trailing whitespace from each line, collapses runs of 3+ newlines to 2.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	joined := strings.Join(lines, "\n")
	for strings.Contains(joined, "\n\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n\n", "\n\n")
	}
	return joined
}

// wordVector returns the cached per-word unit vector, computing and
// memoising it on first use.
func (e *Engine) wordVector(word string) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.wordCache[word]; ok {
		return v
	}

	seed := hashSeed(word)
	rng := newSplitMix64(seed)
	v := make([]float64, Dim)
	for i := 0; i < Dim; i++ {
		v[i] = rng.nextUnit()
	}
	applySemanticBumps(v, word)
	norm := unitNormalize(v)

	e.wordCache[word] = norm
	return norm
}

// applySemanticBumps boosts disjoint residue classes of dimensions
// depending on the token's syntactic role, so that similar kinds of code
// land closer together than dissimilar kinds.
func applySemanticBumps(v []float64, word string) {
	lower := strings.ToLower(word)
	if keywordSet[lower] {
		bumpResidueClass(v, 0, 4)
	}
	if strings.ContainsAny(word, "()") {
		bumpResidueClass(v, 1, 4)
	}
	if identifierRe.MatchString(word) && len(word) > 2 {
		bumpResidueClass(v, 2, 4)
	}
	if isStringLiteral(word) {
		bumpResidueClass(v, 3, 4)
	}
}

func isStringLiteral(word string) bool {
	if len(word) < 2 {
		return false
	}
	first, last := word[0], word[len(word)-1]
	return (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`')
}

// bumpResidueClass adds +0.3 to every dimension d where d%mod == residue.
func bumpResidueClass(v []float64, residue, mod int) {
	for d := residue; d < len(v); d += mod {
		v[d] += 0.3
	}
}

// addTextFeatures adds length/multi-line/bracket-density signal to the
// last few reserved dimensions, which otherwise carry only word signal.
func addTextFeatures(sum []float64, text string, tokens []string) {
	D := len(sum)
	if D < 3 {
		return
	}
	lengthFactor := float64(len(text)) / 1000.0
	if lengthFactor > 1 {
		lengthFactor = 1
	}
	multilineFactor := 0.0
	if strings.Contains(text, "\n") {
		multilineFactor = 1.0
	}
	brackets := strings.Count(text, "{") + strings.Count(text, "}") +
		strings.Count(text, "(") + strings.Count(text, ")") +
		strings.Count(text, "[") + strings.Count(text, "]")
	bracketDensity := float64(brackets) / float64(max(1, len(text)))

	for d := D - 3; d < D; d += 3 {
		sum[d] += lengthFactor * 0.2
	}
	for d := D - 2; d < D; d += 3 {
		sum[d] += multilineFactor * 0.2
	}
	for d := D - 1; d < D; d += 3 {
		sum[d] += bracketDensity * 2.0
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// unitNormalize scales v to unit L2 norm, returning a float32 copy. A
// zero vector is returned unchanged (cannot be normalised).
func unitNormalize(v []float64) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	out := make([]float32, len(v))
	if sumSq == 0 {
		return out
	}
	norm := math.Sqrt(sumSq)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// hashSeed derives a 64-bit deterministic seed from a word via FNV-1a.
func hashSeed(word string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(word))
	return h.Sum64()
}

// splitMix64 is a small, fast, deterministic PRNG used to expand a word's
// hash into Dim pseudo-random components without pulling in math/rand's
// global state or any third-party RNG.
type splitMix64 struct {
	state uint64
}

func newSplitMix64(seed uint64) *splitMix64 {
	return &splitMix64{state: seed}
}

func (s *splitMix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// nextUnit returns a pseudo-random float64 in [-1, 1].
func (s *splitMix64) nextUnit() float64 {
	const mask = (uint64(1) << 53) - 1
	f := float64(s.next()&mask) / float64(mask)
	return f*2 - 1
}
