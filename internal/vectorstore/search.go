package vectorstore

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

// cosineSimilarity returns the cosine similarity of a and b, or 0 if either
// is zero-length, zero-magnitude, or the dimensions mismatch (spec.md
// §4.3, cosine metric definition, reused verbatim here for search).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// matchesGlobs reports whether path matches any of the `*`/`**` glob
// patterns; an empty pattern list allows everything.
func matchesGlobs(path string, globs []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if matchesGlob(path, g) {
			return true
		}
	}
	return false
}

// matchesGlob supports `**` (any number of path segments, including none)
// and `*` (any run within a single segment); it is a small hand-rolled
// matcher because Go's filepath.Match does not support `**`.
func matchesGlob(path, pattern string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], strings.TrimPrefix(parts[1], "/")
	if prefix != "" && !strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")) {
		return false
	}
	if suffix == "" {
		return true
	}
	rest := strings.TrimPrefix(path, prefix)
	ok, err := filepath.Match(suffix, filepath.Base(rest))
	if err == nil && ok {
		return true
	}
	return strings.HasSuffix(rest, suffix)
}

// flatScanSearch computes cosine similarity against every candidate chunk
// (skipping absent/zero-vector embeddings per spec.md §4.2 "Search
// semantics") and returns the top-k, ties broken by chunk_id.
func flatScanSearch(chunks map[string]*chunkmodel.CodeChunk, query []float32, k int, filter SearchFilter) []SearchResult {
	results := make([]SearchResult, 0, len(chunks))
	for _, c := range chunks {
		if chunkmodel.IsZeroVector(c.Embedding) || len(c.Embedding) == 0 {
			continue
		}
		if !matchesGlobs(c.FilePath, filter.PathGlobs) {
			continue
		}
		results = append(results, SearchResult{Chunk: c, Similarity: cosineSimilarity(query, c.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// annIndex is the optional coder/hnsw approximate index backing Search.
// It is rebuilt from the snapshot on load/apply_delta rather than
// incrementally patched, trading a little rebuild cost for the simplicity
// of always reflecting the current view exactly; flat scan remains the
// search path whenever the ANN index is disabled or holds no vectors.
type annIndex struct {
	graph  *hnsw.Graph[string]
	stored int
}

func newANNIndex() *annIndex {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 40
	return &annIndex{graph: g}
}

func (a *annIndex) rebuild(chunks map[string]*chunkmodel.CodeChunk) {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 40
	n := 0
	for id, c := range chunks {
		if chunkmodel.IsZeroVector(c.Embedding) || len(c.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(id, c.Embedding))
		n++
	}
	a.graph = g
	a.stored = n
}

// search returns the approximate top-k ids and their cosine similarity to
// query. Filtering by path glob happens after the ANN lookup since hnsw has
// no notion of metadata predicates; callers needing guaranteed recall under
// a narrow filter should prefer flatScanSearch.
func (a *annIndex) search(chunks map[string]*chunkmodel.CodeChunk, query []float32, k int, filter SearchFilter) []SearchResult {
	if a.stored == 0 {
		return nil
	}
	// Over-fetch to compensate for post-filtering and keep recall high.
	fetch := k * 4
	if fetch < k+20 {
		fetch = k + 20
	}
	nodes := a.graph.Search(query, fetch)
	out := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		c, ok := chunks[node.Key]
		if !ok || !matchesGlobs(c.FilePath, filter.PathGlobs) {
			continue
		}
		out = append(out, SearchResult{Chunk: c, Similarity: cosineSimilarity(query, c.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
