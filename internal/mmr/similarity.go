package mmr

import (
	"math"
	"regexp"
	"strings"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

var wordRe = regexp.MustCompile(`\w+`)

// cosineSimilarity mirrors the vectorstore's metric: 0 if either vector is
// zero or dimensions mismatch (spec.md §4.3).
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

// jaccardSimilarity: 0.8 if same file_path, else 0.6 if same chunk_type,
// else word-set Jaccard overlap (spec.md §4.3).
func jaccardSimilarity(a, b *chunkmodel.CodeChunk) float64 {
	if a.FilePath == b.FilePath {
		return 0.8
	}
	if a.ChunkType == b.ChunkType {
		return 0.6
	}
	wordsA := wordSet(a.Content)
	wordsB := wordSet(b.Content)
	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 0
	}
	intersection, union := 0, len(wordsA)
	for w := range wordsB {
		if wordsA[w] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(content string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(content), -1) {
		out[w] = true
	}
	return out
}

// semanticSimilarity is the default diversity metric: a weighted blend of
// cosine and jaccard (spec.md §4.3).
func semanticSimilarity(a, b *chunkmodel.CodeChunk) float64 {
	return 0.7*cosineSimilarity(a.Embedding, b.Embedding) + 0.3*jaccardSimilarity(a, b)
}

// similarityFunc resolves the configured metric to a pairwise function.
func similarityFunc(metric DiversityMetric) func(a, b *chunkmodel.CodeChunk) float64 {
	switch metric {
	case MetricCosine:
		return func(a, b *chunkmodel.CodeChunk) float64 { return cosineSimilarity(a.Embedding, b.Embedding) }
	case MetricJaccard:
		return jaccardSimilarity
	default:
		return semanticSimilarity
	}
}
