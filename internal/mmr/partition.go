package mmr

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

// partition splits candidates into critical and non-critical sets using the
// two-way, case-insensitive substring matching rule (spec.md §4.3 step 2),
// gated by a minimum match length to cut false positives on short names
// (spec.md §9 Open Questions).
func partition(candidates []*chunkmodel.CodeChunk, cs CriticalSet) (criticalChunks, nonCritical []*chunkmodel.CodeChunk) {
	for _, c := range candidates {
		if isCritical(c, cs) {
			criticalChunks = append(criticalChunks, c)
		} else {
			nonCritical = append(nonCritical, c)
		}
	}
	sort.SliceStable(criticalChunks, func(i, j int) bool {
		return scoreOf(criticalChunks[i]) > scoreOf(criticalChunks[j])
	})
	sort.SliceStable(nonCritical, func(i, j int) bool {
		return scoreOf(nonCritical[i]) > scoreOf(nonCritical[j])
	})
	return criticalChunks, nonCritical
}

func isCritical(c *chunkmodel.CodeChunk, cs CriticalSet) bool {
	for _, path := range cs.FilePaths {
		if touches(c.FilePath, path) {
			return true
		}
	}
	for _, fn := range cs.FunctionNames {
		if touches(c.FunctionName, fn) {
			return true
		}
	}
	for _, sym := range cs.SymbolNames {
		if touches(c.SymbolName, sym) {
			return true
		}
	}
	return false
}

// touches implements the two-way, case-insensitive substring check with
// the minimum-length gate.
func touches(field, hint string) bool {
	if field == "" || hint == "" {
		return false
	}
	if len(field) < minCriticalMatchLen || len(hint) < minCriticalMatchLen {
		return false
	}
	f := strings.ToLower(field)
	h := strings.ToLower(hint)
	return strings.Contains(f, h) || strings.Contains(h, f)
}

// scoreOf returns relevance_score, falling back to similarity_score, or 0.
func scoreOf(c *chunkmodel.CodeChunk) float64 {
	if c.RelevanceScore != nil {
		return *c.RelevanceScore
	}
	if c.SimilarityScore != nil {
		return *c.SimilarityScore
	}
	return 0
}
