// Package mmr implements the Guarded Maximal-Marginal-Relevance selector:
// given scored candidate chunks, a query, and a token budget, it assembles
// a ContextPackage that guarantees a critical-set floor, maximises
// relevance/diversity on the remainder, and never exceeds the budget
// (spec.md §4.3).
package mmr

import (
	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/critical"
)

// DiversityMetric selects the similarity family used for the diversity term.
type DiversityMetric string

const (
	MetricCosine   DiversityMetric = "cosine"
	MetricJaccard  DiversityMetric = "jaccard"
	MetricSemantic DiversityMetric = "semantic"
)

// Config mirrors spec.md §4.3's configuration table.
type Config struct {
	LambdaRelevance     float64
	MaxTokenBudget      int
	TokenCushionPercent float64
	DiversityMetric     DiversityMetric
	MinCriticalCoverage float64
	MaxChunks           int // 0 means unbounded
}

// ContextPackage is the selector's output (spec.md §3).
type ContextPackage struct {
	SelectedChunks      []*chunkmodel.CodeChunk
	TotalTokens         int
	CriticalSetCoverage float64
	DiversityScore      float64
	BudgetUtilization   float64
	SelectionTimeMs     int64
	EmergencyReduction  bool
}

// Candidate is one scored input chunk; the selector never mutates the chunk
// itself.
type Candidate = chunkmodel.CodeChunk

const (
	maxCandidates = 10_000
	maxQueryLen   = 10_000
	// minCriticalMatchLen is the minimum-length gate documented for the
	// critical-chunk two-way substring matcher (spec.md §9 Open Questions:
	// preserves two-way substring containment but adds a 3-char floor to
	// cut false positives on short names).
	minCriticalMatchLen = 3
)

// CriticalSet is re-exported for callers that only need the extractor's
// output type without importing internal/critical directly.
type CriticalSet = critical.Set
