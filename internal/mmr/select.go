package mmr

import (
	"fmt"
	"math"
	"time"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/critical"
	codeerrors "github.com/Aman-CERP/codectx/internal/errors"
)

// Selector runs the guarded MMR algorithm (spec.md §4.3).
type Selector struct {
	cfg  Config
	sim  func(a, b *chunkmodel.CodeChunk) float64
	toks *tokenEstimator
}

// NewSelector builds a Selector from configuration.
func NewSelector(cfg Config) *Selector {
	return &Selector{
		cfg:  cfg,
		sim:  similarityFunc(cfg.DiversityMetric),
		toks: newTokenEstimator(),
	}
}

// Select runs the full algorithm: validate, extract the critical set,
// partition, and either emergency-reduce or iterate MMR (spec.md §4.3
// steps 1-5).
func (s *Selector) Select(query string, candidates []*chunkmodel.CodeChunk) (*ContextPackage, error) {
	start := nowFunc()

	if len(query) > maxQueryLen {
		return nil, codeerrors.New(codeerrors.ErrCodeSelectorQueryTooLong,
			fmt.Sprintf("query length %d exceeds cap %d", len(query), maxQueryLen), nil)
	}
	if len(candidates) > maxCandidates {
		return nil, codeerrors.New(codeerrors.ErrCodeSelectorTooManyCandidates,
			fmt.Sprintf("%d candidates exceeds cap %d", len(candidates), maxCandidates), nil)
	}
	for _, c := range candidates {
		if len(c.Content) > chunkmodel.MaxContentChars {
			return nil, codeerrors.New(codeerrors.ErrCodeSelectorChunkTooLarge,
				fmt.Sprintf("chunk %s exceeds content size cap", c.ChunkID), nil).WithDetail("chunk_id", c.ChunkID)
		}
	}

	cs := critical.Extract(query)
	criticalChunks, nonCritical := partition(candidates, cs)

	effectiveBudget := int(math.Floor((1 - s.cfg.TokenCushionPercent) * float64(s.cfg.MaxTokenBudget)))

	criticalTokens := 0
	for _, c := range criticalChunks {
		criticalTokens += s.toks.estimate(c)
	}

	if criticalTokens >= effectiveBudget {
		return s.emergencyReduce(criticalChunks, start), nil
	}

	available := effectiveBudget - criticalTokens
	picks := s.iterateMMR(nonCritical, criticalChunks, available)

	selected := append(append([]*chunkmodel.CodeChunk{}, criticalChunks...), picks...)

	totalTokens := criticalTokens
	for _, c := range picks {
		totalTokens += s.toks.estimate(c)
	}

	coverage := criticalCoverage(criticalChunks, criticalChunks)

	return &ContextPackage{
		SelectedChunks:      selected,
		TotalTokens:         totalTokens,
		CriticalSetCoverage: coverage,
		DiversityScore:      meanPairwiseDiversity(selected, s.sim),
		BudgetUtilization:   utilisation(totalTokens, s.cfg.MaxTokenBudget),
		SelectionTimeMs:     elapsedMs(start),
		EmergencyReduction:  false,
	}, nil
}

// emergencyReduce takes the highest-scoring prefix of critical chunks whose
// cumulative tokens fit within 0.8*max_token_budget (spec.md §4.3 step 3).
func (s *Selector) emergencyReduce(criticalChunks []*chunkmodel.CodeChunk, start time.Time) *ContextPackage {
	budgetCap := int(math.Floor(0.8 * float64(s.cfg.MaxTokenBudget)))
	var taken []*chunkmodel.CodeChunk
	total := 0
	for _, c := range criticalChunks {
		cost := s.toks.estimate(c)
		if total+cost > budgetCap {
			break
		}
		taken = append(taken, c)
		total += cost
	}

	coverage := 0.0
	if len(criticalChunks) > 0 {
		coverage = float64(len(taken)) / float64(len(criticalChunks))
	}

	return &ContextPackage{
		SelectedChunks:      taken,
		TotalTokens:         total,
		CriticalSetCoverage: coverage,
		DiversityScore:      0,
		// Emergency reduction only triggers when the critical set already
		// exceeds the budget, so utilisation is reported as fully
		// saturated (spec.md §8 S5) rather than the taken/cap ratio.
		BudgetUtilization: 1.0,
		SelectionTimeMs:   elapsedMs(start),
		EmergencyReduction: true,
	}
}

// iterateMMR runs the greedy MMR loop over non-critical candidates (spec.md
// §4.3 step 4).
func (s *Selector) iterateMMR(nonCritical, criticalChunks []*chunkmodel.CodeChunk, available int) []*chunkmodel.CodeChunk {
	remaining := append([]*chunkmodel.CodeChunk{}, nonCritical...)
	selected := append([]*chunkmodel.CodeChunk{}, criticalChunks...)
	var picks []*chunkmodel.CodeChunk

	for len(remaining) > 0 && available > 0 {
		if s.cfg.MaxChunks > 0 && len(picks) >= s.cfg.MaxChunks {
			break
		}

		bestIdx := -1
		bestScore := math.Inf(-1)
		bestCost := 0

		for i, cand := range remaining {
			cost := s.toks.estimate(cand)
			if cost > available {
				continue
			}
			diversity := 1.0
			if len(selected) > 0 {
				minSim := s.minSimilarityTo(cand, selected)
				diversity = 1 - clamp01(minSim)
			}
			score := s.cfg.LambdaRelevance*scoreOf(cand) + (1-s.cfg.LambdaRelevance)*diversity
			if score > bestScore {
				bestScore = score
				bestIdx = i
				bestCost = cost
			}
		}

		if bestIdx < 0 {
			break
		}

		picked := remaining[bestIdx]
		picks = append(picks, picked)
		selected = append(selected, picked)
		available -= bestCost
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return picks
}

func (s *Selector) minSimilarityTo(cand *chunkmodel.CodeChunk, selected []*chunkmodel.CodeChunk) float64 {
	min := math.Inf(1)
	for _, sel := range selected {
		sim := s.sim(cand, sel)
		if sim < min {
			min = sim
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// criticalCoverage computes |critical_included| / max(1, |critical|), the
// unambiguous denominator from spec.md §9 Open Questions.
func criticalCoverage(included, critical []*chunkmodel.CodeChunk) float64 {
	denom := len(critical)
	if denom == 0 {
		denom = 1
	}
	return float64(len(included)) / float64(denom)
}

func meanPairwiseDiversity(selected []*chunkmodel.CodeChunk, sim func(a, b *chunkmodel.CodeChunk) float64) float64 {
	n := len(selected)
	if n < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += sim(selected[i], selected[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return 1 - sum/float64(pairs)
}

func utilisation(tokens, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	u := float64(tokens) / float64(budget)
	if u > 1 {
		u = 1
	}
	return u
}

// nowFunc is a package variable so tests can substitute the start time;
// elapsedMs measures against the wall clock with time.Since.
var nowFunc = time.Now

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
