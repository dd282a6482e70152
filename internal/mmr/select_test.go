package mmr

import (
	"fmt"
	"testing"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func score(v float64) *float64 { return &v }

func candidateWithTokens(t *testing.T, path string, relevance float64, approxTokens int) *chunkmodel.CodeChunk {
	t.Helper()
	// tokens ~= content_len/3.5 + overhead; solve content_len for a target.
	contentLen := int(float64(approxTokens-21) * 3.5)
	if contentLen < 1 {
		contentLen = 1
	}
	content := make([]byte, contentLen)
	for i := range content {
		content[i] = 'x'
	}
	c, err := chunkmodel.NewCodeChunk(path, 1, 2, chunkmodel.ChunkTypeFunction, string(content))
	require.NoError(t, err)
	c.RelevanceScore = score(relevance)
	v := make([]float32, chunkmodel.EmbeddingDimension)
	v[0] = float32(relevance)
	c.Embedding = v
	return c
}

func defaultConfig() Config {
	return Config{
		LambdaRelevance:     0.7,
		MaxTokenBudget:      100_000,
		TokenCushionPercent: 0.20,
		DiversityMetric:     MetricSemantic,
		MinCriticalCoverage: 0.95,
	}
}

// TestSelect_S4_CriticalInclusion covers S4: 50 candidates, 3 match a
// critical file path, budget 10000 at ~1000 tokens/chunk; all 3 critical
// chunks appear; total tokens <= 8000.
func TestSelect_S4_CriticalInclusion(t *testing.T) {
	var candidates []*chunkmodel.CodeChunk
	for i := 0; i < 50; i++ {
		path := fmt.Sprintf("pkg/file_%d.go", i)
		if i < 3 {
			path = "internal/critical/special.go"
		}
		candidates = append(candidates, candidateWithTokens(t, path, 0.5, 1000))
	}

	cfg := defaultConfig()
	cfg.MaxTokenBudget = 10_000
	s := NewSelector(cfg)

	pkg, err := s.Select("what does internal/critical/special.go do", candidates)
	require.NoError(t, err)

	criticalCount := 0
	for _, c := range pkg.SelectedChunks {
		if c.FilePath == "internal/critical/special.go" {
			criticalCount++
		}
	}
	assert.Equal(t, 3, criticalCount)
	assert.LessOrEqual(t, pkg.TotalTokens, 8000)
	assert.False(t, pkg.EmergencyReduction)
}

// TestSelect_S5_EmergencyReduction covers S5: critical set whose estimated
// tokens sum to 1.2x budget; output is the highest-scoring prefix fitting
// 0.8*budget; diversity_score == 0; budget_utilization == 1.0.
func TestSelect_S5_EmergencyReduction(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxTokenBudget = 1000

	var candidates []*chunkmodel.CodeChunk
	// Each critical chunk ~400 tokens; 3 of them = 1200 tokens = 1.2x budget.
	for i := 0; i < 3; i++ {
		c := candidateWithTokens(t, "internal/critical/hot.go", 1.0-float64(i)*0.1, 400)
		candidates = append(candidates, c)
	}

	s := NewSelector(cfg)
	pkg, err := s.Select("explain internal/critical/hot.go", candidates)
	require.NoError(t, err)

	assert.True(t, pkg.EmergencyReduction)
	assert.Equal(t, float64(0), pkg.DiversityScore)
	assert.Equal(t, float64(1), pkg.BudgetUtilization)
	assert.LessOrEqual(t, pkg.TotalTokens, int(0.8*1000))
}

// TestSelect_Invariant6_NeverExceedsBudget covers invariant 6.
func TestSelect_Invariant6_NeverExceedsBudget(t *testing.T) {
	var candidates []*chunkmodel.CodeChunk
	for i := 0; i < 30; i++ {
		candidates = append(candidates, candidateWithTokens(t, fmt.Sprintf("f%d.go", i), 0.9, 500))
	}
	cfg := defaultConfig()
	cfg.MaxTokenBudget = 5000
	s := NewSelector(cfg)

	pkg, err := s.Select("generic query", candidates)
	require.NoError(t, err)

	effectiveBudget := int(0.8 * 5000)
	assert.LessOrEqual(t, pkg.TotalTokens, effectiveBudget)
}

// TestSelect_Invariant7_LambdaZeroPicksMostDiverse covers invariant 7: with
// lambda=0 and identical relevance, the second pick minimises similarity to
// the first.
func TestSelect_Invariant7_LambdaZeroPicksMostDiverse(t *testing.T) {
	similar := candidateWithTokens(t, "a.go", 0.5, 200)
	alsoSimilar := candidateWithTokens(t, "a.go", 0.5, 200) // same file_path -> high jaccard to 'similar'
	different := candidateWithTokens(t, "z.go", 0.5, 200)
	different.Embedding[1] = 5 // distinguish cosine component

	cfg := defaultConfig()
	cfg.LambdaRelevance = 0
	cfg.MaxTokenBudget = 100_000
	s := NewSelector(cfg)

	pkg, err := s.Select("generic", []*chunkmodel.CodeChunk{similar, alsoSimilar, different})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pkg.SelectedChunks), 2)

	// The first pick is whichever sorts first (stable, equal relevance);
	// the second pick must be the one least similar to it.
	first := pkg.SelectedChunks[0]
	second := pkg.SelectedChunks[1]
	assert.NotEqual(t, first.FilePath, second.FilePath,
		"second pick should favor the dissimilar candidate under lambda=0")
}

func TestSelect_RejectsTooManyCandidates(t *testing.T) {
	s := NewSelector(defaultConfig())
	candidates := make([]*chunkmodel.CodeChunk, maxCandidates+1)
	for i := range candidates {
		candidates[i] = candidateWithTokens(t, "a.go", 0.1, 10)
	}
	_, err := s.Select("q", candidates)
	assert.Error(t, err)
}

func TestTokenEstimator_IsCachedPerChunkID(t *testing.T) {
	c := candidateWithTokens(t, "a.go", 0.5, 100)
	est := newTokenEstimator()
	v1 := est.estimate(c)
	c.Content = "completely different content that would estimate differently"
	v2 := est.estimate(c) // same chunk_id: cached value returned
	assert.Equal(t, v1, v2)
}
