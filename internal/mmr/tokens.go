package mmr

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

var (
	fencedCodeBlockRe  = regexp.MustCompile("```")
	functionBoundaryRe = regexp.MustCompile(`(?m)^\s*(func|function|def|class|fn)\b`)
)

// tokenEstimator caches the per-chunk token estimate by chunk_id (spec.md
// §4.3, "cached per chunk_id"). Deliberately conservative; the cushion
// absorbs underestimates.
type tokenEstimator struct {
	mu    sync.Mutex
	cache map[string]int
}

func newTokenEstimator() *tokenEstimator {
	return &tokenEstimator{cache: make(map[string]int)}
}

func (t *tokenEstimator) estimate(c *chunkmodel.CodeChunk) int {
	t.mu.Lock()
	if v, ok := t.cache[c.ChunkID]; ok {
		t.mu.Unlock()
		return v
	}
	t.mu.Unlock()

	v := estimateTokens(c.Content)

	t.mu.Lock()
	t.cache[c.ChunkID] = v
	t.mu.Unlock()
	return v
}

// estimateTokens implements the token estimator formula from spec.md §4.3.
func estimateTokens(content string) int {
	lines := strings.Count(content, "\n") + 1
	fencedBlocks := len(fencedCodeBlockRe.FindAllString(content, -1)) / 2
	functionBoundaries := len(functionBoundaryRe.FindAllString(content, -1))

	tokens := math.Ceil(float64(len(content))/3.5) +
		0.1*float64(lines) +
		10*float64(fencedBlocks) +
		2*float64(functionBoundaries) +
		20
	return int(tokens)
}
