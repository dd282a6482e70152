package critical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_FilePath(t *testing.T) {
	set := Extract("what does the worker do in internal/pool/worker.go")
	assert.Contains(t, set.FilePaths, "internal/pool/worker.go")
}

func TestExtract_RejectsShortAndNodeModulesTokens(t *testing.T) {
	set := Extract("check node_modules/x.go and a.c for details")
	assert.NotContains(t, set.FilePaths, "node_modules/x.go")
	// "a.c" is 3 characters, below the 4-char minimum.
	assert.NotContains(t, set.FilePaths, "a.c")
}

func TestExtract_FunctionName(t *testing.T) {
	set := Extract("calling embedBatch and the pool.Shutdown() method")
	assert.Contains(t, set.FunctionNames, "embedBatch")
}

func TestExtract_FunctionStopwordsRejected(t *testing.T) {
	set := Extract("function and function or function not")
	assert.NotContains(t, set.FunctionNames, "and")
	assert.NotContains(t, set.FunctionNames, "or")
	assert.NotContains(t, set.FunctionNames, "not")
}

func TestExtract_SymbolName(t *testing.T) {
	set := Extract("the ProcessScaler component handles growth")
	assert.Contains(t, set.SymbolNames, "ProcessScaler")
}

func TestExtract_ConfidenceWhenNothingFound(t *testing.T) {
	set := Extract("hello there general question")
	assert.InDelta(t, 0.1, set.Confidence, 1e-9)
}

func TestExtract_ConfidenceFormula(t *testing.T) {
	// One file path (+0.2) and nothing else: total_mentions=1.
	set := Extract("look at worker.go please")
	want := 0.3 + 0.15*1 + 0.2
	assert.InDelta(t, want, set.Confidence, 1e-9)
}

func TestExtract_ConfidenceClampedAt95(t *testing.T) {
	set := Extract("worker.go pool.go store.go cache.go embedBatch calling shutdown component ProcessScaler BatchSizer CriticalExtractor")
	assert.LessOrEqual(t, set.Confidence, 0.95)
}
