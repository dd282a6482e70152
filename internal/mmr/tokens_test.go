package mmr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_Formula(t *testing.T) {
	content := "func foo() {\n  return 1\n}\n```\ncode\n```"
	got := estimateTokens(content)

	lines := 6 // 5 newlines -> 6 lines
	fenced := 1
	funcBoundaries := 1
	want := int(math.Ceil(float64(len(content))/3.5) + 0.1*float64(lines) + 10*float64(fenced) + 2*float64(funcBoundaries) + 20)
	assert.Equal(t, want, got)
}

func TestEstimateTokens_EmptyContentStillHasOverhead(t *testing.T) {
	got := estimateTokens("")
	assert.Greater(t, got, 0)
}
