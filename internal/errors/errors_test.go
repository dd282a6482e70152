package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategory(t *testing.T) {
	e := New(ErrCodePoolBatchTimeout, "batch timed out", nil)
	require.Equal(t, CategoryTransient, e.Category)
	require.True(t, e.Retryable)
	require.Equal(t, SeverityWarning, e.Severity)
}

func TestWrapNil(t *testing.T) {
	require.Nil(t, Wrap(ErrCodePoolBatchTimeout, nil))
}

func TestIsMatchesByCode(t *testing.T) {
	target := &CodeError{Code: ErrCodeStoreCorrupt}
	wrapped := stderrors.New("boom")
	e := New(ErrCodeStoreCorrupt, "index corrupt", wrapped)

	require.True(t, stderrors.Is(e, target))
	require.ErrorIs(t, e, wrapped)
}

func TestWithDetail(t *testing.T) {
	e := New(ErrCodeSelectorQueryTooLong, "query too long", nil).WithDetail("len", "20000")
	require.Equal(t, "20000", e.Details["len"])
}
