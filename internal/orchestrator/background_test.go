package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundIndexer_RunsAndCompletes(t *testing.T) {
	scn := newFakeScanner()
	scn.files["a.go"] = []byte("package a")
	store := newTestStore(t)
	o := New(scn, fakeChunker{}, &fakePool{}, store, nil, nil)

	bg := NewBackgroundIndexer(o, ModeFull, t.TempDir())
	assert.False(t, bg.IsRunning())
	bg.Start(context.Background())

	require.Eventually(t, func() bool { return !bg.IsRunning() }, time.Second, time.Millisecond)
	require.NoError(t, bg.Wait())
	assert.Len(t, store.Chunks(), 1)
}

func TestBackgroundIndexer_HasIncompleteLock(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasIncompleteLock(dir))

	scn := newFakeScanner()
	scn.files["a.go"] = []byte("package a")
	store := newTestStore(t)
	o := New(scn, fakeChunker{}, &fakePool{}, store, nil, nil)
	bg := NewBackgroundIndexer(o, ModeFull, dir)

	bg.Start(context.Background())
	require.NoError(t, bg.Wait())
	assert.False(t, HasIncompleteLock(dir))
	_ = filepath.Join(dir, lockFileName)
}
