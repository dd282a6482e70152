package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDataDir_DefaultsUnderRoot(t *testing.T) {
	orig := dataDir
	defer func() { dataDir = orig }()

	dataDir = ""
	got := resolveDataDir("/tmp/project")
	assert.Equal(t, filepath.Join("/tmp/project", ".codectx"), got)
}

func TestResolveDataDir_HonorsExplicitFlag(t *testing.T) {
	orig := dataDir
	defer func() { dataDir = orig }()

	dataDir = "/var/codectx-data"
	got := resolveDataDir("/tmp/project")
	assert.Equal(t, "/var/codectx-data", got)
}

func TestResolveRoot_HonorsExplicitFlag(t *testing.T) {
	orig := rootDir
	defer func() { rootDir = orig }()

	rootDir = "/srv/app"
	got, err := resolveRoot()
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", got)
}

func TestResolveRoot_DiscoversFromCwdWhenDefault(t *testing.T) {
	orig := rootDir
	defer func() { rootDir = orig }()

	rootDir = "."
	got, err := resolveRoot()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestFindProjectRoot_AndResolveRootAgree(t *testing.T) {
	orig := rootDir
	defer func() { rootDir = orig }()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)

	require.NoError(t, os.Chdir(sub))
	rootDir = "."

	got, err := resolveRoot()
	require.NoError(t, err)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	resolvedGot, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, resolvedDir, resolvedGot)
}
