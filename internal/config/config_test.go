package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svn2git/svn2git/internal/svnerr"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeTemp(t, "conv.toml", `
src = "/srv/svn/repo.dump"
dest = "/srv/git/repo.git"
branches = ["trunk", "branches/*"]
tags = ["tags/*"]
enable-merges = true
`)
	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/svn/repo.dump", p.Source)
	require.Equal(t, []string{"trunk", "branches/*"}, p.Branches)
	require.True(t, p.EnableMerges)
}

func TestLoadYAMLFallback(t *testing.T) {
	path := writeTemp(t, "conv.cfg", "src: /srv/svn/repo.dump\ndest: /srv/git/repo.git\nhead: trunk\n")
	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/svn/repo.dump", p.Source)
	require.Equal(t, "trunk", p.Head)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := writeTemp(t, "conv.cfg", "{{{ not toml or yaml : : :")
	_, err := Load(path)
	require.Error(t, err)
	cerr, ok := err.(*svnerr.Error)
	require.True(t, ok)
	require.Equal(t, svnerr.ClassConfig, cerr.Class)
}

func TestDefaultParams(t *testing.T) {
	p := Default()
	require.Equal(t, []string{"trunk", "branches/*"}, p.Branches)
	require.True(t, p.KeepDeletedBranches)
	require.Equal(t, int64(384<<20), p.ObjCacheSizeBytes)
}
