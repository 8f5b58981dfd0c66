package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(Config{
		Branches:        []string{"trunk", "branches/*"},
		Tags:            []string{"tags/*"},
		PartialBranches: []string{"branches/*"},
		RenameBranches:  map[string]string{"trunk": "master"},
		UnbranchedName:  "unbranched",
		DeleteFiles:     []string{".cvsignore"},
		MergeOptional:   []string{"**/A"},
	})
	require.NoError(t, err)
	return c
}

func TestClassifyTrunk(t *testing.T) {
	c := newTestClassifier(t)
	cl, ok := c.Classify("trunk/src/main.c")
	require.True(t, ok)
	require.Equal(t, KindBranch, cl.Kind)
	require.Equal(t, "trunk", cl.BranchRoot)
	require.Equal(t, "src/main.c", cl.InBranchSubPath)
	require.Equal(t, "master", c.ResolveRename(cl.Kind, cl.BranchRoot))
}

func TestClassifyBranch(t *testing.T) {
	c := newTestClassifier(t)
	cl, ok := c.Classify("branches/b1/README")
	require.True(t, ok)
	require.Equal(t, KindBranch, cl.Kind)
	require.Equal(t, "branches/b1", cl.BranchRoot)
	require.Equal(t, "README", cl.InBranchSubPath)
	require.Equal(t, "b1", c.ResolveRename(cl.Kind, cl.BranchRoot))
	require.True(t, c.AllowsPartial(KindBranch, "branches/b1"))
}

func TestClassifyTag(t *testing.T) {
	c := newTestClassifier(t)
	cl, ok := c.Classify("tags/1.0/README")
	require.True(t, ok)
	require.Equal(t, KindTag, cl.Kind)
	require.Equal(t, "tags/1.0", cl.BranchRoot)
}

func TestClassifyUnbranched(t *testing.T) {
	c := newTestClassifier(t)
	cl, ok := c.Classify("misc/notes.txt")
	require.True(t, ok)
	require.Equal(t, KindUnbranched, cl.Kind)
	require.Equal(t, "misc/notes.txt", cl.InBranchSubPath)
}

func TestClassifyDropsUnbranchedWhenUnset(t *testing.T) {
	c, err := New(Config{Branches: []string{"trunk"}})
	require.NoError(t, err)
	_, ok := c.Classify("misc/notes.txt")
	require.False(t, ok)
}

func TestLongestMatchPrefersMoreLiteralComponents(t *testing.T) {
	c, err := New(Config{Branches: []string{"branches/*", "branches/more/*"}})
	require.NoError(t, err)
	cl, ok := c.Classify("branches/more/b1/trunk/file.c")
	require.True(t, ok)
	require.Equal(t, "branches/more/b1", cl.BranchRoot)
	require.Equal(t, "trunk/file.c", cl.InBranchSubPath)
}

func TestTagVsBranchTieGoesToBranch(t *testing.T) {
	c, err := New(Config{Branches: []string{"shared/*"}, Tags: []string{"shared/*"}})
	require.NoError(t, err)
	cl, ok := c.Classify("shared/x/file.c")
	require.True(t, ok)
	require.Equal(t, KindBranch, cl.Kind)
}

func TestRenameWildcardSubstitution(t *testing.T) {
	c, err := New(Config{
		Branches:       []string{"branches/*"},
		RenameBranches: map[string]string{"branches/*": "b-*"},
	})
	require.NoError(t, err)
	cl, ok := c.Classify("branches/foo/x")
	require.True(t, ok)
	require.Equal(t, "b-foo", c.ResolveRename(cl.Kind, cl.BranchRoot))
}

func TestExactRenameBeatsPrefixRename(t *testing.T) {
	c, err := New(Config{
		Branches: []string{"branches/*"},
		RenameBranches: map[string]string{
			"branches/*":   "b-*",
			"branches/foo": "special",
		},
	})
	require.NoError(t, err)
	cl, ok := c.Classify("branches/foo/x")
	require.True(t, ok)
	require.Equal(t, "special", c.ResolveRename(cl.Kind, cl.BranchRoot))
}

func TestShouldDeleteFileMatchesBasename(t *testing.T) {
	c := newTestClassifier(t)
	require.True(t, c.ShouldDeleteFile(".cvsignore"))
	require.False(t, c.ShouldDeleteFile("dir/.cvsignore-not-quite"))
}

func TestIsMergeOptional(t *testing.T) {
	c := newTestClassifier(t)
	require.True(t, c.IsMergeOptional("sub/A"))
	require.False(t, c.IsMergeOptional("sub/B"))
}
