package mergeinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePropertyCoalesces(t *testing.T) {
	ranges := ParseProperty("/trunk:1-3,5,4\n/branches/b2:8*")
	require.Equal(t, []RevRange{{1, 5}}, ranges["trunk"])
	// "8*" is non-inheritable and dropped, leaving no entry for b2.
	_, ok := ranges["branches/b2"]
	require.False(t, ok)
}

func TestIntersectClips(t *testing.T) {
	out := Intersect([]RevRange{{1, 10}}, 3, 7)
	require.Equal(t, []RevRange{{3, 7}}, out)
}

type fakeResolver map[string]int

func (f fakeResolver) ResolveSVNPath(path string) (int, bool) {
	id, ok := f[path]
	return id, ok
}

type fakeHistory map[int][]int

func (f fakeHistory) TouchedRevisions(branchID int, maxRev int) []int {
	var out []int
	for _, r := range f[branchID] {
		if r <= maxRev {
			out = append(out, r)
		}
	}
	return out
}

func TestReduceFullRangeIsMerge(t *testing.T) {
	resolver := fakeResolver{"trunk": 1}
	history := fakeHistory{1: {1, 2, 3}}
	delta := map[string][]RevRange{"trunk": {{1, 3}}}

	cands := Reduce(nil, resolver, history, 2 /* destBranch */, 4, delta, nil)
	require.Len(t, cands, 1)
	require.Equal(t, KindMerge, cands[0].Kind)
	require.Equal(t, 3, cands[0].SourceSVNRev)
}

func TestReduceSubsetIsCherryPick(t *testing.T) {
	resolver := fakeResolver{"branches/b2": 3}
	history := fakeHistory{3: {1, 2, 3, 4, 5, 6, 7, 8}}
	delta := map[string][]RevRange{"branches/b2": {{8, 8}}}

	cands := Reduce(nil, resolver, history, 2, 9, delta, nil)
	require.Len(t, cands, 1)
	require.Equal(t, KindCherryPick, cands[0].Kind)
	require.Equal(t, 8, cands[0].SourceSVNRev)
}

func TestReduceDropsSelfMerge(t *testing.T) {
	resolver := fakeResolver{"trunk": 2}
	history := fakeHistory{2: {1}}
	delta := map[string][]RevRange{"trunk": {{1, 1}}}

	cands := Reduce(nil, resolver, history, 2, 5, delta, nil)
	require.Empty(t, cands)
}

func TestReduceDropsUnresolvedSource(t *testing.T) {
	resolver := fakeResolver{}
	history := fakeHistory{}
	delta := map[string][]RevRange{"some/unknown/path": {{1, 1}}}

	cands := Reduce(nil, resolver, history, 2, 5, delta, nil)
	require.Empty(t, cands)
}
