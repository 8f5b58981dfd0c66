// Package mergeinfo turns an accumulated svn:mergeinfo delta into a set
// of merge candidates classified as genuine merges or cherry-picks.
//
// RevRange parsing and the overlapping-range union solve the classic
// "turn an svn:mergeinfo property value into a coalesced set of
// revision ranges per source path" problem, ignoring non-inheritable
// ("*"-suffixed) spans as partial-merge noise.
package mergeinfo

import (
	"sort"
	"strconv"
	"strings"

	"github.com/svn2git/svn2git/internal/classify"
)

// RevRange is an inclusive SVN revision range.
type RevRange struct {
	Min, Max int
}

// ParseProperty parses an svn:mergeinfo property value into a map from
// source path (leading/trailing slashes trimmed) to a coalesced,
// sorted list of non-overlapping revision ranges. Malformed lines and
// non-inheritable ("*"-suffixed) spans are dropped silently, tolerating
// the format's long history of hand-edited and tool-generated
// irregularities.
func ParseProperty(value string) map[string][]RevRange {
	out := make(map[string][]RevRange)
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ":", 2)
		if len(fields) != 2 {
			continue
		}
		path := strings.Trim(fields[0], "/")
		var ranges []RevRange
		for _, span := range strings.Split(fields[1], ",") {
			if strings.HasSuffix(span, "*") {
				continue // non-inheritable: partial merge/cherry-pick noise
			}
			parts := strings.Split(span, "-")
			switch len(parts) {
			case 1:
				if n, err := strconv.Atoi(parts[0]); err == nil {
					ranges = append(ranges, RevRange{n, n})
				}
			case 2:
				lo, errLo := strconv.Atoi(parts[0])
				hi, errHi := strconv.Atoi(parts[1])
				if errLo == nil && errHi == nil && lo <= hi {
					ranges = append(ranges, RevRange{lo, hi})
				}
			}
		}
		if len(ranges) > 0 {
			out[path] = coalesce(ranges)
		}
	}
	return out
}

func coalesce(ranges []RevRange) []RevRange {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Min != ranges[j].Min {
			return ranges[i].Min < ranges[j].Min
		}
		return ranges[i].Max < ranges[j].Max
	})
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.Min <= last.Max+1 {
			if r.Max > last.Max {
				last.Max = r.Max
			}
		} else {
			out = append(out, r)
		}
	}
	return out
}

// Subtract returns the revisions present in a but not in b, coalesced.
// Used by Stage 1 to turn a freshly-parsed svn:mergeinfo value (always
// the full cumulative property, never a diff) into the incremental
// delta against what was already accumulated for a branch.
func Subtract(a, b []RevRange) []RevRange {
	excluded := map[int]bool{}
	for _, r := range expand(b) {
		excluded[r] = true
	}
	var remaining []int
	for _, r := range expand(a) {
		if !excluded[r] {
			remaining = append(remaining, r)
		}
	}
	return rangesFromRevisions(remaining)
}

// Union merges two coalesced range lists into one, used when more than
// one directory in the same revision contributes ranges for the same
// mergeinfo source path.
func Union(a, b []RevRange) []RevRange {
	return coalesce(append(append([]RevRange{}, a...), b...))
}

func rangesFromRevisions(revs []int) []RevRange {
	if len(revs) == 0 {
		return nil
	}
	var out []RevRange
	start, prev := revs[0], revs[0]
	for _, r := range revs[1:] {
		if r == prev+1 {
			prev = r
			continue
		}
		out = append(out, RevRange{start, prev})
		start, prev = r, r
	}
	out = append(out, RevRange{start, prev})
	return out
}

// Intersect clips ranges to [lo, hi], dropping any that fall entirely
// outside it.
func Intersect(ranges []RevRange, lo, hi int) []RevRange {
	var out []RevRange
	for _, r := range ranges {
		a, b := r.Min, r.Max
		if a < lo {
			a = lo
		}
		if b > hi {
			b = hi
		}
		if a <= b {
			out = append(out, RevRange{a, b})
		}
	}
	return out
}

func expand(ranges []RevRange) []int {
	var out []int
	for _, r := range ranges {
		for rev := r.Min; rev <= r.Max; rev++ {
			out = append(out, rev)
		}
	}
	sort.Ints(out)
	return out
}

// CandidateKind classifies a Candidate as a genuine merge (the whole
// branch's history up to the recorded revision is present) or a
// cherry-pick (only some of it is).
type CandidateKind int

const (
	KindMerge CandidateKind = iota
	KindCherryPick
)

// Candidate is one resolved merge source: a branch and the revision on
// it a record's svn:mergeinfo delta claims was merged.
type Candidate struct {
	SourceBranchID int
	SourceSVNRev   int
	Kind           CandidateKind
}

// BranchResolver resolves an SVN path to the branch ID that owns it.
// This resolves once per source path against the branch store's
// *current* state rather than re-resolving per revision in the range:
// mergeinfo source paths are themselves branch/tag roots by SVN
// convention, and a branch root is essentially never reclassified to a
// different branch mid-history, so the simplification only matters for
// pathological inputs that reassign a branch root's identity across
// history -- in that case this attributes the whole range to the
// root's current owner, a conservative reading consistent with
// discarding revisions where no branch matches.
type BranchResolver interface {
	ResolveSVNPath(path string) (branchID int, ok bool)
}

// HistoryIndex answers which SVN revisions touched a branch, at or
// before maxRev. Stage 1 implements this from the touch history it
// already records per branch while building its records.
type HistoryIndex interface {
	TouchedRevisions(branchID int, maxRev int) []int
}

// Reduce resolves the merge candidates implied by one record's
// accumulated svn:mergeinfo delta.
//
//   - delta is the record's aggregated mergeinfo delta: new mergeinfo
//     minus prior, keyed by source SVN path.
//   - currentRev is the SVN revision of the record being built.
//   - destBranchID is the branch this record belongs to (self-merges
//     onto it are noise and dropped).
//   - touchedPaths is the set of branch-relative paths that actually
//     changed content in this revision, used by the merge-optional
//     filter below.
func Reduce(
	classifier *classify.Classifier,
	resolver BranchResolver,
	history HistoryIndex,
	destBranchID int,
	currentRev int,
	delta map[string][]RevRange,
	touchedPaths map[string]bool,
) []Candidate {
	type group struct {
		branchID int
		revs     map[int]bool
	}
	groups := map[int]*group{}
	var optionalOnly = true

	for srcPath, ranges := range delta {
		clipped := Intersect(ranges, 1, currentRev-1)
		if len(clipped) == 0 {
			continue
		}
		branchID, ok := resolver.ResolveSVNPath(srcPath)
		if !ok || branchID == destBranchID {
			continue // unresolved source, or self-merge noise
		}
		g, exists := groups[branchID]
		if !exists {
			g = &group{branchID: branchID, revs: map[int]bool{}}
			groups[branchID] = g
		}
		for _, rev := range expand(clipped) {
			g.revs[rev] = true
		}
		if classifier == nil || !classifier.IsMergeOptional(srcPath) {
			optionalOnly = false
		}
	}

	if len(groups) == 0 {
		return nil
	}

	// merge-optional filter: if every mergeinfo source path (the
	// repository path as written in svn:mergeinfo) matches a
	// merge-optional glob and the revision changed no file at all in
	// this branch, suppress the candidates entirely. Which files changed
	// is not compared with the optional paths.
	if optionalOnly && len(touchedPaths) == 0 {
		return nil
	}

	var ids []int
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []Candidate
	for _, id := range ids {
		g := groups[id]
		rMax := 0
		var groupRevs []int
		for r := range g.revs {
			groupRevs = append(groupRevs, r)
			if r > rMax {
				rMax = r
			}
		}
		sort.Ints(groupRevs)

		branchRevs := history.TouchedRevisions(id, rMax)
		kind := KindCherryPick
		if sameSet(groupRevs, branchRevs) {
			kind = KindMerge
		}
		out = append(out, Candidate{SourceBranchID: id, SourceSVNRev: rMax, Kind: kind})
	}
	return out
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
