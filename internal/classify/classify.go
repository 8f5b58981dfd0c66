// Package classify implements a pure function from an SVN path plus the
// user's branches/tags/partial globs to a Classification: which
// declared branch or tag, if any, a path belongs to, and under what
// rename. Matching proceeds component by component, and when more than
// one declared pattern matches, the longest (most specific) one wins.
package classify

import (
	"strings"

	"github.com/gobwas/glob"
)

// Kind classifies the destination of a path.
type Kind int

const (
	// KindBranch is an ordinary branch root.
	KindBranch Kind = iota
	// KindTag is a tag root.
	KindTag
	// KindUnbranched is the catch-all branch (only produced when the
	// classifier was built with an unbranched name).
	KindUnbranched
)

func (k Kind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindTag:
		return "tag"
	default:
		return "unbranched"
	}
}

// Classification is the result of classifying one SVN path.
type Classification struct {
	BranchRoot      string // SVN path of the branch/tag root ("" for unbranched)
	Kind            Kind
	InBranchSubPath string // path's remainder below BranchRoot
}

// pattern is one compiled branches/tags/partial-*/rename-* entry.
type pattern struct {
	components []string // "*" marks a wildcard component
	index      int       // position in the user's original list
}

func literalCount(components []string) int {
	n := 0
	for _, c := range components {
		if c != "*" {
			n++
		}
	}
	return n
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func compilePatterns(globs []string) []pattern {
	out := make([]pattern, 0, len(globs))
	for i, g := range globs {
		out = append(out, pattern{components: splitPath(g), index: i})
	}
	return out
}

// matchPrefix reports whether p's components match the first len(p.components)
// components of path, literal-for-literal with "*" matching any one component.
func matchPrefix(p pattern, path []string) bool {
	if len(p.components) > len(path) {
		return false
	}
	for i, c := range p.components {
		if c != "*" && c != path[i] {
			return false
		}
	}
	return true
}

// matchExact reports whether p matches path component-for-component with
// no remainder, used for partial-branch/partial-tag membership checks.
func matchExact(p pattern, path []string) bool {
	return len(p.components) == len(path) && matchPrefix(p, path)
}

// renamePattern is a `rename-branches`/`rename-tags` entry: either an
// exact "svn/path = git-name" mapping or a prefix rename with "*" on
// both sides, where the matched source component replaces the
// corresponding "*" in the destination.
type renamePattern struct {
	src []string
	dst []string
}

// Classifier holds the compiled configuration needed to classify paths.
// Build one with New and reuse it for the whole conversion; it is a
// pure, read-only value safe to share across goroutines.
type Classifier struct {
	branches        []pattern
	tags            []pattern
	partialBranches []pattern
	partialTags     []pattern
	renameBranches  []renamePattern
	renameTags      []renamePattern
	unbranchedName  string
	deleteFiles     []glob.Glob
	mergeOptional   []glob.Glob
}

// Config is the subset of the conversion configuration the classifier
// needs.
type Config struct {
	Branches        []string
	Tags            []string
	PartialBranches []string
	PartialTags     []string
	RenameBranches  map[string]string // "svn/path" -> "git-name", or "svn/*" -> "git/*"
	RenameTags      map[string]string
	UnbranchedName  string // "" means unbranched changes are dropped
	DeleteFiles     []string
	MergeOptional   []string
}

// New compiles a Classifier from a Config. Glob syntax errors are
// reported as plain errors so the caller can abort before the
// conversion starts streaming revisions.
func New(cfg Config) (*Classifier, error) {
	c := &Classifier{
		branches:        compilePatterns(cfg.Branches),
		tags:            compilePatterns(cfg.Tags),
		partialBranches: compilePatterns(cfg.PartialBranches),
		partialTags:     compilePatterns(cfg.PartialTags),
		unbranchedName:  cfg.UnbranchedName,
	}
	for src, dst := range cfg.RenameBranches {
		c.renameBranches = append(c.renameBranches, renamePattern{splitPath(src), splitPath(dst)})
	}
	for src, dst := range cfg.RenameTags {
		c.renameTags = append(c.renameTags, renamePattern{splitPath(src), splitPath(dst)})
	}
	var err error
	if c.deleteFiles, err = compileGlobs(cfg.DeleteFiles); err != nil {
		return nil, err
	}
	if c.mergeOptional, err = compileGlobs(cfg.MergeOptional); err != nil {
		return nil, err
	}
	return c, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

type candidate struct {
	pattern pattern
	kind    Kind
	literal int
}

// Classify matches path against the compiled branches/tags patterns
// and returns the winning Classification, under the longest-match
// rule: the candidate with the most literal (non-"*") components
// wins; ties go to the earlier entry in its own list; a tie between a
// branch and a tag candidate with equal literal count goes to the
// branch.
func (c *Classifier) Classify(path string) (Classification, bool) {
	components := splitPath(path)
	var best *candidate

	consider := func(patterns []pattern, kind Kind) {
		for _, p := range patterns {
			if !matchPrefix(p, components) {
				continue
			}
			cand := candidate{pattern: p, kind: kind, literal: literalCount(p.components)}
			if best == nil || better(cand, *best) {
				best = &cand
			}
		}
	}
	consider(c.branches, KindBranch)
	consider(c.tags, KindTag)

	if best == nil {
		if c.unbranchedName == "" {
			return Classification{}, false
		}
		return Classification{Kind: KindUnbranched, InBranchSubPath: path}, true
	}

	rootLen := len(best.pattern.components)
	root := strings.Join(components[:rootLen], "/")
	sub := strings.Join(components[rootLen:], "/")
	return Classification{BranchRoot: root, Kind: best.kind, InBranchSubPath: sub}, true
}

// better reports whether a should replace b as the classification
// winner under the tie-break rules above.
func better(a, b candidate) bool {
	if a.literal != b.literal {
		return a.literal > b.literal
	}
	if a.kind != b.kind {
		// Branches win ties against tags regardless of list position.
		return a.kind == KindBranch
	}
	return a.pattern.index < b.pattern.index
}

// AllowsPartial reports whether a branch/tag root is eligible for
// partial creation: its SVN path matches one of the partial-branches
// (kind==KindBranch) or partial-tags (kind==KindTag) globs exactly.
func (c *Classifier) AllowsPartial(kind Kind, branchRoot string) bool {
	components := splitPath(branchRoot)
	list := c.partialBranches
	if kind == KindTag {
		list = c.partialTags
	}
	for _, p := range list {
		if matchExact(p, components) {
			return true
		}
	}
	return false
}

// ResolveRename computes the Git ref name for a branch/tag root. Exact
// rename entries win over prefix rename entries; with no matching
// rename rule
// the Git name defaults to the root's final path component (so
// "branches/b1" becomes "b1", matching the common svn2git convention
// of an explicit rename only being needed for names that must change,
// e.g. "trunk" -> "master").
func (c *Classifier) ResolveRename(kind Kind, branchRoot string) string {
	renames := c.renameBranches
	if kind == KindTag {
		renames = c.renameTags
	}
	components := splitPath(branchRoot)

	// Exact rename: a rename entry with no wildcard that matches the
	// whole root verbatim.
	for _, r := range renames {
		if !hasWildcard(r.src) && pathEquals(r.src, components) {
			return strings.Join(r.dst, "/")
		}
	}
	// Prefix/wildcard rename: substitute matched wildcard components.
	for _, r := range renames {
		if !hasWildcard(r.src) {
			continue
		}
		if len(r.src) != len(components) {
			continue
		}
		captured := make([]string, len(r.src))
		ok := true
		for i, sc := range r.src {
			if sc == "*" {
				captured[i] = components[i]
			} else if sc != components[i] {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		dst := make([]string, 0, len(r.dst))
		wildcardsSeen := 0
		for _, dc := range r.dst {
			if strings.Contains(dc, "*") {
				if wildcardsSeen < len(captured) {
					// Map positionally: the n-th destination wildcard
					// takes the n-th source wildcard's captured value.
					dst = append(dst, strings.Replace(dc, "*", nthWildcardValue(r.src, captured, wildcardsSeen), 1))
					wildcardsSeen++
				}
			} else {
				dst = append(dst, dc)
			}
		}
		return strings.Join(dst, "/")
	}
	if len(components) == 0 {
		return ""
	}
	return components[len(components)-1]
}

func nthWildcardValue(src, captured []string, n int) string {
	seen := 0
	for i, c := range src {
		if c == "*" {
			if seen == n {
				return captured[i]
			}
			seen++
		}
	}
	return ""
}

func hasWildcard(components []string) bool {
	for _, c := range components {
		if c == "*" {
			return true
		}
	}
	return false
}

func pathEquals(a, b []string) bool {
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

// ShouldDeleteFile reports whether fileName (a basename, not a full
// path) matches any `delete-files` glob.
func (c *Classifier) ShouldDeleteFile(fileName string) bool {
	for _, g := range c.deleteFiles {
		if g.Match(fileName) {
			return true
		}
	}
	return false
}

// IsMergeOptional reports whether branch-relative path matches a
// `merge-optional` glob.
func (c *Classifier) IsMergeOptional(branchRelativePath string) bool {
	for _, g := range c.mergeOptional {
		if g.Match(branchRelativePath) {
			return true
		}
	}
	return false
}
