// Package branch is an in-memory index of known branches/tags, created
// on demand, enforcing at most one live branch per SVN path, unique Git
// names, and a single Unbranched branch iff configured.
package branch

import (
	"github.com/svn2git/svn2git/internal/classify"
	"github.com/svn2git/svn2git/internal/svnerr"
)

// Origin records where a branch was created from, for branches born
// by copy.
type Origin struct {
	SourceBranchID int
	SourceSVNRev   int
}

// Branch is one known branch or tag, live or dead.
type Branch struct {
	ID             int
	SVNPath        string // "" for the Unbranched branch
	GitName        string
	Kind           classify.Kind
	PartialSubPath string // non-empty only for partial branches
	Origin         *Origin
	Alive          bool
	DeletedRev     int
	LastRev        int
	LastTreeOid    string
	LastCommitOid  string
}

// IsPartial reports whether this branch was seeded from a sub-directory
// of its origin rather than the origin's whole tree.
func (b *Branch) IsPartial() bool {
	return b.PartialSubPath != ""
}

// Store owns all Branch values for one conversion run.
type Store struct {
	byID       map[int]*Branch
	byGitName  map[string]*Branch
	nextID     int
	unbranched *Branch
}

// NewStore builds an empty Store. If unbranchedName is non-empty, the
// special Unbranched branch is created immediately; otherwise changes
// outside any declared branch/tag have nowhere to go and are dropped.
func NewStore(unbranchedName string) *Store {
	s := &Store{byID: map[int]*Branch{}, byGitName: map[string]*Branch{}}
	if unbranchedName != "" {
		s.unbranched = s.create("", unbranchedName, classify.KindUnbranched)
	}
	return s
}

func (s *Store) create(svnPath, gitName string, kind classify.Kind) *Branch {
	s.nextID++
	b := &Branch{ID: s.nextID, SVNPath: svnPath, GitName: gitName, Kind: kind, Alive: true}
	s.byID[b.ID] = b
	s.byGitName[gitName] = b
	return s.byID[b.ID]
}

// Unbranched returns the catch-all branch, or nil if none was configured.
func (s *Store) Unbranched() *Branch {
	return s.unbranched
}

// FindLiveBySVNPath returns the live branch whose SVNPath equals path
// exactly, or nil. Exact match (not ancestor search) -- ancestor
// resolution for arbitrary paths is FindBySVNPath below.
func (s *Store) FindLiveBySVNPath(path string) *Branch {
	for _, b := range s.byID {
		if b.Alive && b.SVNPath == path {
			return b
		}
	}
	return nil
}

// FindBySVNPath returns the live branch whose SVNPath is an ancestor
// of (or equal to) path. Among candidates it returns the one with the
// longest SVNPath, so a live branch rooted inside another live branch's
// root wins over the outer one.
func (s *Store) FindBySVNPath(path string) *Branch {
	var best *Branch
	for _, b := range s.byID {
		if !b.Alive || b.Kind == classify.KindUnbranched {
			continue
		}
		if isAncestorOrEqual(b.SVNPath, path) {
			if best == nil || len(b.SVNPath) > len(best.SVNPath) {
				best = b
			}
		}
	}
	return best
}

func isAncestorOrEqual(root, path string) bool {
	if root == "" {
		return true
	}
	if root == path {
		return true
	}
	return len(path) > len(root) && path[:len(root)] == root && path[len(root)] == '/'
}

// GetOrCreate returns the live branch at svnPath, creating one with the
// given kind/gitName if none exists. It fails with a rename-collision
// error if gitName is already owned by a different live branch.
func (s *Store) GetOrCreate(svnPath, gitName string, kind classify.Kind) (*Branch, error) {
	if b := s.FindLiveBySVNPath(svnPath); b != nil {
		return b, nil
	}
	if owner, exists := s.byGitName[gitName]; exists && owner.Alive && owner.SVNPath != svnPath {
		return nil, svnerr.New(svnerr.ClassCollision, 0, svnPath, "rename collision: %q and %q both map to git name %q", owner.SVNPath, svnPath, gitName)
	}
	return s.create(svnPath, gitName, kind), nil
}

// Delete marks the live branch rooted at svnPath as dead at deletedRev.
// A later add at the same svnPath starts an unrelated fresh Branch
// (see Store.GetOrCreate, which only finds *live* branches).
func (s *Store) Delete(svnPath string, deletedRev int) {
	if b := s.FindLiveBySVNPath(svnPath); b != nil {
		b.Alive = false
		b.DeletedRev = deletedRev
		delete(s.byGitName, b.GitName)
	}
}

// All returns every branch ever created, live or dead, in ID order
// (creation order), for final ref writing.
func (s *Store) All() []*Branch {
	out := make([]*Branch, 0, len(s.byID))
	for id := 1; id <= s.nextID; id++ {
		if b, ok := s.byID[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// ByID looks up a branch by its store-assigned ID.
func (s *Store) ByID(id int) *Branch {
	return s.byID[id]
}
