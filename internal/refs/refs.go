// Package refs writes the final refs/heads and refs/tags once every
// record has been committed by internal/stage2, and resolves HEAD.
package refs

import (
	"fmt"

	"github.com/svn2git/svn2git/internal/branch"
	"github.com/svn2git/svn2git/internal/classify"
	"github.com/svn2git/svn2git/internal/gitobj"
)

// Finalize writes refs/heads/<git_name> or refs/tags/<git_name> for
// every live branch, and for dead branches/tags when keepDeletedBranches/
// keepDeletedTags respectively apply. head is the SVN path of the
// branch HEAD should point to ("" selects the Unbranched branch).
func Finalize(store *branch.Store, emitter gitobj.Emitter, head string, keepDeletedBranches, keepDeletedTags bool) error {
	for _, b := range store.All() {
		if b.LastCommitOid == "" {
			continue // never produced a commit (e.g. created then immediately deleted)
		}
		if !b.Alive {
			if b.Kind == classify.KindTag && !keepDeletedTags {
				continue
			}
			if b.Kind != classify.KindTag && !keepDeletedBranches {
				continue
			}
		}
		refName := refNameFor(b)
		if err := emitter.WriteRef(refName, gitobj.Oid(b.LastCommitOid)); err != nil {
			return fmt.Errorf("refs: writing %s: %w", refName, err)
		}
	}

	var headBranch *branch.Branch
	if head == "" {
		headBranch = store.Unbranched()
	} else {
		headBranch = store.FindLiveBySVNPath(head)
	}
	if headBranch == nil || headBranch.LastCommitOid == "" {
		return fmt.Errorf("refs: head branch %q not found or never committed; cannot set HEAD", head)
	}
	return emitter.WriteSymbolicRef("HEAD", refNameFor(headBranch))
}

func refNameFor(b *branch.Branch) string {
	if b.Kind == classify.KindTag {
		return "refs/tags/" + b.GitName
	}
	return "refs/heads/" + b.GitName
}
