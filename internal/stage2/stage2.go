// Package stage2 turns IntermediateRecords from internal/stage1 into
// Git trees and commits via the Emitter interface (internal/gitobj),
// synthesising .gitignore blobs (internal/ignore), filtering
// delete-files and .git paths, resolving merge parents through
// internal/mergeinfo, and maintaining the branch/revision-to-commit
// map. Trees are built incrementally per branch rather than by
// materializing a full manifest on every revision.
package stage2

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/svn2git/svn2git/internal/branch"
	"github.com/svn2git/svn2git/internal/classify"
	"github.com/svn2git/svn2git/internal/gitobj"
	"github.com/svn2git/svn2git/internal/ignore"
	"github.com/svn2git/svn2git/internal/logging"
	"github.com/svn2git/svn2git/internal/mergeinfo"
	"github.com/svn2git/svn2git/internal/mirror"
	"github.com/svn2git/svn2git/internal/objcache"
	"github.com/svn2git/svn2git/internal/stage1"
	"github.com/svn2git/svn2git/internal/usermap"
)

// revKey is the branch/revision-to-commit map's key.
type revKey struct {
	branchID int
	rev      int
}

// dirNode is one directory within a branch's in-memory Git tree,
// rebuilt incrementally from IntermediateRecord file/property changes.
// oid memoizes the last-emitted Git tree object; it is cleared on any
// mutation to that directory or any of its descendants.
type dirNode struct {
	entries map[string]*treeEntry
	oid     gitobj.Oid
}

type treeEntry struct {
	mode gitobj.Mode
	oid  gitobj.Oid
	dir  *dirNode
}

func newDirNode() *dirNode {
	return &dirNode{entries: map[string]*treeEntry{}}
}

// Driver runs Stage 2 over a stream of stage1.Record values.
type Driver struct {
	emitter gitobj.Emitter
	cache   *objcache.Cache
	store   *branch.Store

	classifier *classify.Classifier
	resolver   mergeinfo.BranchResolver
	historyIdx mergeinfo.HistoryIndex
	mirrors    *mirror.History

	users          usermap.Map
	fallbackDomain string
	enableMerges   bool
	generateGitignore bool

	log *logging.Logger

	trees       map[int]*dirNode
	revisionMap map[revKey]gitobj.Oid
}

// NewDriver builds a Stage 2 Driver. resolver/historyIdx are typically
// the same stage1.Driver that produced the Records, which already
// implements both mergeinfo interfaces.
func NewDriver(
	emitter gitobj.Emitter,
	cache *objcache.Cache,
	store *branch.Store,
	classifier *classify.Classifier,
	resolver mergeinfo.BranchResolver,
	historyIdx mergeinfo.HistoryIndex,
	mirrors *mirror.History,
	users usermap.Map,
	fallbackDomain string,
	enableMerges, generateGitignore bool,
	log *logging.Logger,
) *Driver {
	return &Driver{
		emitter:           emitter,
		cache:             cache,
		store:             store,
		classifier:        classifier,
		resolver:          resolver,
		historyIdx:        historyIdx,
		mirrors:           mirrors,
		users:             users,
		fallbackDomain:    fallbackDomain,
		enableMerges:      enableMerges,
		generateGitignore: generateGitignore,
		log:               log,
		trees:             map[int]*dirNode{},
		revisionMap:       map[revKey]gitobj.Oid{},
	}
}

// RevisionMapEntry is one row of the BranchRevMap, exported for the
// optional revision-map-file debugging dump.
type RevisionMapEntry struct {
	BranchID int
	SVNRev   int
	Oid      gitobj.Oid
}

// RevisionMap exposes the accumulated BranchRevMap.
func (d *Driver) RevisionMap() []RevisionMapEntry {
	out := make([]RevisionMapEntry, 0, len(d.revisionMap))
	for k, v := range d.revisionMap {
		out = append(out, RevisionMapEntry{BranchID: k.branchID, SVNRev: k.rev, Oid: v})
	}
	return out
}

// ProcessRecord turns one IntermediateRecord into a Git commit (or, for
// a pure branch-deletion record, no commit at all -- the branch simply
// stops being live and the Refs Finaliser will not write a ref for it
// unless keep-deleted-* applies).
func (d *Driver) ProcessRecord(rec *stage1.Record) (gitobj.Oid, error) {
	b := d.store.ByID(rec.BranchID)
	if b == nil {
		return "", fmt.Errorf("stage2: unknown branch id %d", rec.BranchID)
	}
	if rec.Action == stage1.ActionDelete {
		return "", nil
	}

	tree, err := d.treeFor(rec, b)
	if err != nil {
		return "", err
	}

	touchedPaths := map[string]bool{}
	for _, fc := range rec.FileChanges {
		if containsGitComponent(fc.Path) {
			d.log.Warnf("r%d: rejecting .git path %q", rec.SVNRev, fc.Path)
			continue
		}
		touchedPaths[fc.Path] = true
		if fc.Deleted {
			removeEntry(tree, splitPath(fc.Path))
			continue
		}
		base := path.Base(fc.Path)
		if d.classifier.ShouldDeleteFile(base) {
			removeEntry(tree, splitPath(fc.Path))
			continue
		}
		entry, err := d.blobEntry(fc.Node)
		if err != nil {
			return "", fmt.Errorf("stage2: %s: %w", fc.Path, err)
		}
		setEntry(tree, splitPath(fc.Path), entry)
	}

	if d.generateGitignore {
		for _, dpc := range rec.DirPropertyChanges {
			if containsGitComponent(dpc.Path) {
				continue
			}
			if err := d.applyGitignore(tree, dpc); err != nil {
				return "", err
			}
		}
	}

	treeOid, err := d.emitDir(tree)
	if err != nil {
		return "", err
	}

	parents, err := d.resolveParents(rec, b)
	if err != nil {
		return "", err
	}
	if d.enableMerges {
		candidates := mergeinfo.Reduce(d.classifier, d.resolver, d.historyIdx, b.ID, rec.SVNRev, rec.MergeinfoDelta, touchedPaths)
		for _, c := range candidates {
			if oid, ok := d.resolveBranchRevOid(c.SourceBranchID, c.SourceSVNRev); ok {
				parents = append(parents, oid)
			} else {
				d.log.Debugf("r%d: merge candidate from branch %d rev %d has no resolvable commit yet", rec.SVNRev, c.SourceBranchID, c.SourceSVNRev)
			}
		}
	}

	sig := d.signature(rec)
	message := strings.TrimRight(rec.LogMessage, "\n") + "\n\nsvn2git-id: " + uuid.New().String() + "@" + strconv.Itoa(rec.SVNRev) + "\n"

	commitOid, err := d.emitter.EmitCommit(gitobj.CommitObject{
		Tree:      treeOid,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   message,
	})
	if err != nil {
		return "", err
	}

	b.LastRev = rec.SVNRev
	b.LastTreeOid = string(treeOid)
	b.LastCommitOid = string(commitOid)
	d.revisionMap[revKey{b.ID, rec.SVNRev}] = commitOid

	return commitOid, nil
}

// treeFor returns the branch's working tree, seeding it from the
// Mirror when this record creates the branch (a partial branch
// creation or a whole-branch copy).
func (d *Driver) treeFor(rec *stage1.Record, b *branch.Branch) (*dirNode, error) {
	if t, ok := d.trees[b.ID]; ok {
		return t, nil
	}
	tree := newDirNode()
	if rec.Origin != nil {
		src := d.store.ByID(rec.Origin.SourceBranchID)
		srcMirror, ok := d.mirrors.At(rec.Origin.SourceSVNRev)
		if ok && src != nil {
			seedPath := src.SVNPath
			if rec.PartialSubPath != "" {
				seedPath = joinNonEmpty(seedPath, rec.PartialSubPath)
			}
			if _, exists := srcMirror.Get(seedPath); exists {
				walkErr := srcMirror.Walk(seedPath, func(fullPath string, n *mirror.Node) {
					relPath := strings.TrimPrefix(fullPath, seedPath)
					relPath = strings.TrimPrefix(relPath, "/")
					entry, err := d.blobEntry(n)
					if err != nil {
						d.log.Warnf("seeding %s: %v", fullPath, err)
						return
					}
					setEntry(tree, splitPath(relPath), entry)
				})
				if walkErr != nil {
					return nil, walkErr
				}
			}
		}
	}
	d.trees[b.ID] = tree
	return tree, nil
}

// blobEntry resolves a MirrorNode's content and mode, emitting (or
// fetching from cache) its Git blob.
func (d *Driver) blobEntry(n *mirror.Node) (*treeEntry, error) {
	content, err := n.Content.Resolve()
	if err != nil {
		return nil, err
	}
	mode := gitobj.ModeFile
	switch {
	case n.Kind == mirror.KindSymlink:
		mode = gitobj.ModeSymlink
	case n.Props != nil && n.Props.Has("svn:executable"):
		mode = gitobj.ModeExecutable
	}
	oid, err := d.emitBlobCached(content)
	if err != nil {
		return nil, err
	}
	return &treeEntry{mode: mode, oid: oid}, nil
}

func (d *Driver) emitBlobCached(content []byte) (gitobj.Oid, error) {
	oid, err := d.emitter.EmitBlob(content)
	if err != nil {
		return "", err
	}
	if _, hit := d.cache.Get(string(oid)); !hit {
		d.cache.Put(string(oid), content)
	}
	return oid, nil
}

// applyGitignore synthesises or removes a directory's .gitignore entry
// from its svn:ignore/svn:global-ignores properties.
func (d *Driver) applyGitignore(tree *dirNode, dpc stage1.DirPropertyChange) error {
	local, _ := dpc.Props.Get("svn:ignore")
	global, _ := dpc.Props.Get("svn:global-ignores")
	content := ignore.Generate(normalizeLF(string(local)), normalizeLF(string(global)), false)

	gitignorePath := joinNonEmpty(dpc.Path, ".gitignore")
	if len(content) == 0 {
		removeEntry(tree, splitPath(gitignorePath))
		return nil
	}
	oid, err := d.emitBlobCached(content)
	if err != nil {
		return err
	}
	setEntry(tree, splitPath(gitignorePath), &treeEntry{mode: gitobj.ModeFile, oid: oid})
	return nil
}

func normalizeLF(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// resolveParents computes a commit's first-parent oid: the branch's
// own last commit if it already has one, otherwise (a newly created
// branch) the origin branch's commit at the copy-from revision.
func (d *Driver) resolveParents(rec *stage1.Record, b *branch.Branch) ([]gitobj.Oid, error) {
	if b.LastCommitOid != "" {
		return []gitobj.Oid{gitobj.Oid(b.LastCommitOid)}, nil
	}
	if rec.Origin != nil {
		if oid, ok := d.resolveBranchRevOid(rec.Origin.SourceBranchID, rec.Origin.SourceSVNRev); ok {
			return []gitobj.Oid{oid}, nil
		}
	}
	return nil, nil
}

// resolveBranchRevOid finds the commit for (branchID, rev), falling
// back to the nearest earlier recorded commit on that branch if rev
// itself never produced one -- candidates from the Mergeinfo Reducer
// name an upper-bound revision in a merged range, not necessarily one
// where the source branch itself committed.
func (d *Driver) resolveBranchRevOid(branchID, rev int) (gitobj.Oid, bool) {
	if oid, ok := d.revisionMap[revKey{branchID, rev}]; ok {
		return oid, true
	}
	revs := d.historyIdx.TouchedRevisions(branchID, rev)
	for i := len(revs) - 1; i >= 0; i-- {
		if oid, ok := d.revisionMap[revKey{branchID, revs[i]}]; ok {
			return oid, true
		}
	}
	return "", false
}

func (d *Driver) signature(rec *stage1.Record) gitobj.Signature {
	identity := d.users.Resolve(rec.Author, d.fallbackDomain)
	when := parseSVNDate(rec.Date)
	return gitobj.Signature{Name: identity.Name, Email: identity.Email, When: when, TZOffsetMinutes: 0}
}

// parseSVNDate parses an svn:date property value ("2024-01-02T03:04:05.123456Z",
// always UTC) into Unix seconds. An unparseable date is treated as the
// Unix epoch rather than aborting the run -- a malformed svn:date on one
// revision should not fail the whole conversion.
func parseSVNDate(s string) int64 {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func containsGitComponent(relPath string) bool {
	for _, c := range splitPath(relPath) {
		if c == ".git" {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "/" + b
}

func setEntry(dir *dirNode, comps []string, entry *treeEntry) {
	dir.oid = ""
	if len(comps) == 1 {
		dir.entries[comps[0]] = entry
		return
	}
	child, ok := dir.entries[comps[0]]
	if !ok || child.dir == nil {
		child = &treeEntry{mode: gitobj.ModeDir, dir: newDirNode()}
		dir.entries[comps[0]] = child
	}
	setEntry(child.dir, comps[1:], entry)
}

// removeEntry deletes the entry at comps, pruning any ancestor
// directory left empty -- Git trees never carry entries for empty
// directories.
func removeEntry(dir *dirNode, comps []string) (nowEmpty bool) {
	if len(comps) == 0 {
		return len(dir.entries) == 0
	}
	dir.oid = ""
	if len(comps) == 1 {
		delete(dir.entries, comps[0])
		return len(dir.entries) == 0
	}
	child, ok := dir.entries[comps[0]]
	if !ok || child.dir == nil {
		return len(dir.entries) == 0
	}
	if removeEntry(child.dir, comps[1:]) {
		delete(dir.entries, comps[0])
	}
	return len(dir.entries) == 0
}

func (d *Driver) emitDir(n *dirNode) (gitobj.Oid, error) {
	if n.oid != "" {
		return n.oid, nil
	}
	entries := make([]gitobj.TreeEntry, 0, len(n.entries))
	for name, e := range n.entries {
		if e.dir != nil {
			oid, err := d.emitDir(e.dir)
			if err != nil {
				return "", err
			}
			entries = append(entries, gitobj.TreeEntry{Name: name, Mode: gitobj.ModeDir, Oid: oid})
			continue
		}
		entries = append(entries, gitobj.TreeEntry{Name: name, Mode: e.mode, Oid: e.oid})
	}
	gitobj.SortEntries(entries)
	oid, err := d.emitter.EmitTree(entries)
	if err != nil {
		return "", err
	}
	n.oid = oid
	return oid, nil
}
