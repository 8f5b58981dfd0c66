// Package stage1 walks SVN dump revisions node by node, keeps the
// Mirror (internal/mirror) in sync with every add/change/delete/copy,
// attributes each touch to a branch via the classifier
// (internal/classify) and branch store (internal/branch), and emits
// one Record per branch touched in the revision. Each node action gets
// one pass; symlink reinterpretation is folded into the Mirror write
// itself rather than handled as a separate pass.
package stage1

import (
	"bytes"
	"fmt"

	"github.com/svn2git/svn2git/internal/branch"
	"github.com/svn2git/svn2git/internal/classify"
	"github.com/svn2git/svn2git/internal/dump"
	"github.com/svn2git/svn2git/internal/logging"
	"github.com/svn2git/svn2git/internal/mergeinfo"
	"github.com/svn2git/svn2git/internal/mirror"
)

// Action is what an IntermediateRecord represents happening to its branch.
type Action int

const (
	ActionModify Action = iota
	ActionCreate
	ActionRecreate
	ActionDelete
)

// FileChange is one file or symlink touched within a branch, expressed
// relative to the branch root.
type FileChange struct {
	Path    string
	Deleted bool
	Node    *mirror.Node // nil when Deleted
}

// DirPropertyChange is one directory property update within a branch,
// expressed relative to the branch root ("" is the branch root itself).
// Stage 2 consults these for .gitignore synthesis.
type DirPropertyChange struct {
	Path  string
	Props *mirror.PropertySet
}

// Record is one branch's slice of one SVN revision.
type Record struct {
	SVNRev             int
	BranchID           int
	Action             Action
	Origin             *branch.Origin
	PartialSubPath     string
	FileChanges        []FileChange
	DirPropertyChanges []DirPropertyChange
	Author             string
	Date               string
	LogMessage         string
	MergeinfoDelta     map[string][]mergeinfo.RevRange
}

// Driver runs Stage 1 over a stream of dump.Revision values.
type Driver struct {
	classifier     *classify.Classifier
	store          *branch.Store
	history        *mirror.History
	unbranchedName string
	log            *logging.Logger

	accum   map[int]map[string][]mergeinfo.RevRange // per-branch accumulated svn:mergeinfo, by source path
	touched map[int][]int                           // per-branch, SVN revisions that produced a Record, ascending
}

// NewDriver builds a Stage 1 Driver. history's current Mirror is
// mutated in place as revisions are processed; a snapshot is committed
// at the end of each revision.
func NewDriver(classifier *classify.Classifier, store *branch.Store, history *mirror.History, unbranchedName string, log *logging.Logger) *Driver {
	return &Driver{
		classifier:     classifier,
		store:          store,
		history:        history,
		unbranchedName: unbranchedName,
		log:            log,
		accum:          map[int]map[string][]mergeinfo.RevRange{},
		touched:        map[int][]int{},
	}
}

// ResolveSVNPath implements mergeinfo.BranchResolver.
func (d *Driver) ResolveSVNPath(path string) (int, bool) {
	cls, ok := d.classifier.Classify(path)
	if !ok || cls.Kind == classify.KindUnbranched {
		return 0, false
	}
	b := d.store.FindLiveBySVNPath(cls.BranchRoot)
	if b == nil {
		return 0, false
	}
	return b.ID, true
}

// TouchedRevisions implements mergeinfo.HistoryIndex.
func (d *Driver) TouchedRevisions(branchID int, maxRev int) []int {
	revs := d.touched[branchID]
	out := make([]int, 0, len(revs))
	for _, r := range revs {
		if r <= maxRev {
			out = append(out, r)
		}
	}
	return out
}

// ProcessRevision applies every node action in rev to the Mirror,
// attributes each to a branch, and returns one Record per branch
// touched this revision, in the order those branches were first
// touched. The Mirror's History gains a committed snapshot tagged rev
// once all nodes are applied.
func (d *Driver) ProcessRevision(rev *dump.Revision) ([]*Record, error) {
	authorBytes, _ := getProp(rev.Props, "svn:author")
	dateBytes, _ := getProp(rev.Props, "svn:date")
	logMsgBytes, _ := getProp(rev.Props, "svn:log")
	author, date, logMsg := string(authorBytes), string(dateBytes), string(logMsgBytes)

	records := map[int]*Record{}
	var order []int

	for _, node := range rev.Nodes {
		if err := d.applyToMirror(node); err != nil {
			return nil, fmt.Errorf("stage1: r%d %s: %w", rev.Number, node.Path, err)
		}
		if err := d.attribute(rev.Number, node, author, date, logMsg, records, &order); err != nil {
			return nil, fmt.Errorf("stage1: r%d %s: %w", rev.Number, node.Path, err)
		}
	}

	d.history.Commit(rev.Number)

	out := make([]*Record, 0, len(order))
	for _, id := range order {
		out = append(out, records[id])
	}
	return out, nil
}

func getProp(p *mirror.PropertySet, name string) ([]byte, bool) {
	if p == nil {
		return nil, false
	}
	return p.Get(name)
}

// applyToMirror keeps the Mirror an accurate shadow of the SVN
// filesystem, independent of whether the touched path classifies to
// any branch -- directories like the repository root or an
// unconfigured "vendor/" tree still need to exist in the Mirror so that
// a later copy-from can find them.
func (d *Driver) applyToMirror(node dump.Node) error {
	m := d.history.Current()

	switch node.Action {
	case dump.ActionDelete:
		return m.Delete(node.Path)

	case dump.ActionAdd, dump.ActionReplace:
		if node.Action == dump.ActionReplace {
			if _, ok := m.Get(node.Path); ok {
				if err := m.Delete(node.Path); err != nil {
					return err
				}
			}
		}
		if node.FromPath != "" {
			srcMirror, ok := d.history.At(node.FromRev)
			if !ok {
				return fmt.Errorf("copy-from-rev %d not retained", node.FromRev)
			}
			if err := m.CopyFrom(node.Path, srcMirror, node.FromPath); err != nil {
				return err
			}
			if node.PropChange || node.HasContent {
				return applyChangeOverlay(m, node)
			}
			return nil
		}
		kind := determineKind(node)
		props := node.Props
		if props == nil {
			props = mirror.NewPropertySet()
		}
		var ref mirror.BlobRef
		if kind != mirror.KindDir {
			ref = mirror.InlineBlobRef(prepareContent(kind, node.Content))
		}
		return m.Add(node.Path, kind, props, ref)

	case dump.ActionChange:
		return applyChangeOverlay(m, node)
	}
	return nil
}

// applyChangeOverlay turns one dump.Node's property block (always the
// node's complete current property set when present, never a diff --
// see dump.Reader.readProps) into the add/delete delta Mirror.Change
// expects.
func applyChangeOverlay(m *mirror.Mirror, node dump.Node) error {
	propsDelta := map[string][]byte{}
	var propsDeleted []string

	if node.PropChange {
		existing, ok := m.Get(node.Path)
		stale := map[string]bool{}
		if ok {
			for _, k := range existing.Props.Keys() {
				stale[k] = true
			}
		}
		for _, k := range node.Props.Keys() {
			v, _ := node.Props.Get(k)
			propsDelta[k] = v
			delete(stale, k)
		}
		for k := range stale {
			propsDeleted = append(propsDeleted, k)
		}
	}

	content := node.Content
	if node.HasContent {
		// Mirror.Change determines the post-merge kind from the merged
		// property set but does not know about the dump format's "link "
		// content prefix; strip it ourselves when the node is (or is
		// becoming) a symlink.
		if existing, ok := m.Get(node.Path); ok {
			willBeSymlink := existing.Props.Clone()
			for k, v := range propsDelta {
				willBeSymlink.Set(k, v)
			}
			for _, k := range propsDeleted {
				willBeSymlink.Delete(k)
			}
			if willBeSymlink.IsSymlink() {
				content = bytes.TrimPrefix(content, []byte("link "))
			}
		}
	}

	return m.Change(node.Path, propsDelta, propsDeleted, content, node.HasContent)
}

func determineKind(node dump.Node) mirror.Kind {
	if node.Kind == dump.KindDir {
		return mirror.KindDir
	}
	if node.Props != nil && node.Props.IsSymlink() {
		return mirror.KindSymlink
	}
	return mirror.KindFile
}

func prepareContent(kind mirror.Kind, content []byte) []byte {
	if kind == mirror.KindSymlink {
		return bytes.TrimPrefix(content, []byte("link "))
	}
	return content
}

// attribute classifies node.Path, resolves (or creates) the Branch it
// belongs to, and folds the node into that branch's Record for this
// revision: classification, branch/tag creation (whole or partial),
// unbranched attribution or drop, and ordinary in-branch changes.
func (d *Driver) attribute(rev int, node dump.Node, author, date, logMsg string, records map[int]*Record, order *[]int) error {
	cls, ok := d.classifier.Classify(node.Path)
	if !ok {
		if d.unbranchedName == "" {
			d.log.Debugf("r%d: dropping unclassified path %s", rev, node.Path)
			return nil
		}
		cls = classify.Classification{Kind: classify.KindUnbranched, InBranchSubPath: node.Path}
	}

	isRootAction := cls.Kind != classify.KindUnbranched && cls.InBranchSubPath == ""

	var b *branch.Branch
	var action Action
	var origin *branch.Origin
	var partialSub string

	switch {
	case cls.Kind == classify.KindUnbranched:
		b = d.store.Unbranched()
		action = ActionModify

	case isRootAction && node.Action == dump.ActionDelete:
		existing := d.store.FindLiveBySVNPath(cls.BranchRoot)
		if existing == nil {
			return nil // deleting a path that was never a live branch root
		}
		d.store.Delete(cls.BranchRoot, rev)
		b = existing
		action = ActionDelete

	case isRootAction && (node.Action == dump.ActionAdd || node.Action == dump.ActionReplace):
		wasRecreate := false
		if d.store.FindLiveBySVNPath(cls.BranchRoot) == nil {
			for _, cand := range d.store.All() {
				if cand.SVNPath == cls.BranchRoot && !cand.Alive {
					wasRecreate = true
					break
				}
			}
		}
		gitName := d.classifier.ResolveRename(cls.Kind, cls.BranchRoot)

		if node.FromPath != "" {
			srcCls, srcOk := d.classifier.Classify(node.FromPath)
			switch {
			case srcOk && srcCls.Kind != classify.KindUnbranched && srcCls.InBranchSubPath == "":
				nb, err := d.store.GetOrCreate(cls.BranchRoot, gitName, cls.Kind)
				if err != nil {
					return err
				}
				b = nb
				if src := d.store.FindLiveBySVNPath(srcCls.BranchRoot); src != nil {
					origin = &branch.Origin{SourceBranchID: src.ID, SourceSVNRev: node.FromRev}
				}
			case srcOk && srcCls.InBranchSubPath != "" && d.classifier.AllowsPartial(cls.Kind, cls.BranchRoot):
				nb, err := d.store.GetOrCreate(cls.BranchRoot, gitName, cls.Kind)
				if err != nil {
					return err
				}
				b = nb
				partialSub = srcCls.InBranchSubPath
				if src := d.store.FindLiveBySVNPath(srcCls.BranchRoot); src != nil {
					origin = &branch.Origin{SourceBranchID: src.ID, SourceSVNRev: node.FromRev}
				}
			default:
				if srcOk && srcCls.InBranchSubPath != "" {
					d.log.Warnf("r%d: rejecting partial branch creation of %s from %s: partial-branches not configured for it", rev, cls.BranchRoot, node.FromPath)
				}
				nb, err := d.store.GetOrCreate(cls.BranchRoot, gitName, cls.Kind)
				if err != nil {
					return err
				}
				b = nb
			}
		} else {
			nb, err := d.store.GetOrCreate(cls.BranchRoot, gitName, cls.Kind)
			if err != nil {
				return err
			}
			b = nb
		}
		if wasRecreate {
			action = ActionRecreate
		} else {
			action = ActionCreate
		}

	case isRootAction:
		nb := d.store.FindLiveBySVNPath(cls.BranchRoot)
		if nb == nil {
			return nil
		}
		b = nb
		action = ActionModify

	default:
		gitName := d.classifier.ResolveRename(cls.Kind, cls.BranchRoot)
		nb, err := d.store.GetOrCreate(cls.BranchRoot, gitName, cls.Kind)
		if err != nil {
			return err
		}
		b = nb
		action = ActionModify
	}

	rec := recordFor(records, order, b.ID, rev, author, date, logMsg)
	rec.Action = action
	if origin != nil {
		rec.Origin = origin
	}
	if partialSub != "" {
		rec.PartialSubPath = partialSub
	}

	d.recordTouch(b.ID, rev)

	if node.Action == dump.ActionDelete {
		rec.FileChanges = append(rec.FileChanges, FileChange{Path: cls.InBranchSubPath, Deleted: true})
		return nil
	}

	n, ok := d.history.Current().Get(node.Path)
	if !ok {
		return nil
	}
	if n.Kind != mirror.KindDir {
		rec.FileChanges = append(rec.FileChanges, FileChange{Path: cls.InBranchSubPath, Node: n})
		return nil
	}
	if !node.PropChange {
		return nil
	}

	rec.DirPropertyChanges = append(rec.DirPropertyChanges, DirPropertyChange{Path: cls.InBranchSubPath, Props: n.Props})
	d.foldMergeinfo(b.ID, rec, n.Props)
	return nil
}

func (d *Driver) recordTouch(branchID, rev int) {
	revs := d.touched[branchID]
	if len(revs) > 0 && revs[len(revs)-1] == rev {
		return
	}
	d.touched[branchID] = append(revs, rev)
}

// foldMergeinfo turns a directory's new svn:mergeinfo value into the
// incremental delta against what this branch has accumulated so far,
// merging it into rec.MergeinfoDelta.
func (d *Driver) foldMergeinfo(branchID int, rec *Record, props *mirror.PropertySet) {
	raw, ok := props.Get(mirror.PropMergeinfo)
	if !ok {
		return
	}
	parsed := mergeinfo.ParseProperty(string(raw))

	accum := d.accum[branchID]
	if accum == nil {
		accum = map[string][]mergeinfo.RevRange{}
		d.accum[branchID] = accum
	}

	for srcPath, newRanges := range parsed {
		delta := mergeinfo.Subtract(newRanges, accum[srcPath])
		if len(delta) > 0 {
			if rec.MergeinfoDelta == nil {
				rec.MergeinfoDelta = map[string][]mergeinfo.RevRange{}
			}
			rec.MergeinfoDelta[srcPath] = mergeinfo.Union(rec.MergeinfoDelta[srcPath], delta)
		}
		accum[srcPath] = newRanges
	}
}

func recordFor(records map[int]*Record, order *[]int, branchID, rev int, author, date, logMsg string) *Record {
	if r, ok := records[branchID]; ok {
		return r
	}
	r := &Record{
		SVNRev:     rev,
		BranchID:   branchID,
		Author:     author,
		Date:       date,
		LogMessage: logMsg,
	}
	records[branchID] = r
	*order = append(*order, branchID)
	return r
}
