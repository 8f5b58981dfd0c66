package stage2

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svn2git/svn2git/internal/branch"
	"github.com/svn2git/svn2git/internal/classify"
	"github.com/svn2git/svn2git/internal/gitobj"
	"github.com/svn2git/svn2git/internal/logging"
	"github.com/svn2git/svn2git/internal/mirror"
	"github.com/svn2git/svn2git/internal/objcache"
	"github.com/svn2git/svn2git/internal/stage1"
	"github.com/svn2git/svn2git/internal/usermap"
)

// fakeEmitter is an in-memory gitobj.Emitter recording every call, for
// assertions on tree/commit shape without a real pack writer.
type fakeEmitter struct {
	blobs   map[gitobj.Oid][]byte
	trees   map[gitobj.Oid][]gitobj.TreeEntry
	commits map[gitobj.Oid]gitobj.CommitObject
	refs    map[string]gitobj.Oid
	n       int
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{
		blobs:   map[gitobj.Oid][]byte{},
		trees:   map[gitobj.Oid][]gitobj.TreeEntry{},
		commits: map[gitobj.Oid]gitobj.CommitObject{},
		refs:    map[string]gitobj.Oid{},
	}
}

func (f *fakeEmitter) next() gitobj.Oid {
	f.n++
	return gitobj.Oid(fmt.Sprintf("oid%04d", f.n))
}

func (f *fakeEmitter) EmitBlob(data []byte) (gitobj.Oid, error) {
	oid := f.next()
	f.blobs[oid] = append([]byte{}, data...)
	return oid, nil
}

func (f *fakeEmitter) EmitTree(entries []gitobj.TreeEntry) (gitobj.Oid, error) {
	oid := f.next()
	f.trees[oid] = append([]gitobj.TreeEntry{}, entries...)
	return oid, nil
}

func (f *fakeEmitter) EmitCommit(c gitobj.CommitObject) (gitobj.Oid, error) {
	oid := f.next()
	f.commits[oid] = c
	return oid, nil
}

func (f *fakeEmitter) WriteRef(name string, oid gitobj.Oid) error {
	f.refs[name] = oid
	return nil
}

func (f *fakeEmitter) WriteSymbolicRef(name, target string) error {
	return nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveSVNPath(string) (int, bool) { return 0, false }

type fakeHistoryIdx struct{}

func (fakeHistoryIdx) TouchedRevisions(int, int) []int { return nil }

func newTestDriver(t *testing.T) (*Driver, *fakeEmitter, *branch.Store) {
	t.Helper()
	cls, err := classify.New(classify.Config{Branches: []string{"trunk", "branches/*"}, Tags: []string{"tags/*"}})
	require.NoError(t, err)
	store := branch.NewStore("")
	log, err := logging.New("error", "", "")
	require.NoError(t, err)
	emitter := newFakeEmitter()
	d := NewDriver(emitter, objcache.New(0), store, cls, fakeResolver{}, fakeHistoryIdx{}, mirror.NewHistory(), usermap.Map{}, "localhost", true, true, log)
	return d, emitter, store
}

func fileNode(content string) *mirror.Node {
	return &mirror.Node{Kind: mirror.KindFile, Props: mirror.NewPropertySet(), Content: mirror.InlineBlobRef([]byte(content))}
}

func TestStage2CommitsSingleFile(t *testing.T) {
	d, emitter, store := newTestDriver(t)
	b, err := store.GetOrCreate("trunk", "master", classify.KindBranch)
	require.NoError(t, err)

	rec := &stage1.Record{
		SVNRev:     1,
		BranchID:   b.ID,
		Action:     stage1.ActionCreate,
		Author:     "alice",
		Date:       "2024-01-02T03:04:05.000000Z",
		LogMessage: "initial",
		FileChanges: []stage1.FileChange{
			{Path: "A.txt", Node: fileNode("hello")},
		},
	}

	commitOid, err := d.ProcessRecord(rec)
	require.NoError(t, err)
	require.NotEmpty(t, commitOid)

	commit := emitter.commits[commitOid]
	require.Empty(t, commit.Parents)
	require.Equal(t, "alice", commit.Author.Name)
	require.Contains(t, commit.Message, "svn2git-id:")

	tree := emitter.trees[commit.Tree]
	require.Len(t, tree, 1)
	require.Equal(t, "A.txt", tree[0].Name)
	require.Equal(t, gitobj.ModeFile, tree[0].Mode)

	require.Equal(t, string(commitOid), b.LastCommitOid)
}

func TestStage2SecondCommitHasParent(t *testing.T) {
	d, emitter, store := newTestDriver(t)
	b, err := store.GetOrCreate("trunk", "master", classify.KindBranch)
	require.NoError(t, err)

	first, err := d.ProcessRecord(&stage1.Record{
		SVNRev: 1, BranchID: b.ID, Action: stage1.ActionCreate, Date: "2024-01-02T03:04:05Z",
		FileChanges: []stage1.FileChange{{Path: "A.txt", Node: fileNode("a")}},
	})
	require.NoError(t, err)

	second, err := d.ProcessRecord(&stage1.Record{
		SVNRev: 2, BranchID: b.ID, Action: stage1.ActionModify, Date: "2024-01-03T03:04:05Z",
		FileChanges: []stage1.FileChange{{Path: "B.txt", Node: fileNode("b")}},
	})
	require.NoError(t, err)

	commit := emitter.commits[second]
	require.Equal(t, []gitobj.Oid{first}, commit.Parents)

	tree := emitter.trees[commit.Tree]
	require.Len(t, tree, 2) // A.txt carried forward, B.txt added
}

func TestStage2DeleteFileRemovesEntry(t *testing.T) {
	d, _, store := newTestDriver(t)
	b, err := store.GetOrCreate("trunk", "master", classify.KindBranch)
	require.NoError(t, err)

	_, err = d.ProcessRecord(&stage1.Record{
		SVNRev: 1, BranchID: b.ID, Action: stage1.ActionCreate, Date: "2024-01-02T03:04:05Z",
		FileChanges: []stage1.FileChange{{Path: "A.txt", Node: fileNode("a")}},
	})
	require.NoError(t, err)

	second, err := d.ProcessRecord(&stage1.Record{
		SVNRev: 2, BranchID: b.ID, Action: stage1.ActionModify, Date: "2024-01-03T03:04:05Z",
		FileChanges: []stage1.FileChange{{Path: "A.txt", Deleted: true}},
	})
	require.NoError(t, err)

	tree := d.trees[b.ID]
	require.Empty(t, tree.entries)
	_ = second
}

func TestStage2GitignoreSynthesis(t *testing.T) {
	d, emitter, store := newTestDriver(t)
	b, err := store.GetOrCreate("trunk", "master", classify.KindBranch)
	require.NoError(t, err)

	props := mirror.NewPropertySet()
	props.Set("svn:ignore", []byte("build\n*.log"))

	commitOid, err := d.ProcessRecord(&stage1.Record{
		SVNRev: 1, BranchID: b.ID, Action: stage1.ActionCreate, Date: "2024-01-02T03:04:05Z",
		DirPropertyChanges: []stage1.DirPropertyChange{{Path: "", Props: props}},
	})
	require.NoError(t, err)

	tree := emitter.trees[emitter.commits[commitOid].Tree]
	require.Len(t, tree, 1)
	require.Equal(t, ".gitignore", tree[0].Name)
	require.Equal(t, "/build\n/*.log\n", string(emitter.blobs[tree[0].Oid]))
}

func TestStage2RejectsGitPath(t *testing.T) {
	d, emitter, store := newTestDriver(t)
	b, err := store.GetOrCreate("trunk", "master", classify.KindBranch)
	require.NoError(t, err)

	commitOid, err := d.ProcessRecord(&stage1.Record{
		SVNRev: 1, BranchID: b.ID, Action: stage1.ActionCreate, Date: "2024-01-02T03:04:05Z",
		FileChanges: []stage1.FileChange{{Path: ".git/config", Node: fileNode("x")}},
	})
	require.NoError(t, err)

	tree := emitter.trees[emitter.commits[commitOid].Tree]
	require.Empty(t, tree)
}

func TestStage2PartialBranchCreationSeedsFromMirror(t *testing.T) {
	d, emitter, store := newTestDriver(t)

	m := d.mirrors.Current()
	require.NoError(t, m.Add("trunk", mirror.KindDir, mirror.NewPropertySet(), mirror.BlobRef{}))
	require.NoError(t, m.Add("trunk/sub", mirror.KindDir, mirror.NewPropertySet(), mirror.BlobRef{}))
	require.NoError(t, m.Add("trunk/sub/A.txt", mirror.KindFile, mirror.NewPropertySet(), mirror.InlineBlobRef([]byte("a"))))
	d.mirrors.Commit(1)

	trunk, err := store.GetOrCreate("trunk", "master", classify.KindBranch)
	require.NoError(t, err)
	_, err = d.ProcessRecord(&stage1.Record{
		SVNRev: 1, BranchID: trunk.ID, Action: stage1.ActionCreate, Date: "2024-01-02T03:04:05Z",
	})
	require.NoError(t, err)

	b1, err := store.GetOrCreate("branches/b1", "b1", classify.KindBranch)
	require.NoError(t, err)

	commitOid, err := d.ProcessRecord(&stage1.Record{
		SVNRev:         2,
		BranchID:       b1.ID,
		Action:         stage1.ActionCreate,
		Origin:         &branch.Origin{SourceBranchID: trunk.ID, SourceSVNRev: 1},
		PartialSubPath: "sub",
		Date:           "2024-01-03T03:04:05Z",
	})
	require.NoError(t, err)

	tree := emitter.trees[emitter.commits[commitOid].Tree]
	require.Len(t, tree, 1)
	require.Equal(t, "A.txt", tree[0].Name)
}
