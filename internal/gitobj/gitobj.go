// Package gitobj defines the Git object emission primitives -- blobs,
// trees, commits, refs -- and the tree-entry ordering Git requires.
package gitobj

import "sort"

// Oid is a Git object id, hex-encoded SHA-1.
type Oid string

// Mode is a Git tree-entry file mode.
type Mode uint32

const (
	ModeDir        Mode = 0o040000
	ModeFile       Mode = 0o100644
	ModeExecutable Mode = 0o100755
	ModeSymlink    Mode = 0o120000
)

// TreeEntry is one entry of a Git tree object.
type TreeEntry struct {
	Name string
	Mode Mode
	Oid  Oid
}

// sortKey is a tree entry's name with a trailing "/" appended for
// directories, which is Git's actual collation key. A plain byte-wise
// compare treats "a" as a prefix of "a-b" and so sorts "a" first, but
// Git sorts a directory as if its name ended in "/", and '/' (0x2f)
// sorts after '-' (0x2d), so "a"'s tree entries belong after "a-b".
// Appending "/" before comparing reproduces that order exactly.
func sortKey(e TreeEntry) string {
	if e.Mode == ModeDir {
		return e.Name + "/"
	}
	return e.Name
}

// SortEntries sorts entries into Git's canonical tree order in place
// and returns the (possibly reordered) slice for convenience.
func SortEntries(entries []TreeEntry) []TreeEntry {
	sort.Slice(entries, func(i, j int) bool {
		return sortKey(entries[i]) < sortKey(entries[j])
	})
	return entries
}

// Signature is a commit author/committer identity plus timestamp, all
// required fields of the Emitter's CommitObject.
type Signature struct {
	Name            string
	Email           string
	When            int64 // Unix seconds
	TZOffsetMinutes int
}

// CommitObject is the input to Emitter.EmitCommit.
type CommitObject struct {
	Tree      Oid
	Parents   []Oid
	Author    Signature
	Committer Signature
	Message   string
}

// Emitter is the Git object emission interface. The conversion engine
// depends only on this interface; internal/pack provides the concrete
// implementation that actually writes a bare repository.
type Emitter interface {
	EmitBlob(data []byte) (Oid, error)
	EmitTree(entries []TreeEntry) (Oid, error)
	EmitCommit(c CommitObject) (Oid, error)
	WriteRef(name string, oid Oid) error
	WriteSymbolicRef(name, target string) error
}
