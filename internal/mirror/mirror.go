package mirror

import (
	"fmt"
	"strings"
)

// Kind is the SVN node kind.
type Kind int

const (
	KindDir Kind = iota
	KindFile
	KindSymlink
)

// BlobRef resolves a file or symlink's content. The zero value is a
// not-yet-resolved reference; callers needing bytes must call Resolve.
// It holds either an inline byte slice (small blobs, resolved eagerly
// by the dump decoder) or a resolver closure (large blobs spilled to
// disk by the decoder, resolved lazily when the content is actually
// emitted as a Git blob).
type BlobRef struct {
	inline   []byte
	resolver func() ([]byte, error)
}

// InlineBlobRef wraps content already held in memory.
func InlineBlobRef(content []byte) BlobRef {
	return BlobRef{inline: content}
}

// DeferredBlobRef wraps a resolver invoked each time Resolve is
// called; resolvers are expected to be cheap to call repeatedly (e.g.
// reading a fixed byte range from a spill file) since memoizing the
// result is the object cache's job, not the Mirror's.
func DeferredBlobRef(resolver func() ([]byte, error)) BlobRef {
	return BlobRef{resolver: resolver}
}

// Resolve returns the referenced content.
func (r BlobRef) Resolve() ([]byte, error) {
	if r.resolver != nil {
		return r.resolver()
	}
	return r.inline, nil
}

// Node is one file, directory, or symlink in a Mirror. Invariant: a
// dir never has Content set; a file/symlink never has Children.
type Node struct {
	Kind     Kind
	Props    *PropertySet
	Content  BlobRef
	Children map[string]*Node

	shared bool
}

func newDirNode() *Node {
	return &Node{Kind: KindDir, Props: NewPropertySet(), Children: map[string]*Node{}}
}

// markShared flags this node and its whole subtree as shared, meaning
// at least two Mirror snapshots reference it and it must be cloned
// before any in-place modification. Once a node is shared, all its
// descendants already are too (shared is only ever set true, never
// reset), so recursion stops early.
func (n *Node) markShared() {
	if n.shared {
		return
	}
	n.shared = true
	for _, c := range n.Children {
		c.markShared()
	}
}

// clone returns an unshared copy of n's own fields. Children are
// shared with the original (shallow copy of the map); each child is
// itself marked shared so it too is cloned on its own first write.
func (n *Node) clone() *Node {
	cp := &Node{Kind: n.Kind, Props: n.Props.Clone(), Content: n.Content}
	if n.Kind == KindDir {
		cp.Children = make(map[string]*Node, len(n.Children))
		for k, v := range n.Children {
			cp.Children[k] = v
			v.markShared()
		}
	}
	return cp
}

// unshare returns a node safe to mutate in place: n itself if it is
// not shared, or a fresh clone otherwise.
func (n *Node) unshare() *Node {
	if n.shared {
		return n.clone()
	}
	return n
}

// Mirror is the root of a shadow SVN filesystem tree at some point in
// time. Mirrors produced by Snapshot share structure with their
// source until a write forces a copy-on-write unshare down the
// modified path.
type Mirror struct {
	root *Node
}

// New returns an empty Mirror (an empty root directory).
func New() *Mirror {
	return &Mirror{root: newDirNode()}
}

// Snapshot returns an independent Mirror sharing all current structure
// with m; writes to either one clone-on-write without disturbing the
// other.
func (m *Mirror) Snapshot() *Mirror {
	m.root.markShared()
	return &Mirror{root: m.root}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// walkForWrite walks to path's parent directory, unsharing every node
// along the way so the caller can mutate the parent's Children map in
// place. It creates intermediate directories that don't exist yet: SVN
// dumps are required to create parent directories before children, but
// the Mirror tolerates being asked to materialize them implicitly (e.g.
// a copy onto a path whose ancestor was itself just created by the same
// copy).
func (m *Mirror) walkForWrite(components []string) *Node {
	m.root = m.root.unshare()
	cur := m.root
	for _, c := range components {
		child, ok := cur.Children[c]
		if !ok {
			child = newDirNode()
		} else {
			child = child.unshare()
		}
		cur.Children[c] = child
		cur = child
	}
	return cur
}

// Get returns the node at path, if any.
func (m *Mirror) Get(path string) (*Node, bool) {
	components := splitPath(path)
	cur := m.root
	for _, c := range components {
		if cur.Kind != KindDir {
			return nil, false
		}
		next, ok := cur.Children[c]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Add creates path as a new node. Fails if path already exists.
func (m *Mirror) Add(path string, kind Kind, props *PropertySet, content BlobRef) error {
	components := splitPath(path)
	if len(components) == 0 {
		return fmt.Errorf("mirror: cannot add the repository root")
	}
	name := components[len(components)-1]
	parent := m.walkForWrite(components[:len(components)-1])
	if _, exists := parent.Children[name]; exists {
		return fmt.Errorf("mirror: add: path already exists: %s", path)
	}
	n := &Node{Kind: kind, Props: props}
	if props == nil {
		n.Props = NewPropertySet()
	}
	if kind == KindDir {
		n.Children = map[string]*Node{}
	} else {
		n.Content = content
	}
	parent.Children[name] = n
	return nil
}

// Change mutates path's properties (each propsDelta entry is set over
// the existing set; each name in propsDeleted is removed) and, if
// hasContent is true, replaces its content. Fails if path does not
// exist.
//
// Adding svn:special with value "link" to a regular file reinterprets
// it as a symlink, and
// removing svn:special from a symlink reinterprets it back to a
// regular file. Both transitions are legal and happen automatically
// from the property delta, since the dump format carries no separate
// "reinterpret kind" action.
func (m *Mirror) Change(path string, propsDelta map[string][]byte, propsDeleted []string, content []byte, hasContent bool) error {
	components := splitPath(path)
	if len(components) == 0 {
		return fmt.Errorf("mirror: cannot change the repository root")
	}
	name := components[len(components)-1]
	parent := m.walkForWrite(components[:len(components)-1])
	existing, ok := parent.Children[name]
	if !ok {
		return fmt.Errorf("mirror: change: path does not exist: %s", path)
	}
	n := existing.unshare()
	for k, v := range propsDelta {
		n.Props.Set(k, v)
	}
	for _, k := range propsDeleted {
		n.Props.Delete(k)
	}
	if hasContent {
		n.Content = InlineBlobRef(content)
	}
	if n.Kind != KindDir {
		wantSymlink := n.Props.IsSymlink()
		if wantSymlink && n.Kind == KindFile {
			n.Kind = KindSymlink
		} else if !wantSymlink && n.Kind == KindSymlink {
			n.Kind = KindFile
		}
	}
	parent.Children[name] = n
	return nil
}

// Delete removes path and its whole subtree. Fails if path is missing.
func (m *Mirror) Delete(path string) error {
	components := splitPath(path)
	if len(components) == 0 {
		return fmt.Errorf("mirror: cannot delete the repository root")
	}
	name := components[len(components)-1]
	parent := m.walkForWrite(components[:len(components)-1])
	if _, ok := parent.Children[name]; !ok {
		return fmt.Errorf("mirror: delete: path does not exist: %s", path)
	}
	delete(parent.Children, name)
	return nil
}

// CopyFrom creates dest as a structurally-shared clone of src as it
// appears in srcSnapshot. Fails if dest exists or src is missing in
// srcSnapshot. dest becomes mutable copy-on-write: it shares structure
// with srcSnapshot until written through, at which point ordinary
// unshare-on-write takes over.
func (m *Mirror) CopyFrom(dest string, srcSnapshot *Mirror, src string) error {
	srcNode, ok := srcSnapshot.Get(src)
	if !ok {
		return fmt.Errorf("mirror: copy: source does not exist: %s", src)
	}
	destComponents := splitPath(dest)
	if len(destComponents) == 0 {
		return fmt.Errorf("mirror: cannot copy onto the repository root")
	}
	name := destComponents[len(destComponents)-1]
	parent := m.walkForWrite(destComponents[:len(destComponents)-1])
	if _, exists := parent.Children[name]; exists {
		return fmt.Errorf("mirror: copy: destination already exists: %s", dest)
	}
	srcNode.markShared()
	parent.Children[name] = srcNode
	return nil
}

// Walk calls fn for every file/symlink node reachable from path (or
// the whole tree if path is ""), with paths expressed relative to the
// Mirror root. Used by Stage 2 to project a branch's full tree when no
// incremental diff is available (e.g. seeding a partial branch).
func (m *Mirror) Walk(path string, fn func(path string, n *Node)) error {
	n, ok := m.Get(path)
	if !ok {
		return fmt.Errorf("mirror: walk: path does not exist: %s", path)
	}
	var walk func(prefix string, n *Node)
	walk = func(prefix string, n *Node) {
		if n.Kind != KindDir {
			fn(prefix, n)
			return
		}
		for name, child := range n.Children {
			childPath := name
			if prefix != "" {
				childPath = prefix + "/" + name
			}
			walk(childPath, child)
		}
	}
	walk(path, n)
	return nil
}
