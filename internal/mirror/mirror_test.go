package mirror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddGetDelete(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("trunk", KindDir, nil, BlobRef{}))
	require.NoError(t, m.Add("trunk/README", KindFile, nil, InlineBlobRef([]byte("hi"))))

	n, ok := m.Get("trunk/README")
	require.True(t, ok)
	require.Equal(t, KindFile, n.Kind)
	content, err := n.Content.Resolve()
	require.NoError(t, err)
	require.Equal(t, "hi", string(content))

	require.NoError(t, m.Delete("trunk/README"))
	_, ok = m.Get("trunk/README")
	require.False(t, ok)
}

func TestAddFailsIfExists(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("trunk", KindDir, nil, BlobRef{}))
	require.Error(t, m.Add("trunk", KindDir, nil, BlobRef{}))
}

func TestAddThenDeleteIsNoop(t *testing.T) {
	// Adding a path and then deleting it should leave no trace behind.
	a := New()
	b := New()
	require.NoError(t, a.Add("trunk/x", KindFile, nil, InlineBlobRef([]byte("x"))))
	require.NoError(t, a.Delete("trunk/x"))
	_, okA := a.Get("trunk/x")
	_, okB := b.Get("trunk/x")
	require.Equal(t, okB, okA)
}

func TestSnapshotIsolation(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("trunk", KindDir, nil, BlobRef{}))
	require.NoError(t, m.Add("trunk/a", KindFile, nil, InlineBlobRef([]byte("a"))))

	snap := m.Snapshot()

	require.NoError(t, m.Add("trunk/b", KindFile, nil, InlineBlobRef([]byte("b"))))
	require.NoError(t, m.Delete("trunk/a"))

	// The live mirror reflects both changes.
	_, ok := m.Get("trunk/a")
	require.False(t, ok)
	_, ok = m.Get("trunk/b")
	require.True(t, ok)

	// The snapshot is unaffected by either.
	_, ok = snap.Get("trunk/a")
	require.True(t, ok)
	_, ok = snap.Get("trunk/b")
	require.False(t, ok)
}

func TestCopyFromSharesStructure(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("trunk", KindDir, nil, BlobRef{}))
	require.NoError(t, m.Add("trunk/x", KindFile, nil, InlineBlobRef([]byte("x"))))
	src := m.Snapshot()

	require.NoError(t, m.CopyFrom("branches/b1", src, "trunk"))
	n, ok := m.Get("branches/b1/x")
	require.True(t, ok)
	content, err := n.Content.Resolve()
	require.NoError(t, err)
	require.Equal(t, "x", string(content))

	// Mutating the copy must not affect the source.
	require.NoError(t, m.Delete("branches/b1/x"))
	_, ok = src.Get("trunk/x")
	require.True(t, ok)
}

func TestCopyFromFailsIfDestExists(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("trunk", KindDir, nil, BlobRef{}))
	src := m.Snapshot()
	require.Error(t, m.CopyFrom("trunk", src, "trunk"))
}

func TestSymlinkRuleBothDirections(t *testing.T) {
	m := New()
	props := NewPropertySet()
	require.NoError(t, m.Add("f", KindFile, props, InlineBlobRef([]byte("link target"))))

	require.NoError(t, m.Change("f", map[string][]byte{PropSpecial: []byte("link")}, nil, nil, false))
	n, _ := m.Get("f")
	require.Equal(t, KindSymlink, n.Kind)

	require.NoError(t, m.Change("f", nil, []string{PropSpecial}, nil, false))
	n, _ = m.Get("f")
	require.Equal(t, KindFile, n.Kind)
}

func TestHistoryReleaseKeepsReferencedRevisions(t *testing.T) {
	h := NewHistory()
	require.NoError(t, h.Current().Add("trunk", KindDir, nil, BlobRef{}))
	h.Commit(1)
	require.NoError(t, h.Current().Add("trunk/a", KindFile, nil, InlineBlobRef([]byte("a"))))
	h.Commit(2)

	h.Release(2)
	_, ok := h.At(1)
	require.False(t, ok)
	_, ok = h.At(0)
	require.True(t, ok, "revision 0 is always retained")
	_, ok = h.At(2)
	require.True(t, ok)
}
