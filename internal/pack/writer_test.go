package pack

import (
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svn2git/svn2git/internal/gitobj"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, InitBareRepo(dir))
	w, err := NewWriter(dir)
	require.NoError(t, err)
	return w, dir
}

func TestEmitBlobDedupe(t *testing.T) {
	w, _ := newTestWriter(t)
	oid1, err := w.EmitBlob([]byte("hello world"))
	require.NoError(t, err)
	oid2, err := w.EmitBlob([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, oid1, oid2)
	require.Len(t, w.entries, 1, "identical content must be written once")
}

func TestEmitTreeSortsEntries(t *testing.T) {
	w, _ := newTestWriter(t)
	blobOid, err := w.EmitBlob([]byte("x"))
	require.NoError(t, err)

	entries := []gitobj.TreeEntry{
		{Name: "zebra", Mode: gitobj.ModeFile, Oid: blobOid},
		{Name: "apple", Mode: gitobj.ModeDir, Oid: blobOid},
		{Name: "apple-pie", Mode: gitobj.ModeFile, Oid: blobOid},
	}
	_, err = w.EmitTree(entries)
	require.NoError(t, err)
	// "apple-pie" < "apple/" < "zebra" in Git's canonical collation.
	require.Equal(t, "apple-pie", entries[0].Name)
	require.Equal(t, "apple", entries[1].Name)
	require.Equal(t, "zebra", entries[2].Name)
}

func TestWriterPackRoundTrip(t *testing.T) {
	w, dir := newTestWriter(t)

	blobOid, err := w.EmitBlob([]byte("package main\n"))
	require.NoError(t, err)

	treeOid, err := w.EmitTree([]gitobj.TreeEntry{
		{Name: "main.go", Mode: gitobj.ModeFile, Oid: blobOid},
	})
	require.NoError(t, err)

	commitOid, err := w.EmitCommit(gitobj.CommitObject{
		Tree: treeOid,
		Author: gitobj.Signature{
			Name: "A U Thor", Email: "author@example.com", When: 1700000000, TZOffsetMinutes: 0,
		},
		Committer: gitobj.Signature{
			Name: "A U Thor", Email: "author@example.com", When: 1700000000, TZOffsetMinutes: 0,
		},
		Message: "initial\n",
	})
	require.NoError(t, err)

	require.NoError(t, w.WriteRef("refs/heads/main", commitOid))
	require.NoError(t, w.WriteSymbolicRef("HEAD", "refs/heads/main"))
	require.NoError(t, w.Close())

	packs, err := filepath.Glob(filepath.Join(dir, "objects", "pack", "*.pack"))
	require.NoError(t, err)
	require.Len(t, packs, 1)

	idxs, err := filepath.Glob(filepath.Join(dir, "objects", "pack", "*.idx"))
	require.NoError(t, err)
	require.Len(t, idxs, 1)

	data, err := os.ReadFile(packs[0])
	require.NoError(t, err)
	require.Equal(t, "PACK", string(data[0:4]))
	version := binary.BigEndian.Uint32(data[4:8])
	require.Equal(t, uint32(2), version)
	count := binary.BigEndian.Uint32(data[8:12])
	require.Equal(t, uint32(3), count, "blob, tree, commit")

	idxData, err := os.ReadFile(idxs[0])
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0x74, 0x4f, 0x63}, idxData[0:4])
	idxVersion := binary.BigEndian.Uint32(idxData[4:8])
	require.Equal(t, uint32(2), idxVersion)

	head, err := os.ReadFile(filepath.Join(dir, "HEAD"))
	require.NoError(t, err)
	require.Equal(t, "ref: refs/heads/main\n", string(head))

	ref, err := os.ReadFile(filepath.Join(dir, "refs", "heads", "main"))
	require.NoError(t, err)
	require.Equal(t, string(commitOid)+"\n", string(ref))
}

func TestWriteRecordDeflatedContentDecodes(t *testing.T) {
	w, _ := newTestWriter(t)
	content := []byte("a blob whose compressed bytes we will verify decompress cleanly")
	oid, err := w.EmitBlob(content)
	require.NoError(t, err)
	require.Len(t, w.entries, 1)

	require.NoError(t, w.scratch.Sync())
	_, err = w.scratch.Seek(0, io.SeekStart)
	require.NoError(t, err)
	raw, err := io.ReadAll(w.scratch)
	require.NoError(t, err)

	// Header: type in bits 4-6 of the first byte; the 63-byte size does
	// not fit the first byte's 4 size bits, so one continuation byte
	// follows and the header is two bytes long.
	require.NotZero(t, len(raw))
	headerByte := raw[0]
	objType := (headerByte >> 4) & 0x07
	require.Equal(t, byte(objBlob), objType)

	zr, err := zlib.NewReader(bytesReaderFromOffset(raw, 2))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, content, out)

	_, ok := w.seen[oid]
	require.True(t, ok)
}

func bytesReaderFromOffset(b []byte, off int) io.Reader {
	return &sliceReader{data: b[off:]}
}

type sliceReader struct{ data []byte }

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestHexOidLength(t *testing.T) {
	oid := hashObject("blob", []byte("hello"))
	decoded, err := hex.DecodeString(string(oid))
	require.NoError(t, err)
	require.Len(t, decoded, 20)
}
