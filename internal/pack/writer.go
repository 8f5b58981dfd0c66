// Package pack implements gitobj.Emitter and actually writes a bare
// Git repository's single pack file, pack index, and loose refs. The
// conversion engine only ever talks to the gitobj.Emitter interface;
// this package is where those calls land.
package pack

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/svn2git/svn2git/internal/gitobj"
)

const (
	objCommit = 1
	objTree   = 2
	objBlob   = 3
	objDelta  = 7 // OBJ_REF_DELTA
)

// InitBareRepo creates the directory skeleton of a fresh bare Git
// repository at dir: objects/pack, refs/heads, refs/tags, and the
// handful of top-level files `git init --bare` would leave behind.
func InitBareRepo(dir string) error {
	for _, sub := range []string{"objects/pack", "refs/heads", "refs/tags"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "description"), []byte("Unnamed repository; converted from an SVN dump by svn2git.\n"), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config"), []byte(
		"[core]\n\trepositoryformatversion = 0\n\tfilemode = true\n\tbare = true\n"), 0644)
}

type idxEntry struct {
	oid    [20]byte
	offset int64
	crc32  uint32
}

// blobBase is a small ring of recently emitted blobs kept in memory as
// candidate delta bases. Capped in both count and per-entry size so it
// cannot itself become an unbounded-memory liability.
type blobBase struct {
	oid     gitobj.Oid
	content []byte
}

const (
	maxBaseCandidates  = 16
	maxBaseContentSize = 4 << 20 // don't keep oversized blobs as bases
	deltaMinSaving     = 0.3     // only delta-encode if it saves >=30%
)

// Writer implements gitobj.Emitter by streaming pack object records to
// a scratch file and finalizing them into a real pack+idx pair on
// Close.
type Writer struct {
	gitDir    string
	scratch   *os.File
	scratchSz int64 // bytes written to scratch so far == offset-12 of the final pack
	entries   []idxEntry
	seen      map[gitobj.Oid]int64 // oid -> offset, for dedupe
	bases     []blobBase
	refs      map[string]gitobj.Oid
	symrefs   map[string]string
}

// NewWriter opens a scratch file under gitDir/objects/pack to
// accumulate object records. Call InitBareRepo first.
func NewWriter(gitDir string) (*Writer, error) {
	f, err := os.CreateTemp(filepath.Join(gitDir, "objects", "pack"), "incoming-*.tmp")
	if err != nil {
		return nil, err
	}
	return &Writer{
		gitDir:  gitDir,
		scratch: f,
		seen:    map[gitobj.Oid]int64{},
		refs:    map[string]gitobj.Oid{},
		symrefs: map[string]string{},
	}, nil
}

func hashObject(kind string, content []byte) gitobj.Oid {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(content))
	h.Write(content)
	return gitobj.Oid(hex.EncodeToString(h.Sum(nil)))
}

func (w *Writer) writeRecord(oid gitobj.Oid, header []byte, extra []byte, compressed []byte) error {
	offset := w.scratchSz
	record := make([]byte, 0, len(header)+len(extra)+len(compressed))
	record = append(record, header...)
	record = append(record, extra...)
	record = append(record, compressed...)

	if _, err := w.scratch.Write(record); err != nil {
		return err
	}
	w.scratchSz += int64(len(record))

	var rawOid [20]byte
	decoded, err := hex.DecodeString(string(oid))
	if err != nil || len(decoded) != 20 {
		return fmt.Errorf("pack: invalid oid %q", oid)
	}
	copy(rawOid[:], decoded)
	w.entries = append(w.entries, idxEntry{oid: rawOid, offset: offset + 12, crc32: crc32.ChecksumIEEE(record)})
	w.seen[oid] = offset + 12
	return nil
}

func deflate(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Writer) emit(kind string, objType byte, content []byte) (gitobj.Oid, error) {
	oid := hashObject(kind, content)
	if _, ok := w.seen[oid]; ok {
		return oid, nil
	}

	if objType == objBlob {
		if base, ok := w.pickDeltaBase(content); ok {
			ops := encodeDelta(base.content, content)
			payload := encodeDeltaPayload(len(base.content), len(content), ops)
			if len(payload) < len(content)-int(float64(len(content))*deltaMinSaving) {
				header := writeSizeVarint(objDelta, uint64(len(payload)))
				baseRaw, _ := hex.DecodeString(string(base.oid))
				compressed, err := deflate(payload)
				if err != nil {
					return "", err
				}
				if err := w.writeRecord(oid, header, baseRaw, compressed); err != nil {
					return "", err
				}
				w.rememberBase(oid, content)
				return oid, nil
			}
		}
	}

	header := writeSizeVarint(objType, uint64(len(content)))
	compressed, err := deflate(content)
	if err != nil {
		return "", err
	}
	if err := w.writeRecord(oid, header, nil, compressed); err != nil {
		return "", err
	}
	if objType == objBlob {
		w.rememberBase(oid, content)
	}
	return oid, nil
}

func (w *Writer) pickDeltaBase(content []byte) (blobBase, bool) {
	if len(content) < windowSize {
		return blobBase{}, false
	}
	for i := len(w.bases) - 1; i >= 0; i-- {
		if len(w.bases[i].content) >= windowSize {
			return w.bases[i], true
		}
	}
	return blobBase{}, false
}

func (w *Writer) rememberBase(oid gitobj.Oid, content []byte) {
	if len(content) > maxBaseContentSize {
		return
	}
	w.bases = append(w.bases, blobBase{oid: oid, content: content})
	if len(w.bases) > maxBaseCandidates {
		w.bases = w.bases[1:]
	}
}

// EmitBlob implements gitobj.Emitter.
func (w *Writer) EmitBlob(data []byte) (gitobj.Oid, error) {
	return w.emit("blob", objBlob, data)
}

// EmitTree implements gitobj.Emitter.
func (w *Writer) EmitTree(entries []gitobj.TreeEntry) (gitobj.Oid, error) {
	gitobj.SortEntries(entries)
	var content bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&content, "%o %s\x00", e.Mode, e.Name)
		raw, err := hex.DecodeString(string(e.Oid))
		if err != nil || len(raw) != 20 {
			return "", fmt.Errorf("pack: invalid tree entry oid %q", e.Oid)
		}
		content.Write(raw)
	}
	return w.emit("tree", objTree, content.Bytes())
}

func formatSignature(s gitobj.Signature) string {
	sign := "+"
	offset := s.TZOffsetMinutes
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s <%s> %d %s%02d%02d", s.Name, s.Email, s.When, sign, offset/60, offset%60)
}

// EmitCommit implements gitobj.Emitter.
func (w *Writer) EmitCommit(c gitobj.CommitObject) (gitobj.Oid, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", formatSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", formatSignature(c.Committer))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return w.emit("commit", objCommit, buf.Bytes())
}

// WriteRef implements gitobj.Emitter: refs are staged in memory and
// written as loose files by Close, after the pack (and therefore every
// oid a ref could point at) is durable on disk.
func (w *Writer) WriteRef(name string, oid gitobj.Oid) error {
	w.refs[name] = oid
	return nil
}

// WriteSymbolicRef implements gitobj.Emitter.
func (w *Writer) WriteSymbolicRef(name, target string) error {
	w.symrefs[name] = target
	return nil
}

// Close finalizes the pack: prepends the real header (with the actual
// object count), streams the scratch file's object records through a
// running SHA-1, appends the trailer checksum, writes the sorted idx
// file, writes staged refs as loose files, and removes the scratch
// file.
func (w *Writer) Close() error {
	defer os.Remove(w.scratch.Name())

	if _, err := w.scratch.Seek(0, io.SeekStart); err != nil {
		return err
	}

	packPath := filepath.Join(w.gitDir, "objects", "pack", "pack-incoming.pack")
	out, err := os.Create(packPath)
	if err != nil {
		return err
	}

	h := sha1.New()
	header := make([]byte, 12)
	copy(header[0:4], "PACK")
	binary.BigEndian.PutUint32(header[4:8], 2)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(w.entries)))
	if _, err := out.Write(header); err != nil {
		return err
	}
	h.Write(header)

	mw := io.MultiWriter(out, h)
	if _, err := io.Copy(mw, w.scratch); err != nil {
		return err
	}
	sum := h.Sum(nil)
	if _, err := out.Write(sum); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	packHex := hex.EncodeToString(sum)
	finalPack := filepath.Join(w.gitDir, "objects", "pack", "pack-"+packHex+".pack")
	if err := os.Rename(packPath, finalPack); err != nil {
		return err
	}
	if err := writeIdx(filepath.Join(w.gitDir, "objects", "pack", "pack-"+packHex+".idx"), w.entries, sum); err != nil {
		return err
	}

	for name, oid := range w.refs {
		if err := writeLooseRef(w.gitDir, name, string(oid)); err != nil {
			return err
		}
	}
	for name, target := range w.symrefs {
		if err := writeLooseSymbolicRef(w.gitDir, name, target); err != nil {
			return err
		}
	}
	return nil
}

func writeLooseRef(gitDir, name, oid string) error {
	path := filepath.Join(gitDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(oid+"\n"), 0644)
}

func writeLooseSymbolicRef(gitDir, name, target string) error {
	path := filepath.Join(gitDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("ref: "+target+"\n"), 0644)
}

// writeIdx writes a version-2 pack idx file: magic, version, a 256-slot
// fan-out table, sorted sha1s, crc32s, and 4-byte offsets (this writer
// never produces packs large enough to need the 8-byte offset table,
// so the high bit / 64-bit extension table is never emitted).
func writeIdx(path string, entries []idxEntry, packChecksum []byte) error {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].oid[:], entries[j].oid[:]) < 0
	})

	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0x74, 0x4f, 0x63}) // idx v2 magic
	binary.Write(&buf, binary.BigEndian, uint32(2))

	var fanout [256]uint32
	for _, e := range entries {
		fanout[e.oid[0]]++
	}
	var running uint32
	for i := 0; i < 256; i++ {
		running += fanout[i]
		fanout[i] = running
	}
	for _, count := range fanout {
		binary.Write(&buf, binary.BigEndian, count)
	}
	for _, e := range entries {
		buf.Write(e.oid[:])
	}
	for _, e := range entries {
		binary.Write(&buf, binary.BigEndian, e.crc32)
	}
	for _, e := range entries {
		binary.Write(&buf, binary.BigEndian, uint32(e.offset))
	}
	buf.Write(packChecksum)

	h := sha1.Sum(buf.Bytes())
	buf.Write(h[:])

	return os.WriteFile(path, buf.Bytes(), 0644)
}
