// Package dump implements a streaming parser for the SVN dump stream
// format: headers, revision and node property blocks, and node content,
// transparently accepting whichever compression wrapper (gzip, bzip2,
// xz, zstd, lz4) the dump file happens to use.
package dump

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/svn2git/svn2git/internal/mirror"
	"github.com/svn2git/svn2git/internal/svnerr"
)

// NodeKind is an SVN dump Node-kind value.
type NodeKind int

const (
	KindNone NodeKind = iota
	KindFile
	KindDir
)

// NodeAction is an SVN dump Node-action value.
type NodeAction int

const (
	ActionNone NodeAction = iota
	ActionAdd
	ActionDelete
	ActionChange
	ActionReplace
)

// Node is one Node-path record within a revision.
type Node struct {
	Path       string
	Kind       NodeKind
	Action     NodeAction
	FromPath   string
	FromRev    int
	Props      *mirror.PropertySet
	PropChange bool
	Content    []byte
	HasContent bool
}

// Revision is one complete "Revision-number:" block: its own
// properties (svn:log, svn:author, svn:date) plus every Node-path
// record until the next Revision-number line or end of stream.
type Revision struct {
	Number int
	Props  *mirror.PropertySet
	Nodes  []Node
}

// Reader is a pull parser over an SVN dump stream. Call Next
// repeatedly until it returns io.EOF.
type Reader struct {
	br         *bufio.Reader
	closer     io.Closer
	ccount     int64 // bytes consumed, for Content-Length bookkeeping
	line       int
	pushedBack []byte
}

// NewReader wraps r, auto-detecting gzip/bzip2/xz/zstd/lz4 compression
// by magic bytes (SVN dumps in the wild show up compressed any of
// these ways; svnadmin dump itself never compresses, but archived
// dumps usually are). If the stream turns out not to start with
// "SVN-fs-dump-format-version", NewReader returns an error rather than
// silently reading garbage.
func NewReader(r io.Reader) (*Reader, error) {
	peek := bufio.NewReaderSize(r, 64*1024)
	magic, err := peek.Peek(6)
	if err != nil && err != io.EOF {
		return nil, err
	}

	var decompressed io.Reader = peek
	var closer io.Closer

	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gz, gerr := gzip.NewReader(peek)
		if gerr != nil {
			return nil, fmt.Errorf("dump: gzip header: %w", gerr)
		}
		decompressed, closer = gz, gz
	case len(magic) >= 3 && magic[0] == 'B' && magic[1] == 'Z' && magic[2] == 'h':
		decompressed = bzip2.NewReader(peek)
	case len(magic) >= 6 && bytes.Equal(magic[:6], []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		xzr, xerr := xz.NewReader(peek)
		if xerr != nil {
			return nil, fmt.Errorf("dump: xz header: %w", xerr)
		}
		decompressed = xzr
	case len(magic) >= 4 && bytes.Equal(magic[:4], []byte{0x28, 0xb5, 0x2f, 0xfd}):
		zr, zerr := zstd.NewReader(peek)
		if zerr != nil {
			return nil, fmt.Errorf("dump: zstd header: %w", zerr)
		}
		decompressed = zr.IOReadCloser()
		closer = zr.IOReadCloser()
	case len(magic) >= 4 && bytes.Equal(magic[:4], []byte{0x04, 0x22, 0x4d, 0x18}):
		decompressed = lz4.NewReader(peek)
	}

	d := &Reader{br: bufio.NewReaderSize(decompressed, 256*1024), closer: closer}
	header, err := d.readline()
	if err != nil {
		return nil, fmt.Errorf("dump: reading format header: %w", err)
	}
	if !bytes.HasPrefix(header, []byte("SVN-fs-dump-format-version")) {
		return nil, fmt.Errorf("dump: not an SVN dump stream (saw %q)", header)
	}
	return d, nil
}

// Close releases the underlying decompressor, if any.
func (d *Reader) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func (d *Reader) readline() ([]byte, error) {
	if d.pushedBack != nil {
		line := d.pushedBack
		d.pushedBack = nil
		return line, nil
	}
	line, err := d.br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	d.ccount += int64(len(line))
	d.line++
	return bytes.TrimRight(line, "\n"), nil
}

func (d *Reader) pushback(line []byte) {
	d.pushedBack = line
}

func sdBody(line []byte) []byte {
	parts := bytes.SplitN(line, []byte(":"), 2)
	if len(parts) != 2 {
		return nil
	}
	return bytes.TrimSpace(parts[1])
}

func (d *Reader) requireHeader(hdr string) ([]byte, error) {
	line, err := d.readline()
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(line, []byte(hdr)) {
		return nil, fmt.Errorf("dump: line %d: required header %q missing (saw %q)", d.line, hdr, line)
	}
	return sdBody(line), nil
}

func (d *Reader) requireSpacer() error {
	line, err := d.readline()
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(line)) > 0 {
		return fmt.Errorf("dump: line %d: expected blank line, saw %q", d.line, line)
	}
	return nil
}

func (d *Reader) readExact(length int) ([]byte, error) {
	buf := make([]byte, length+1)
	if _, err := io.ReadFull(d.br, buf); err != nil {
		return nil, err
	}
	d.ccount += int64(length + 1)
	if buf[length] != '\n' {
		return nil, fmt.Errorf("dump: line %d: EOL not seen where expected; Content-Length incorrect", d.line)
	}
	return buf[:length], nil
}

func (d *Reader) readProps(checkLength int) (*mirror.PropertySet, error) {
	props := mirror.NewPropertySet()
	start := d.ccount
	for int(d.ccount-start) < checkLength {
		line, err := d.readline()
		if err != nil {
			return nil, err
		}
		switch {
		case bytes.HasPrefix(line, []byte("PROPS-END")):
			return props, nil
		case len(bytes.TrimSpace(line)) == 0:
			continue
		case len(line) > 0 && line[0] == 'K':
			n, err := fieldLength(line)
			if err != nil {
				return nil, err
			}
			key, err := d.readExact(n)
			if err != nil {
				return nil, err
			}
			valLine, err := d.readline()
			if err != nil {
				return nil, err
			}
			if len(valLine) == 0 || valLine[0] != 'V' {
				return nil, fmt.Errorf("dump: line %d: property value garbled", d.line)
			}
			vn, err := fieldLength(valLine)
			if err != nil {
				return nil, err
			}
			val, err := d.readExact(vn)
			if err != nil {
				return nil, err
			}
			props.Set(string(key), val)
		case len(line) > 0 && line[0] == 'D':
			n, err := fieldLength(line)
			if err != nil {
				return nil, err
			}
			key, err := d.readExact(n)
			if err != nil {
				return nil, err
			}
			props.Delete(string(key))
		}
	}
	return props, nil
}

func fieldLength(line []byte) (int, error) {
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("dump: malformed property length line %q", line)
	}
	return strconv.Atoi(string(fields[1]))
}

// Next parses one revision block and every node within it, returning
// io.EOF once the stream is exhausted.
func (d *Reader) Next() (*Revision, error) {
	var line []byte
	var err error
	for {
		line, err = d.readline()
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("UUID:")) {
			continue // the repository UUID is not retained
		}
		if bytes.HasPrefix(line, []byte("Revision-number:")) {
			break
		}
		// Anything else before the first revision (format version
		// already consumed by NewReader) is ignored.
	}

	number, err := strconv.Atoi(string(sdBody(line)))
	if err != nil {
		return nil, svnerr.New(svnerr.ClassParse, 0, "", "ill-formed revision number: %q", line)
	}

	plenRaw, err := d.requireHeader("Prop-content-length")
	if err != nil {
		return nil, err
	}
	plen, err := strconv.Atoi(string(plenRaw))
	if err != nil {
		return nil, fmt.Errorf("dump: bad Prop-content-length: %w", err)
	}
	if _, err := d.requireHeader("Content-length"); err != nil {
		return nil, err
	}
	if err := d.requireSpacer(); err != nil {
		return nil, err
	}
	props, err := d.readProps(plen)
	if err != nil {
		return nil, err
	}

	rev := &Revision{Number: number, Props: props}

	for {
		line, err = d.readline()
		if err != nil {
			if err == io.EOF {
				return rev, nil
			}
			return nil, err
		}
		if bytes.HasPrefix(line, []byte("Revision-number:")) {
			d.pushback(line)
			return rev, nil
		}
		if !bytes.HasPrefix(line, []byte("Node-path:")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			continue
		}
		node, err := d.readNode(line)
		if err != nil {
			return nil, svnerr.New(svnerr.ClassParse, rev.Number, string(sdBody(line)), "%v", err)
		}
		rev.Nodes = append(rev.Nodes, node)
	}
}

func (d *Reader) readNode(firstLine []byte) (Node, error) {
	node := Node{Path: string(sdBody(firstLine))}
	plen, tlen := -1, -1

	for {
		line, err := d.readline()
		if err != nil {
			return Node{}, err
		}
		switch {
		case len(bytes.TrimSpace(line)) == 0:
			if plen > -1 {
				props, err := d.readProps(plen)
				if err != nil {
					return Node{}, err
				}
				node.Props = props
				node.PropChange = true
			}
			if tlen > -1 {
				content, err := d.readExact(tlen)
				if err != nil {
					return Node{}, err
				}
				node.Content = content
				node.HasContent = true
			}
			return node, nil
		case bytes.HasPrefix(line, []byte("Node-kind:")):
			switch string(sdBody(line)) {
			case "file":
				node.Kind = KindFile
			case "dir":
				node.Kind = KindDir
			}
		case bytes.HasPrefix(line, []byte("Node-action:")):
			switch string(sdBody(line)) {
			case "add":
				node.Action = ActionAdd
			case "delete":
				node.Action = ActionDelete
			case "change":
				node.Action = ActionChange
			case "replace":
				node.Action = ActionReplace
			}
		case bytes.HasPrefix(line, []byte("Node-copyfrom-rev:")):
			n, err := strconv.Atoi(string(sdBody(line)))
			if err != nil {
				return Node{}, fmt.Errorf("dump: bad Node-copyfrom-rev: %w", err)
			}
			node.FromRev = n
		case bytes.HasPrefix(line, []byte("Node-copyfrom-path:")):
			node.FromPath = string(sdBody(line))
		case bytes.HasPrefix(line, []byte("Prop-content-length:")):
			plen, err = strconv.Atoi(string(sdBody(line)))
			if err != nil {
				return Node{}, fmt.Errorf("dump: bad Prop-content-length: %w", err)
			}
		case bytes.HasPrefix(line, []byte("Text-content-length:")):
			tlen, err = strconv.Atoi(string(sdBody(line)))
			if err != nil {
				return Node{}, fmt.Errorf("dump: bad Text-content-length: %w", err)
			}
		default:
			// Text-copy-source-md5, Text-content-md5, Content-length,
			// and any other header we don't need to act on.
			if bytes.HasPrefix(line, []byte("Revision-number:")) {
				d.pushback(line)
				return node, nil
			}
		}
	}
}
