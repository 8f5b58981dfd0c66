package dump

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDump = `SVN-fs-dump-format-version: 2

UUID: 11111111-2222-3333-4444-555555555555

Revision-number: 1
Prop-content-length: 102
Content-length: 102

K 7
svn:log
V 9
first rev
K 10
svn:author
V 5
alice
PROPS-END

Node-path: trunk
Node-kind: dir
Node-action: add
Prop-content-length: 10
Content-length: 10

PROPS-END

Node-path: trunk/hello.txt
Node-kind: file
Node-action: add
Prop-content-length: 10
Text-content-length: 6
Content-length: 16

PROPS-END
hello

Revision-number: 2
Prop-content-length: 85
Content-length: 85

K 7
svn:log
V 8
tag copy
K 10
svn:author
V 3
bob
PROPS-END

Node-path: tags/v1
Node-kind: dir
Node-action: add
Node-copyfrom-rev: 1
Node-copyfrom-path: trunk

`

func TestNewReaderRejectsNonDump(t *testing.T) {
	_, err := NewReader(strings.NewReader("not a dump\n"))
	require.Error(t, err)
}

func TestReaderParsesTwoRevisions(t *testing.T) {
	r, err := NewReader(strings.NewReader(sampleDump))
	require.NoError(t, err)
	defer r.Close()

	rev1, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 1, rev1.Number)
	logVal, ok := rev1.Props.Get("svn:log")
	require.True(t, ok)
	require.Equal(t, "first rev", string(logVal))
	require.Len(t, rev1.Nodes, 2)
	require.Equal(t, "trunk", rev1.Nodes[0].Path)
	require.Equal(t, KindDir, rev1.Nodes[0].Kind)
	require.Equal(t, ActionAdd, rev1.Nodes[0].Action)
	require.Equal(t, "trunk/hello.txt", rev1.Nodes[1].Path)
	require.True(t, rev1.Nodes[1].HasContent)
	require.Equal(t, "hello\n", string(rev1.Nodes[1].Content))

	rev2, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 2, rev2.Number)
	require.Len(t, rev2.Nodes, 1)
	require.Equal(t, "tags/v1", rev2.Nodes[0].Path)
	require.Equal(t, "trunk", rev2.Nodes[0].FromPath)
	require.Equal(t, 1, rev2.Nodes[0].FromRev)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestNewReaderDecompressesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sampleDump))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()

	rev1, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 1, rev1.Number)
}
