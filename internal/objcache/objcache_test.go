package objcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMiss(t *testing.T) {
	c := New(1024)
	_, ok := c.Get("deadbeef")
	require.False(t, ok)
}

func TestPutGet(t *testing.T) {
	c := New(1024)
	c.Put("aaaa", []byte("hello"))
	v, ok := c.Get("aaaa")
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(10) // 10 bytes total
	c.Put("a", []byte("12345")) // 5 bytes
	c.Put("b", []byte("12345")) // 5 bytes, now at 10/10
	_, ok := c.Get("a")         // touch a, making b the LRU entry
	require.True(t, ok)

	c.Put("c", []byte("12345")) // forces an eviction
	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	require.True(t, okA)
	require.False(t, okB, "b should have been evicted as least recently used")
	require.True(t, okC)
}

func TestOversizedPayloadNotCached(t *testing.T) {
	c := New(4)
	c.Put("big", []byte("12345"))
	_, ok := c.Get("big")
	require.False(t, ok)
	require.Equal(t, int64(0), c.UsedBytes())
}
