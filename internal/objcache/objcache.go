// Package objcache implements a bounded-by-memory LRU of recently
// emitted Git objects, keyed by oid. Stage 2 stores each blob's payload
// here after emitting it through the pack writer; no stage reads an
// entry back to skip an emission or a pack read.
//
// hashicorp/golang-lru is a count-bounded LRU; this needs a
// memory-bounded one instead. This wraps golang-lru's Cache with an
// unbounded capacity and does the memory accounting itself, evicting
// the actual least-recently-used entry (via Cache.RemoveOldest, not a
// size-based heuristic) until usage is back under budget, so eviction
// order stays strict LRU with memory as the trigger rather than entry
// count.
package objcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCeilingBytes is the default memory ceiling when the caller
// doesn't specify one.
const DefaultCeilingBytes = 384 * 1024 * 1024

// Cache is a memory-bounded, strict-LRU object cache.
type Cache struct {
	lru     *lru.Cache[string, []byte]
	ceiling int64
	used    int64
}

// New builds a Cache with the given memory ceiling in bytes. A ceiling
// of 0 uses DefaultCeilingBytes.
func New(ceilingBytes int64) *Cache {
	if ceilingBytes <= 0 {
		ceilingBytes = DefaultCeilingBytes
	}
	// The underlying LRU is sized as large as practical; the real bound
	// is enforced by Put evicting on memory usage, not entry count.
	inner, _ := lru.New[string, []byte](1 << 30)
	return &Cache{lru: inner, ceiling: ceilingBytes}
}

// Get returns the cached payload for oid, if present, and marks it
// most-recently-used.
func (c *Cache) Get(oid string) ([]byte, bool) {
	return c.lru.Get(oid)
}

// Put stores payload under oid, evicting the least-recently-used
// entries (oldest first) until the cache is back under its memory
// ceiling. A payload larger than the whole ceiling is not cached and
// evicts nothing; the existing entries stay as they were.
func (c *Cache) Put(oid string, payload []byte) {
	if int64(len(payload)) > c.ceiling {
		return
	}
	if old, ok := c.lru.Peek(oid); ok {
		c.used -= int64(len(old))
	}
	c.lru.Add(oid, payload)
	c.used += int64(len(payload))

	for c.used > c.ceiling {
		oldestKey, oldestVal, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		c.used -= int64(len(oldestVal))
		_ = oldestKey
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// UsedBytes reports the cache's current memory usage.
func (c *Cache) UsedBytes() int64 {
	return c.used
}
