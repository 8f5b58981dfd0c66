// Package mirror is a shadow tree of every path currently live in SVN,
// supporting cheap copy-on-write snapshots by structural sharing: a
// tree node is "shared" once more than one Mirror references it, and
// any write first unshares the path down to the write site, cloning
// only the nodes on that path. Node carries a Kind tag rather than a
// flat dirs/blobs split, since in-place symlink-vs-file reinterpretation
// needs to change a node's kind without losing its identity.
package mirror

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// PropertySet is an ordered name -> value mapping, backed by gods'
// linkedhashmap so iteration order matches insertion order the way SVN
// dump properties are recorded.
type PropertySet struct {
	m *linkedhashmap.Map
}

// NewPropertySet returns an empty PropertySet.
func NewPropertySet() *PropertySet {
	return &PropertySet{m: linkedhashmap.New()}
}

// Clone returns a deep-enough copy safe to mutate independently: keys
// and the []byte values are copied, since a MirrorNode must never
// retain an alias into a sibling snapshot's property values.
func (p *PropertySet) Clone() *PropertySet {
	out := NewPropertySet()
	p.m.Each(func(key, value interface{}) {
		v := value.([]byte)
		cp := make([]byte, len(v))
		copy(cp, v)
		out.m.Put(key, cp)
	})
	return out
}

// Get returns the value for name, if present.
func (p *PropertySet) Get(name string) ([]byte, bool) {
	v, ok := p.m.Get(name)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Set assigns value to name, preserving existing insertion order if
// name is already present.
func (p *PropertySet) Set(name string, value []byte) {
	p.m.Put(name, value)
}

// Delete removes name, if present.
func (p *PropertySet) Delete(name string) {
	p.m.Remove(name)
}

// Has reports whether name is present.
func (p *PropertySet) Has(name string) bool {
	_, ok := p.m.Get(name)
	return ok
}

// Keys returns property names in insertion order.
func (p *PropertySet) Keys() []string {
	keys := p.m.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

// Reserved SVN property names the core interprets.
const (
	PropMergeinfo      = "svn:mergeinfo"
	PropIgnore         = "svn:ignore"
	PropGlobalIgnores  = "svn:global-ignores"
	PropSpecial        = "svn:special"
	PropExecutable     = "svn:executable"
	PropLog            = "svn:log"
	PropAuthor         = "svn:author"
	PropDate           = "svn:date"
)

// IsSymlink reports whether a property set marks its node as an SVN
// symlink (svn:special present with value "link").
func (p *PropertySet) IsSymlink() bool {
	v, ok := p.Get(PropSpecial)
	return ok && string(v) == "link"
}
