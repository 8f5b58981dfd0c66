package mirror

// History owns the live Mirror plus one snapshot per committed SVN
// revision, so any copy-from-rev can be satisfied. Snapshots are kept
// until Release drops them; History does not itself track which
// revisions the remaining dump stream still references.
type History struct {
	current   *Mirror
	snapshots map[int]*Mirror
}

// NewHistory returns a History with an empty tree at revision 0.
func NewHistory() *History {
	h := &History{current: New(), snapshots: map[int]*Mirror{}}
	h.snapshots[0] = h.current.Snapshot()
	return h
}

// Current returns the live, mutable Mirror for the revision under
// construction.
func (h *History) Current() *Mirror {
	return h.current
}

// Commit snapshots the current tree state as the state as-of
// revision rev, to be found later by At. Call once per SVN revision,
// after applying all of that revision's node actions.
func (h *History) Commit(rev int) {
	h.snapshots[rev] = h.current.Snapshot()
}

// At returns the Mirror as it stood at the end of revision rev.
func (h *History) At(rev int) (*Mirror, bool) {
	m, ok := h.snapshots[rev]
	return m, ok
}

// Release drops every retained snapshot whose revision is strictly
// less than keepFrom, except revision 0 (the empty initial state,
// always cheap to retain and a safe fallback). The caller is
// responsible for computing keepFrom as the minimum copy-from-rev
// still referenced by the remainder of the dump stream.
func (h *History) Release(keepFrom int) {
	for rev := range h.snapshots {
		if rev != 0 && rev < keepFrom {
			delete(h.snapshots, rev)
		}
	}
}

// Retained reports how many snapshots are currently held, for
// diagnostics and tests.
func (h *History) Retained() int {
	return len(h.snapshots)
}
