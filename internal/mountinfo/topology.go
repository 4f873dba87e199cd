package mountinfo

// Covers reports whether a mount at mountPoint is visible on the way to dir:
// mountPoint must be a prefix of dir that is the whole of dir, ends with a
// slash, or is followed by a slash in dir.
func Covers(mountPoint, dir string) bool {
	n := len(mountPoint)
	if len(dir) < n || dir[:n] != mountPoint {
		return false
	}
	if n == 0 || mountPoint[n-1] == '/' {
		return true
	}
	return len(dir) == n || dir[n] == '/'
}

// Topology is the chain of mounts visible on the path to one directory,
// least specific first. Placeholder entries (empty Device) stand in for
// parents that have not been seen yet.
type Topology struct {
	entries []Entry
}

// Insert places e in the chain using its parent linkage:
//   - e's parent is in the chain: everything above the parent is occluded
//     by e, so the chain is truncated there and e appended (the usual case
//     is that the parent is the tail);
//   - e is the parent of the head placeholder: e was mounted before its
//     child and moved later (pivoted roots), so it replaces the placeholder
//     and its own parent placeholder goes in front;
//   - otherwise e is not on the path and is dropped.
func (t *Topology) Insert(e Entry) {
	if len(t.entries) == 0 {
		t.entries = []Entry{{ID: e.ParentID}, e}
		return
	}
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].ID == e.ParentID {
			t.entries = append(t.entries[:i+1], e)
			return
		}
		if i == 0 && t.entries[0].ID == e.ID {
			rest := t.entries[1:]
			chain := make([]Entry, 0, len(t.entries)+1)
			chain = append(chain, Entry{ID: e.ParentID}, e)
			t.entries = append(chain, rest...)
			return
		}
	}
}

// Entries returns the chain, least specific first.
func (t *Topology) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Active returns the most specific real mount in the chain.
func (t *Topology) Active() (Entry, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Device != "" {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// BuildTopology filters entries down to the mounts covering dir and links
// them into a chain.
func BuildTopology(entries []Entry, dir string) *Topology {
	if dir == "" {
		dir = "/"
	}
	t := &Topology{}
	for _, e := range entries {
		if !Covers(e.MountPoint, dir) {
			continue
		}
		t.Insert(e)
	}
	return t
}
