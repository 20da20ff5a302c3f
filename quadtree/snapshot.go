package quadtree

import (
	"fmt"

	"github.com/pthm-cable/reef/geom"
	"github.com/pthm-cable/reef/packet"
)

// Snapshot layout: header and tuning, then the entry list in global
// order with explicit prev/next indices, then the node topology as a
// preorder walk referencing entries by index. Node bounds are not
// written; they derive from the root region and the quadrant path.
const (
	snapshotMagic   = 0x51543145 // "E1TQ" little-endian
	snapshotVersion = 1

	// noIndex marks a missing prev/next link.
	noIndex = ^uint32(0)

	// maxSnapshotDepth rejects topologies deeper than any region the
	// growth rules can produce.
	maxSnapshotDepth = 64
)

// ValueEncoder writes one value to a packet.
type ValueEncoder[T any] func(w *packet.Writer, v T)

// ValueDecoder reads one value back from a packet.
type ValueDecoder[T any] func(r *packet.Reader) (T, error)

// Snapshot serializes the whole tree, using enc for the stored values.
func (t *Tree[T]) Snapshot(w *packet.Writer, enc ValueEncoder[T]) {
	w.Uint32(snapshotMagic)
	w.Uint8(snapshotVersion)
	w.Uint32(uint32(t.opts.MaxEntries))
	w.Float32(t.opts.MinNodeSize)
	w.Float32(t.opts.BoundsInflation)
	w.Float32(t.opts.MotionScale)
	writeRect(w, t.root.bounds)

	index := make(map[*entry[T]]uint32, len(t.entries))
	order := make([]*entry[T], 0, len(t.entries))
	for e := t.root.totalFirst(); e != nil; e = e.next {
		index[e] = uint32(len(order))
		order = append(order, e)
	}

	w.Uint32(uint32(len(order)))
	for i, e := range order {
		writeRect(w, e.bounds)
		if i > 0 {
			w.Uint32(uint32(i - 1))
		} else {
			w.Uint32(noIndex)
		}
		if i < len(order)-1 {
			w.Uint32(uint32(i + 1))
		} else {
			w.Uint32(noIndex)
		}
		enc(w, e.value)
	}

	t.writeNode(w, t.root, index)
}

func (t *Tree[T]) writeNode(w *packet.Writer, n *node[T], index map[*entry[T]]uint32) {
	w.Uint32(uint32(n.localCount()))
	for e := n.firstLocal; e != nil; e = e.next {
		w.Uint32(index[e])
		if e == n.lastLocal {
			break
		}
	}
	var mask uint8
	for i, c := range n.children {
		if c != nil {
			mask |= 1 << i
		}
	}
	w.Uint8(mask)
	for _, c := range n.children {
		if c != nil {
			t.writeNode(w, c, index)
		}
	}
}

func writeRect(w *packet.Writer, r geom.Rect) {
	w.Float32(r.MinX)
	w.Float32(r.MinY)
	w.Float32(r.MaxX)
	w.Float32(r.MaxY)
}

func readRect(r *packet.Reader) geom.Rect {
	return geom.Rect{
		MinX: r.Float32(),
		MinY: r.Float32(),
		MaxX: r.Float32(),
		MaxY: r.Float32(),
	}
}

// Restore rebuilds a tree from a snapshot produced by Snapshot.
// Structural damage of any kind surfaces as ErrBadSnapshot.
func Restore[T comparable](r *packet.Reader, dec ValueDecoder[T]) (*Tree[T], error) {
	if magic := r.Uint32(); magic != snapshotMagic {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		return nil, fmt.Errorf("%w: magic %#x", ErrBadSnapshot, magic)
	}
	if v := r.Uint8(); v != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadSnapshot, v)
	}
	opts := Options{
		MaxEntries:      int(r.Uint32()),
		MinNodeSize:     r.Float32(),
		BoundsInflation: r.Float32(),
		MotionScale:     r.Float32(),
	}
	rootBounds := readRect(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	t, err := New[T](opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if rootBounds.Width() <= 0 || rootBounds.Width() != rootBounds.Height() {
		return nil, fmt.Errorf("%w: region %+v not square", ErrBadSnapshot, rootBounds)
	}

	count := r.Uint32()
	if r.Err() != nil || int(count) > r.Remaining() {
		return nil, fmt.Errorf("%w: entry count %d", ErrBadSnapshot, count)
	}
	entries := make([]*entry[T], count)
	prevs := make([]uint32, count)
	nexts := make([]uint32, count)
	for i := range entries {
		b := readRect(r)
		prevs[i] = r.Uint32()
		nexts[i] = r.Uint32()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrBadSnapshot, i, err)
		}
		v, err := dec(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d value: %v", ErrBadSnapshot, i, err)
		}
		if _, dup := t.entries[v]; dup {
			return nil, fmt.Errorf("%w: duplicate value at entry %d", ErrBadSnapshot, i)
		}
		e := &entry[T]{bounds: b, value: v}
		entries[i] = e
		t.entries[v] = e
	}

	// Relink the global list and verify it is one cycle-free chain.
	heads := 0
	for i, e := range entries {
		if p := prevs[i]; p != noIndex {
			if p >= count {
				return nil, fmt.Errorf("%w: entry %d prev %d out of range", ErrBadSnapshot, i, p)
			}
			e.prev = entries[p]
		} else {
			heads++
		}
		if nx := nexts[i]; nx != noIndex {
			if nx >= count {
				return nil, fmt.Errorf("%w: entry %d next %d out of range", ErrBadSnapshot, i, nx)
			}
			e.next = entries[nx]
		}
	}
	var head *entry[T]
	if count > 0 {
		if heads != 1 {
			return nil, fmt.Errorf("%w: %d list heads", ErrBadSnapshot, heads)
		}
		for i, e := range entries {
			if prevs[i] == noIndex {
				head = e
			}
			if e.next != nil && e.next.prev != e {
				return nil, fmt.Errorf("%w: broken link at entry %d", ErrBadSnapshot, i)
			}
		}
		seen := uint32(0)
		for e := head; e != nil; e = e.next {
			seen++
			if seen > count {
				return nil, fmt.Errorf("%w: entry list cycle", ErrBadSnapshot)
			}
		}
		if seen != count {
			return nil, fmt.Errorf("%w: entry list covers %d of %d", ErrBadSnapshot, seen, count)
		}
	}

	root, err := readNode[T](r, nil, rootBounds, entries, 0)
	if err != nil {
		return nil, err
	}
	if got := fixRestored(root); got != int(count) {
		return nil, fmt.Errorf("%w: topology holds %d of %d entries", ErrBadSnapshot, got, count)
	}
	if _, ok := verifyOrder(root, head); !ok {
		return nil, fmt.Errorf("%w: node segments out of list order", ErrBadSnapshot)
	}
	t.root = root
	return t, nil
}

// verifyOrder checks that a depth-first walk of the topology, local runs
// before child runs, reproduces the global entry list starting at cursor.
// Returns the list position after the subtree and whether it matched.
func verifyOrder[T comparable](n *node[T], cursor *entry[T]) (*entry[T], bool) {
	for e := n.firstLocal; e != nil; e = e.next {
		if e != cursor {
			return nil, false
		}
		cursor = cursor.next
		if e == n.lastLocal {
			break
		}
	}
	for _, c := range n.children {
		if c == nil {
			continue
		}
		var ok bool
		if cursor, ok = verifyOrder(c, cursor); !ok {
			return nil, false
		}
	}
	return cursor, true
}

func readNode[T comparable](r *packet.Reader, parent *node[T], bounds geom.Rect, entries []*entry[T], depth int) (*node[T], error) {
	if depth > maxSnapshotDepth {
		return nil, fmt.Errorf("%w: topology too deep", ErrBadSnapshot)
	}
	n := &node[T]{parent: parent, bounds: bounds}
	localCount := r.Uint32()
	if r.Err() != nil || localCount > uint32(len(entries)) {
		return nil, fmt.Errorf("%w: local count %d", ErrBadSnapshot, localCount)
	}
	var prev *entry[T]
	for i := uint32(0); i < localCount; i++ {
		idx := r.Uint32()
		if r.Err() != nil || idx >= uint32(len(entries)) {
			return nil, fmt.Errorf("%w: entry index %d", ErrBadSnapshot, idx)
		}
		e := entries[idx]
		if e.owner != nil {
			return nil, fmt.Errorf("%w: entry %d claimed twice", ErrBadSnapshot, idx)
		}
		if prev != nil && prev.next != e {
			return nil, fmt.Errorf("%w: local run not contiguous at entry %d", ErrBadSnapshot, idx)
		}
		e.owner = n
		if n.firstLocal == nil {
			n.firstLocal = e
		}
		n.lastLocal = e
		prev = e
	}
	mask := r.Uint8()
	if r.Err() != nil || mask > 0b1111 {
		return nil, fmt.Errorf("%w: child mask %#x", ErrBadSnapshot, mask)
	}
	for q := 0; q < 4; q++ {
		if mask&(1<<q) == 0 {
			continue
		}
		c, err := readNode(r, n, n.childBounds(q), entries, depth+1)
		if err != nil {
			return nil, err
		}
		n.children[q] = c
	}
	return n, nil
}

// fixRestored recomputes counts and child segment boundaries bottom-up
// after the topology has been read. Returns the subtree entry count.
func fixRestored[T comparable](n *node[T]) int {
	count := 0
	for e := n.firstLocal; e != nil; e = e.next {
		count++
		if e == n.lastLocal {
			break
		}
	}
	for _, c := range n.children {
		if c != nil {
			count += fixRestored(c)
		}
	}
	n.refreshChildSegment()
	n.count = count
	return count
}
