// Package quadtree implements a self-growing spatial index over
// axis-aligned bounds or points. The tree keeps every stored entry in
// one global doubly linked list ordered so that the entries under any
// node form a contiguous run, which makes "collect everything under
// this node" a two-pointer walk instead of a subtree traversal.
//
// Mutations (Add, Remove, Update, Clear) must be serialized by the
// caller. Queries may run concurrently with each other, but not with a
// writer; the per-node result caches tolerate racing readers.
package quadtree

import (
	"fmt"
	"math"

	"github.com/pthm-cable/reef/geom"
)

// Options configures a tree.
type Options struct {
	// MaxEntries is the bucket size: a node holding more local entries
	// than this splits, provided its region can still be halved.
	MaxEntries int

	// MinNodeSize is the smallest node side length. The tree region is
	// always a power-of-two multiple of it.
	MinNodeSize float32

	// BoundsInflation is the fixed margin added to stored bounds so
	// small positional jitter does not force a reindex.
	BoundsInflation float32

	// MotionScale multiplies the per-update movement delta to extend
	// bounds in the direction of travel.
	MotionScale float32
}

// DefaultOptions returns the tuning used by the simulation defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:      8,
		MinNodeSize:     16,
		BoundsInflation: 0.5,
		MotionScale:     2,
	}
}

// Tree is a dynamic quadtree mapping unique values to bounds.
// The zero value is not usable; construct with New.
type Tree[T comparable] struct {
	root *node[T]
	opts Options

	// Reverse index for O(1) Update/Remove by value. Non-owning: the
	// node tree and entry list own the entries.
	entries map[T]*entry[T]
}

// New creates an empty tree. The initial region is a MinNodeSize square
// anchored at the origin; it doubles as needed to cover inserted bounds.
func New[T comparable](opts Options) (*Tree[T], error) {
	if opts.MaxEntries < 1 {
		return nil, fmt.Errorf("max entries %d: %w", opts.MaxEntries, ErrInvalidConfig)
	}
	if !(opts.MinNodeSize > 0) {
		return nil, fmt.Errorf("min node size %g: %w", opts.MinNodeSize, ErrInvalidConfig)
	}
	if opts.BoundsInflation < 0 || opts.MotionScale < 0 {
		return nil, fmt.Errorf("negative margin: %w", ErrInvalidConfig)
	}
	t := &Tree[T]{
		opts:    opts,
		entries: make(map[T]*entry[T]),
	}
	t.root = &node[T]{bounds: t.minRegion()}
	return t, nil
}

func (t *Tree[T]) minRegion() geom.Rect {
	s := t.opts.MinNodeSize
	return geom.Rect{MinX: 0, MinY: 0, MaxX: s, MaxY: s}
}

// Count returns the number of stored values.
func (t *Tree[T]) Count() int {
	return len(t.entries)
}

// Region returns the current tree bounds.
func (t *Tree[T]) Region() geom.Rect {
	return t.root.bounds
}

// Contains reports whether v is indexed.
func (t *Tree[T]) Contains(v T) bool {
	_, ok := t.entries[v]
	return ok
}

// BoundsOf returns the stored (inflated) bounds for v.
func (t *Tree[T]) BoundsOf(v T) (geom.Rect, error) {
	e, ok := t.entries[v]
	if !ok {
		return geom.Rect{}, fmt.Errorf("bounds of %v: %w", v, ErrNotFound)
	}
	return e.bounds, nil
}

// Clear removes everything and shrinks the region back to minimum size.
func (t *Tree[T]) Clear() {
	t.entries = make(map[T]*entry[T])
	t.root = &node[T]{bounds: t.minRegion()}
}

// Add indexes v under the given bounds. The stored bounds are inflated
// by the configured margin. Returns ErrDuplicate if v is already indexed
// and ErrInvalidBounds for bounds with a NaN or infinite side.
// Coordinates so extreme that the region cannot double out to them
// within the growth limit leave the entry attached at the root, visible
// only to queries overlapping the region.
func (t *Tree[T]) Add(b geom.Rect, v T) error {
	if _, ok := t.entries[v]; ok {
		return fmt.Errorf("add %v: %w", v, ErrDuplicate)
	}
	if !b.IsFinite() {
		return fmt.Errorf("add %v: %w", v, ErrInvalidBounds)
	}
	nb := t.stored(b, geom.Vec2{})
	t.grow(nb)
	n := t.descend(nb)
	e := &entry[T]{bounds: nb, value: v}
	t.attach(n, e)
	t.entries[v] = e
	t.splitCheck(n)
	return nil
}

// AddPoint indexes v at a single point.
func (t *Tree[T]) AddPoint(p geom.Vec2, v T) error {
	return t.Add(geom.RectFromPoint(p), v)
}

// Remove deletes v from the index. Returns false if v was not present.
func (t *Tree[T]) Remove(v T) bool {
	e, ok := t.entries[v]
	if !ok {
		return false
	}
	delete(t.entries, v)
	n := e.owner
	t.detach(e)
	t.mergeCheck(n)
	if t.root.count == 0 {
		t.root = &node[T]{bounds: t.minRegion()}
	}
	return true
}

// Update moves v to new bounds. delta is the movement since the last
// update and extends the stored bounds in the direction of travel so a
// steadily moving value reindexes less often. Returns true if the index
// changed, false if the stored bounds already covered the new position.
func (t *Tree[T]) Update(b geom.Rect, delta geom.Vec2, v T) (bool, error) {
	e, ok := t.entries[v]
	if !ok {
		return false, fmt.Errorf("update %v: %w", v, ErrNotFound)
	}
	if !b.IsFinite() {
		return false, fmt.Errorf("update %v: %w", v, ErrInvalidBounds)
	}
	if e.bounds.ContainsRect(b) {
		return false, nil
	}
	nb := t.stored(b, delta)
	n := e.owner
	if n.bounds.ContainsRect(nb) {
		// Mutate in place unless the entry could now sink into an
		// existing child.
		if q := n.quadrantFor(nb); q < 0 || n.children[q] == nil {
			e.bounds = nb
			return true, nil
		}
	}
	t.detach(e)
	t.mergeCheck(n)
	e.bounds = nb
	t.grow(nb)
	dest := t.descend(nb)
	t.attach(dest, e)
	t.splitCheck(dest)
	return true, nil
}

// UpdatePoint moves a point value.
func (t *Tree[T]) UpdatePoint(p geom.Vec2, delta geom.Vec2, v T) (bool, error) {
	return t.Update(geom.RectFromPoint(p), delta, v)
}

// stored computes the bounds actually kept in the tree: inflated by the
// jitter margin, extended along the movement direction, and widened if
// degenerate so half-open overlap tests see a nonempty box.
func (t *Tree[T]) stored(b geom.Rect, delta geom.Vec2) geom.Rect {
	m := t.opts.BoundsInflation
	b = b.Inflate(m, m)
	if delta.X != 0 || delta.Y != 0 {
		b = b.Extend(delta.Scale(t.opts.MotionScale))
	}
	if b.MaxX <= b.MinX {
		b.MaxX = math.Nextafter32(b.MinX, float32(math.Inf(1)))
	}
	if b.MaxY <= b.MinY {
		b.MaxY = math.Nextafter32(b.MinY, float32(math.Inf(1)))
	}
	return b
}

// growthLimit caps region doublings per insert. 48 doublings from the
// minimum region exceed float32 range for any sane coordinate.
const growthLimit = 48

// grow doubles the tree region until it contains b, wrapping the current
// root as one quadrant of each new level. While the tree is empty the
// bounds move without allocating wrapper nodes.
func (t *Tree[T]) grow(b geom.Rect) {
	for i := 0; !t.root.bounds.ContainsRect(b); i++ {
		if i >= growthLimit {
			return
		}
		rb := t.root.bounds
		size := rb.Width()
		growLeft := b.MinX < rb.MinX
		growUp := b.MinY < rb.MinY

		nb := rb
		if growLeft {
			nb.MinX = rb.MinX - size
		}
		if growUp {
			nb.MinY = rb.MinY - size
		}
		nb.MaxX = nb.MinX + 2*size
		nb.MaxY = nb.MinY + 2*size

		if t.root.count == 0 {
			t.root.bounds = nb
			continue
		}

		// The old region keeps its place in the doubled region: growing
		// left/up puts it in the right/lower half.
		q := 0
		if growLeft {
			q |= 1
		}
		if growUp {
			q |= 2
		}
		wrapper := &node[T]{bounds: nb, count: t.root.count}
		wrapper.children[q] = t.root
		wrapper.firstChild = t.root.totalFirst()
		wrapper.lastChild = t.root.totalLast()
		t.root.parent = wrapper
		t.root = wrapper
	}
}

// descend walks from the root into the deepest existing child whose
// quadrant fully contains b. Children are never created here; only
// splits create children.
func (t *Tree[T]) descend(b geom.Rect) *node[T] {
	n := t.root
	for {
		q := n.quadrantFor(b)
		if q < 0 || n.children[q] == nil {
			return n
		}
		n = n.children[q]
	}
}

// attach splices e into n's local segment and fixes counts, ancestor
// segment boundaries and caches. e must be unlinked.
func (t *Tree[T]) attach(n *node[T], e *entry[T]) {
	e.owner = n
	switch {
	case n.lastLocal != nil:
		e.insertAfter(n.lastLocal)
		n.lastLocal = e
	case n.firstChild != nil:
		e.insertBefore(n.firstChild)
		n.firstLocal, n.lastLocal = e, e
	default:
		if pred := t.predecessorOf(n); pred != nil {
			e.insertAfter(pred)
		} else if head := t.root.totalFirst(); head != nil {
			e.insertBefore(head)
		}
		n.firstLocal, n.lastLocal = e, e
	}
	for a := n; a != nil; a = a.parent {
		a.count++
	}
	t.touch(n)
}

// detach unsplices e from its owner's local segment, leaving the entry
// object itself reusable.
func (t *Tree[T]) detach(e *entry[T]) {
	n := e.owner
	switch {
	case n.firstLocal == e && n.lastLocal == e:
		n.firstLocal, n.lastLocal = nil, nil
	case n.firstLocal == e:
		n.firstLocal = e.next
	case n.lastLocal == e:
		n.lastLocal = e.prev
	}
	e.unlink()
	e.owner = nil
	for a := n; a != nil; a = a.parent {
		a.count--
	}
	t.touch(n)
}

// touch invalidates n's local cache and repairs segment boundaries and
// subtree caches up the ancestor chain.
func (t *Tree[T]) touch(n *node[T]) {
	n.localCache.Store(nil)
	for a := n.parent; a != nil; a = a.parent {
		a.refreshChildSegment()
		a.childCache.Store(nil)
	}
}

// predecessorOf returns the entry that must directly precede n's segment
// in the global list, or nil if n's segment starts the list. A node's
// local run follows its parent's local run and every lower-indexed
// sibling subtree.
func (t *Tree[T]) predecessorOf(n *node[T]) *entry[T] {
	child := n
	for p := child.parent; p != nil; p = child.parent {
		for i := child.indexIn(p) - 1; i >= 0; i-- {
			if c := p.children[i]; c != nil {
				if last := c.totalLast(); last != nil {
					return last
				}
			}
		}
		if p.lastLocal != nil {
			return p.lastLocal
		}
		child = p
	}
	return nil
}

// splitCheck redistributes n's local entries into child quadrants when
// the bucket overflows, then recurses into any child that overflowed in
// turn. Entries straddling a split line stay local.
func (t *Tree[T]) splitCheck(n *node[T]) {
	if n.localCount() <= t.opts.MaxEntries || n.bounds.Width() <= t.opts.MinNodeSize {
		return
	}
	locals := n.locals()
	for _, e := range locals {
		q := n.quadrantFor(e.bounds)
		if q < 0 {
			continue
		}
		c := n.children[q]
		if c == nil {
			c = &node[T]{parent: n, bounds: n.childBounds(q)}
			n.children[q] = c
		}
		t.detach(e)
		t.attach(c, e)
	}
	for _, c := range n.children {
		if c != nil {
			t.splitCheck(c)
		}
	}
}

// mergeCheck walks from n to the root, pruning emptied children and
// collapsing any node whose whole subtree fits back into its bucket.
func (t *Tree[T]) mergeCheck(n *node[T]) {
	for a := n; a != nil; a = a.parent {
		for i, c := range a.children {
			if c != nil && c.count == 0 {
				c.parent = nil
				a.children[i] = nil
			}
		}
		if !a.isLeaf() && a.count <= t.opts.MaxEntries {
			t.collapse(a)
		}
	}
}

// collapse folds a's whole child segment into its local segment and
// discards the children. Because the child run directly follows the
// local run in the global list this is pointer surgery plus re-owning
// the folded entries; no relinking is needed.
func (t *Tree[T]) collapse(a *node[T]) {
	if a.firstChild != nil {
		for e := a.firstChild; e != nil; e = e.next {
			e.owner = a
			if e == a.lastChild {
				break
			}
		}
		if a.firstLocal == nil {
			a.firstLocal = a.firstChild
		}
		a.lastLocal = a.lastChild
		a.firstChild, a.lastChild = nil, nil
	}
	for i, c := range a.children {
		if c != nil {
			c.parent = nil
			a.children[i] = nil
		}
	}
	a.localCache.Store(nil)
	a.childCache.Store(nil)
}
