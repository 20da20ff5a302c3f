package quadtree

import (
	"sync/atomic"

	"github.com/pthm-cable/reef/geom"
)

// Quadrant indices: bit 0 set = right half, bit 1 set = lower half
// (y grows downward, matching world coordinates).
const (
	quadNW = 0
	quadNE = 1
	quadSW = 2
	quadSE = 3
)

// node is one quadrant of the tree. A node is a leaf iff all four
// children are nil. Inner nodes may still hold entries directly when
// those entries straddle a split line.
//
// firstLocal..lastLocal delimit the run of entries stored at this node;
// firstChild..lastChild delimit the run covering the whole subtree below
// it. The local run directly precedes the child run in the global list.
type node[T comparable] struct {
	parent   *node[T]
	children [4]*node[T]
	bounds   geom.Rect

	// Total entries in this node's subtree, maintained incrementally.
	count int

	firstLocal, lastLocal *entry[T]
	firstChild, lastChild *entry[T]

	// Lazily built snapshots of the local and subtree entry runs.
	// Published with compare-and-swap so concurrent readers can race to
	// build them without a lock; writers invalidate by storing nil.
	localCache atomic.Pointer[[]*entry[T]]
	childCache atomic.Pointer[[]*entry[T]]
}

func (n *node[T]) isLeaf() bool {
	return n.children[0] == nil && n.children[1] == nil && n.children[2] == nil && n.children[3] == nil
}

// localCount returns the number of entries stored directly at n.
func (n *node[T]) localCount() int {
	c := n.count
	for _, ch := range n.children {
		if ch != nil {
			c -= ch.count
		}
	}
	return c
}

// totalFirst returns the first entry of n's whole segment, or nil.
func (n *node[T]) totalFirst() *entry[T] {
	if n.firstLocal != nil {
		return n.firstLocal
	}
	return n.firstChild
}

// totalLast returns the last entry of n's whole segment, or nil.
func (n *node[T]) totalLast() *entry[T] {
	if n.lastChild != nil {
		return n.lastChild
	}
	return n.lastLocal
}

// childBounds returns the quadrant rect for child index q.
func (n *node[T]) childBounds(q int) geom.Rect {
	c := n.bounds.Center()
	switch q {
	case quadNW:
		return geom.Rect{MinX: n.bounds.MinX, MinY: n.bounds.MinY, MaxX: c.X, MaxY: c.Y}
	case quadNE:
		return geom.Rect{MinX: c.X, MinY: n.bounds.MinY, MaxX: n.bounds.MaxX, MaxY: c.Y}
	case quadSW:
		return geom.Rect{MinX: n.bounds.MinX, MinY: c.Y, MaxX: c.X, MaxY: n.bounds.MaxY}
	default:
		return geom.Rect{MinX: c.X, MinY: c.Y, MaxX: n.bounds.MaxX, MaxY: n.bounds.MaxY}
	}
}

// quadrantFor returns the child index whose quadrant fully contains b,
// or -1 if b straddles a split line. A bound touching a split line from
// the left/top side belongs to the lower-indexed quadrant, matching the
// half-open point convention.
func (n *node[T]) quadrantFor(b geom.Rect) int {
	c := n.bounds.Center()
	var q int
	switch {
	case b.MaxX <= c.X:
		// left half
	case b.MinX >= c.X:
		q |= 1
	default:
		return -1
	}
	switch {
	case b.MaxY <= c.Y:
		// upper half
	case b.MinY >= c.Y:
		q |= 2
	default:
		return -1
	}
	return q
}

// indexIn returns n's slot in parent's children array.
func (n *node[T]) indexIn(parent *node[T]) int {
	for i, c := range parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

// locals returns the materialized local entry run, building and
// publishing the cache on first use.
func (n *node[T]) locals() []*entry[T] {
	if p := n.localCache.Load(); p != nil {
		return *p
	}
	list := make([]*entry[T], 0, n.localCount())
	for e := n.firstLocal; e != nil; e = e.next {
		list = append(list, e)
		if e == n.lastLocal {
			break
		}
	}
	n.localCache.CompareAndSwap(nil, &list)
	return list
}

// descendants returns the materialized subtree entry run (everything
// below n, excluding n's own local entries).
func (n *node[T]) descendants() []*entry[T] {
	if p := n.childCache.Load(); p != nil {
		return *p
	}
	list := make([]*entry[T], 0, n.count-n.localCount())
	for e := n.firstChild; e != nil; e = e.next {
		list = append(list, e)
		if e == n.lastChild {
			break
		}
	}
	n.childCache.CompareAndSwap(nil, &list)
	return list
}

// refreshChildSegment recomputes firstChild/lastChild from the children.
// O(1) per call; used while fixing up an ancestor chain.
func (n *node[T]) refreshChildSegment() {
	n.firstChild = nil
	n.lastChild = nil
	for _, c := range n.children {
		if c == nil {
			continue
		}
		if f := c.totalFirst(); f != nil {
			if n.firstChild == nil {
				n.firstChild = f
			}
			n.lastChild = c.totalLast()
		}
	}
}
