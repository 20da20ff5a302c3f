package quadtree

import "github.com/pthm-cable/reef/geom"

// entry is one stored (bounds, value) pair. Every entry in a tree is
// linked into a single global list whose order matches a depth-first
// walk of the nodes, so the entries under any one node always form a
// contiguous run.
type entry[T comparable] struct {
	bounds geom.Rect
	value  T

	prev, next *entry[T]
	owner      *node[T]
}

// insertAfter links e into the list directly after anchor.
// e must not already be linked.
func (e *entry[T]) insertAfter(anchor *entry[T]) {
	e.prev = anchor
	e.next = anchor.next
	if anchor.next != nil {
		anchor.next.prev = e
	}
	anchor.next = e
}

// insertBefore links e into the list directly before anchor.
// e must not already be linked.
func (e *entry[T]) insertBefore(anchor *entry[T]) {
	e.next = anchor
	e.prev = anchor.prev
	if anchor.prev != nil {
		anchor.prev.next = e
	}
	anchor.prev = e
}

// unlink removes e from the list and clears its link pointers.
func (e *entry[T]) unlink() {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	e.prev = nil
	e.next = nil
}
