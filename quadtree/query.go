package quadtree

import "github.com/pthm-cable/reef/geom"

// VisitFunc receives matching values. Returning false stops the query.
type VisitFunc[T comparable] func(v T) bool

// LineVisitFunc receives a matching value and the fraction along the
// segment where its bounds are first hit. The returned fraction becomes
// the new trim: return the same value to keep searching, a smaller one
// to narrow the search to closer hits, or a value <= 0 to stop.
type LineVisitFunc[T comparable] func(v T, frac float32) float32

// FindRect collects every value whose bounds overlap q into out.
func (t *Tree[T]) FindRect(q geom.Rect, out map[T]struct{}) {
	t.FindRectFunc(q, func(v T) bool {
		out[v] = struct{}{}
		return true
	})
}

// FindRectFunc invokes fn for every value whose bounds overlap q.
func (t *Tree[T]) FindRectFunc(q geom.Rect, fn VisitFunc[T]) {
	t.findRect(t.root, q, fn)
}

func (t *Tree[T]) findRect(n *node[T], q geom.Rect, fn VisitFunc[T]) bool {
	if q.ContainsRect(n.bounds) {
		// Every entry under n lies within n's region, so containment
		// implies a match; emit straight from the caches.
		for _, e := range n.locals() {
			if !fn(e.value) {
				return false
			}
		}
		for _, e := range n.descendants() {
			if !fn(e.value) {
				return false
			}
		}
		return true
	}
	if !q.Intersects(n.bounds) {
		return true
	}
	for _, e := range n.locals() {
		if q.Intersects(e.bounds) {
			if !fn(e.value) {
				return false
			}
		}
	}
	for _, c := range n.children {
		if c != nil {
			if !t.findRect(c, q, fn) {
				return false
			}
		}
	}
	return true
}

// FindCircle collects every value whose bounds overlap the circle at
// center with the given radius into out.
func (t *Tree[T]) FindCircle(center geom.Vec2, radius float32, out map[T]struct{}) {
	t.FindCircleFunc(center, radius, func(v T) bool {
		out[v] = struct{}{}
		return true
	})
}

// FindCircleFunc invokes fn for every value whose bounds overlap the
// circle at center with the given radius.
func (t *Tree[T]) FindCircleFunc(center geom.Vec2, radius float32, fn VisitFunc[T]) {
	if radius <= 0 {
		return
	}
	t.findCircle(t.root, center, radius, fn)
}

func (t *Tree[T]) findCircle(n *node[T], c geom.Vec2, r float32, fn VisitFunc[T]) bool {
	if !n.bounds.IntersectsCircle(c, r) {
		return true
	}
	if n.bounds.InsideCircle(c, r) {
		// No recursion needed, but node bounds over-approximate entry
		// bounds, so each entry still gets the precise test.
		for _, e := range n.locals() {
			if e.bounds.IntersectsCircle(c, r) && !fn(e.value) {
				return false
			}
		}
		for _, e := range n.descendants() {
			if e.bounds.IntersectsCircle(c, r) && !fn(e.value) {
				return false
			}
		}
		return true
	}
	for _, e := range n.locals() {
		if e.bounds.IntersectsCircle(c, r) && !fn(e.value) {
			return false
		}
	}
	for _, ch := range n.children {
		if ch != nil {
			if !t.findCircle(ch, c, r, fn) {
				return false
			}
		}
	}
	return true
}

// FindLine collects every value whose bounds intersect the segment a..b,
// trimmed to fraction trim in [0, 1], into out.
func (t *Tree[T]) FindLine(a, b geom.Vec2, trim float32, out map[T]struct{}) {
	t.FindLineFunc(a, b, trim, func(v T, frac float32) float32 {
		out[v] = struct{}{}
		return trim
	})
}

// FindLineFunc walks values whose bounds intersect the segment a..b up
// to the current trim fraction, visiting nearer nodes first. The
// callback's returned fraction narrows the remaining search, which gives
// nearest-hit-along-ray queries an early exit. Returns the final trim.
func (t *Tree[T]) FindLineFunc(a, b geom.Vec2, trim float32, fn LineVisitFunc[T]) float32 {
	if trim > 1 {
		trim = 1
	}
	if trim <= 0 {
		return trim
	}
	trim, _ = t.findLine(t.root, a, b, trim, fn)
	return trim
}

// findLine returns the (possibly narrowed) trim and whether to continue.
func (t *Tree[T]) findLine(n *node[T], a, b geom.Vec2, trim float32, fn LineVisitFunc[T]) (float32, bool) {
	if _, ok := n.bounds.SegmentIntersection(a, b, trim); !ok {
		return trim, true
	}
	for _, e := range n.locals() {
		frac, ok := e.bounds.SegmentIntersection(a, b, trim)
		if !ok {
			continue
		}
		nt := fn(e.value, frac)
		if nt <= 0 {
			return 0, false
		}
		if nt < trim {
			trim = nt
		}
	}

	// Visit children nearest-first along the segment so a narrowing
	// callback can prune far quadrants.
	type hit struct {
		c    *node[T]
		frac float32
	}
	var hits [4]hit
	nh := 0
	for _, c := range n.children {
		if c == nil {
			continue
		}
		frac, ok := c.bounds.SegmentIntersection(a, b, trim)
		if !ok {
			continue
		}
		hits[nh] = hit{c, frac}
		nh++
	}
	for i := 1; i < nh; i++ {
		for j := i; j > 0 && hits[j].frac < hits[j-1].frac; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for i := 0; i < nh; i++ {
		if hits[i].frac > trim {
			continue
		}
		var cont bool
		trim, cont = t.findLine(hits[i].c, a, b, trim, fn)
		if !cont {
			return trim, false
		}
	}
	return trim, true
}
