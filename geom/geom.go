// Package geom provides the 2D primitives used by the spatial index:
// vectors and axis-aligned rectangles with half-open [min, max) bounds.
package geom

import "math"

// Vec2 is a 2D point or direction.
type Vec2 struct {
	X, Y float32
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

// Scale returns v scaled by s.
func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float32 {
	return v.X*o.X + v.Y*o.Y
}

// LengthSq returns the squared length of v.
func (v Vec2) LengthSq() float32 {
	return v.X*v.X + v.Y*v.Y
}

// Lerp returns the point at fraction t along the segment v..o.
func (v Vec2) Lerp(o Vec2, t float32) Vec2 {
	return Vec2{v.X + (o.X-v.X)*t, v.Y + (o.Y-v.Y)*t}
}

// Rect is an axis-aligned rectangle covering [MinX, MaxX) x [MinY, MaxY).
// The half-open convention is applied uniformly: a point exactly on the
// right or bottom edge is outside.
type Rect struct {
	MinX, MinY float32
	MaxX, MaxY float32
}

// RectFromCenter builds a rect from a center point and half extents.
func RectFromCenter(c Vec2, halfW, halfH float32) Rect {
	return Rect{c.X - halfW, c.Y - halfH, c.X + halfW, c.Y + halfH}
}

// RectFromPoint builds a degenerate rect covering a single point.
func RectFromPoint(p Vec2) Rect {
	return Rect{p.X, p.Y, p.X, p.Y}
}

// Width returns the horizontal extent.
func (r Rect) Width() float32 {
	return r.MaxX - r.MinX
}

// Height returns the vertical extent.
func (r Rect) Height() float32 {
	return r.MaxY - r.MinY
}

// Center returns the midpoint of r.
func (r Rect) Center() Vec2 {
	return Vec2{(r.MinX + r.MaxX) / 2, (r.MinY + r.MaxY) / 2}
}

// IsFinite reports whether all four sides are finite numbers.
func (r Rect) IsFinite() bool {
	return finite(r.MinX) && finite(r.MinY) && finite(r.MaxX) && finite(r.MaxY)
}

func finite(f float32) bool {
	// NaN fails the self-compare; infinities fail the range check.
	return f == f && f >= -math.MaxFloat32 && f <= math.MaxFloat32
}

// ContainsPoint reports whether p lies inside r (half-open).
func (r Rect) ContainsPoint(p Vec2) bool {
	return p.X >= r.MinX && p.X < r.MaxX && p.Y >= r.MinY && p.Y < r.MaxY
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return o.MinX >= r.MinX && o.MaxX <= r.MaxX && o.MinY >= r.MinY && o.MaxY <= r.MaxY
}

// Intersects reports whether r and o overlap. Rects that merely touch
// along an edge do not overlap under the half-open convention.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX && r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Union returns the smallest rect covering both a and b.
func Union(a, b Rect) Rect {
	if b.MinX < a.MinX {
		a.MinX = b.MinX
	}
	if b.MinY < a.MinY {
		a.MinY = b.MinY
	}
	if b.MaxX > a.MaxX {
		a.MaxX = b.MaxX
	}
	if b.MaxY > a.MaxY {
		a.MaxY = b.MaxY
	}
	return a
}

// Inflate returns r grown by dx on the left/right and dy on the top/bottom.
func (r Rect) Inflate(dx, dy float32) Rect {
	return Rect{r.MinX - dx, r.MinY - dy, r.MaxX + dx, r.MaxY + dy}
}

// Extend returns r stretched in the direction of d, leaving the opposite
// edges in place. Used for motion-predicted bounds.
func (r Rect) Extend(d Vec2) Rect {
	if d.X > 0 {
		r.MaxX += d.X
	} else {
		r.MinX += d.X
	}
	if d.Y > 0 {
		r.MaxY += d.Y
	} else {
		r.MinY += d.Y
	}
	return r
}

// DistSqToPoint returns the squared distance from p to the nearest point
// of r, or 0 if p is inside.
func (r Rect) DistSqToPoint(p Vec2) float32 {
	var dx, dy float32
	if p.X < r.MinX {
		dx = r.MinX - p.X
	} else if p.X > r.MaxX {
		dx = p.X - r.MaxX
	}
	if p.Y < r.MinY {
		dy = r.MinY - p.Y
	} else if p.Y > r.MaxY {
		dy = p.Y - r.MaxY
	}
	return dx*dx + dy*dy
}

// IntersectsCircle reports whether r overlaps the circle at c with the
// given radius. Squared-distance comparison, no sqrt.
func (r Rect) IntersectsCircle(c Vec2, radius float32) bool {
	return r.DistSqToPoint(c) <= radius*radius
}

// InsideCircle reports whether r lies entirely within the circle at c.
// Tests the farthest corner against the radius.
func (r Rect) InsideCircle(c Vec2, radius float32) bool {
	dx := c.X - r.MinX
	if d := r.MaxX - c.X; d > dx {
		dx = d
	}
	dy := c.Y - r.MinY
	if d := r.MaxY - c.Y; d > dy {
		dy = d
	}
	return dx*dx+dy*dy <= radius*radius
}

// SegmentIntersection clips the segment a..b against r using the slab
// method and returns the fraction along the segment where it first enters
// the rect. The segment is considered only up to fraction tMax. Returns
// false if the segment misses the rect entirely within [0, tMax].
func (r Rect) SegmentIntersection(a, b Vec2, tMax float32) (float32, bool) {
	if tMax <= 0 {
		return 0, false
	}
	tMin := float32(0)
	tHi := tMax

	d := b.Sub(a)

	// X slab
	if d.X == 0 {
		if a.X < r.MinX || a.X >= r.MaxX {
			return 0, false
		}
	} else {
		t1 := (r.MinX - a.X) / d.X
		t2 := (r.MaxX - a.X) / d.X
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tHi {
			tHi = t2
		}
		if tMin > tHi {
			return 0, false
		}
	}

	// Y slab
	if d.Y == 0 {
		if a.Y < r.MinY || a.Y >= r.MaxY {
			return 0, false
		}
	} else {
		t1 := (r.MinY - a.Y) / d.Y
		t2 := (r.MaxY - a.Y) / d.Y
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tHi {
			tHi = t2
		}
		if tMin > tHi {
			return 0, false
		}
	}

	return tMin, true
}
