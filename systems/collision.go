package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/reef/components"
)

// CollisionSystem pushes overlapping entities apart. It treats every
// entity as a circle with radius max(HalfW, HalfH) and applies a
// symmetric separation impulse to the velocity.
type CollisionSystem struct {
	filter ecs.Filter4[components.Position, components.Velocity, components.Bounds, components.Indexable]
	index  *SpatialIndexSystem

	separation float32

	// Reused across ticks to avoid allocations
	scratch []Neighbor

	// Contact count for the last tick, for telemetry
	contacts int
}

// NewCollisionSystem creates a collision system backed by the given index.
func NewCollisionSystem(w *ecs.World, index *SpatialIndexSystem, separation float32) *CollisionSystem {
	return &CollisionSystem{
		filter:     *ecs.NewFilter4[components.Position, components.Velocity, components.Bounds, components.Indexable](w),
		index:      index,
		separation: separation,
		scratch:    make([]Neighbor, 0, MaxQueryResults),
	}
}

// Contacts returns the number of overlapping pairs resolved last tick.
func (s *CollisionSystem) Contacts() int {
	return s.contacts
}

// Update resolves overlaps found by a radius query around each entity.
func (s *CollisionSystem) Update() {
	s.contacts = 0
	query := s.filter.Query()
	for query.Next() {
		pos, vel, bounds, idx := query.Get()

		radius := bounds.HalfW
		if bounds.HalfH > radius {
			radius = bounds.HalfH
		}

		s.scratch = s.index.QueryRadiusInto(s.scratch[:0], idx.Group, pos.X, pos.Y, radius*2, idx.ID)
		for _, nb := range s.scratch {
			// Assume the neighbor has a similar radius; exact pairwise
			// radii are not worth a component lookup here.
			minDist := radius * 2
			if nb.DistSq >= minDist*minDist {
				continue
			}
			s.contacts++

			dist := float32(math.Sqrt(float64(nb.DistSq)))
			var nx, ny float32
			if dist > 1e-6 {
				nx = nb.DX / dist
				ny = nb.DY / dist
			} else {
				// Coincident centers; pick an arbitrary axis
				nx, ny = 1, 0
			}
			push := (minDist - dist) * s.separation
			vel.X -= nx * push
			vel.Y -= ny * push
		}
	}
}
