package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/reef/components"
	"github.com/pthm-cable/reef/geom"
)

// VisionSystem casts a forward ray for each sighted entity and records
// the nearest thing it hits. The ray query narrows as closer hits are
// found, so dense scenes stay cheap.
type VisionSystem struct {
	filter ecs.Filter4[components.Position, components.Velocity, components.Vision, components.Indexable]
	index  *SpatialIndexSystem

	rayRange float32
}

// NewVisionSystem creates a vision system backed by the given index.
func NewVisionSystem(w *ecs.World, index *SpatialIndexSystem, rayRange float32) *VisionSystem {
	return &VisionSystem{
		filter:   *ecs.NewFilter4[components.Position, components.Velocity, components.Vision, components.Indexable](w),
		index:    index,
		rayRange: rayRange,
	}
}

// Update casts one ray per entity along its direction of travel.
func (s *VisionSystem) Update() {
	query := s.filter.Query()
	for query.Next() {
		pos, vel, vis, idx := query.Get()

		heading := vis.Heading
		if vel.X != 0 || vel.Y != 0 {
			heading = float32(math.Atan2(float64(vel.Y), float64(vel.X)))
		}
		vis.Heading = heading

		from := geom.Vec2{X: pos.X, Y: pos.Y}
		to := geom.Vec2{
			X: pos.X + float32(math.Cos(float64(heading)))*s.rayRange,
			Y: pos.Y + float32(math.Sin(float64(heading)))*s.rayRange,
		}

		if id, frac, ok := s.index.Raycast(idx.Group, from, to, idx.ID); ok {
			vis.HitID = id
			vis.HitFrac = frac
		} else {
			vis.HitID = 0
			vis.HitFrac = 1
		}
	}
}
