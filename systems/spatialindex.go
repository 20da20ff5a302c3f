// Package systems provides ECS systems for the simulation.
package systems

import (
	"fmt"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/reef/components"
	"github.com/pthm-cable/reef/geom"
	"github.com/pthm-cable/reef/quadtree"
)

// Neighbor holds a nearby entity with precomputed spatial data.
// This avoids recomputing deltas and distances in consumer systems.
type Neighbor struct {
	E      ecs.Entity
	ID     uint32
	DX, DY float32 // Delta from query origin
	DistSq float32 // Squared distance (avoid sqrt in hot path)
}

// MaxQueryResults caps the number of neighbors returned by spatial queries.
// This prevents density spikes from causing unbounded work.
const MaxQueryResults = 128

type trackState struct {
	entity ecs.Entity
	group  components.IndexGroup
	x, y   float32 // position at last index update
	gen    uint32
}

// SpatialIndexSystem keeps one quadtree per index group in sync with the
// world and records which entries changed each tick for downstream
// systems to poll.
type SpatialIndexSystem struct {
	filter  ecs.Filter3[components.Position, components.Bounds, components.Indexable]
	trees   [components.NumGroups]*quadtree.Tree[uint32]
	tracked map[uint32]*trackState
	changed [components.NumGroups]map[uint32]struct{}
	gen     uint32

	// Per-tick mutation counters, reset at the top of Update
	opAdds, opUpdates, opRelocs, opRemoves int

	queryObs func(time.Duration)
}

// NewSpatialIndexSystem creates the index system with one tree per group.
func NewSpatialIndexSystem(w *ecs.World, opts quadtree.Options) (*SpatialIndexSystem, error) {
	s := &SpatialIndexSystem{
		filter:  *ecs.NewFilter3[components.Position, components.Bounds, components.Indexable](w),
		tracked: make(map[uint32]*trackState),
	}
	for g := range s.trees {
		t, err := quadtree.New[uint32](opts)
		if err != nil {
			return nil, fmt.Errorf("creating index for group %d: %w", g, err)
		}
		s.trees[g] = t
		s.changed[g] = make(map[uint32]struct{})
	}
	return s, nil
}

// Update synchronizes the trees with the world: new indexable entities
// are added, moved ones updated, and despawned ones removed.
func (s *SpatialIndexSystem) Update() error {
	s.gen++
	s.opAdds, s.opUpdates, s.opRelocs, s.opRemoves = 0, 0, 0, 0
	query := s.filter.Query()
	for query.Next() {
		pos, bounds, idx := query.Get()
		e := query.Entity()
		r := geom.RectFromCenter(geom.Vec2{X: pos.X, Y: pos.Y}, bounds.HalfW, bounds.HalfH)

		st, ok := s.tracked[idx.ID]
		if !ok {
			st = &trackState{entity: e, group: idx.Group, x: pos.X, y: pos.Y, gen: s.gen}
			s.tracked[idx.ID] = st
			if s.trees[idx.Group].Contains(idx.ID) {
				// Re-attach after a snapshot restore; fall through to
				// the update path with a zero delta.
			} else {
				if err := s.trees[idx.Group].Add(r, idx.ID); err != nil {
					return fmt.Errorf("indexing entity %d: %w", idx.ID, err)
				}
				s.opAdds++
				s.markChanged(idx.Group, idx.ID)
				continue
			}
		}
		st.gen = s.gen
		st.entity = e
		delta := geom.Vec2{X: pos.X - st.x, Y: pos.Y - st.y}
		st.x, st.y = pos.X, pos.Y
		moved, err := s.trees[st.group].Update(r, delta, idx.ID)
		if err != nil {
			return fmt.Errorf("updating entity %d: %w", idx.ID, err)
		}
		s.opUpdates++
		if moved {
			s.opRelocs++
			s.markChanged(st.group, idx.ID)
		}
	}

	// Sweep entries whose entity disappeared this tick.
	for id, st := range s.tracked {
		if st.gen != s.gen {
			s.trees[st.group].Remove(id)
			s.opRemoves++
			s.markChanged(st.group, id)
			delete(s.tracked, id)
		}
	}
	return nil
}

func (s *SpatialIndexSystem) markChanged(g components.IndexGroup, id uint32) {
	s.changed[g][id] = struct{}{}
}

// TickOps returns the mutation counts from the last Update.
func (s *SpatialIndexSystem) TickOps() (adds, updates, relocs, removes int) {
	return s.opAdds, s.opUpdates, s.opRelocs, s.opRemoves
}

// SetQueryObserver installs a callback that receives the duration of
// every spatial query. Used for latency telemetry; nil disables it.
func (s *SpatialIndexSystem) SetQueryObserver(fn func(time.Duration)) {
	s.queryObs = fn
}

// Changed returns the set of entries that changed since the last clear.
// The returned map is live; do not mutate it.
func (s *SpatialIndexSystem) Changed(g components.IndexGroup) map[uint32]struct{} {
	return s.changed[g]
}

// ClearChanged resets a group's changed set. Called once per frame after
// downstream systems have polled it.
func (s *SpatialIndexSystem) ClearChanged(g components.IndexGroup) {
	m := s.changed[g]
	for id := range m {
		delete(m, id)
	}
}

// Count returns the number of indexed entries in a group.
func (s *SpatialIndexSystem) Count(g components.IndexGroup) int {
	return s.trees[g].Count()
}

// Entity resolves a stable ID back to its entity handle.
func (s *SpatialIndexSystem) Entity(id uint32) (ecs.Entity, bool) {
	st, ok := s.tracked[id]
	if !ok {
		return ecs.Entity{}, false
	}
	return st.entity, true
}

// QueryRadiusInto finds entities within radius and appends to dst (up to
// MaxQueryResults). Returns the updated slice. Reuse dst across calls to
// avoid allocations.
func (s *SpatialIndexSystem) QueryRadiusInto(dst []Neighbor, g components.IndexGroup, x, y, radius float32, excludeID uint32) []Neighbor {
	start := s.queryStart()
	s.trees[g].FindCircleFunc(geom.Vec2{X: x, Y: y}, radius, func(id uint32) bool {
		if id == excludeID {
			return true
		}
		st, ok := s.tracked[id]
		if !ok {
			return true
		}
		dx := st.x - x
		dy := st.y - y
		dst = append(dst, Neighbor{E: st.entity, ID: id, DX: dx, DY: dy, DistSq: dx*dx + dy*dy})
		return len(dst) < MaxQueryResults
	})
	s.queryEnd(start)
	return dst
}

// QueryRect collects the IDs of entries overlapping r into out.
func (s *SpatialIndexSystem) QueryRect(g components.IndexGroup, r geom.Rect, out map[uint32]struct{}) {
	start := s.queryStart()
	s.trees[g].FindRect(r, out)
	s.queryEnd(start)
}

// Raycast returns the nearest entry hit by the segment from..to,
// excluding excludeID. The returned fraction is along the segment.
func (s *SpatialIndexSystem) Raycast(g components.IndexGroup, from, to geom.Vec2, excludeID uint32) (id uint32, frac float32, ok bool) {
	start := s.queryStart()
	defer func() { s.queryEnd(start) }()
	cur := float32(1)
	s.trees[g].FindLineFunc(from, to, 1, func(hit uint32, f float32) float32 {
		if hit == excludeID {
			return cur
		}
		if f < cur || !ok {
			cur = f
			id = hit
			frac = f
			ok = true
		}
		return cur
	})
	return id, frac, ok
}

func (s *SpatialIndexSystem) queryStart() time.Time {
	if s.queryObs == nil {
		return time.Time{}
	}
	return time.Now()
}

func (s *SpatialIndexSystem) queryEnd(start time.Time) {
	if s.queryObs != nil {
		s.queryObs(time.Since(start))
	}
}

// Tree exposes a group's tree for snapshotting.
func (s *SpatialIndexSystem) Tree(g components.IndexGroup) *quadtree.Tree[uint32] {
	return s.trees[g]
}

// RestoreTree replaces a group's tree, typically with one read back from
// a snapshot. Tracked state rebuilds on the next Update.
func (s *SpatialIndexSystem) RestoreTree(g components.IndexGroup, t *quadtree.Tree[uint32]) {
	s.trees[g] = t
	for id, st := range s.tracked {
		if st.group == g {
			delete(s.tracked, id)
		}
	}
}
