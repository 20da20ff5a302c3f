package sim

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/reef/components"
	"github.com/pthm-cable/reef/config"
	"github.com/pthm-cable/reef/packet"
	"github.com/pthm-cable/reef/quadtree"
	"github.com/pthm-cable/reef/telemetry"
)

func encodeID(w *packet.Writer, v uint32) {
	w.Uint32(v)
}

func decodeID(r *packet.Reader) (uint32, error) {
	v := r.Uint32()
	return v, r.Err()
}

// Snapshot captures the complete simulation state, including the
// serialized spatial indexes, for later restore or replay.
func (s *Sim) Snapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		RNGSeed:     s.opts.Seed,
		WorldWidth:  s.width,
		WorldHeight: s.height,
		Tick:        s.tick,
	}

	query := s.entityFilter.Query()
	for query.Next() {
		pos, vel, bounds, idx, vis := query.Get()
		snap.Entities = append(snap.Entities, telemetry.EntityState{
			ID:      idx.ID,
			Group:   idx.Group,
			X:       pos.X,
			Y:       pos.Y,
			VelX:    vel.X,
			VelY:    vel.Y,
			HalfW:   bounds.HalfW,
			HalfH:   bounds.HalfH,
			Heading: vis.Heading,
		})
	}

	for g := components.IndexGroup(0); g < components.NumGroups; g++ {
		tree := s.index.Tree(g)
		if tree.Count() == 0 {
			continue
		}
		w := packet.NewWriter(64 + tree.Count()*32)
		tree.Snapshot(w, encodeID)
		snap.TreeBlobs[g] = w.Bytes()
	}
	return snap
}

// SaveSnapshot writes the current state to the snapshot directory.
func (s *Sim) SaveSnapshot() (string, error) {
	if s.opts.SnapshotDir == "" {
		return "", fmt.Errorf("no snapshot directory configured")
	}
	return telemetry.SaveSnapshot(s.Snapshot(), s.opts.SnapshotDir)
}

// Restore replaces the simulation state with a snapshot. Existing
// entities are removed, the recorded ones respawned, and each group's
// index rebuilt from its serialized form. The restored trees carry
// their original node topology; the next index update re-links the new
// entity handles to their stable IDs without touching the structure.
func (s *Sim) Restore(snap *telemetry.Snapshot) error {
	var existing []ecs.Entity
	query := s.entityFilter.Query()
	for query.Next() {
		existing = append(existing, query.Entity())
	}
	for _, e := range existing {
		s.entityMapper.Remove(e)
	}

	s.tick = snap.Tick
	s.width = snap.WorldWidth
	s.height = snap.WorldHeight
	s.nextID = 0

	for i := range snap.Entities {
		st := &snap.Entities[i]
		if st.Group >= components.NumGroups {
			return fmt.Errorf("restore: entity %d has unknown group %d", st.ID, st.Group)
		}
		pos := components.Position{X: st.X, Y: st.Y}
		vel := components.Velocity{X: st.VelX, Y: st.VelY}
		bounds := components.Bounds{HalfW: st.HalfW, HalfH: st.HalfH}
		idx := components.Indexable{ID: st.ID, Group: st.Group}
		vis := components.Vision{HitFrac: 1, Heading: st.Heading}
		s.entityMapper.NewEntity(&pos, &vel, &bounds, &idx, &vis)
		if st.ID >= s.nextID {
			s.nextID = st.ID + 1
		}
	}

	for g := components.IndexGroup(0); g < components.NumGroups; g++ {
		blob := snap.TreeBlobs[g]
		if len(blob) == 0 {
			tree, err := quadtree.New[uint32](IndexOptions(config.Cfg()))
			if err != nil {
				return err
			}
			s.index.RestoreTree(g, tree)
			continue
		}
		tree, err := quadtree.Restore[uint32](packet.NewReader(blob), decodeID)
		if err != nil {
			return fmt.Errorf("restore: group %d index: %w", g, err)
		}
		s.index.RestoreTree(g, tree)
	}
	return nil
}
