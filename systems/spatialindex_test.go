package systems

import (
	"testing"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/reef/components"
	"github.com/pthm-cable/reef/geom"
	"github.com/pthm-cable/reef/packet"
	"github.com/pthm-cable/reef/quadtree"
)

type testWorld struct {
	world  *ecs.World
	mapper *ecs.Map3[components.Position, components.Bounds, components.Indexable]
	posMap *ecs.Map1[components.Position]
	sys    *SpatialIndexSystem
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	world := ecs.NewWorld()
	sys, err := NewSpatialIndexSystem(world, quadtree.DefaultOptions())
	if err != nil {
		t.Fatalf("NewSpatialIndexSystem: %v", err)
	}
	return &testWorld{
		world:  world,
		mapper: ecs.NewMap3[components.Position, components.Bounds, components.Indexable](world),
		posMap: ecs.NewMap1[components.Position](world),
		sys:    sys,
	}
}

func (tw *testWorld) spawn(id uint32, g components.IndexGroup, x, y float32) ecs.Entity {
	pos := components.Position{X: x, Y: y}
	bounds := components.Bounds{HalfW: 2, HalfH: 2}
	idx := components.Indexable{ID: id, Group: g}
	return tw.mapper.NewEntity(&pos, &bounds, &idx)
}

func TestIndexSyncAddMoveRemove(t *testing.T) {
	tw := newTestWorld(t)

	e1 := tw.spawn(1, components.GroupDefault, 10, 10)
	tw.spawn(2, components.GroupDefault, 50, 50)
	tw.spawn(3, components.GroupObstacle, 100, 100)

	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}
	if got := tw.sys.Count(components.GroupDefault); got != 2 {
		t.Errorf("default group count = %d, want 2", got)
	}
	if got := tw.sys.Count(components.GroupObstacle); got != 1 {
		t.Errorf("obstacle group count = %d, want 1", got)
	}
	adds, _, _, _ := tw.sys.TickOps()
	if adds != 3 {
		t.Errorf("adds = %d, want 3", adds)
	}

	// Move entity 1 far enough to relocate
	p := tw.posMap.Get(e1)
	p.X, p.Y = 200, 200
	tw.sys.ClearChanged(components.GroupDefault)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}
	changed := tw.sys.Changed(components.GroupDefault)
	if _, ok := changed[1]; !ok {
		t.Error("moved entity not in changed set")
	}
	if _, ok := changed[2]; ok {
		t.Error("stationary entity in changed set")
	}
	_, updates, relocs, _ := tw.sys.TickOps()
	if updates != 2 {
		t.Errorf("updates = %d, want 2", updates)
	}
	if relocs != 1 {
		t.Errorf("relocs = %d, want 1", relocs)
	}

	// Despawn entity 1; the sweep should drop it from the index
	tw.mapper.Remove(e1)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}
	if got := tw.sys.Count(components.GroupDefault); got != 1 {
		t.Errorf("count after despawn = %d, want 1", got)
	}
	_, _, _, removes := tw.sys.TickOps()
	if removes != 1 {
		t.Errorf("removes = %d, want 1", removes)
	}
	if _, ok := tw.sys.Entity(1); ok {
		t.Error("despawned id still resolves")
	}
}

func TestJitterDoesNotChurn(t *testing.T) {
	tw := newTestWorld(t)
	e := tw.spawn(1, components.GroupDefault, 10, 10)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}
	tw.sys.ClearChanged(components.GroupDefault)

	// Tiny wiggle inside the inflation margin
	p := tw.posMap.Get(e)
	p.X += 0.1
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}
	if len(tw.sys.Changed(components.GroupDefault)) != 0 {
		t.Error("sub-margin jitter produced a change")
	}
	_, updates, relocs, _ := tw.sys.TickOps()
	if updates != 1 || relocs != 0 {
		t.Errorf("updates=%d relocs=%d, want 1/0", updates, relocs)
	}
}

func TestQueryRadius(t *testing.T) {
	tw := newTestWorld(t)
	tw.spawn(1, components.GroupDefault, 0, 0)
	tw.spawn(2, components.GroupDefault, 10, 0)
	tw.spawn(3, components.GroupDefault, 100, 0)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}

	got := tw.sys.QueryRadiusInto(nil, components.GroupDefault, 0, 0, 20, 1)
	if len(got) != 1 {
		t.Fatalf("got %d neighbors, want 1", len(got))
	}
	nb := got[0]
	if nb.ID != 2 {
		t.Errorf("neighbor ID = %d, want 2", nb.ID)
	}
	if nb.DX != 10 || nb.DY != 0 {
		t.Errorf("neighbor delta = (%g, %g), want (10, 0)", nb.DX, nb.DY)
	}
	if nb.DistSq != 100 {
		t.Errorf("neighbor DistSq = %g, want 100", nb.DistSq)
	}
}

func TestQueryRect(t *testing.T) {
	tw := newTestWorld(t)
	tw.spawn(1, components.GroupDefault, 5, 5)
	tw.spawn(2, components.GroupDefault, 50, 50)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}

	out := make(map[uint32]struct{})
	tw.sys.QueryRect(components.GroupDefault, geom.Rect{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20}, out)
	if _, ok := out[1]; !ok {
		t.Error("entity 1 missing from rect query")
	}
	if _, ok := out[2]; ok {
		t.Error("entity 2 outside rect returned")
	}
}

func TestRaycastNearestHit(t *testing.T) {
	tw := newTestWorld(t)
	tw.spawn(1, components.GroupDefault, 0, 0)
	tw.spawn(2, components.GroupDefault, 100, 0)
	tw.spawn(3, components.GroupDefault, 150, 0)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}

	id, frac, ok := tw.sys.Raycast(components.GroupDefault,
		geom.Vec2{X: 0, Y: 0}, geom.Vec2{X: 200, Y: 0}, 1)
	if !ok {
		t.Fatal("ray missed")
	}
	if id != 2 {
		t.Errorf("hit id = %d, want nearest (2)", id)
	}
	// Entity 2's stored bounds start at x = 100 - 2 - inflation
	if frac <= 0.4 || frac >= 0.5 {
		t.Errorf("hit fraction = %g, want just under 0.5", frac)
	}

	// A ray pointing away finds nothing
	if _, _, ok := tw.sys.Raycast(components.GroupDefault,
		geom.Vec2{X: 0, Y: 50}, geom.Vec2{X: 0, Y: 200}, 1); ok {
		t.Error("ray through empty space reported a hit")
	}
}

func TestQueryObserver(t *testing.T) {
	tw := newTestWorld(t)
	tw.spawn(1, components.GroupDefault, 0, 0)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}

	samples := 0
	tw.sys.SetQueryObserver(func(time.Duration) { samples++ })

	tw.sys.QueryRadiusInto(nil, components.GroupDefault, 0, 0, 10, 99)
	tw.sys.QueryRect(components.GroupDefault, geom.Rect{MaxX: 10, MaxY: 10}, make(map[uint32]struct{}))
	tw.sys.Raycast(components.GroupDefault, geom.Vec2{}, geom.Vec2{X: 10}, 99)
	if samples != 3 {
		t.Errorf("observer saw %d queries, want 3", samples)
	}
}

func TestRestoreTreeReattaches(t *testing.T) {
	tw := newTestWorld(t)
	tw.spawn(1, components.GroupDefault, 10, 10)
	tw.spawn(2, components.GroupDefault, 60, 60)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}

	// Serialize the group's tree and restore it into a fresh system,
	// simulating resume from a saved state
	w := packet.NewWriter(256)
	tw.sys.Tree(components.GroupDefault).Snapshot(w, func(pw *packet.Writer, v uint32) {
		pw.Uint32(v)
	})
	restored, err := quadtree.Restore[uint32](packet.NewReader(w.Bytes()),
		func(r *packet.Reader) (uint32, error) { return r.Uint32(), r.Err() })
	if err != nil {
		t.Fatal(err)
	}

	tw.sys.RestoreTree(components.GroupDefault, restored)
	if err := tw.sys.Update(); err != nil {
		t.Fatal(err)
	}
	// No duplicate adds: both IDs were already in the restored tree
	if got := tw.sys.Count(components.GroupDefault); got != 2 {
		t.Errorf("count after restore = %d, want 2", got)
	}
	adds, updates, _, _ := tw.sys.TickOps()
	if adds != 0 {
		t.Errorf("adds after restore = %d, want 0 (re-attach)", adds)
	}
	if updates != 2 {
		t.Errorf("updates after restore = %d, want 2", updates)
	}
}
