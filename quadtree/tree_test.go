package quadtree

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/reef/geom"
)

// bare returns options with no bounds margins so geometry is exact.
func bare(maxEntries int, minNode float32) Options {
	return Options{MaxEntries: maxEntries, MinNodeSize: minNode}
}

func mustNew(t *testing.T, opts Options) *Tree[int] {
	t.Helper()
	tree, err := New[int](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tree
}

func TestNewInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero max entries", Options{MaxEntries: 0, MinNodeSize: 16}},
		{"negative max entries", Options{MaxEntries: -1, MinNodeSize: 16}},
		{"zero min node size", Options{MaxEntries: 8, MinNodeSize: 0}},
		{"negative inflation", Options{MaxEntries: 8, MinNodeSize: 16, BoundsInflation: -1}},
		{"negative motion scale", Options{MaxEntries: 8, MinNodeSize: 16, MotionScale: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New[int](tt.opts); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New(%+v) err = %v, want ErrInvalidConfig", tt.opts, err)
			}
		})
	}
}

func TestNonFiniteBoundsRejected(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	if err := tree.Add(geom.Rect{MinX: nan, MinY: 0, MaxX: 1, MaxY: 1}, 1); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("Add NaN err = %v, want ErrInvalidBounds", err)
	}
	if err := tree.AddPoint(geom.Vec2{X: inf, Y: 0}, 2); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("Add inf err = %v, want ErrInvalidBounds", err)
	}
	if tree.Count() != 0 {
		t.Fatalf("Count = %d after rejected adds, want 0", tree.Count())
	}

	if err := tree.AddPoint(geom.Vec2{X: 5, Y: 5}, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.UpdatePoint(geom.Vec2{X: inf, Y: 5}, geom.Vec2{}, 3); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("Update inf err = %v, want ErrInvalidBounds", err)
	}
	// The entry keeps its old bounds and stays findable
	b, err := tree.BoundsOf(3)
	if err != nil {
		t.Fatal(err)
	}
	if !b.ContainsPoint(geom.Vec2{X: 5, Y: 5}) {
		t.Errorf("stored bounds %+v no longer cover the old position", b)
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	tree := mustNew(t, bare(4, 16))

	pts := []geom.Vec2{{X: 1, Y: 1}, {X: 5, Y: 5}, {X: 12, Y: 3}, {X: 3, Y: 12}}
	for i, p := range pts {
		if err := tree.AddPoint(p, i); err != nil {
			t.Fatalf("AddPoint(%v): %v", p, err)
		}
	}
	if tree.Count() != len(pts) {
		t.Fatalf("Count = %d, want %d", tree.Count(), len(pts))
	}
	for i, p := range pts {
		if !tree.Contains(i) {
			t.Errorf("Contains(%d) = false", i)
		}
		b, err := tree.BoundsOf(i)
		if err != nil {
			t.Fatalf("BoundsOf(%d): %v", i, err)
		}
		if !b.ContainsPoint(p) {
			t.Errorf("stored bounds %+v do not cover %v", b, p)
		}
	}

	for i := range pts {
		if !tree.Remove(i) {
			t.Errorf("Remove(%d) = false", i)
		}
	}
	if tree.Count() != 0 {
		t.Errorf("Count after removal = %d", tree.Count())
	}
	if _, err := tree.BoundsOf(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("BoundsOf on empty = %v, want ErrNotFound", err)
	}
}

func TestAddDuplicate(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	if err := tree.AddPoint(geom.Vec2{X: 1, Y: 1}, 7); err != nil {
		t.Fatal(err)
	}
	err := tree.AddPoint(geom.Vec2{X: 2, Y: 2}, 7)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate add err = %v, want ErrDuplicate", err)
	}
	if tree.Count() != 1 {
		t.Errorf("Count = %d after rejected add", tree.Count())
	}
}

func TestRemoveMissing(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	if tree.Remove(99) {
		t.Error("Remove of absent value returned true")
	}
}

func TestUpdateNotFound(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	_, err := tree.UpdatePoint(geom.Vec2{X: 1, Y: 1}, geom.Vec2{}, 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update of absent value err = %v, want ErrNotFound", err)
	}
}

func TestRegionResetOnEmpty(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	tree.AddPoint(geom.Vec2{X: 500, Y: 500}, 0)
	grown := tree.Region()
	if grown.Width() <= 16 {
		t.Fatalf("region did not grow: %+v", grown)
	}
	tree.Remove(0)
	if got := tree.Region(); got.Width() != 16 {
		t.Errorf("region after last removal = %+v, want minimum size", got)
	}
}

func TestGrowthCoversFarPoint(t *testing.T) {
	tree := mustNew(t, bare(4, 16))

	near := []geom.Vec2{{X: 1, Y: 1}, {X: 2, Y: 3}, {X: 14, Y: 14}}
	for i, p := range near {
		if err := tree.AddPoint(p, i); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.AddPoint(geom.Vec2{X: 10000, Y: 10000}, 100); err != nil {
		t.Fatal(err)
	}

	region := tree.Region()
	if !region.ContainsPoint(geom.Vec2{X: 10000, Y: 10000}) {
		t.Fatalf("region %+v does not cover far point", region)
	}
	for _, p := range near {
		if !region.ContainsPoint(p) {
			t.Fatalf("region %+v lost near point %v", region, p)
		}
	}

	// All entries still findable after the region doublings
	found := make(map[int]struct{})
	tree.FindRect(region, found)
	if len(found) != 4 {
		t.Errorf("found %d of 4 after growth", len(found))
	}
}

func TestGrowthNegativeCoords(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	tree.AddPoint(geom.Vec2{X: 5, Y: 5}, 0)
	if err := tree.AddPoint(geom.Vec2{X: -300, Y: -40}, 1); err != nil {
		t.Fatal(err)
	}

	region := tree.Region()
	if !region.ContainsPoint(geom.Vec2{X: -300, Y: -40}) {
		t.Fatalf("region %+v does not cover negative point", region)
	}

	found := make(map[int]struct{})
	tree.FindRect(region, found)
	if len(found) != 2 {
		t.Errorf("found %d of 2", len(found))
	}
}

func TestEmptyTreeGrowthMovesBounds(t *testing.T) {
	tree := mustNew(t, bare(4, 16))
	// First add is far away; the empty tree should relocate rather than
	// stack wrapper levels.
	if err := tree.AddPoint(geom.Vec2{X: -1000, Y: 2000}, 0); err != nil {
		t.Fatal(err)
	}
	if tree.root.isLeaf() == false {
		t.Error("single-entry tree should be a lone leaf")
	}
	if !tree.Region().ContainsPoint(geom.Vec2{X: -1000, Y: 2000}) {
		t.Errorf("region %+v does not cover the point", tree.Region())
	}
}

func TestSplitDistributesEntries(t *testing.T) {
	tree := mustNew(t, bare(2, 16))

	// Spread points across what will become a 64-unit region
	pts := []geom.Vec2{{X: 2, Y: 2}, {X: 40, Y: 6}, {X: 6, Y: 40}, {X: 44, Y: 44}, {X: 60, Y: 60}, {X: 10, Y: 10}, {X: 50, Y: 10}}
	for i, p := range pts {
		if err := tree.AddPoint(p, i); err != nil {
			t.Fatal(err)
		}
	}

	if tree.root.isLeaf() {
		t.Error("root should have split")
	}
	// No leaf holds more than the bucket unless it is at minimum size
	var walk func(n *node[int])
	walk = func(n *node[int]) {
		if n.isLeaf() && n.localCount() > 2 && n.bounds.Width() > 16 {
			t.Errorf("unsplit leaf %+v holds %d entries", n.bounds, n.localCount())
		}
		for _, c := range n.children {
			if c != nil {
				walk(c)
			}
		}
	}
	walk(tree.root)

	found := make(map[int]struct{})
	tree.FindRect(tree.Region(), found)
	if len(found) != len(pts) {
		t.Errorf("found %d of %d after split", len(found), len(pts))
	}
}

func TestMinSizeNodeNeverSplits(t *testing.T) {
	tree := mustNew(t, bare(1, 16))
	// All points inside the minimum 16-unit region: bucket overflows but
	// the region cannot be halved
	for i := 0; i < 10; i++ {
		p := geom.Vec2{X: float32(i), Y: float32(i)}
		if err := tree.AddPoint(p, i); err != nil {
			t.Fatal(err)
		}
	}
	if !tree.root.isLeaf() {
		t.Error("minimum-size root should not split")
	}
	if tree.root.localCount() != 10 {
		t.Errorf("localCount = %d, want 10", tree.root.localCount())
	}
}

func TestStraddlingEntriesStayLocal(t *testing.T) {
	tree := mustNew(t, bare(2, 16))
	// Grow the region to 64 first
	tree.AddPoint(geom.Vec2{X: 60, Y: 60}, 1000)

	// Rects crossing the region center can never descend
	c := tree.Region().Center()
	for i := 0; i < 6; i++ {
		b := geom.RectFromCenter(c, float32(i+1), float32(i+1))
		if err := tree.Add(b, i); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 6; i++ {
		e := tree.entries[i]
		if e.owner != tree.root {
			t.Errorf("straddling entry %d owned by %+v, want root", i, e.owner.bounds)
		}
	}
}

func TestRemovalCollapses(t *testing.T) {
	tree := mustNew(t, bare(2, 16))
	pts := []geom.Vec2{{X: 2, Y: 2}, {X: 40, Y: 6}, {X: 6, Y: 40}, {X: 44, Y: 44}, {X: 60, Y: 60}, {X: 10, Y: 10}}
	for i, p := range pts {
		if err := tree.AddPoint(p, i); err != nil {
			t.Fatal(err)
		}
	}
	if tree.root.isLeaf() {
		t.Fatal("expected a split tree")
	}

	// Drop to bucket size; the root should fold its children back in
	for i := 2; i < len(pts); i++ {
		tree.Remove(i)
	}
	if !tree.root.isLeaf() {
		t.Error("root did not collapse at bucket size")
	}
	if tree.Count() != 2 {
		t.Errorf("Count = %d, want 2", tree.Count())
	}

	found := make(map[int]struct{})
	tree.FindRect(tree.Region(), found)
	if len(found) != 2 {
		t.Errorf("found %d of 2 after collapse", len(found))
	}
}

func TestUpdateCheapPath(t *testing.T) {
	tree := mustNew(t, Options{MaxEntries: 4, MinNodeSize: 16, BoundsInflation: 2})
	if err := tree.AddPoint(geom.Vec2{X: 8, Y: 8}, 0); err != nil {
		t.Fatal(err)
	}

	// Inside the inflated bounds: no index change
	moved, err := tree.UpdatePoint(geom.Vec2{X: 8.5, Y: 8.5}, geom.Vec2{X: 0.5, Y: 0.5}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if moved {
		t.Error("jitter inside margin reported as a move")
	}

	// Past the margin: the index must change
	moved, err = tree.UpdatePoint(geom.Vec2{X: 14, Y: 8}, geom.Vec2{X: 5.5, Y: -0.5}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !moved {
		t.Error("move past margin not reported")
	}
	b, _ := tree.BoundsOf(0)
	if !b.ContainsPoint(geom.Vec2{X: 14, Y: 8}) {
		t.Errorf("stored bounds %+v do not cover new position", b)
	}
}

func TestUpdateMotionPrediction(t *testing.T) {
	tree := mustNew(t, Options{MaxEntries: 4, MinNodeSize: 16, BoundsInflation: 1, MotionScale: 3})
	tree.AddPoint(geom.Vec2{X: 8, Y: 8}, 0)

	// Move right; predictive extension should stretch the stored bounds
	// further right than left
	if _, err := tree.UpdatePoint(geom.Vec2{X: 12, Y: 8}, geom.Vec2{X: 4, Y: 0}, 0); err != nil {
		t.Fatal(err)
	}
	b, _ := tree.BoundsOf(0)
	rightSlack := b.MaxX - 12
	leftSlack := 12 - b.MinX
	if rightSlack <= leftSlack {
		t.Errorf("bounds %+v not extended along travel direction", b)
	}

	// The very next small step in the same direction should be free
	moved, err := tree.UpdatePoint(geom.Vec2{X: 13, Y: 8}, geom.Vec2{X: 1, Y: 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if moved {
		t.Error("step inside predicted bounds reported as a move")
	}
}

func TestUpdateAcrossQuadrants(t *testing.T) {
	tree := mustNew(t, bare(2, 16))
	pts := []geom.Vec2{{X: 2, Y: 2}, {X: 40, Y: 6}, {X: 6, Y: 40}, {X: 44, Y: 44}, {X: 60, Y: 60}, {X: 10, Y: 10}}
	for i, p := range pts {
		tree.AddPoint(p, i)
	}

	// Walk value 0 across the whole region
	for x := float32(2); x < 64; x += 4 {
		if _, err := tree.UpdatePoint(geom.Vec2{X: x, Y: 33}, geom.Vec2{X: 4, Y: 0}, 0); err != nil {
			t.Fatalf("update at x=%g: %v", x, err)
		}
	}
	if tree.Count() != len(pts) {
		t.Errorf("Count = %d, want %d", tree.Count(), len(pts))
	}
	b, _ := tree.BoundsOf(0)
	if !b.ContainsPoint(geom.Vec2{X: 62, Y: 33}) {
		t.Errorf("final bounds %+v do not cover final position", b)
	}
}

func TestClear(t *testing.T) {
	tree := mustNew(t, bare(2, 16))
	for i := 0; i < 20; i++ {
		tree.AddPoint(geom.Vec2{X: float32(i * 7), Y: float32(i * 3)}, i)
	}
	tree.Clear()
	if tree.Count() != 0 {
		t.Errorf("Count = %d after Clear", tree.Count())
	}
	if tree.Region().Width() != 16 {
		t.Errorf("region after Clear = %+v", tree.Region())
	}
	if tree.Contains(3) {
		t.Error("Contains(3) after Clear")
	}
	// Reusable after Clear
	if err := tree.AddPoint(geom.Vec2{X: 1, Y: 1}, 3); err != nil {
		t.Fatal(err)
	}
}
