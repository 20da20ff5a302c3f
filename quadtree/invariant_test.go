package quadtree

import (
	"math/rand"
	"testing"

	"github.com/pthm-cable/reef/geom"
)

// checkInvariants verifies the structural invariants the tree relies on:
// counts, segment endpoints, global list integrity, and the
// depth-first contiguity of every node's entry run.
func checkInvariants(t *testing.T, tree *Tree[int]) {
	t.Helper()

	// The global list must be one chain whose length matches the map.
	head := tree.root.totalFirst()
	seen := 0
	for e := head; e != nil; e = e.next {
		seen++
		if e.next != nil && e.next.prev != e {
			t.Fatal("broken prev link in global list")
		}
		if e.owner == nil {
			t.Fatal("entry with nil owner in global list")
		}
		if seen > len(tree.entries) {
			t.Fatal("global list longer than entry map (cycle?)")
		}
	}
	if seen != len(tree.entries) {
		t.Fatalf("global list has %d entries, map has %d", seen, len(tree.entries))
	}
	if tree.root.count != len(tree.entries) {
		t.Fatalf("root count %d, map has %d", tree.root.count, len(tree.entries))
	}

	// Walking nodes depth-first, locals before children, must reproduce
	// the global list exactly.
	cursor := head
	var verify func(n *node[int]) (first, last *entry[int])
	verify = func(n *node[int]) (first, last *entry[int]) {
		localSeen := 0
		for e := n.firstLocal; e != nil; e = e.next {
			if e != cursor {
				t.Fatalf("local run of %+v out of global order", n.bounds)
			}
			if e.owner != n {
				t.Fatalf("entry in local run of %+v owned elsewhere", n.bounds)
			}
			cursor = cursor.next
			localSeen++
			if first == nil {
				first = e
			}
			last = e
			if e == n.lastLocal {
				break
			}
		}
		if localSeen != n.localCount() {
			t.Fatalf("node %+v localCount %d, walked %d", n.bounds, n.localCount(), localSeen)
		}
		if (n.firstLocal == nil) != (n.lastLocal == nil) {
			t.Fatalf("node %+v has mismatched local endpoints", n.bounds)
		}

		var childFirst, childLast *entry[int]
		childCount := 0
		for _, c := range n.children {
			if c == nil {
				continue
			}
			if c.parent != n {
				t.Fatalf("child of %+v has wrong parent", n.bounds)
			}
			cf, cl := verify(c)
			if cf != nil {
				if childFirst == nil {
					childFirst = cf
				}
				childLast = cl
			}
			childCount += c.count
		}
		if n.firstChild != childFirst || n.lastChild != childLast {
			t.Fatalf("node %+v child segment endpoints stale", n.bounds)
		}
		if n.count != localSeen+childCount {
			t.Fatalf("node %+v count %d, want %d", n.bounds, n.count, localSeen+childCount)
		}
		if first == nil {
			first = childFirst
		}
		if childLast != nil {
			last = childLast
		}
		return first, last
	}
	first, last := verify(tree.root)
	if cursor != nil {
		t.Fatal("global list extends past the node walk")
	}
	if first != tree.root.totalFirst() || last != tree.root.totalLast() {
		t.Fatal("root segment endpoints stale")
	}

	// Entries below the root must fit their owner's region.
	for v, e := range tree.entries {
		if e.owner != tree.root && !e.owner.bounds.ContainsRect(e.bounds) {
			t.Fatalf("entry %d bounds %+v escape owner %+v", v, e.bounds, e.owner.bounds)
		}
	}
}

func TestInvariantsAfterBasicOps(t *testing.T) {
	tree := mustNew(t, bare(2, 16))
	checkInvariants(t, tree)

	pts := []geom.Vec2{{X: 2, Y: 2}, {X: 40, Y: 6}, {X: 6, Y: 40}, {X: 44, Y: 44}, {X: 60, Y: 60}, {X: 10, Y: 10}, {X: 50, Y: 10}}
	for i, p := range pts {
		if err := tree.AddPoint(p, i); err != nil {
			t.Fatal(err)
		}
		checkInvariants(t, tree)
	}
	for i := range pts {
		if _, err := tree.UpdatePoint(geom.Vec2{X: pts[i].X + 8, Y: pts[i].Y}, geom.Vec2{X: 8, Y: 0}, i); err != nil {
			t.Fatal(err)
		}
		checkInvariants(t, tree)
	}
	for i := range pts {
		tree.Remove(i)
		checkInvariants(t, tree)
	}
}

func TestInvariantsRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	tree := mustNew(t, Options{MaxEntries: 4, MinNodeSize: 16, BoundsInflation: 0.5, MotionScale: 2})

	type live struct {
		pos  geom.Vec2
		half float32
	}
	values := make(map[int]*live)
	var active []int
	nextVal := 0

	pick := func() (int, int) {
		i := rng.Intn(len(active))
		return active[i], i
	}

	randPos := func() geom.Vec2 {
		return geom.Vec2{
			X: (rng.Float32() - 0.25) * 800,
			Y: (rng.Float32() - 0.25) * 800,
		}
	}

	const ops = 3000
	for op := 0; op < ops; op++ {
		switch r := rng.Float32(); {
		case r < 0.35 || len(values) == 0:
			v := nextVal
			nextVal++
			l := &live{pos: randPos(), half: rng.Float32() * 6}
			if err := tree.Add(geom.RectFromCenter(l.pos, l.half, l.half), v); err != nil {
				t.Fatalf("op %d: Add: %v", op, err)
			}
			values[v] = l
			active = append(active, v)
		case r < 0.8:
			v, _ := pick()
			l := values[v]
			delta := geom.Vec2{X: (rng.Float32() - 0.5) * 40, Y: (rng.Float32() - 0.5) * 40}
			l.pos = l.pos.Add(delta)
			if _, err := tree.Update(geom.RectFromCenter(l.pos, l.half, l.half), delta, v); err != nil {
				t.Fatalf("op %d: Update: %v", op, err)
			}
		default:
			v, i := pick()
			if !tree.Remove(v) {
				t.Fatalf("op %d: Remove(%d) = false", op, v)
			}
			delete(values, v)
			active[i] = active[len(active)-1]
			active = active[:len(active)-1]
		}

		if op%100 == 0 {
			checkInvariants(t, tree)
		}
	}
	checkInvariants(t, tree)

	if tree.Count() != len(values) {
		t.Fatalf("Count = %d, want %d", tree.Count(), len(values))
	}

	// Every query result must agree with a brute-force scan of the
	// stored bounds.
	for trial := 0; trial < 20; trial++ {
		q := geom.RectFromCenter(randPos(), 50+rng.Float32()*100, 50+rng.Float32()*100)
		got := make(map[int]struct{})
		tree.FindRect(q, got)

		for v := range values {
			b, err := tree.BoundsOf(v)
			if err != nil {
				t.Fatal(err)
			}
			_, in := got[v]
			if want := q.Intersects(b); want != in {
				t.Errorf("trial %d: value %d bounds %+v vs query %+v: got %v, want %v",
					trial, v, b, q, in, want)
			}
		}
	}
}
