package main

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pthm-cable/reef/geom"
	"github.com/pthm-cable/reef/quadtree"
)

// FitnessEvaluator runs synthetic churn workloads against the index and
// scores parameter vectors by wall time.
type FitnessEvaluator struct {
	params   *ParamVector
	ticks    int
	entities int
	seeds    []int64

	worldW, worldH float32
	maxSpeed       float32
	dt             float32

	mu            sync.Mutex
	lastRelocRate float64 // relocations per update in the last evaluation
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks, entities int, seeds []int64, worldW, worldH float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:   params,
		ticks:    ticks,
		entities: entities,
		seeds:    seeds,
		worldW:   float32(worldW),
		worldH:   float32(worldH),
		maxSpeed: 80,
		dt:       1.0 / 60.0,
	}
}

// LastRelocRate returns the relocation rate from the most recent evaluation.
func (fe *FitnessEvaluator) LastRelocRate() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastRelocRate
}

type workloadEntity struct {
	x, y   float32
	vx, vy float32
	half   float32
}

// Evaluate scores a raw parameter vector. Lower is better: the score is
// the average wall time in microseconds per tick of a moving-entities
// workload with interleaved radius queries, averaged over all seeds.
func (fe *FitnessEvaluator) Evaluate(raw []float64) float64 {
	clamped := fe.params.Clamp(raw)
	opts := quadtree.Options{
		MaxEntries:      int(clamped[0]),
		MinNodeSize:     float32(clamped[1]),
		BoundsInflation: float32(clamped[2]),
		MotionScale:     float32(clamped[3]),
	}

	var total time.Duration
	var relocs, updates int
	for _, seed := range fe.seeds {
		d, r, u := fe.runWorkload(opts, seed)
		total += d
		relocs += r
		updates += u
	}

	fe.mu.Lock()
	if updates > 0 {
		fe.lastRelocRate = float64(relocs) / float64(updates)
	}
	fe.mu.Unlock()

	perTick := float64(total.Microseconds()) / float64(fe.ticks*len(fe.seeds))
	if math.IsNaN(perTick) || math.IsInf(perTick, 0) {
		return math.Inf(1)
	}
	return perTick
}

// runWorkload moves N entities through the index for the configured
// number of ticks, querying a sample of them each tick. Returns elapsed
// wall time plus relocation and update counts.
func (fe *FitnessEvaluator) runWorkload(opts quadtree.Options, seed int64) (time.Duration, int, int) {
	rng := rand.New(rand.NewSource(seed))

	ents := make([]workloadEntity, fe.entities)
	for i := range ents {
		heading := rng.Float64() * 2 * math.Pi
		speed := fe.maxSpeed * (0.3 + rng.Float32()*0.7)
		ents[i] = workloadEntity{
			x:    rng.Float32() * fe.worldW,
			y:    rng.Float32() * fe.worldH,
			vx:   float32(math.Cos(heading)) * speed,
			vy:   float32(math.Sin(heading)) * speed,
			half: 2 + rng.Float32()*4,
		}
	}

	tree, err := quadtree.New[int](opts)
	if err != nil {
		return time.Hour, 0, 0
	}

	relocs := 0
	updates := 0
	start := time.Now()
	for i := range ents {
		e := &ents[i]
		tree.Add(geom.RectFromCenter(geom.Vec2{X: e.x, Y: e.y}, e.half, e.half), i)
	}
	for tick := 0; tick < fe.ticks; tick++ {
		for i := range ents {
			e := &ents[i]
			dx := e.vx * fe.dt
			dy := e.vy * fe.dt
			e.x += dx
			e.y += dy
			if e.x < 0 {
				e.x, e.vx = -e.x, -e.vx
			} else if e.x > fe.worldW {
				e.x, e.vx = 2*fe.worldW-e.x, -e.vx
			}
			if e.y < 0 {
				e.y, e.vy = -e.y, -e.vy
			} else if e.y > fe.worldH {
				e.y, e.vy = 2*fe.worldH-e.y, -e.vy
			}

			moved, err := tree.Update(
				geom.RectFromCenter(geom.Vec2{X: e.x, Y: e.y}, e.half, e.half),
				geom.Vec2{X: dx, Y: dy}, i)
			if err != nil {
				return time.Hour, 0, 0
			}
			updates++
			if moved {
				relocs++
			}
		}

		// Query a sample of entities each tick so reads are mixed into
		// the churn.
		for i := 0; i < fe.entities/10; i++ {
			e := &ents[rng.Intn(fe.entities)]
			n := 0
			tree.FindCircleFunc(geom.Vec2{X: e.x, Y: e.y}, e.half*4, func(v int) bool {
				n++
				return n < 128
			})
		}
	}
	return time.Since(start), relocs, updates
}
