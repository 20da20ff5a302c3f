// Package sim runs the headless simulation that exercises the spatial
// index: entities move, collide, and cast sight rays every tick while
// the index tracks them.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/reef/components"
	"github.com/pthm-cable/reef/config"
	"github.com/pthm-cable/reef/quadtree"
	"github.com/pthm-cable/reef/systems"
	"github.com/pthm-cable/reef/telemetry"
)

// Options configures a simulation run.
type Options struct {
	Seed        int64
	OutputDir   string // CSV output directory; empty disables output
	SnapshotDir string // Snapshot directory; empty disables snapshots
	LogStats    bool   // Log window stats via slog
}

// Sim holds the complete simulation state.
type Sim struct {
	world *ecs.World
	rng   *rand.Rand

	entityMapper *ecs.Map5[
		components.Position,
		components.Velocity,
		components.Bounds,
		components.Indexable,
		components.Vision,
	]
	entityFilter *ecs.Filter5[
		components.Position,
		components.Velocity,
		components.Bounds,
		components.Indexable,
		components.Vision,
	]
	moveFilter *ecs.Filter2[components.Position, components.Velocity]

	// Systems
	index     *systems.SpatialIndexSystem
	collision *systems.CollisionSystem
	vision    *systems.VisionSystem
	registry  *systems.SystemRegistry

	// Telemetry
	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	output    *telemetry.OutputManager

	opts Options

	tick   int32
	nextID uint32

	// Window bookkeeping
	windowTicks int32

	width, height float32
}

// IndexOptions builds quadtree options from the loaded configuration.
func IndexOptions(cfg *config.Config) quadtree.Options {
	return quadtree.Options{
		MaxEntries:      cfg.Index.MaxEntriesPerNode,
		MinNodeSize:     float32(cfg.Index.MinNodeSize),
		BoundsInflation: float32(cfg.Index.BoundsInflation),
		MotionScale:     float32(cfg.Index.MotionScale),
	}
}

// New creates a simulation with the initial population spawned.
func New(opts Options) (*Sim, error) {
	cfg := config.Cfg()
	world := ecs.NewWorld()

	s := &Sim{
		world:  world,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		opts:   opts,
		width:  cfg.Derived.WorldW32,
		height: cfg.Derived.WorldH32,
		entityMapper: ecs.NewMap5[
			components.Position,
			components.Velocity,
			components.Bounds,
			components.Indexable,
			components.Vision,
		](world),
		entityFilter: ecs.NewFilter5[
			components.Position,
			components.Velocity,
			components.Bounds,
			components.Indexable,
			components.Vision,
		](world),
		moveFilter: ecs.NewFilter2[components.Position, components.Velocity](world),
		registry:   systems.NewSystemRegistry(),
	}

	index, err := systems.NewSpatialIndexSystem(world, IndexOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating spatial index: %w", err)
	}
	s.index = index

	if cfg.Collision.Enabled {
		s.collision = systems.NewCollisionSystem(world, index, float32(cfg.Collision.Separation))
	}
	if cfg.Vision.Enabled {
		s.vision = systems.NewVisionSystem(world, index, float32(cfg.Vision.Range))
	}

	s.windowTicks = int32(cfg.Telemetry.StatsWindow / cfg.World.DT)
	if s.windowTicks < 1 {
		s.windowTicks = 1
	}
	s.perf = telemetry.NewPerfCollector(int(s.windowTicks))
	s.collector = telemetry.NewCollector(cfg.Telemetry.LatencyCap)
	s.index.SetQueryObserver(s.collector.RecordQuery)

	out, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	s.output = out
	if err := s.output.WriteConfig(cfg); err != nil {
		return nil, err
	}

	for _, info := range s.registry.All() {
		if !s.systemEnabled(info.ID) {
			continue
		}
		slog.Debug("system", "id", info.ID, "name", info.Name, "category", info.Category)
	}

	s.spawnInitialPopulation(cfg.World.Population)
	return s, nil
}

// systemEnabled reports whether the named system runs this session.
func (s *Sim) systemEnabled(id string) bool {
	switch id {
	case telemetry.PhaseCollision:
		return s.collision != nil
	case telemetry.PhaseVision:
		return s.vision != nil
	}
	return true
}

// spawnInitialPopulation creates the starting entities. Roughly one in
// ten is a static obstacle; the rest wander.
func (s *Sim) spawnInitialPopulation(n int) {
	for i := 0; i < n; i++ {
		x := s.rng.Float32() * s.width
		y := s.rng.Float32() * s.height
		if i%10 == 0 {
			s.spawnObstacle(x, y)
		} else {
			heading := s.rng.Float32() * 2 * math.Pi
			s.spawnMover(x, y, heading)
		}
	}
}

// spawnMover creates a moving entity with a random size and heading.
func (s *Sim) spawnMover(x, y, heading float32) ecs.Entity {
	cfg := config.Cfg()
	id := s.nextID
	s.nextID++

	speed := float32(cfg.World.MaxSpeed) * (0.3 + s.rng.Float32()*0.7)
	half := 2 + s.rng.Float32()*4

	pos := components.Position{X: x, Y: y}
	vel := components.Velocity{
		X: float32(math.Cos(float64(heading))) * speed,
		Y: float32(math.Sin(float64(heading))) * speed,
	}
	bounds := components.Bounds{HalfW: half, HalfH: half}
	idx := components.Indexable{ID: id, Group: components.GroupDefault}
	vis := components.Vision{HitFrac: 1, Heading: heading}

	return s.entityMapper.NewEntity(&pos, &vel, &bounds, &idx, &vis)
}

// spawnObstacle creates a static entity in the obstacle group.
func (s *Sim) spawnObstacle(x, y float32) ecs.Entity {
	id := s.nextID
	s.nextID++

	half := 6 + s.rng.Float32()*10

	pos := components.Position{X: x, Y: y}
	vel := components.Velocity{}
	bounds := components.Bounds{HalfW: half, HalfH: half}
	idx := components.Indexable{ID: id, Group: components.GroupObstacle}
	vis := components.Vision{HitFrac: 1}

	return s.entityMapper.NewEntity(&pos, &vel, &bounds, &idx, &vis)
}

// Step runs a single simulation tick.
func (s *Sim) Step() error {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseSpatialIndex)
	if err := s.index.Update(); err != nil {
		return err
	}
	adds, updates, relocs, removes := s.index.TickOps()
	for i := 0; i < adds; i++ {
		s.collector.RecordAdd()
	}
	for i := 0; i < updates; i++ {
		s.collector.RecordUpdate(i < relocs)
	}
	for i := 0; i < removes; i++ {
		s.collector.RecordRemove()
	}

	s.perf.StartPhase(telemetry.PhaseMovement)
	s.updateMovement()

	if s.collision != nil {
		s.perf.StartPhase(telemetry.PhaseCollision)
		s.collision.Update()
	}

	if s.vision != nil {
		s.perf.StartPhase(telemetry.PhaseVision)
		s.vision.Update()
	}

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	for g := components.IndexGroup(0); g < components.NumGroups; g++ {
		s.index.ClearChanged(g)
	}
	s.tick++
	if s.tick%s.windowTicks == 0 {
		if err := s.flushWindow(); err != nil {
			return err
		}
	}
	s.perf.EndTick()
	return nil
}

// updateMovement integrates velocities and bounces entities off the
// world edges.
func (s *Sim) updateMovement() {
	cfg := config.Cfg()
	dt := cfg.Derived.DT32
	maxSpeed := float32(cfg.World.MaxSpeed)

	query := s.moveFilter.Query()
	for query.Next() {
		pos, vel := query.Get()

		speed := float32(math.Sqrt(float64(vel.X*vel.X + vel.Y*vel.Y)))
		if speed > maxSpeed {
			scale := maxSpeed / speed
			vel.X *= scale
			vel.Y *= scale
		}

		pos.X += vel.X * dt
		pos.Y += vel.Y * dt

		if pos.X < 0 {
			pos.X = -pos.X
			vel.X = -vel.X
		} else if pos.X > s.width {
			pos.X = 2*s.width - pos.X
			vel.X = -vel.X
		}
		if pos.Y < 0 {
			pos.Y = -pos.Y
			vel.Y = -vel.Y
		} else if pos.Y > s.height {
			pos.Y = 2*s.height - pos.Y
			vel.Y = -vel.Y
		}
	}
}

// flushWindow emits telemetry for the window that just closed.
func (s *Sim) flushWindow() error {
	cfg := config.Cfg()
	indexed := 0
	for g := components.IndexGroup(0); g < components.NumGroups; g++ {
		indexed += s.index.Count(g)
	}
	contacts := 0
	if s.collision != nil {
		contacts = s.collision.Contacts()
	}

	stats := s.collector.Flush(s.tick, float64(s.tick)*cfg.World.DT, indexed, contacts)
	perfStats := s.perf.Stats()

	if s.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}
	if err := s.output.WriteTelemetry(stats); err != nil {
		return err
	}
	if err := s.output.WritePerf(perfStats, s.tick); err != nil {
		return err
	}
	return nil
}

// Run steps the simulation for the given number of ticks.
func (s *Sim) Run(ticks int) error {
	for i := 0; i < ticks; i++ {
		if err := s.Step(); err != nil {
			return fmt.Errorf("tick %d: %w", s.tick, err)
		}
	}
	return nil
}

// Tick returns the current simulation tick.
func (s *Sim) Tick() int32 {
	return s.tick
}

// Index exposes the spatial index system.
func (s *Sim) Index() *systems.SpatialIndexSystem {
	return s.index
}

// Close flushes remaining telemetry and closes output files.
func (s *Sim) Close() error {
	if s.tick%s.windowTicks != 0 {
		if err := s.flushWindow(); err != nil {
			slog.Error("flushing final window", "error", err)
		}
	}
	return s.output.Close()
}
