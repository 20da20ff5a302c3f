// Package components defines ECS components for the simulation.
package components

// Position represents an entity's world position.
type Position struct {
	X, Y float32
}

// Velocity represents an entity's velocity.
type Velocity struct {
	X, Y float32
}

// Bounds holds an entity's axis-aligned half extents around its position.
type Bounds struct {
	HalfW, HalfH float32
}

// IndexGroup selects which spatial index an entity belongs to.
type IndexGroup uint8

const (
	GroupDefault IndexGroup = iota
	GroupObstacle
	GroupProjectile

	NumGroups
)

// Indexable marks an entity for spatial indexing. ID is a stable
// identifier that survives snapshots; entity handles do not.
type Indexable struct {
	ID    uint32
	Group IndexGroup
}

// Vision holds the result of the entity's forward raycast for this tick.
type Vision struct {
	HitID   uint32  // Stable ID of the nearest entity along the ray (0 = none)
	HitFrac float32 // Fraction along the ray where it was hit
	Heading float32 // Ray direction in radians
}
