package systems

// SystemInfo describes a simulation system for logging and perf display.
type SystemInfo struct {
	ID          string // Internal identifier (used for perf tracking)
	Name        string // Display name
	Description string // What this system does
	Category    string // Grouping (e.g., "core", "physics")
}

// SystemRegistry holds metadata about all systems.
// This centralizes system naming so logs and the perf tracker stay in sync.
type SystemRegistry struct {
	systems []SystemInfo
	byID    map[string]SystemInfo
}

// NewSystemRegistry creates a registry with all known systems.
func NewSystemRegistry() *SystemRegistry {
	reg := &SystemRegistry{
		byID: make(map[string]SystemInfo),
	}
	reg.registerDefaults()
	return reg
}

// registerDefaults adds all known systems to the registry.
// Update this when adding new systems.
func (r *SystemRegistry) registerDefaults() {
	r.Register(SystemInfo{ID: "spatial_index", Name: "Spatial Index", Description: "Syncs the quadtrees with entity positions", Category: "core"})
	r.Register(SystemInfo{ID: "movement", Name: "Movement", Description: "Integrates velocities and bounces off world edges", Category: "physics"})
	r.Register(SystemInfo{ID: "collision", Name: "Collision", Description: "Separates overlapping entities", Category: "physics"})
	r.Register(SystemInfo{ID: "vision", Name: "Vision", Description: "Raycasts forward sight lines", Category: "ai"})
	r.Register(SystemInfo{ID: "telemetry", Name: "Telemetry", Description: "Collects stats and perf samples", Category: "internal"})
}

// Register adds a system to the registry.
func (r *SystemRegistry) Register(info SystemInfo) {
	r.systems = append(r.systems, info)
	r.byID[info.ID] = info
}

// Get returns system info by ID.
func (r *SystemRegistry) Get(id string) (SystemInfo, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// GetName returns the display name for a system ID.
// Falls back to the ID itself if not found.
func (r *SystemRegistry) GetName(id string) string {
	if info, ok := r.byID[id]; ok {
		return info.Name
	}
	return id
}

// All returns all registered systems.
func (r *SystemRegistry) All() []SystemInfo {
	return r.systems
}
