// Package config provides configuration loading and access for the
// simulation and the spatial index.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all tunable parameters.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	World     WorldConfig     `yaml:"world"`
	Collision CollisionConfig `yaml:"collision"`
	Vision    VisionConfig    `yaml:"vision"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// IndexConfig holds spatial index tuning.
type IndexConfig struct {
	MaxEntriesPerNode int     `yaml:"max_entries_per_node"` // Bucket size before a node splits
	MinNodeSize       float64 `yaml:"min_node_size"`        // Smallest node side length
	BoundsInflation   float64 `yaml:"bounds_inflation"`     // Jitter margin added to stored bounds
	MotionScale       float64 `yaml:"motion_scale"`         // Movement delta multiplier for predictive bounds
}

// WorldConfig holds simulation world dimensions and population.
type WorldConfig struct {
	Width      int     `yaml:"width"`      // World width in world units
	Height     int     `yaml:"height"`     // World height in world units
	Population int     `yaml:"population"` // Number of entities to spawn
	DT         float64 `yaml:"dt"`         // Seconds per tick
	MaxSpeed   float64 `yaml:"max_speed"`  // Entity speed cap (units/sec)
}

// CollisionConfig holds collision system parameters.
type CollisionConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Separation float64 `yaml:"separation"` // Push-apart strength per tick (0-1)
}

// VisionConfig holds raycast vision parameters.
type VisionConfig struct {
	Enabled bool    `yaml:"enabled"`
	Range   float64 `yaml:"range"` // Ray length in world units
}

// TelemetryConfig holds stats collection parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Window size in seconds
	LatencyCap  int     `yaml:"latency_cap"`  // Max query latency samples kept per window
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	DT32     float32
	WorldW32 float32
	WorldH32 float32
}

var global *Config

// Init loads configuration and installs it globally.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Index.MaxEntriesPerNode < 1 {
		return fmt.Errorf("index.max_entries_per_node must be >= 1, got %d", c.Index.MaxEntriesPerNode)
	}
	if c.Index.MinNodeSize <= 0 {
		return fmt.Errorf("index.min_node_size must be > 0, got %g", c.Index.MinNodeSize)
	}
	if c.Index.BoundsInflation < 0 {
		return fmt.Errorf("index.bounds_inflation must be >= 0, got %g", c.Index.BoundsInflation)
	}
	if c.Index.MotionScale < 0 {
		return fmt.Errorf("index.motion_scale must be >= 0, got %g", c.Index.MotionScale)
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world dimensions must be positive, got %dx%d", c.World.Width, c.World.Height)
	}
	if c.World.DT <= 0 {
		return fmt.Errorf("world.dt must be > 0, got %g", c.World.DT)
	}
	if c.Telemetry.StatsWindow <= 0 {
		return fmt.Errorf("telemetry.stats_window must be > 0, got %g", c.Telemetry.StatsWindow)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.World.DT)
	c.Derived.WorldW32 = float32(c.World.Width)
	c.Derived.WorldH32 = float32(c.World.Height)
}

// WriteYAML saves the config to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
