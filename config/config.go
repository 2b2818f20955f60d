// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Phase orders accepted by SimulationConfig.PhaseOrder.
const (
	PhaseOrderCompetitionFirst = "competition_first" // competition → recruitment → grow → die
	PhaseOrderRecruitmentFirst = "recruitment_first" // recruitment → competition → grow → die
)

// Placement strategies accepted by PopulationConfig.Placement.
const (
	PlacementGrid   = "grid"
	PlacementRandom = "random"
	PlacementFixed  = "fixed"
)

// Export formats accepted by ExportConfig.Formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Land       LandConfig       `yaml:"land"`
	Model      ModelConfig      `yaml:"model"`
	Population PopulationConfig `yaml:"population"`
	Export     ExportConfig     `yaml:"export"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Species overlays the built-in constant tables, keyed by species name.
	// Each entry may set any subset of the table's keys.
	Species map[string]yaml.Node `yaml:"species,omitempty"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds tick loop parameters.
type SimulationConfig struct {
	Ticks      int     `yaml:"ticks"`       // Total horizon in ticks (0 = until extinction)
	TimeStep   float64 `yaml:"time_step"`   // Age advance per tick
	Seed       int64   `yaml:"seed"`        // RNG seed (0 = time-based, resolved by the driver)
	PhaseOrder string  `yaml:"phase_order"` // competition_first | recruitment_first
	Workers    int     `yaml:"workers"`     // Worker goroutines for parallel sub-phases (0 = GOMAXPROCS, 1 = sequential)
}

// LandConfig describes the terrain the land is built from.
type LandConfig struct {
	TerrainFile      string  `yaml:"terrain_file"`      // Optional CSV node file; empty = generated grid
	Width            float64 `yaml:"width"`             // Grid extent along x
	Height           float64 `yaml:"height"`            // Grid extent along y
	Spacing          float64 `yaml:"spacing"`           // Grid node spacing
	Salinity         float64 `yaml:"salinity"`          // Salinity at x = 0
	SalinityGradient float64 `yaml:"salinity_gradient"` // Salinity change per unit x
}

// ModelConfig holds the constants of the growth and competition model.
type ModelConfig struct {
	KGeom                  float64 `yaml:"k_geom"`
	KRel                   float64 `yaml:"k_rel"`
	KGrow                  float64 `yaml:"k_grow"`
	Qr0                    float64 `yaml:"qr0"`
	SigmoSlopeHg           float64 `yaml:"sigmo_slope_hg"`
	SigmoSlope             float64 `yaml:"sigmo_slope"`
	SeedSpreadFactor       float64 `yaml:"seed_spread_factor"`
	GrowthLimitCoefficient float64 `yaml:"growth_limit_coefficient"` // Sub-step when growth > volume / this
	DeathThreshold         float64 `yaml:"death_threshold"`          // Die when growth < volume * this
	SolarRadiation         float64 `yaml:"solar_radiation"`
	Gravity                float64 `yaml:"gravity"`
	SalinityFactor         float64 `yaml:"salinity_factor"`         // Osmotic penalty per unit salinity
	SizeFactor             float64 `yaml:"size_factor"`             // Scales radii into land units
	SearchRadiusIncrement  float64 `yaml:"search_radius_increment"` // Multiplier applied when a radius query comes back empty
	VicinityRadius         float64 `yaml:"vicinity_radius"`         // Vicinity probe radius before size_factor
	BelowGroundFloor       float64 `yaml:"below_ground_floor"`      // Lower bound on summed below-ground multipliers
	MaxSubsteps            int     `yaml:"max_substeps"`            // Hard cap on growth sub-steps per tick
}

// SiteConfig is a fixed planting location.
type SiteConfig struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Z       float64 `yaml:"z"`
	Species string  `yaml:"species"`
}

// PopulationConfig holds founder placement parameters.
type PopulationConfig struct {
	Initial   int          `yaml:"initial"`
	Placement string       `yaml:"placement"` // grid | random | fixed
	Species   []string     `yaml:"species"`   // Founder species, cycled in order
	MinX      float64      `yaml:"min_x"`
	MinY      float64      `yaml:"min_y"`
	MaxX      float64      `yaml:"max_x"`
	MaxY      float64      `yaml:"max_y"`
	Sites     []SiteConfig `yaml:"sites"` // Used by the fixed strategy
}

// ExportConfig controls the exporter invoked by the driver.
type ExportConfig struct {
	Dir      string   `yaml:"dir"`      // Output directory (empty = export disabled)
	Formats  []string `yaml:"formats"`  // csv and/or sqlite
	Interval int      `yaml:"interval"` // Export every N ticks
}

// TelemetryConfig holds logging and performance parameters.
type TelemetryConfig struct {
	PerfWindow  int `yaml:"perf_window"`  // Ticks averaged by the perf collector
	LogInterval int `yaml:"log_interval"` // Log population stats every N ticks
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SQLite bool // sqlite listed in Export.Formats
	CSV    bool // csv listed in Export.Formats
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
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

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate reports the first configuration value the simulation cannot run with.
func (c *Config) Validate() error {
	switch c.Simulation.PhaseOrder {
	case PhaseOrderCompetitionFirst, PhaseOrderRecruitmentFirst:
	default:
		return fmt.Errorf("%w: simulation.phase_order %q", ErrInvalid, c.Simulation.PhaseOrder)
	}
	if c.Simulation.TimeStep <= 0 {
		return fmt.Errorf("%w: simulation.time_step must be positive", ErrInvalid)
	}
	if c.Simulation.Ticks < 0 {
		return fmt.Errorf("%w: simulation.ticks must not be negative", ErrInvalid)
	}

	if c.Land.TerrainFile == "" {
		if c.Land.Spacing <= 0 {
			return fmt.Errorf("%w: land.spacing must be positive", ErrInvalid)
		}
		if c.Land.Width < 0 || c.Land.Height < 0 {
			return fmt.Errorf("%w: land.width and land.height must not be negative", ErrInvalid)
		}
	}

	m := c.Model
	positive := []struct {
		key string
		v   float64
	}{
		{"model.k_geom", m.KGeom},
		{"model.k_rel", m.KRel},
		{"model.k_grow", m.KGrow},
		{"model.sigmo_slope_hg", m.SigmoSlopeHg},
		{"model.sigmo_slope", m.SigmoSlope},
		{"model.growth_limit_coefficient", m.GrowthLimitCoefficient},
		{"model.solar_radiation", m.SolarRadiation},
		{"model.gravity", m.Gravity},
		{"model.size_factor", m.SizeFactor},
		{"model.vicinity_radius", m.VicinityRadius},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, p.key)
		}
	}
	nonNegative := []struct {
		key string
		v   float64
	}{
		{"model.seed_spread_factor", m.SeedSpreadFactor},
		{"model.death_threshold", m.DeathThreshold},
		{"model.below_ground_floor", m.BelowGroundFloor},
		{"model.salinity_factor", m.SalinityFactor},
	}
	for _, p := range nonNegative {
		if !(p.v >= 0) {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, p.key)
		}
	}
	if m.SearchRadiusIncrement <= 1 {
		return fmt.Errorf("%w: model.search_radius_increment must be greater than 1", ErrInvalid)
	}
	if m.MaxSubsteps < 1 {
		return fmt.Errorf("%w: model.max_substeps must be at least 1", ErrInvalid)
	}

	p := c.Population
	switch p.Placement {
	case PlacementGrid, PlacementRandom:
		if p.MaxX < p.MinX || p.MaxY < p.MinY {
			return fmt.Errorf("%w: population bounds are inverted", ErrInvalid)
		}
	case PlacementFixed:
		if len(p.Sites) == 0 {
			return fmt.Errorf("%w: population.sites is empty for fixed placement", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: population.placement %q", ErrInvalid, p.Placement)
	}
	if p.Initial < 0 {
		return fmt.Errorf("%w: population.initial must not be negative", ErrInvalid)
	}
	if len(p.Species) == 0 && p.Placement != PlacementFixed {
		return fmt.Errorf("%w: population.species is empty", ErrInvalid)
	}

	for _, f := range c.Export.Formats {
		if f != FormatCSV && f != FormatSQLite {
			return fmt.Errorf("%w: export.formats entry %q", ErrInvalid, f)
		}
	}
	if c.Export.Interval < 1 {
		return fmt.Errorf("%w: export.interval must be at least 1", ErrInvalid)
	}

	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived = DerivedConfig{}
	for _, f := range c.Export.Formats {
		switch f {
		case FormatCSV:
			c.Derived.CSV = true
		case FormatSQLite:
			c.Derived.SQLite = true
		}
	}
	if c.Telemetry.PerfWindow < 1 {
		c.Telemetry.PerfWindow = 60
	}
	if c.Telemetry.LogInterval < 1 {
		c.Telemetry.LogInterval = 100
	}
}

// WriteYAML writes the configuration to a YAML file.
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
