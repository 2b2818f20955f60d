// Package species defines the closed set of tree species and their constant tables.
package species

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownSpecies = errors.New("unknown species")
	ErrInvalidTable   = errors.New("invalid species table")
)

// Species identifies a tree species.
type Species uint8

const (
	Unknown Species = iota
	Avicennia
	Rhizophora
)

// All lists every valid species in declaration order.
var All = []Species{Avicennia, Rhizophora}

// String returns the lower-case species name used in config and exports.
func (s Species) String() string {
	switch s {
	case Avicennia:
		return "avicennia"
	case Rhizophora:
		return "rhizophora"
	default:
		return fmt.Sprintf("species(%d)", uint8(s))
	}
}

// Parse resolves a species name (case-insensitive).
func Parse(name string) (Species, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "avicennia":
		return Avicennia, nil
	case "rhizophora":
		return Rhizophora, nil
	default:
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownSpecies, name)
	}
}

// SpreadScale scales the seed dispersal radius. Rhizophora propagules are
// heavy and drop close to the parent.
func (s Species) SpreadScale() float64 {
	switch s {
	case Avicennia:
		return 1.0
	case Rhizophora:
		return 0.5
	default:
		panic(fmt.Sprintf("species: no spread scale for %v", s))
	}
}

// Table holds the initial-condition and life-history constants of a species.
type Table struct {
	// Initial geometry
	StemHeight  float64 `yaml:"stem_height"`
	CrownHeight float64 `yaml:"crown_height"`
	RootDepth   float64 `yaml:"root_depth"`
	CrownRadius float64 `yaml:"crown_radius"`

	// Physiology
	FineRootPermeability      float64 `yaml:"fine_root_permeability"`       // L_p
	MinimumLeafWaterPotential float64 `yaml:"minimum_leaf_water_potential"` // psi_leaf
	XylemConductivity         float64 `yaml:"xylem_conductivity"`           // k_f_sap
	HalfMaxHeightGrowthWeight float64 `yaml:"half_max_height_growth_weight"`
	MaintenanceFactor         float64 `yaml:"maintenance_factor"` // k_maint

	// Recruitment
	MinSeedingAge       float64 `yaml:"min_seeding_age"`
	MinSeedingHeight    float64 `yaml:"min_seeding_height"`
	MinSeedingResources float64 `yaml:"min_seeding_resources"`
	SeedsPerUnitArea    float64 `yaml:"seeds_per_unit_area"`
}

// Validate reports constants that would make the growth model degenerate.
func (t Table) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"stem_height", t.StemHeight},
		{"crown_height", t.CrownHeight},
		{"root_depth", t.RootDepth},
		{"crown_radius", t.CrownRadius},
		{"fine_root_permeability", t.FineRootPermeability},
		{"xylem_conductivity", t.XylemConductivity},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidTable, p.name, p.v)
		}
	}
	if t.MinimumLeafWaterPotential >= 0 {
		return fmt.Errorf("%w: minimum_leaf_water_potential must be negative", ErrInvalidTable)
	}
	if t.HalfMaxHeightGrowthWeight < 0 || t.HalfMaxHeightGrowthWeight > 1 {
		return fmt.Errorf("%w: half_max_height_growth_weight must be in [0,1]", ErrInvalidTable)
	}
	if t.MaintenanceFactor < 0 || t.SeedsPerUnitArea < 0 {
		return fmt.Errorf("%w: maintenance_factor and seeds_per_unit_area must not be negative", ErrInvalidTable)
	}
	return nil
}

// avicenniaTable mirrors the field-calibrated Avicennia germinans constants.
var avicenniaTable = Table{
	StemHeight:                0.0001,
	CrownHeight:               0.004,
	RootDepth:                 0.004,
	CrownRadius:               0.3,
	FineRootPermeability:      0.04,
	MinimumLeafWaterPotential: -7860,
	XylemConductivity:         1.48,
	HalfMaxHeightGrowthWeight: 0.1,
	MaintenanceFactor:         0.28,

	MinSeedingAge:       5,
	MinSeedingHeight:    0.5,
	MinSeedingResources: 0.05,
	SeedsPerUnitArea:    0.02,
}

// rhizophoraTable shares the Avicennia physiology; only recruitment differs.
// TODO: replace physiology with Rhizophora mangle field values once calibrated.
var rhizophoraTable = Table{
	StemHeight:                0.0001,
	CrownHeight:               0.004,
	RootDepth:                 0.004,
	CrownRadius:               0.3,
	FineRootPermeability:      0.04,
	MinimumLeafWaterPotential: -7860,
	XylemConductivity:         1.48,
	HalfMaxHeightGrowthWeight: 0.1,
	MaintenanceFactor:         0.28,

	MinSeedingAge:       8,
	MinSeedingHeight:    1.0,
	MinSeedingResources: 0.08,
	SeedsPerUnitArea:    0.015,
}

// Catalog maps each species to its constant table.
type Catalog map[Species]Table

// DefaultCatalog returns a fresh catalog holding the built-in tables.
func DefaultCatalog() Catalog {
	return Catalog{
		Avicennia:  avicenniaTable,
		Rhizophora: rhizophoraTable,
	}
}

// Table returns the constants for s.
func (c Catalog) Table(s Species) (Table, error) {
	t, ok := c[s]
	if !ok {
		return Table{}, fmt.Errorf("%w: %v not in catalog", ErrUnknownSpecies, s)
	}
	return t, nil
}

// Validate checks every table, in species order.
func (c Catalog) Validate() error {
	keys := make([]Species, 0, len(c))
	for s := range c {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, s := range keys {
		if s == Unknown {
			return fmt.Errorf("%w: catalog holds the unknown species", ErrUnknownSpecies)
		}
		if err := c[s].Validate(); err != nil {
			return fmt.Errorf("%v: %w", s, err)
		}
	}
	return nil
}

// WithOverrides returns a copy of c with each named table overlaid by the
// matching YAML mapping. Keys absent from a mapping keep their current value.
// The result is validated.
func (c Catalog) WithOverrides(overrides map[string]yaml.Node) (Catalog, error) {
	out := make(Catalog, len(c))
	for s, t := range c {
		out[s] = t
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s, err := Parse(name)
		if err != nil {
			return nil, err
		}
		t, err := out.Table(s)
		if err != nil {
			return nil, err
		}
		node := overrides[name]
		if err := node.Decode(&t); err != nil {
			return nil, fmt.Errorf("%v: %w: %v", s, ErrInvalidTable, err)
		}
		out[s] = t
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
