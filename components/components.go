// Package components defines ECS components for the simulation.
package components

import (
	"math"

	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
)

// Position is a tree's stem base in land coordinates. It never changes.
type Position struct {
	X, Y, Z float64
}

// Point converts the position for land queries.
func (p Position) Point() land.Point {
	return land.Point{X: p.X, Y: p.Y, Z: p.Z}
}

// Geometry holds the organ dimensions of a tree.
type Geometry struct {
	StemRadius  float64
	StemHeight  float64
	CrownRadius float64
	CrownHeight float64
	RootRadius  float64
	RootDepth   float64
}

// Volumes holds the organ volumes derived from Geometry.
type Volumes struct {
	Leaf      float64
	Branch    float64
	Stem      float64
	CableRoot float64
	FineRoot  float64
	Total     float64
}

// Resources holds the income of the last growth evaluation.
type Resources struct {
	Above     float64 // light-limited income
	Below     float64 // water-limited income
	Available float64 // min of the two after the relative-uptake constant
}

// Allocation splits net growth across the four growing dimensions. Used both
// for the weights (summing to 1) and for the resulting increments.
type Allocation struct {
	StemHeight  float64
	CrownRadius float64
	RootRadius  float64
	StemRadius  float64
}

// Sum returns the total over all four dimensions.
func (a Allocation) Sum() float64 {
	return a.StemHeight + a.CrownRadius + a.RootRadius + a.StemRadius
}

// Tree is the per-agent state of one mangrove tree.
type Tree struct {
	// Identity
	ID      uint64
	Species species.Species
	Age     float64

	Geometry
	Volumes    Volumes
	Resources  Resources
	Weights    Allocation
	Increments Allocation

	// Flux resistances
	RadialResistance  float64 // r1, fine roots
	LateralResistance float64 // r2, xylem path

	// Growth
	Growth          float64 // Net growth of the latest evaluation
	AppliedFraction float64 // Fraction of this tick's growth actually applied
	Substeps        int     // Sub-steps used this tick
	Size            float64 // Crown diameter in land units

	// Competition
	AboveCoefficient float64
	BelowCoefficient float64
	OwnedNodes       int

	Seeds int
	Dead  bool

	// Locations
	NearestNode int
	CrownNodes  []int
	RootNodes   []int

	CrownCache    *land.NeighborCache
	RootCache     *land.NeighborCache
	VicinityCache *land.NeighborCache
}

// ExposedHeight is the height compared in above-ground competition.
func (t *Tree) ExposedHeight() float64 {
	return t.StemHeight + 2*t.CrownHeight
}

// CrownArea returns the projected crown area.
func (t *Tree) CrownArea() float64 {
	return math.Pi * t.CrownRadius * t.CrownRadius
}
