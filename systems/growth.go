package systems

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/bettina/components"
	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
)

// invSqrt2 appears in every cable-root term.
const invSqrt2 = math.Sqrt2 / 2

// UpdateVolumes recomputes the organ volumes from the tree's geometry.
func UpdateVolumes(t *components.Tree) {
	g := t.Geometry
	stemArea := math.Pi * g.StemRadius * g.StemRadius

	v := components.Volumes{
		Leaf:      math.Pi * g.CrownHeight * g.CrownRadius * g.CrownRadius,
		Branch:    2 * g.CrownRadius * stemArea,
		Stem:      g.StemHeight * stemArea,
		CableRoot: invSqrt2 * g.RootRadius * stemArea,
		FineRoot:  math.Pi * g.RootDepth * g.RootRadius * g.RootRadius,
	}
	v.Total = floats.Sum([]float64{v.Leaf, v.Branch, v.Stem, v.CableRoot, v.FineRoot})
	t.Volumes = v
}

// UpdateResistances recomputes the radial (fine root) and lateral (xylem)
// flux resistances.
func (s *TreeSystem) UpdateResistances(t *components.Tree, tab species.Table) {
	g := t.Geometry
	t.RadialResistance = safeDiv(1, tab.FineRootPermeability*s.model.KGeom*math.Pi*g.RootRadius*g.RootRadius*g.RootDepth)
	t.LateralResistance = safeDiv(g.StemHeight+invSqrt2*g.RootRadius+2*g.CrownRadius,
		tab.XylemConductivity*math.Pi*g.StemRadius*g.StemRadius)
}

// GatherResources computes light- and water-limited income under the tree's
// current competition coefficients. A negative water balance yields no
// below-ground income.
func (s *TreeSystem) GatherResources(t *components.Tree, tab species.Table, salinity float64) {
	m := s.model
	g := t.Geometry

	above := t.AboveCoefficient * m.SolarRadiation * math.Pi * g.CrownRadius * g.CrownRadius
	potential := -(tab.MinimumLeafWaterPotential + m.Gravity*(g.StemHeight+2*g.CrownRadius) + m.SalinityFactor*salinity)
	below := t.BelowCoefficient * safeDiv(potential, t.RadialResistance+t.LateralResistance) / m.Gravity

	t.Resources = components.Resources{
		Above:     above,
		Below:     nonNegative(below),
		Available: math.Min(m.KRel*above, nonNegative(below)),
	}
}

// UpdateWeights converts the resource, resistance and radius balances into
// allocation weights that are non-negative and sum to 1.
func (s *TreeSystem) UpdateWeights(t *components.Tree, tab species.Table) {
	m := s.model
	r := t.Resources

	qRes := safeDiv(m.KRel*r.Above-r.Below, m.KRel*r.Above+r.Below)
	qR := safeDiv(t.RadialResistance-t.LateralResistance, t.RadialResistance+t.LateralResistance)
	qRad := safeDiv(t.CrownRadius-t.RootRadius, t.CrownRadius+t.RootRadius)

	var w components.Allocation
	w.StemHeight = nonNegative(tab.HalfMaxHeightGrowthWeight * logistic((m.Qr0-qRad)/m.SigmoSlopeHg))
	w.CrownRadius = nonNegative((1 - w.StemHeight) * logistic(qRes/m.SigmoSlope))
	w.StemRadius = nonNegative((1 - w.CrownRadius - w.StemHeight) * logistic(qR/m.SigmoSlope))
	w.RootRadius = nonNegative(1 - w.CrownRadius - w.StemHeight - w.StemRadius)
	t.Weights = w
}

// UpdateGrowLengths turns the current net growth into per-dimension
// increments. Each weight share of the growth volume is divided by the
// derivative of the organ volume with respect to its own dimension.
func UpdateGrowLengths(t *components.Tree) {
	g := t.Geometry
	w := t.Weights
	growth := nonNegative(t.Growth)

	t.Increments = components.Allocation{
		RootRadius: safeDiv(w.RootRadius*growth,
			2*math.Pi*g.RootRadius*g.RootDepth+invSqrt2*math.Pi*g.StemRadius*g.StemRadius),
		CrownRadius: safeDiv(w.CrownRadius*growth,
			2*math.Pi*(g.CrownRadius*g.CrownHeight+g.StemRadius*g.StemRadius)),
		StemHeight: safeDiv(w.StemHeight*growth, math.Pi*g.StemRadius*g.StemRadius),
		StemRadius: safeDiv(w.StemRadius*growth,
			2*math.Pi*g.StemRadius*(g.StemHeight+invSqrt2*g.RootRadius+2*g.CrownRadius)),
	}
}

// calcGrowth runs one full evaluation: volumes, resistances, resources, net
// growth, weights and increments.
func (s *TreeSystem) calcGrowth(t *components.Tree, tab species.Table, salinity float64) {
	UpdateVolumes(t)
	s.UpdateResistances(t, tab)
	s.GatherResources(t, tab, salinity)
	t.Growth = s.model.KGrow * (t.Resources.Available - tab.MaintenanceFactor*t.Volumes.Total)
	s.UpdateWeights(t, tab)
	UpdateGrowLengths(t)
}

// applyIncrements scales the current increments by frac and adds them to
// the geometry.
func (s *TreeSystem) applyIncrements(t *components.Tree, frac float64) {
	inc := t.Increments
	t.StemHeight += frac * inc.StemHeight
	t.CrownRadius += frac * inc.CrownRadius
	t.RootRadius += frac * inc.RootRadius
	t.StemRadius += frac * inc.StemRadius
	t.Size = 2 * t.CrownRadius * s.model.SizeFactor
}

// CalcGrowth evaluates the tree at its current geometry and competition
// coefficients without changing the geometry.
func (s *TreeSystem) CalcGrowth(t *components.Tree) error {
	tab, salinity, err := s.inputs(t)
	if err != nil {
		return err
	}
	s.calcGrowth(t, tab, salinity)
	return nil
}

// Grow advances the tree's geometry by one tick of growth.
//
// The death flag is decided from the first evaluation of the tick, so a tree
// that recovers is no longer marked dead. Non-positive growth leaves the
// geometry unchanged. Growth above Total/GrowthLimitCoefficient is applied in
// sub-steps, each re-evaluated at the new geometry, until the whole step has
// been applied, growth stops being positive, or MaxSubsteps is reached.
func (s *TreeSystem) Grow(t *components.Tree) error {
	tab, salinity, err := s.inputs(t)
	if err != nil {
		return err
	}

	s.calcGrowth(t, tab, salinity)
	t.Dead = t.Growth < t.Volumes.Total*s.model.DeathThreshold
	t.AppliedFraction = 0
	t.Substeps = 0

	for t.AppliedFraction < 1 && t.Substeps < s.model.MaxSubsteps && t.Growth > 0 {
		frac := 1 - t.AppliedFraction
		limit := t.Volumes.Total / s.model.GrowthLimitCoefficient
		if t.Growth*frac > limit {
			frac = limit / t.Growth
		}
		if !(frac > 0) {
			break
		}

		s.applyIncrements(t, frac)
		t.AppliedFraction += frac
		t.Substeps++
		s.calcGrowth(t, tab, salinity)
	}
	// Absorb rounding so a completed step reads exactly 1.
	if math.Abs(1-t.AppliedFraction) < 1e-12 {
		t.AppliedFraction = 1
	}
	return nil
}

func (s *TreeSystem) inputs(t *components.Tree) (species.Table, float64, error) {
	tab, err := s.catalog.Table(t.Species)
	if err != nil {
		return species.Table{}, 0, err
	}
	salinity, err := s.land.FieldValue(land.FieldSalinity, t.NearestNode)
	if err != nil {
		return species.Table{}, 0, fmt.Errorf("tree %d salinity: %w", t.ID, err)
	}
	return tab, salinity, nil
}
