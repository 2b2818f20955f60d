package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/bettina/components"
)

// SeedCount returns how many seeds the tree releases this tick. Trees below
// the species' seeding age, height or resource threshold release none.
func (s *TreeSystem) SeedCount(t *components.Tree) (int, error) {
	tab, err := s.catalog.Table(t.Species)
	if err != nil {
		return 0, err
	}
	if t.Age <= tab.MinSeedingAge ||
		t.StemHeight <= tab.MinSeedingHeight ||
		t.Resources.Available <= tab.MinSeedingResources {
		return 0, nil
	}
	n := math.Floor(t.CrownArea() * s.model.SizeFactor * tab.SeedsPerUnitArea)
	if !(n > 0) {
		return 0, nil
	}
	return int(n), nil
}

// SeedPosition draws a landing point for one seed: a uniform distance up to
// the spread radius at a uniform angle around the parent.
func (s *TreeSystem) SeedPosition(t *components.Tree, parent components.Position, rng *rand.Rand) components.Position {
	spread := t.CrownRadius * s.model.SizeFactor * s.model.SeedSpreadFactor * t.Species.SpreadScale()
	r := rng.Float64() * spread
	angle := rng.Float64() * 2 * math.Pi
	return components.Position{
		X: parent.X + r*math.Cos(angle),
		Y: parent.Y + r*math.Sin(angle),
		Z: parent.Z,
	}
}
