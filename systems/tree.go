// Package systems implements the per-tree growth, competition and
// recruitment rules over the components and the land.
package systems

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/bettina/components"
	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
)

// ErrUnviableSite is returned when a site's hydraulic balance cannot support
// a seedling of the requested species.
var ErrUnviableSite = errors.New("site cannot support a seedling")

// TreeSystem applies the growth model to individual trees.
type TreeSystem struct {
	land    *land.Land
	model   config.ModelConfig
	catalog species.Catalog
}

// NewTreeSystem creates a tree system bound to a land.
func NewTreeSystem(l *land.Land, model config.ModelConfig, catalog species.Catalog) *TreeSystem {
	return &TreeSystem{land: l, model: model, catalog: catalog}
}

// Land returns the land the system queries.
func (s *TreeSystem) Land() *land.Land { return s.land }

// Model returns the model constants.
func (s *TreeSystem) Model() config.ModelConfig { return s.model }

// NewTree creates a seedling of sp at pos. Root and stem radius follow from
// the hydraulic balance at the nearest location.
func (s *TreeSystem) NewTree(id uint64, sp species.Species, pos components.Position) (components.Tree, error) {
	tab, err := s.catalog.Table(sp)
	if err != nil {
		return components.Tree{}, err
	}

	nearest, err := s.nearestLocation(pos.Point())
	if err != nil {
		return components.Tree{}, fmt.Errorf("locating tree %d: %w", id, err)
	}
	salinity, err := s.land.FieldValue(land.FieldSalinity, nearest)
	if err != nil {
		return components.Tree{}, err
	}

	m := s.model
	t := components.Tree{
		ID:               id,
		Species:          sp,
		NearestNode:      nearest,
		AboveCoefficient: 1,
		BelowCoefficient: 1,
		Geometry: components.Geometry{
			StemHeight:  tab.StemHeight,
			CrownHeight: tab.CrownHeight,
			CrownRadius: tab.CrownRadius,
			RootDepth:   tab.RootDepth,
		},
	}

	// Hydraulic potential available per unit crown income.
	g := t.Geometry
	potential := -(tab.MinimumLeafWaterPotential + m.Gravity*(g.StemHeight+2*g.CrownRadius) + m.SalinityFactor*salinity)
	hir := potential / (m.SolarRadiation * math.Pi * g.CrownRadius * g.CrownRadius) / m.Gravity / 2
	if !(hir > 0) {
		return components.Tree{}, fmt.Errorf("%v at location %d (salinity %v): %w", sp, nearest, salinity, ErrUnviableSite)
	}
	t.RootRadius = 1.05 / math.Sqrt(tab.FineRootPermeability*m.KGeom*math.Pi*hir*g.RootDepth)
	t.StemRadius = math.Sqrt((g.StemHeight + math.Sqrt2/2*t.RootRadius + 2*g.CrownRadius) /
		(tab.XylemConductivity * math.Pi * hir))
	t.Size = 2 * t.CrownRadius * m.SizeFactor

	if t.CrownCache, err = land.NewNeighborCache(t.CrownRadius*m.SizeFactor, s.land); err != nil {
		return components.Tree{}, err
	}
	if t.RootCache, err = land.NewNeighborCache(t.RootRadius*m.SizeFactor, s.land); err != nil {
		return components.Tree{}, err
	}
	if t.VicinityCache, err = land.NewNeighborCache(m.VicinityRadius*m.SizeFactor, s.land); err != nil {
		return components.Tree{}, err
	}

	s.calcGrowth(&t, tab, salinity)
	return t, nil
}

// FindAtLeastOneLocation returns the locations within radius of p. When
// there are none the radius is multiplied by the search increment until
// something is found, and the hit is collapsed to the single nearest
// location. Searches beyond twice the domain diagonal fail with
// land.ErrNoLocation.
func (s *TreeSystem) FindAtLeastOneLocation(radius float64, p land.Point) ([]int, error) {
	ids := s.land.LocationsWithinRadius(radius, p)
	if len(ids) > 0 {
		return ids, nil
	}

	if radius <= 0 {
		radius = s.land.MinSpacing()
	}
	limit := 2 * s.land.Diagonal()
	for len(ids) == 0 {
		if radius > limit {
			return nil, fmt.Errorf("search around (%.3f, %.3f, %.3f) past radius %.3f: %w",
				p.X, p.Y, p.Z, limit, land.ErrNoLocation)
		}
		radius *= s.model.SearchRadiusIncrement
		ids = s.land.LocationsWithinRadius(radius, p)
	}
	if len(ids) > 1 {
		nearest, err := s.land.Nearest(p, ids)
		if err != nil {
			return nil, err
		}
		ids = []int{nearest}
	}
	return ids, nil
}

// nearestLocation returns the location closest to p.
func (s *TreeSystem) nearestLocation(p land.Point) (int, error) {
	ids, err := s.FindAtLeastOneLocation(-1, p)
	if err != nil {
		return 0, err
	}
	return s.land.Nearest(p, ids)
}

// searchAround adapts FindAtLeastOneLocation to a cache search.
func (s *TreeSystem) searchAround(p land.Point) land.SearchFunc {
	return func(radius float64) ([]int, error) {
		return s.FindAtLeastOneLocation(radius, p)
	}
}
