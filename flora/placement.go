package flora

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/bettina/components"
	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/species"
)

// Site is a founder location and species.
type Site struct {
	Position components.Position
	Species  species.Species
}

// Placement chooses founder sites.
type Placement interface {
	Sites(n int, rng *rand.Rand) []Site
}

// Bounds is the rectangle founders are placed in.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// GridPlacement spreads founders over the cell centres of the smallest
// square-ish grid with at least n cells. Species are cycled in order.
type GridPlacement struct {
	Bounds  Bounds
	Species []species.Species
}

// Sites implements Placement.
func (g GridPlacement) Sites(n int, _ *rand.Rand) []Site {
	if n <= 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	dx := (g.Bounds.MaxX - g.Bounds.MinX) / float64(cols)
	dy := (g.Bounds.MaxY - g.Bounds.MinY) / float64(rows)

	sites := make([]Site, n)
	for i := range sites {
		col, row := i%cols, i/cols
		sites[i] = Site{
			Position: components.Position{
				X: g.Bounds.MinX + (float64(col)+0.5)*dx,
				Y: g.Bounds.MinY + (float64(row)+0.5)*dy,
			},
			Species: g.Species[i%len(g.Species)],
		}
	}
	return sites
}

// RandomPlacement draws founders uniformly from the bounds.
type RandomPlacement struct {
	Bounds  Bounds
	Species []species.Species
}

// Sites implements Placement.
func (r RandomPlacement) Sites(n int, rng *rand.Rand) []Site {
	sites := make([]Site, 0, max(n, 0))
	for i := 0; i < n; i++ {
		sites = append(sites, Site{
			Position: components.Position{
				X: r.Bounds.MinX + rng.Float64()*(r.Bounds.MaxX-r.Bounds.MinX),
				Y: r.Bounds.MinY + rng.Float64()*(r.Bounds.MaxY-r.Bounds.MinY),
			},
			Species: r.Species[i%len(r.Species)],
		})
	}
	return sites
}

// FixedPlacement plants at a fixed list of sites. n caps the list when it
// is positive and shorter.
type FixedPlacement struct {
	List []Site
}

// Sites implements Placement.
func (f FixedPlacement) Sites(n int, _ *rand.Rand) []Site {
	if n > 0 && n < len(f.List) {
		return append([]Site(nil), f.List[:n]...)
	}
	return append([]Site(nil), f.List...)
}

// PlacementFromConfig builds the strategy named by the population config.
func PlacementFromConfig(cfg config.PopulationConfig) (Placement, error) {
	bounds := Bounds{MinX: cfg.MinX, MinY: cfg.MinY, MaxX: cfg.MaxX, MaxY: cfg.MaxY}

	switch cfg.Placement {
	case config.PlacementFixed:
		list := make([]Site, len(cfg.Sites))
		for i, s := range cfg.Sites {
			sp, err := species.Parse(s.Species)
			if err != nil {
				return nil, fmt.Errorf("population.sites[%d]: %w", i, err)
			}
			list[i] = Site{Position: components.Position{X: s.X, Y: s.Y, Z: s.Z}, Species: sp}
		}
		return FixedPlacement{List: list}, nil

	case config.PlacementGrid, config.PlacementRandom:
		mix := make([]species.Species, len(cfg.Species))
		for i, name := range cfg.Species {
			sp, err := species.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("population.species[%d]: %w", i, err)
			}
			mix[i] = sp
		}
		if len(mix) == 0 {
			return nil, fmt.Errorf("%w: population.species is empty", config.ErrInvalid)
		}
		if cfg.Placement == config.PlacementGrid {
			return GridPlacement{Bounds: bounds, Species: mix}, nil
		}
		return RandomPlacement{Bounds: bounds, Species: mix}, nil

	default:
		return nil, fmt.Errorf("%w: population.placement %q", config.ErrInvalid, cfg.Placement)
	}
}
