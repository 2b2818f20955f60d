package land

import "math"

// SearchFunc runs a radius query on behalf of a cache.
type SearchFunc func(radius float64) ([]int, error)

// NeighborCache remembers radius query results for one tree and one query
// class. Radii are quantised into buckets of the land's minimum spacing
// measured from the radius the cache was created with; a bucket is filled
// once and never refreshed, so the cache only grows.
type NeighborCache struct {
	initRadius float64
	spacing    float64
	buckets    [][]int
	radii      []float64
}

// NewNeighborCache creates a cache anchored at the owner's current radius.
func NewNeighborCache(initRadius float64, l *Land) (*NeighborCache, error) {
	if l == nil || l.Len() == 0 {
		return nil, ErrEmptyTerrain
	}
	return &NeighborCache{initRadius: initRadius, spacing: l.MinSpacing()}, nil
}

// Bucket returns the bucket index a radius falls into.
func (c *NeighborCache) Bucket(radius float64) int {
	idx := int(math.Floor((radius - c.initRadius) / c.spacing))
	if idx < 0 {
		return 0
	}
	return idx
}

// Query returns the locations cached for radius. Missing buckets up to the
// requested one are filled by a single search at the live radius.
func (c *NeighborCache) Query(radius float64, search SearchFunc) ([]int, error) {
	idx := c.Bucket(radius)
	if idx < len(c.buckets) {
		return c.buckets[idx], nil
	}

	ids, err := search(radius)
	if err != nil {
		return nil, err
	}
	for len(c.buckets) <= idx {
		c.buckets = append(c.buckets, ids)
		c.radii = append(c.radii, radius)
	}
	return ids, nil
}

// Len returns the number of filled buckets.
func (c *NeighborCache) Len() int { return len(c.buckets) }

// SearchedRadius returns the radius bucket i was filled with.
func (c *NeighborCache) SearchedRadius(i int) float64 { return c.radii[i] }
