// Package land holds the spatial domain trees compete on: a fixed set of
// locations and the named per-location fields the competition protocol
// reads and writes.
package land

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Required field names.
const (
	FieldSalinity         = "salinity"
	FieldAboveGroundOwner = "above_ground_owner"
	FieldBelowGroundCount = "below_ground_count"
)

// NoOwner marks a location no tree has claimed.
const NoOwner = -1

// RequiredFields lists the fields every terrain must provide.
var RequiredFields = []string{FieldSalinity, FieldAboveGroundOwner, FieldBelowGroundCount}

// Land is the spatial domain. Topology is immutable after New; field values
// are mutated by the competition phases.
//
// Land is not safe for concurrent writes. Reads of distinct fields may
// proceed concurrently with each other.
type Land struct {
	points     []Point
	fields     map[string][]float64
	index      *spatialIndex
	minSpacing float64
	lo, hi     Point
	diagonal   float64
}

// New builds a Land from a terrain. The terrain's field slices are copied.
func New(t Terrain) (*Land, error) {
	if len(t.Points) == 0 {
		return nil, ErrEmptyTerrain
	}
	for _, name := range RequiredFields {
		if _, ok := t.Fields[name]; !ok {
			return nil, fmt.Errorf("terrain field %q: %w", name, ErrMissingField)
		}
	}

	l := &Land{
		points: slices.Clone(t.Points),
		fields: make(map[string][]float64, len(t.Fields)),
		index:  newSpatialIndex(t.Points),
	}
	for name, values := range t.Fields {
		if len(values) != len(t.Points) {
			return nil, fmt.Errorf("terrain field %q has %d values for %d locations: %w",
				name, len(values), len(t.Points), ErrOutOfRange)
		}
		l.fields[name] = slices.Clone(values)
	}

	l.minSpacing = t.MinSpacing
	if l.minSpacing <= 0 {
		l.minSpacing = l.deriveMinSpacing()
	}
	l.diagonal = l.boundingDiagonal()

	return l, nil
}

// deriveMinSpacing returns the smallest nearest-neighbour distance. A terrain
// with a single distinct point gets unit spacing.
func (l *Land) deriveMinSpacing() float64 {
	best := math.Inf(1)
	for i, p := range l.points {
		if d := l.index.nearestOther(i, p); d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return 1
	}
	return best
}

func (l *Land) boundingDiagonal() float64 {
	lo, hi := l.points[0], l.points[0]
	for _, p := range l.points[1:] {
		lo = Point{math.Min(lo.X, p.X), math.Min(lo.Y, p.Y), math.Min(lo.Z, p.Z)}
		hi = Point{math.Max(hi.X, p.X), math.Max(hi.Y, p.Y), math.Max(hi.Z, p.Z)}
	}
	l.lo, l.hi = lo, hi
	return math.Max(lo.Distance(hi), l.minSpacing)
}

// Len returns the number of locations.
func (l *Land) Len() int { return len(l.points) }

// MinSpacing returns the minimum distance between two locations.
func (l *Land) MinSpacing() float64 { return l.minSpacing }

// Diagonal returns the length of the domain's bounding-box diagonal.
func (l *Land) Diagonal() float64 { return l.diagonal }

// Bounds returns the corners of the axis-aligned box holding every location.
func (l *Land) Bounds() (lo, hi Point) { return l.lo, l.hi }

// Point returns the coordinates of a location.
func (l *Land) Point(id int) (Point, error) {
	if id < 0 || id >= len(l.points) {
		return Point{}, fmt.Errorf("location %d of %d: %w", id, len(l.points), ErrOutOfRange)
	}
	return l.points[id], nil
}

func (l *Land) field(name string, id int) ([]float64, error) {
	values, ok := l.fields[name]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", name, ErrOutOfRange)
	}
	if id < 0 || id >= len(values) {
		return nil, fmt.Errorf("field %q location %d of %d: %w", name, id, len(values), ErrOutOfRange)
	}
	return values, nil
}

// FieldValue reads one location of a field.
func (l *Land) FieldValue(name string, id int) (float64, error) {
	values, err := l.field(name, id)
	if err != nil {
		return 0, err
	}
	return values[id], nil
}

// SetFieldValue writes one location of a field. The write is visible to
// every later read.
func (l *Land) SetFieldValue(name string, id int, v float64) error {
	values, err := l.field(name, id)
	if err != nil {
		return err
	}
	values[id] = v
	return nil
}

// ResetField sets every location of a field to v.
func (l *Land) ResetField(name string, v float64) error {
	values, ok := l.fields[name]
	if !ok {
		return fmt.Errorf("field %q: %w", name, ErrOutOfRange)
	}
	for i := range values {
		values[i] = v
	}
	return nil
}

// Field returns a copy of a whole field.
func (l *Land) Field(name string) ([]float64, error) {
	values, ok := l.fields[name]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", name, ErrOutOfRange)
	}
	return slices.Clone(values), nil
}

// FieldNames returns the declared field names, sorted.
func (l *Land) FieldNames() []string {
	names := make([]string, 0, len(l.fields))
	for name := range l.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LocationsWithinRadius returns the ids of all locations within radius of p
// in ascending order. A negative radius probes with the minimum spacing.
func (l *Land) LocationsWithinRadius(radius float64, p Point) []int {
	if radius < 0 {
		radius = l.minSpacing
	}
	return l.index.withinRadius(radius, p)
}

// Nearest returns the id among ids closest to p. Ties keep the earlier id.
func (l *Land) Nearest(p Point, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoLocation
	}
	best, bestDist := -1, math.Inf(1)
	for _, id := range ids {
		q, err := l.Point(id)
		if err != nil {
			return 0, err
		}
		if d := p.Distance(q); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, nil
}

// InvertBelowGroundField turns accumulated root counts into availability
// multipliers: counts above 1 become their reciprocal, everything else is
// left alone (0 stays 0). The output never exceeds 1, so a second pass is a
// no-op rather than a round trip back to the counts.
func (l *Land) InvertBelowGroundField() {
	values := l.fields[FieldBelowGroundCount]
	for i, v := range values {
		if v > 1 {
			values[i] = 1 / v
		}
	}
}
