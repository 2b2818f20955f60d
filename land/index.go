package land

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Point is a location in land coordinates.
type Point struct {
	X, Y, Z float64
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (p Point) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// node is a kd-tree entry carrying its location id.
type node struct {
	id int
	p  Point
}

// Compare implements kdtree.Comparable.
func (n node) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(node)
	return n.p.coord(d) - q.p.coord(d)
}

// Dims implements kdtree.Comparable.
func (n node) Dims() int { return 3 }

// Distance implements kdtree.Comparable. Like kdtree.Point it returns the
// squared Euclidean distance.
func (n node) Distance(c kdtree.Comparable) float64 {
	q := c.(node)
	dx := n.p.X - q.p.X
	dy := n.p.Y - q.p.Y
	dz := n.p.Z - q.p.Z
	return dx*dx + dy*dy + dz*dz
}

// nodes implements kdtree.Interface.
type nodes []node

func (s nodes) Index(i int) kdtree.Comparable         { return s[i] }
func (s nodes) Len() int                              { return len(s) }
func (s nodes) Pivot(d kdtree.Dim) int                { return plane{nodes: s, Dim: d}.Pivot() }
func (s nodes) Slice(start, end int) kdtree.Interface { return s[start:end] }

// plane sorts nodes along one dimension.
type plane struct {
	kdtree.Dim
	nodes
}

func (p plane) Less(i, j int) bool {
	return p.nodes[i].p.coord(p.Dim) < p.nodes[j].p.coord(p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.nodes = p.nodes[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.nodes[i], p.nodes[j] = p.nodes[j], p.nodes[i]
}

// spatialIndex answers radius and nearest queries over a fixed point set.
type spatialIndex struct {
	tree *kdtree.Tree
	n    int
}

func newSpatialIndex(points []Point) *spatialIndex {
	// kdtree.New reorders its input, so build from a copy.
	entries := make(nodes, len(points))
	for i, p := range points {
		entries[i] = node{id: i, p: p}
	}
	return &spatialIndex{tree: kdtree.New(entries, false), n: len(points)}
}

// withinRadius returns the ids of all points within radius of p, ascending.
func (s *spatialIndex) withinRadius(radius float64, p Point) []int {
	keep := kdtree.NewDistKeeper(radius * radius)
	s.tree.NearestSet(keep, node{id: -1, p: p})

	ids := make([]int, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue // sentinel
		}
		ids = append(ids, c.Comparable.(node).id)
	}
	sort.Ints(ids)
	return ids
}

// nearestOther returns the distance from point id to its closest distinct
// neighbour, or +Inf when every other point coincides with it. The keeper
// widens until it holds a neighbour at positive distance, so any number of
// duplicates of p is skipped.
func (s *spatialIndex) nearestOther(id int, p Point) float64 {
	for k := 4; ; k *= 2 {
		keep := kdtree.NewNKeeper(k)
		s.tree.NearestSet(keep, node{id: id, p: p})

		best := math.Inf(1)
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			if c.Comparable.(node).id == id || c.Dist == 0 {
				continue
			}
			if d := math.Sqrt(c.Dist); d < best {
				best = d
			}
		}
		if !math.IsInf(best, 1) || k >= s.n {
			return best
		}
	}
}
