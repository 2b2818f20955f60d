package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/bettina/flora"
	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
)

// PopulationStats summarizes the population at the end of a tick.
type PopulationStats struct {
	Tick    int     `csv:"tick"`
	SimTime float64 `csv:"sim_time"`

	// Population counts
	Trees      int `csv:"trees"`
	Avicennia  int `csv:"avicennia"`
	Rhizophora int `csv:"rhizophora"`

	// Events during the tick
	Recruited int `csv:"recruited"`
	Dropped   int `csv:"dropped"`
	Died      int `csv:"died"`
	DeadTotal int `csv:"dead_total"`

	// Size distribution
	StemHeightMean  float64 `csv:"stem_height_mean"`
	StemHeightP10   float64 `csv:"stem_height_p10"`
	StemHeightP50   float64 `csv:"stem_height_p50"`
	StemHeightP90   float64 `csv:"stem_height_p90"`
	CrownRadiusMean float64 `csv:"crown_radius_mean"`
	TotalVolume     float64 `csv:"total_volume"`

	// Competition
	AboveCMean float64 `csv:"above_c_mean"`
	BelowCMean float64 `csv:"below_c_mean"`

	// Spatial pattern: < 1 clustered, 1 random, > 1 regular
	ClarkEvans float64 `csv:"clark_evans"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution calculates mean and percentiles of values.
func ComputeDistribution(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	mean = stat.Mean(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, p10, p50, p90
}

// ClarkEvans returns the aggregation index of the trees' stem positions over
// an area: the mean nearest-neighbour distance divided by the one expected
// under complete spatial randomness. Returns 0 with fewer than two trees or
// an empty area.
func ClarkEvans(trees []flora.TreeState, area float64) float64 {
	n := len(trees)
	if n < 2 || area <= 0 {
		return 0
	}

	pts := make(kdtree.Points, n)
	for i, s := range trees {
		pts[i] = kdtree.Point{s.Position.X, s.Position.Y}
	}
	// kdtree.New reorders its input
	tree := kdtree.New(append(kdtree.Points(nil), pts...), false)

	var sum float64
	for _, p := range pts {
		keep := kdtree.NewNKeeper(2)
		tree.NearestSet(keep, p)

		dists := make([]float64, 0, 2)
		for _, c := range keep.Heap {
			if c.Comparable != nil {
				dists = append(dists, c.Dist)
			}
		}
		sort.Float64s(dists)
		// dists[0] is the query point itself
		sum += math.Sqrt(dists[1])
	}

	observed := sum / float64(n)
	expected := 0.5 / math.Sqrt(float64(n)/area)
	return observed / expected
}

// PlanarArea returns the x-y extent of the land's bounding box.
func PlanarArea(l *land.Land) float64 {
	lo, hi := l.Bounds()
	return (hi.X - lo.X) * (hi.Y - lo.Y)
}

// Summarize computes population statistics from a snapshot. Event counters
// are left for the caller.
func Summarize(tick int, simTime float64, trees []flora.TreeState, area float64) PopulationStats {
	s := PopulationStats{Tick: tick, SimTime: simTime, Trees: len(trees)}
	if len(trees) == 0 {
		return s
	}

	heights := make([]float64, len(trees))
	crowns := make([]float64, len(trees))
	volumes := make([]float64, len(trees))
	above := make([]float64, len(trees))
	below := make([]float64, len(trees))
	for i, st := range trees {
		t := st.Tree
		switch t.Species {
		case species.Avicennia:
			s.Avicennia++
		case species.Rhizophora:
			s.Rhizophora++
		}
		heights[i] = t.StemHeight
		crowns[i] = t.CrownRadius
		volumes[i] = t.Volumes.Total
		above[i] = t.AboveCoefficient
		below[i] = t.BelowCoefficient
	}

	s.StemHeightMean, s.StemHeightP10, s.StemHeightP50, s.StemHeightP90 = ComputeDistribution(heights)
	s.CrownRadiusMean = stat.Mean(crowns, nil)
	s.TotalVolume = floats.Sum(volumes)
	s.AboveCMean = stat.Mean(above, nil)
	s.BelowCMean = stat.Mean(below, nil)
	s.ClarkEvans = ClarkEvans(trees, area)

	return s
}

// Collect gathers the statistics of the population's latest tick.
func Collect(tick int, simTime float64, f *flora.Flora) PopulationStats {
	s := Summarize(tick, simTime, f.Snapshot(), PlanarArea(f.Land()))
	s.Recruited, s.Dropped = f.Recruited()
	s.Died = len(f.Dead())
	s.DeadTotal = f.DeadTotal()
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s PopulationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("tick", s.Tick),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("trees", s.Trees),
		slog.Int("avicennia", s.Avicennia),
		slog.Int("rhizophora", s.Rhizophora),
		slog.Int("recruited", s.Recruited),
		slog.Int("dropped", s.Dropped),
		slog.Int("died", s.Died),
		slog.Int("dead_total", s.DeadTotal),
		slog.Float64("stem_height_mean", s.StemHeightMean),
		slog.Float64("stem_height_p50", s.StemHeightP50),
		slog.Float64("stem_height_p90", s.StemHeightP90),
		slog.Float64("crown_radius_mean", s.CrownRadiusMean),
		slog.Float64("total_volume", s.TotalVolume),
		slog.Float64("above_c_mean", s.AboveCMean),
		slog.Float64("below_c_mean", s.BelowCMean),
		slog.Float64("clark_evans", s.ClarkEvans),
	)
}

// LogStats logs the population stats.
func (s PopulationStats) LogStats(logger *slog.Logger) {
	logger.Info("stats", "population", s)
}
