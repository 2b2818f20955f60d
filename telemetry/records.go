package telemetry

import (
	"github.com/pthm-cable/bettina/flora"
	"github.com/pthm-cable/bettina/land"
)

// TreeRecord is one row of flora output: the state of a tree at the end of
// a tick.
type TreeRecord struct {
	Tick    int     `csv:"tick"`
	ID      uint64  `csv:"id"`
	Species string  `csv:"species"`
	X       float64 `csv:"x"`
	Y       float64 `csv:"y"`
	Z       float64 `csv:"z"`
	Age     float64 `csv:"age"`

	StemRadius  float64 `csv:"stem_radius"`
	StemHeight  float64 `csv:"stem_height"`
	CrownRadius float64 `csv:"crown_radius"`
	CrownHeight float64 `csv:"crown_height"`
	RootRadius  float64 `csv:"root_radius"`
	RootDepth   float64 `csv:"root_depth"`

	LeafVolume      float64 `csv:"leaf_volume"`
	BranchVolume    float64 `csv:"branch_volume"`
	StemVolume      float64 `csv:"stem_volume"`
	CableRootVolume float64 `csv:"cable_root_volume"`
	FineRootVolume  float64 `csv:"fine_root_volume"`
	TotalVolume     float64 `csv:"total_volume"`

	RadialResistance  float64 `csv:"r1"`
	LateralResistance float64 `csv:"r2"`

	AboveResources     float64 `csv:"above_resources"`
	BelowResources     float64 `csv:"below_resources"`
	AvailableResources float64 `csv:"available_resources"`

	WeightStemHeight  float64 `csv:"w_stem_height"`
	WeightCrownRadius float64 `csv:"w_crown_radius"`
	WeightRootRadius  float64 `csv:"w_root_radius"`
	WeightStemRadius  float64 `csv:"w_stem_radius"`

	Growth         float64 `csv:"growth"`
	IncStemHeight  float64 `csv:"inc_stem_height"`
	IncCrownRadius float64 `csv:"inc_crown_radius"`
	IncRootRadius  float64 `csv:"inc_root_radius"`
	IncStemRadius  float64 `csv:"inc_stem_radius"`

	AboveCoefficient float64 `csv:"above_c"`
	BelowCoefficient float64 `csv:"below_c"`
	Substeps         int     `csv:"substeps"`
	Seeds            int     `csv:"seeds"`
	Dead             bool    `csv:"dead"`
	NearestNode      int     `csv:"nearest_node"`
}

// LandRecord is one row of land output: the fields of one location.
type LandRecord struct {
	Tick       int     `csv:"tick"`
	NodeID     int     `csv:"node_id"`
	X          float64 `csv:"x"`
	Y          float64 `csv:"y"`
	Z          float64 `csv:"z"`
	Salinity   float64 `csv:"salinity"`
	Owner      float64 `csv:"above_ground_owner"`
	BelowCount float64 `csv:"below_ground_count"`
}

// TreeRecords flattens a population snapshot.
func TreeRecords(tick int, trees []flora.TreeState) []TreeRecord {
	out := make([]TreeRecord, len(trees))
	for i, s := range trees {
		t := s.Tree
		out[i] = TreeRecord{
			Tick:    tick,
			ID:      t.ID,
			Species: t.Species.String(),
			X:       s.Position.X,
			Y:       s.Position.Y,
			Z:       s.Position.Z,
			Age:     t.Age,

			StemRadius:  t.StemRadius,
			StemHeight:  t.StemHeight,
			CrownRadius: t.CrownRadius,
			CrownHeight: t.CrownHeight,
			RootRadius:  t.RootRadius,
			RootDepth:   t.RootDepth,

			LeafVolume:      t.Volumes.Leaf,
			BranchVolume:    t.Volumes.Branch,
			StemVolume:      t.Volumes.Stem,
			CableRootVolume: t.Volumes.CableRoot,
			FineRootVolume:  t.Volumes.FineRoot,
			TotalVolume:     t.Volumes.Total,

			RadialResistance:  t.RadialResistance,
			LateralResistance: t.LateralResistance,

			AboveResources:     t.Resources.Above,
			BelowResources:     t.Resources.Below,
			AvailableResources: t.Resources.Available,

			WeightStemHeight:  t.Weights.StemHeight,
			WeightCrownRadius: t.Weights.CrownRadius,
			WeightRootRadius:  t.Weights.RootRadius,
			WeightStemRadius:  t.Weights.StemRadius,

			Growth:         t.Growth,
			IncStemHeight:  t.Increments.StemHeight,
			IncCrownRadius: t.Increments.CrownRadius,
			IncRootRadius:  t.Increments.RootRadius,
			IncStemRadius:  t.Increments.StemRadius,

			AboveCoefficient: t.AboveCoefficient,
			BelowCoefficient: t.BelowCoefficient,
			Substeps:         t.Substeps,
			Seeds:            t.Seeds,
			Dead:             t.Dead,
			NearestNode:      t.NearestNode,
		}
	}
	return out
}

// LandRecords flattens the land's required fields for every location.
func LandRecords(tick int, l *land.Land) ([]LandRecord, error) {
	sal, err := l.Field(land.FieldSalinity)
	if err != nil {
		return nil, err
	}
	owner, err := l.Field(land.FieldAboveGroundOwner)
	if err != nil {
		return nil, err
	}
	below, err := l.Field(land.FieldBelowGroundCount)
	if err != nil {
		return nil, err
	}

	out := make([]LandRecord, l.Len())
	for i := range out {
		p, err := l.Point(i)
		if err != nil {
			return nil, err
		}
		out[i] = LandRecord{
			Tick:       tick,
			NodeID:     i,
			X:          p.X,
			Y:          p.Y,
			Z:          p.Z,
			Salinity:   sal[i],
			Owner:      owner[i],
			BelowCount: below[i],
		}
	}
	return out, nil
}
