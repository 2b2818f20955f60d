package land

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/bettina/config"
)

// Terrain is the input a Land is built from: a fixed set of locations plus
// named scalar fields indexed 1:1 with them.
type Terrain struct {
	Points []Point
	Fields map[string][]float64

	// MinSpacing is the smallest distance between two locations. Zero means
	// derive it from the points.
	MinSpacing float64
}

// NewFieldSet returns the required competition fields for n locations with
// the given salinity, owner unset and counters cleared.
func NewFieldSet(n int, salinity func(i int) float64) map[string][]float64 {
	sal := make([]float64, n)
	owner := make([]float64, n)
	count := make([]float64, n)
	for i := range n {
		sal[i] = salinity(i)
		owner[i] = NoOwner
	}
	return map[string][]float64{
		FieldSalinity:         sal,
		FieldAboveGroundOwner: owner,
		FieldBelowGroundCount: count,
	}
}

// NewGridTerrain generates a regular grid covering [0,Width]×[0,Height] with
// salinity rising linearly along x.
func NewGridTerrain(cfg config.LandConfig) (Terrain, error) {
	if cfg.Spacing <= 0 {
		return Terrain{}, fmt.Errorf("grid spacing %v: %w", cfg.Spacing, ErrEmptyTerrain)
	}
	nx := int(math.Floor(cfg.Width/cfg.Spacing)) + 1
	ny := int(math.Floor(cfg.Height/cfg.Spacing)) + 1

	points := make([]Point, 0, nx*ny)
	for j := range ny {
		for i := range nx {
			points = append(points, Point{X: float64(i) * cfg.Spacing, Y: float64(j) * cfg.Spacing})
		}
	}

	fields := NewFieldSet(len(points), func(i int) float64 {
		s := cfg.Salinity + cfg.SalinityGradient*points[i].X
		return math.Max(s, 0)
	})

	t := Terrain{Points: points, Fields: fields}
	if len(points) > 1 {
		t.MinSpacing = cfg.Spacing
	}
	return t, nil
}

// nodeRecord is one row of a terrain CSV file.
type nodeRecord struct {
	NodeID   int     `csv:"node_id"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Z        float64 `csv:"z"`
	Salinity float64 `csv:"salinity"`
}

// terrainColumns are the columns every terrain CSV must carry.
var terrainColumns = []string{"node_id", "x", "y", "z", "salinity"}

// LoadTerrainCSV reads a node table with columns node_id,x,y,z,salinity.
// Rows may appear in any order; node ids must be dense from 0.
func LoadTerrainCSV(r io.Reader) (Terrain, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Terrain{}, fmt.Errorf("reading terrain csv: %w", err)
	}
	if err := checkTerrainHeader(data); err != nil {
		return Terrain{}, err
	}

	var rows []nodeRecord
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return Terrain{}, fmt.Errorf("reading terrain csv: %w", err)
	}
	if len(rows) == 0 {
		return Terrain{}, ErrEmptyTerrain
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].NodeID < rows[j].NodeID })
	points := make([]Point, len(rows))
	for i, row := range rows {
		if row.NodeID != i {
			return Terrain{}, fmt.Errorf("terrain csv: node ids must be dense from 0, found %d at position %d: %w",
				row.NodeID, i, ErrOutOfRange)
		}
		points[i] = Point{X: row.X, Y: row.Y, Z: row.Z}
	}

	return Terrain{
		Points: points,
		Fields: NewFieldSet(len(rows), func(i int) float64 { return rows[i].Salinity }),
	}, nil
}

// checkTerrainHeader fails with ErrMissingField for the first required
// column the header lacks. gocsv leaves unmatched fields at zero otherwise.
func checkTerrainHeader(data []byte) error {
	header, err := gocsv.DefaultCSVReader(bytes.NewReader(data)).Read()
	if errors.Is(err, io.EOF) {
		return ErrEmptyTerrain
	}
	if err != nil {
		return fmt.Errorf("reading terrain csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	for _, name := range terrainColumns {
		if !slices.Contains(header, name) {
			return fmt.Errorf("terrain csv column %q: %w", name, ErrMissingField)
		}
	}
	return nil
}
