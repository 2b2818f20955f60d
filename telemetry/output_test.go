package telemetry

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/bettina/components"
	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/flora"
	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
)

// newTestFlora returns a population of two trees on a 10x10 grid.
func newTestFlora(t *testing.T) *flora.Flora {
	t.Helper()
	terrain, err := land.NewGridTerrain(config.LandConfig{Width: 10, Height: 10, Spacing: 1})
	if err != nil {
		t.Fatal(err)
	}
	l, err := land.New(terrain)
	if err != nil {
		t.Fatal(err)
	}
	f, err := flora.New(l, config.Default(), species.DefaultCatalog(), rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.Close)

	if _, err := f.Plant(species.Avicennia, components.Position{X: 2, Y: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Plant(species.Rhizophora, components.Position{X: 7, Y: 7}); err != nil {
		t.Fatal(err)
	}
	if err := f.StepCompetition(); err != nil {
		t.Fatal(err)
	}
	return f
}

func newTestFrame(t *testing.T, tick int, f *flora.Flora) Frame {
	t.Helper()
	frame, err := NewFrame(tick, f, Collect(tick, float64(tick), f))
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestNewOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("expected nil manager for empty dir")
	}

	// Every method is a no-op on nil
	if err := om.Export(context.Background(), Frame{}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 1); err != nil {
		t.Error(err)
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Error(err)
	}
	if om.Dir() != "" {
		t.Error("nil manager has a dir")
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManager_Export(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	f := newTestFlora(t)
	for tick := 1; tick <= 2; tick++ {
		if err := om.Export(context.Background(), newTestFrame(t, tick, f)); err != nil {
			t.Fatalf("export tick %d: %v", tick, err)
		}
	}
	if err := om.WritePerf(PerfStats{}, 2); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FloraCSV))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "tick,id,species"); n != 1 {
		t.Errorf("flora.csv has %d headers, want 1", n)
	}

	var trees []TreeRecord
	if err := gocsv.UnmarshalBytes(data, &trees); err != nil {
		t.Fatal(err)
	}
	if len(trees) != 4 {
		t.Fatalf("flora.csv has %d rows, want 4", len(trees))
	}
	if trees[0].Tick != 1 || trees[0].ID != 1 || trees[0].Species != "avicennia" {
		t.Errorf("first row = %+v", trees[0])
	}
	if trees[3].Tick != 2 || trees[3].ID != 2 || trees[3].Species != "rhizophora" {
		t.Errorf("last row = %+v", trees[3])
	}

	landFile, err := os.Open(filepath.Join(dir, LandCSV))
	if err != nil {
		t.Fatal(err)
	}
	defer landFile.Close()
	var nodes []LandRecord
	if err := gocsv.Unmarshal(landFile, &nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2*f.Land().Len() {
		t.Errorf("land.csv has %d rows, want %d", len(nodes), 2*f.Land().Len())
	}

	for _, name := range []string{StatsCSV, PerfCSV, "config.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestLandRecords_ReflectOwnership(t *testing.T) {
	f := newTestFlora(t)
	records, err := LandRecords(3, f.Land())
	if err != nil {
		t.Fatal(err)
	}

	owners := map[float64]int{}
	for _, r := range records {
		if r.Tick != 3 {
			t.Fatalf("record tick = %d", r.Tick)
		}
		owners[r.Owner]++
	}
	if owners[1] == 0 || owners[2] == 0 {
		t.Errorf("owner counts = %v, want both trees to own locations", owners)
	}
}

func TestMultiExporter(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	a, err := NewOutputManager(dirA)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewOutputManager(dirB)
	if err != nil {
		t.Fatal(err)
	}

	m := MultiExporter{a, b}
	if err := m.Export(context.Background(), newTestFrame(t, 1, newTestFlora(t))); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{dirA, dirB} {
		info, err := os.Stat(filepath.Join(dir, StatsCSV))
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() == 0 {
			t.Errorf("%s: empty stats.csv", dir)
		}
	}
}
