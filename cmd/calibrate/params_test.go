package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/sim"
	"github.com/pthm-cable/bettina/species"
)

func TestParamVector_NormalizeRoundTrip(t *testing.T) {
	table, _ := species.DefaultCatalog().Table(species.Avicennia)
	pv := NewParamVector(table)

	raw := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-12 {
			t.Errorf("%s: %v -> %v", pv.Specs[i].Name, raw[i], back[i])
		}
	}
}

func TestParamVector_ApplyClamps(t *testing.T) {
	table, _ := species.DefaultCatalog().Table(species.Rhizophora)
	pv := NewParamVector(table)

	got := pv.ApplyToTable(table, []float64{5, -1})
	if got.HalfMaxHeightGrowthWeight != pv.Specs[0].Max {
		t.Errorf("half max weight = %v, want %v", got.HalfMaxHeightGrowthWeight, pv.Specs[0].Max)
	}
	if got.MaintenanceFactor != pv.Specs[1].Min {
		t.Errorf("maintenance = %v, want %v", got.MaintenanceFactor, pv.Specs[1].Min)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("applied table invalid: %v", err)
	}

	extracted := pv.ExtractFromTable(got)
	if extracted[0] != got.HalfMaxHeightGrowthWeight || extracted[1] != got.MaintenanceFactor {
		t.Errorf("ExtractFromTable = %v", extracted)
	}
}

func TestFitnessEvaluator_SingleTreeRun(t *testing.T) {
	cfg := config.Default()
	cfg.Land.Width, cfg.Land.Height = 10, 10
	cfg.Population.MinX, cfg.Population.MinY = 0, 0
	cfg.Population.MaxX, cfg.Population.MaxY = 10, 10

	table, _ := species.DefaultCatalog().Table(species.Avicennia)
	pv := NewParamVector(table)
	fe := NewFitnessEvaluator(pv, species.Avicennia, table, 5, 1, cfg)

	fitness := fe.Evaluate(pv.DefaultVector())
	height, survival := fe.LastRun()
	if survival != 5 {
		t.Fatalf("default tree survived %d ticks, want 5", survival)
	}
	if height <= table.StemHeight {
		t.Errorf("final height %v did not grow from %v", height, table.StemHeight)
	}
	if fitness <= 0 || fitness >= failedFitness {
		t.Errorf("fitness = %v", fitness)
	}
}

func TestComputeFitness(t *testing.T) {
	fe := &FitnessEvaluator{ticks: 10, targetHeight: 2}

	tests := []struct {
		name string
		r    runResult
		want float64
	}{
		{"on target", runResult{finalHeight: 2, survivalTicks: 10}, 0},
		{"half height", runResult{finalHeight: 1, survivalTicks: 10}, 0.25},
		{"died halfway on target", runResult{finalHeight: 2, survivalTicks: 5}, 0.5},
		{"never grew", runResult{finalHeight: 0, survivalTicks: 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fe.computeFitness(&tt.r); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("computeFitness = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBestSpeciesYAML_LoadsAsConfig(t *testing.T) {
	table, _ := species.DefaultCatalog().Table(species.Rhizophora)
	table.MaintenanceFactor = 0.9

	data, err := bestSpeciesYAML(species.Rhizophora, table)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "best_species.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	catalog, err := species.DefaultCatalog().WithOverrides(cfg.Species)
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	if catalog[species.Rhizophora] != table {
		t.Errorf("reloaded table = %+v, want %+v", catalog[species.Rhizophora], table)
	}

	cfg.Land.Width, cfg.Land.Height = 10, 10
	cfg.Population.Initial = 1
	cfg.Population.Placement = config.PlacementFixed
	cfg.Population.Sites = []config.SiteConfig{{X: 5, Y: 5, Species: "rhizophora"}}
	s, err := sim.New(context.Background(), cfg, sim.Options{Seed: 1}, nil)
	if err != nil {
		t.Fatalf("sim.New with calibrated table: %v", err)
	}
	_ = s.Close()
}
