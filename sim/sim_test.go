package sim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/species"
	"github.com/pthm-cable/bettina/telemetry"
)

// smallConfig returns a 10x10 grid with four founders.
func smallConfig() *config.Config {
	return shrink(config.Default())
}

// loadSmallConfig loads a YAML file holding doc and shrinks it like smallConfig.
func loadSmallConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return shrink(cfg)
}

func shrink(cfg *config.Config) *config.Config {
	cfg.Simulation.Ticks = 3
	cfg.Land.Width, cfg.Land.Height = 10, 10
	cfg.Population.Initial = 4
	cfg.Population.Placement = config.PlacementGrid
	cfg.Population.MinX, cfg.Population.MinY = 0, 0
	cfg.Population.MaxX, cfg.Population.MaxY = 10, 10
	cfg.Export.Interval = 1
	cfg.Telemetry.LogInterval = 1
	return cfg
}

func newSim(t *testing.T, cfg *config.Config, opts Options) *Sim {
	t.Helper()
	s, err := New(context.Background(), cfg, opts, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func starvingCatalog() species.Catalog {
	catalog := species.DefaultCatalog()
	for _, sp := range species.All {
		tab := catalog[sp]
		tab.MaintenanceFactor = 100
		catalog[sp] = tab
	}
	return catalog
}

// ---------- construction ----------

func TestNew_SeedsFounders(t *testing.T) {
	s := newSim(t, smallConfig(), Options{Seed: 7})
	if s.Seed() != 7 {
		t.Errorf("Seed = %d, want 7", s.Seed())
	}
	if s.Flora().Len() != 4 {
		t.Errorf("founders = %d, want 4", s.Flora().Len())
	}
	if s.Tick() != 0 || !s.Alive() {
		t.Errorf("tick %d alive %v", s.Tick(), s.Alive())
	}
}

func TestNew_TerrainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.csv")
	data := "node_id,x,y,z,salinity\n0,0,0,0,0\n1,1,0,0,0\n2,0,1,0,0\n3,1,1,0,0\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := smallConfig()
	cfg.Land.TerrainFile = path
	cfg.Population.Placement = config.PlacementFixed
	cfg.Population.Sites = []config.SiteConfig{{X: 0.5, Y: 0.5, Species: "avicennia"}}

	s := newSim(t, cfg, Options{Seed: 1})
	if n := s.Flora().Land().Len(); n != 4 {
		t.Errorf("locations = %d, want 4", n)
	}
	if s.Flora().Len() != 1 {
		t.Errorf("founders = %d, want 1", s.Flora().Len())
	}
}

func TestNew_MissingTerrainFile(t *testing.T) {
	cfg := smallConfig()
	cfg.Land.TerrainFile = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := New(context.Background(), cfg, Options{Seed: 1}, nil); err == nil {
		t.Fatal("expected error for missing terrain file")
	}
}

func TestNew_SpeciesSectionOverlaysTables(t *testing.T) {
	cfg := loadSmallConfig(t, "species:\n  avicennia:\n    maintenance_factor: 100\n  rhizophora:\n    maintenance_factor: 100\n")
	cfg.Simulation.Ticks = 0
	s := newSim(t, cfg, Options{Seed: 1})

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Alive() || s.Tick() != 1 {
		t.Errorf("alive %v at tick %d, want the configured maintenance to starve every tree at tick 1", s.Alive(), s.Tick())
	}
}

func TestNew_InvalidSpeciesSection(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"bad constant", "species:\n  avicennia:\n    crown_radius: 0\n", species.ErrInvalidTable},
		{"unknown species", "species:\n  sonneratia:\n    crown_radius: 1\n", species.ErrUnknownSpecies},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadSmallConfig(t, tt.doc)
			if _, err := New(context.Background(), cfg, Options{Seed: 1}, nil); !errors.Is(err, tt.want) {
				t.Errorf("New = %v, want %v", err, tt.want)
			}
		})
	}
}

// ---------- tick loop ----------

func TestRun_ReachesHorizon(t *testing.T) {
	var collected []telemetry.PopulationStats
	s := newSim(t, smallConfig(), Options{
		Seed:          3,
		StatsCallback: func(st telemetry.PopulationStats) { collected = append(collected, st) },
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Tick() != 3 {
		t.Errorf("Tick = %d, want 3", s.Tick())
	}
	if len(collected) != 3 {
		t.Fatalf("collected %d stats, want 3", len(collected))
	}
	for i, st := range collected {
		if st.Tick != i+1 {
			t.Errorf("stats[%d].Tick = %d", i, st.Tick)
		}
	}
}

func TestRun_HaltsOnExtinction(t *testing.T) {
	cfg := smallConfig()
	cfg.Simulation.Ticks = 0
	s := newSim(t, cfg, Options{Seed: 1, Catalog: starvingCatalog()})

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Alive() || s.Tick() != 1 {
		t.Errorf("alive %v at tick %d, want extinct at tick 1", s.Alive(), s.Tick())
	}

	alive, err := s.Step(context.Background())
	if err != nil || alive || s.Tick() != 1 {
		t.Errorf("Step after halt: alive %v err %v tick %d", alive, err, s.Tick())
	}
}

func TestRun_Cancelled(t *testing.T) {
	s := newSim(t, smallConfig(), Options{Seed: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if s.Tick() != 0 {
		t.Errorf("Tick = %d, want 0", s.Tick())
	}
}

func TestStep_PhaseOrders(t *testing.T) {
	for _, order := range []string{config.PhaseOrderCompetitionFirst, config.PhaseOrderRecruitmentFirst} {
		t.Run(order, func(t *testing.T) {
			cfg := smallConfig()
			cfg.Simulation.PhaseOrder = order
			s := newSim(t, cfg, Options{Seed: 5})

			alive, err := s.Step(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if !alive {
				t.Fatal("population died in the first tick")
			}
			for _, st := range s.Flora().Snapshot() {
				if st.Tree.AboveCoefficient <= 0 || st.Tree.BelowCoefficient <= 0 {
					t.Errorf("tree %d coefficients %v %v", st.Tree.ID, st.Tree.AboveCoefficient, st.Tree.BelowCoefficient)
				}
			}
		})
	}
}

// ---------- export ----------

func TestRun_ExportsCSVAndSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()
	cfg.Derived.SQLite = true

	s := newSim(t, cfg, Options{Seed: 2, OutputDir: dir})
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{telemetry.FloraCSV, telemetry.LandCSV, telemetry.StatsCSV, telemetry.PerfCSV, "config.yaml"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	store := telemetry.NewSQLiteStore(filepath.Join(dir, SQLiteFile))
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	stats, ok, err := store.GetStats(context.Background(), 3)
	if err != nil || !ok {
		t.Fatalf("stats for tick 3: ok=%v err=%v", ok, err)
	}
	if stats.Trees != s.Flora().Len() {
		t.Errorf("stored trees = %d, want %d", stats.Trees, s.Flora().Len())
	}
}

func TestRun_ExportsFinalTickOnExtinction(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()
	cfg.Simulation.Ticks = 0
	cfg.Export.Interval = 100

	s := newSim(t, cfg, Options{Seed: 1, OutputDir: dir, Catalog: starvingCatalog()})
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, telemetry.StatsCSV))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("final tick of an extinct population was not exported")
	}
}
