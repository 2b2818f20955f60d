package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}

	if cfg.Model.GrowthLimitCoefficient != 50 {
		t.Errorf("growth_limit_coefficient = %v, want 50", cfg.Model.GrowthLimitCoefficient)
	}
	if cfg.Model.SizeFactor != 4 {
		t.Errorf("size_factor = %v, want 4", cfg.Model.SizeFactor)
	}
	if cfg.Simulation.PhaseOrder != PhaseOrderCompetitionFirst {
		t.Errorf("phase_order = %q, want %q", cfg.Simulation.PhaseOrder, PhaseOrderCompetitionFirst)
	}
	if !cfg.Derived.CSV || cfg.Derived.SQLite {
		t.Errorf("derived formats = %+v, want csv only", cfg.Derived)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	overlay := []byte("simulation:\n  ticks: 7\n  phase_order: recruitment_first\nexport:\n  formats: [csv, sqlite]\n")
	if err := os.WriteFile(path, overlay, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Simulation.Ticks != 7 {
		t.Errorf("ticks = %d, want 7", cfg.Simulation.Ticks)
	}
	if cfg.Simulation.PhaseOrder != PhaseOrderRecruitmentFirst {
		t.Errorf("phase_order = %q", cfg.Simulation.PhaseOrder)
	}
	// Untouched keys keep their defaults
	if cfg.Model.KGrow != 0.1 {
		t.Errorf("k_grow = %v, want default 0.1", cfg.Model.KGrow)
	}
	if !cfg.Derived.SQLite || !cfg.Derived.CSV {
		t.Errorf("derived formats = %+v, want both", cfg.Derived)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"phase order", func(c *Config) { c.Simulation.PhaseOrder = "die_first" }},
		{"time step", func(c *Config) { c.Simulation.TimeStep = 0 }},
		{"spacing", func(c *Config) { c.Land.Spacing = 0 }},
		{"size factor", func(c *Config) { c.Model.SizeFactor = 0 }},
		{"search increment", func(c *Config) { c.Model.SearchRadiusIncrement = 1 }},
		{"negative death threshold", func(c *Config) { c.Model.DeathThreshold = -0.1 }},
		{"negative below ground floor", func(c *Config) { c.Model.BelowGroundFloor = -1 }},
		{"negative seed spread", func(c *Config) { c.Model.SeedSpreadFactor = -1 }},
		{"placement", func(c *Config) { c.Population.Placement = "spiral" }},
		{"fixed without sites", func(c *Config) {
			c.Population.Placement = PlacementFixed
			c.Population.Sites = nil
		}},
		{"export format", func(c *Config) { c.Export.Formats = []string{"vtu"} }},
		{"export interval", func(c *Config) { c.Export.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Simulation.Seed = 99

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load snapshot failed: %v", err)
	}
	if loaded.Simulation.Seed != 99 {
		t.Errorf("seed = %d, want 99", loaded.Simulation.Seed)
	}
}

func TestValidateReportsFirstModelFailure(t *testing.T) {
	for i := 0; i < 20; i++ {
		cfg := Default()
		cfg.Model.KGeom = 0
		cfg.Model.VicinityRadius = 0
		cfg.Model.DeathThreshold = -1

		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "model.k_geom") {
			t.Fatalf("Validate() = %v, want model.k_geom reported first", err)
		}
	}
}
