// Package sim owns the tick loop: it builds the land and the founder
// population from configuration, runs the phases in the configured order and
// hands snapshots to the exporters.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/flora"
	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
	"github.com/pthm-cable/bettina/telemetry"
)

// SQLiteFile is the database name used inside the output directory.
const SQLiteFile = "bettina.db"

// Options holds the run settings that do not live in the config file.
type Options struct {
	Seed          int64                               // Overrides simulation.seed when non-zero
	OutputDir     string                              // Overrides export.dir when set
	LogStats      bool                                // Log population stats every log interval
	Catalog       species.Catalog                     // nil = built-in tables overlaid by the config species section
	StatsCallback func(stats telemetry.PopulationStats) // Called with every collected stats record
}

// Sim holds the complete simulation state.
type Sim struct {
	cfg   *config.Config
	flora *flora.Flora
	log   *slog.Logger

	rngSeed int64

	// Telemetry
	perf          *telemetry.PerfCollector
	output        *telemetry.OutputManager
	exporters     telemetry.MultiExporter
	logStats      bool
	statsCallback func(stats telemetry.PopulationStats)

	// State
	tick    int
	simTime float64
	alive   bool
}

// New builds the land, seeds the founders and opens the configured
// exporters. Any failure here is a configuration error.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Sim, error) {
	if logger == nil {
		logger = slog.Default()
	}

	terrain, err := loadTerrain(cfg.Land)
	if err != nil {
		return nil, err
	}
	l, err := land.New(terrain)
	if err != nil {
		return nil, fmt.Errorf("building land: %w", err)
	}

	rngSeed := opts.Seed
	if rngSeed == 0 {
		rngSeed = cfg.Simulation.Seed
	}
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog, err = species.DefaultCatalog().WithOverrides(cfg.Species)
		if err != nil {
			return nil, fmt.Errorf("species tables: %w", err)
		}
	}

	f, err := flora.New(l, cfg, catalog, rand.New(rand.NewSource(rngSeed)), logger)
	if err != nil {
		return nil, err
	}

	s := &Sim{
		cfg:           cfg,
		flora:         f,
		log:           logger,
		rngSeed:       rngSeed,
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
		alive:         true,
	}

	placement, err := flora.PlacementFromConfig(cfg.Population)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := f.SeedInitialPopulation(placement, cfg.Population.Initial); err != nil {
		s.Close()
		return nil, err
	}

	dir := cfg.Export.Dir
	if opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	if err := s.openExporters(ctx, dir); err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("simulation ready",
		"seed", rngSeed,
		"locations", l.Len(),
		"min_spacing", l.MinSpacing(),
		"trees", f.Len(),
		"phase_order", cfg.Simulation.PhaseOrder,
		"output_dir", dir,
	)
	return s, nil
}

func loadTerrain(cfg config.LandConfig) (land.Terrain, error) {
	if cfg.TerrainFile == "" {
		return land.NewGridTerrain(cfg)
	}
	file, err := os.Open(cfg.TerrainFile)
	if err != nil {
		return land.Terrain{}, fmt.Errorf("opening terrain file: %w", err)
	}
	defer file.Close()

	terrain, err := land.LoadTerrainCSV(file)
	if err != nil {
		return land.Terrain{}, fmt.Errorf("terrain file %s: %w", cfg.TerrainFile, err)
	}
	return terrain, nil
}

func (s *Sim) openExporters(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}

	if s.cfg.Derived.CSV {
		om, err := telemetry.NewOutputManager(dir)
		if err != nil {
			return err
		}
		s.output = om
		s.exporters = append(s.exporters, om)
		if err := om.WriteConfig(s.cfg); err != nil {
			return err
		}
	}

	if s.cfg.Derived.SQLite {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		store := telemetry.NewSQLiteStore(filepath.Join(dir, SQLiteFile))
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("opening sqlite export: %w", err)
		}
		s.exporters = append(s.exporters, store)
	}
	return nil
}

// Step runs one tick and reports whether any tree is still alive. A halted
// simulation does nothing.
func (s *Sim) Step(ctx context.Context) (bool, error) {
	if !s.alive {
		return false, nil
	}

	s.perf.StartTick()

	var err error
	switch s.cfg.Simulation.PhaseOrder {
	case config.PhaseOrderRecruitmentFirst:
		if err = s.recruitment(); err == nil {
			err = s.competition()
		}
	default:
		if err = s.competition(); err == nil {
			err = s.recruitment()
		}
	}
	if err != nil {
		return false, fmt.Errorf("tick %d: %w", s.tick, err)
	}

	s.perf.StartPhase(telemetry.PhaseGrowth)
	if err := s.flora.StepGrowth(s.cfg.Simulation.TimeStep); err != nil {
		return false, fmt.Errorf("tick %d: growth: %w", s.tick, err)
	}

	s.perf.StartPhase(telemetry.PhaseDeath)
	alive, err := s.flora.StepDeath()
	if err != nil {
		return false, fmt.Errorf("tick %d: death: %w", s.tick, err)
	}
	s.alive = alive

	s.tick++
	s.simTime += s.cfg.Simulation.TimeStep

	s.perf.StartPhase(telemetry.PhaseExport)
	if err := s.flushTelemetry(ctx); err != nil {
		return false, fmt.Errorf("tick %d: %w", s.tick, err)
	}
	s.perf.EndTick()

	if s.tick%s.cfg.Telemetry.LogInterval == 0 {
		s.logPerfStats()
	}

	if !s.alive {
		s.log.Info("population extinct", "tick", s.tick, "dead_total", s.flora.DeadTotal())
	}
	return s.alive, nil
}

func (s *Sim) competition() error {
	s.perf.StartPhase(telemetry.PhaseCompetition)
	if err := s.flora.StepCompetition(); err != nil {
		return fmt.Errorf("competition: %w", err)
	}
	return nil
}

func (s *Sim) recruitment() error {
	s.perf.StartPhase(telemetry.PhaseRecruitment)
	if _, err := s.flora.StepRecruitment(); err != nil {
		return fmt.Errorf("recruitment: %w", err)
	}
	return nil
}

// Run steps until the horizon is reached, the population dies out or ctx is
// cancelled. A zero horizon runs until extinction.
func (s *Sim) Run(ctx context.Context) error {
	horizon := s.cfg.Simulation.Ticks
	for horizon == 0 || s.tick < horizon {
		if err := ctx.Err(); err != nil {
			return err
		}
		alive, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if !alive {
			return nil
		}
	}
	s.log.Info("horizon reached", "tick", s.tick, "trees", s.flora.Len())
	return nil
}

// Close stops the worker pool and closes all exporters. Later calls are
// no-ops.
func (s *Sim) Close() error {
	s.flora.Close()
	err := s.exporters.Close()
	s.exporters, s.output = nil, nil
	return err
}

// Tick returns the number of completed ticks.
func (s *Sim) Tick() int { return s.tick }

// Seed returns the seed the run uses.
func (s *Sim) Seed() int64 { return s.rngSeed }

// Alive reports whether the population is still running.
func (s *Sim) Alive() bool { return s.alive }

// Flora returns the simulated population.
func (s *Sim) Flora() *flora.Flora { return s.flora }
