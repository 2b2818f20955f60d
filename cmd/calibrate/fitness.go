package main

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/sim"
	"github.com/pthm-cable/bettina/species"
)

// failedFitness is returned when a candidate cannot even be simulated.
const failedFitness = 1e9

// FitnessEvaluator runs single-tree simulations and scores the final stem
// height against a target.
type FitnessEvaluator struct {
	params       *ParamVector
	species      species.Species
	baseTable    species.Table
	ticks        int
	targetHeight float64
	baseConfig   *config.Config

	mu           sync.Mutex
	lastHeight   float64
	lastSurvival int
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, sp species.Species, baseTable species.Table, ticks int, targetHeight float64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:       params,
		species:      sp,
		baseTable:    baseTable,
		ticks:        ticks,
		targetHeight: targetHeight,
		baseConfig:   baseCfg,
	}
}

// LastRun returns the final height and survival of the most recent evaluation.
func (fe *FitnessEvaluator) LastRun() (height float64, survivalTicks int) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastHeight, fe.lastSurvival
}

// runResult holds the results from a single simulation run.
type runResult struct {
	finalHeight   float64 // stem height at the last tick the tree was alive
	survivalTicks int     // ticks the tree survived (ticks if it never died)
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	result, err := fe.runSimulation(x)
	if err != nil {
		return failedFitness
	}

	fe.mu.Lock()
	fe.lastHeight = result.finalHeight
	fe.lastSurvival = result.survivalTicks
	fe.mu.Unlock()

	return fe.computeFitness(result)
}

// Table returns the species table a parameter vector produces, with seeding
// disabled so the tree stays alone.
func (fe *FitnessEvaluator) Table(x []float64) species.Table {
	table := fe.params.ApplyToTable(fe.baseTable, x)
	table.SeedsPerUnitArea = 0
	return table
}

func (fe *FitnessEvaluator) runSimulation(x []float64) (*runResult, error) {
	catalog, err := species.DefaultCatalog().WithOverrides(fe.baseConfig.Species)
	if err != nil {
		return nil, err
	}
	catalog[fe.species] = fe.Table(x)

	s, err := sim.New(context.Background(), fe.singleTreeConfig(), sim.Options{
		Seed:    1,
		Catalog: catalog,
	}, slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	result := &runResult{}
	for s.Tick() < fe.ticks {
		alive, err := s.Step(context.Background())
		if err != nil {
			return nil, err
		}
		tree, ok := s.Flora().Tree(1)
		if !ok {
			return result, nil
		}
		result.finalHeight = tree.Tree.StemHeight
		result.survivalTicks = s.Tick()
		if !alive {
			break
		}
	}
	return result, nil
}

// singleTreeConfig copies the base config and replaces the population with
// one tree at the centre of the placement bounds.
func (fe *FitnessEvaluator) singleTreeConfig() *config.Config {
	cfg := *fe.baseConfig
	p := fe.baseConfig.Population

	cfg.Simulation.Ticks = fe.ticks
	cfg.Simulation.Workers = 1
	cfg.Export.Dir = ""
	cfg.Population = config.PopulationConfig{
		Initial:   1,
		Placement: config.PlacementFixed,
		Sites: []config.SiteConfig{{
			X:       (p.MinX + p.MaxX) / 2,
			Y:       (p.MinY + p.MaxY) / 2,
			Species: fe.species.String(),
		}},
	}
	return &cfg
}

// computeFitness is the squared relative height error plus the fraction of
// the horizon the tree did not survive.
func (fe *FitnessEvaluator) computeFitness(r *runResult) float64 {
	rel := (r.finalHeight - fe.targetHeight) / fe.targetHeight
	fitness := rel * rel
	if r.survivalTicks < fe.ticks {
		fitness += 1 - float64(r.survivalTicks)/float64(fe.ticks)
	}
	if math.IsNaN(fitness) {
		return failedFitness
	}
	return fitness
}
