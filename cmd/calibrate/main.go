// Package main fits species growth constants so that a lone tree reaches a
// target stem height over a fixed horizon, using gonum's Nelder-Mead.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/species"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// evalRecord is one row of calibrate_log.csv.
type evalRecord struct {
	Eval              int     `csv:"eval"`
	Fitness           float64 `csv:"fitness"`
	HalfMaxHeightGrow float64 `csv:"half_max_height_growth_weight"`
	MaintenanceFactor float64 `csv:"maintenance_factor"`
	FinalHeight       float64 `csv:"final_height"`
	SurvivalTicks     int     `csv:"survival_ticks"`
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	speciesName := flag.String("species", "avicennia", "Species to calibrate")
	targetHeight := flag.Float64("target-height", 2.0, "Stem height the tree should reach at the horizon")
	ticks := flag.Int("ticks", 200, "Simulation horizon in ticks")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if *targetHeight <= 0 || *ticks < 1 {
		log.Fatal("--target-height and --ticks must be positive")
	}

	// Create output directory
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	sp, err := species.Parse(*speciesName)
	if err != nil {
		log.Fatal(err)
	}
	// Start from the config's species section so a previous result can be refined
	catalog, err := species.DefaultCatalog().WithOverrides(baseCfg.Species)
	if err != nil {
		log.Fatal(err)
	}
	baseTable, err := catalog.Table(sp)
	if err != nil {
		log.Fatal(err)
	}

	params := NewParamVector(baseTable)
	evaluator := NewFitnessEvaluator(params, sp, baseTable, *ticks, *targetHeight, baseCfg)

	// Optimize in normalized space so both constants move on the same scale
	initX := params.Normalize(params.DefaultVector())
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation
	}
	method := &optimize.NelderMead{}

	// Open log file
	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	headerWritten := false

	// Track evaluations and timing
	evalCount := 0
	bestFitness := failedFitness
	var bestParams []float64
	startTime := time.Now()

	// Wrap the function to log evaluations
	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		fitness := originalFunc(x)
		evalCount++

		// Denormalize and clamp to get actual parameter values
		clamped := params.Clamp(params.Denormalize(x))
		if fitness < bestFitness || bestParams == nil {
			bestFitness = fitness
			bestParams = clamped
		}

		height, survival := evaluator.LastRun()
		rows := []evalRecord{{
			Eval:              evalCount,
			Fitness:           fitness,
			HalfMaxHeightGrow: clamped[0],
			MaintenanceFactor: clamped[1],
			FinalHeight:       height,
			SurvivalTicks:     survival,
		}}
		if !headerWritten {
			err = gocsv.Marshal(rows, logFile)
			headerWritten = true
		} else {
			err = gocsv.MarshalWithoutHeaders(rows, logFile)
		}
		if err != nil {
			log.Printf("failed to write log row: %v", err)
		}

		elapsed := time.Since(startTime)
		avgPerEval := elapsed / time.Duration(evalCount)
		remaining := time.Duration(*maxEvals-evalCount) * avgPerEval

		fmt.Printf("Eval %d/%d: height=%.3f survived=%d fitness=%.5f (best=%.5f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, height, survival, fitness, bestFitness,
			formatDuration(elapsed), formatDuration(remaining))

		return fitness
	}

	fmt.Printf("Calibrating %s: target height %.3f after %d ticks, max_evals=%d\n",
		sp, *targetHeight, *ticks, *maxEvals)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	totalTime := time.Since(startTime)
	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best fitness: %.6f\n", bestFitness)

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, bestParams[i])
	}

	// Save the calibrated table, seeding restored, as a config overlay
	data, err := bestSpeciesYAML(sp, params.ApplyToTable(baseTable, bestParams))
	if err != nil {
		log.Fatalf("failed to marshal species table: %v", err)
	}
	tablePath := filepath.Join(*outputDir, "best_species.yaml")
	if err := os.WriteFile(tablePath, data, 0644); err != nil {
		log.Printf("failed to write best species table: %v", err)
	} else {
		fmt.Printf("\nBest species table saved to: %s (pass it with -config)\n", tablePath)
	}
}

// bestSpeciesYAML renders table as the species section of a config file.
func bestSpeciesYAML(sp species.Species, table species.Table) ([]byte, error) {
	return yaml.Marshal(map[string]map[string]species.Table{
		"species": {sp.String(): table},
	})
}
