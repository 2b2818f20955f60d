package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for exports and config snapshot (overrides export.dir)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed, then time-based)")
	maxTicks := flag.Int("max-ticks", -1, "Stop after N ticks (0 = until extinction, -1 = use config)")
	logStats := flag.Bool("log-stats", false, "Output population stats via slog")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *maxTicks >= 0 {
		cfg.Simulation.Ticks = *maxTicks
	}

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := sim.New(ctx, cfg, sim.Options{
		Seed:      *seed,
		OutputDir: *outputDir,
		LogStats:  *logStats,
	}, logger)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}

	slog.Info("starting simulation",
		"seed", s.Seed(),
		"max_ticks", cfg.Simulation.Ticks,
		"workers", cfg.Simulation.Workers,
	)

	runErr := s.Run(ctx)
	if err := s.Close(); err != nil {
		slog.Error("failed to close exporters", "error", err)
	}
	if runErr != nil {
		slog.Error("simulation stopped", "tick", s.Tick(), "error", runErr)
		os.Exit(1)
	}
	slog.Info("simulation finished", "tick", s.Tick(), "trees", s.Flora().Len())
}
