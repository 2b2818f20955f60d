package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/flora"
)

// Frame is everything exported for one tick.
type Frame struct {
	Tick  int
	Trees []TreeRecord
	Land  []LandRecord
	Stats PopulationStats
}

// NewFrame captures the population and land state after a tick.
func NewFrame(tick int, f *flora.Flora, stats PopulationStats) (Frame, error) {
	landRecords, err := LandRecords(tick, f.Land())
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Tick:  tick,
		Trees: TreeRecords(tick, f.Snapshot()),
		Land:  landRecords,
		Stats: stats,
	}, nil
}

// Exporter persists frames.
type Exporter interface {
	Export(ctx context.Context, frame Frame) error
	Close() error
}

// MultiExporter fans a frame out to several exporters.
type MultiExporter []Exporter

// Export writes the frame to every exporter, stopping at the first failure.
func (m MultiExporter) Export(ctx context.Context, frame Frame) error {
	for _, e := range m {
		if err := e.Export(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every exporter and joins their errors.
func (m MultiExporter) Close() error {
	var errs []error
	for _, e := range m {
		errs = append(errs, e.Close())
	}
	return errors.Join(errs...)
}

// csvFile is an output CSV that writes its header once.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// OutputManager handles structured run output as CSV files.
type OutputManager struct {
	dir       string
	floraFile *csvFile
	landFile  *csvFile
	statsFile *csvFile
	perfFile  *csvFile
}

// Output file names.
const (
	FloraCSV = "flora.csv"
	LandCSV  = "land.csv"
	StatsCSV = "stats.csv"
	PerfCSV  = "perf.csv"
)

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	targets := []struct {
		name string
		dst  **csvFile
	}{
		{FloraCSV, &om.floraFile},
		{LandCSV, &om.landFile},
		{StatsCSV, &om.statsFile},
		{PerfCSV, &om.perfFile},
	}
	for _, target := range targets {
		f, err := os.Create(filepath.Join(dir, target.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", target.name, err)
		}
		*target.dst = &csvFile{f: f}
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// Export appends the frame's trees, land and stats to their CSV files.
func (om *OutputManager) Export(_ context.Context, frame Frame) error {
	if om == nil {
		return nil
	}

	if len(frame.Trees) > 0 {
		if err := om.floraFile.write(frame.Trees); err != nil {
			return fmt.Errorf("writing flora: %w", err)
		}
	}
	if len(frame.Land) > 0 {
		if err := om.landFile.write(frame.Land); err != nil {
			return fmt.Errorf("writing land: %w", err)
		}
	}
	if err := om.statsFile.write([]PopulationStats{frame.Stats}); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int) error {
	if om == nil {
		return nil
	}
	if err := om.perfFile.write([]PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, c := range []*csvFile{om.floraFile, om.landFile, om.statsFile, om.perfFile} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
