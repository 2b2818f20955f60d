package sim

import (
	"context"

	"github.com/pthm-cable/bettina/telemetry"
)

// flushTelemetry collects population stats on export and log ticks and
// hands them to the exporters. The final tick of an extinct population is
// always exported.
func (s *Sim) flushTelemetry(ctx context.Context) error {
	exportDue := len(s.exporters) > 0 && (s.tick%s.cfg.Export.Interval == 0 || !s.alive)
	logDue := s.logStats && s.tick%s.cfg.Telemetry.LogInterval == 0
	if !exportDue && !logDue && s.statsCallback == nil {
		return nil
	}

	stats := telemetry.Collect(s.tick, s.simTime, s.flora)

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if logDue {
		stats.LogStats(s.log)
	}

	if !exportDue {
		return nil
	}
	frame, err := telemetry.NewFrame(s.tick, s.flora, stats)
	if err != nil {
		return err
	}
	if err := s.exporters.Export(ctx, frame); err != nil {
		return err
	}
	s.log.Debug("exported", "tick", s.tick, "trees", len(frame.Trees))
	return nil
}

// logPerfStats logs the phase timing window and appends it to perf.csv.
func (s *Sim) logPerfStats() {
	perfStats := s.perf.Stats()
	perfStats.LogStats(s.log)

	if err := s.output.WritePerf(perfStats, s.tick); err != nil {
		s.log.Error("failed to write perf", "error", err)
	}
}
