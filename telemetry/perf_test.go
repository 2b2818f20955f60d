package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseCompetition)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseGrowth)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}
	if _, ok := stats.PhaseAvg[PhaseCompetition]; !ok {
		t.Error("expected competition phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseGrowth]; !ok {
		t.Error("expected growth phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseDeath]; ok {
		t.Error("death phase was never started but is tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5) // Small window

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseRecruitment)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

// stepClock advances by the next duration in steps on every call.
type stepClock struct {
	t     time.Time
	steps []time.Duration
	i     int
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(c.steps[c.i%len(c.steps)])
	c.i++
	return c.t
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)
	// StartTick, StartPhase(death), StartPhase(competition), EndTick
	clock := &stepClock{steps: []time.Duration{0, 0, 10 * time.Millisecond, 30 * time.Millisecond}}
	pc.now = clock.now

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseDeath)
		pc.StartPhase(PhaseCompetition)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.PhaseAvg[PhaseDeath] != 10*time.Millisecond {
		t.Errorf("death avg = %v, want 10ms", stats.PhaseAvg[PhaseDeath])
	}
	if stats.PhaseAvg[PhaseCompetition] != 30*time.Millisecond {
		t.Errorf("competition avg = %v, want 30ms", stats.PhaseAvg[PhaseCompetition])
	}
	fast := stats.PhasePct[PhaseDeath]
	slow := stats.PhasePct[PhaseCompetition]
	if math.Abs(fast-25) > 1e-9 || math.Abs(slow-75) > 1e-9 {
		t.Errorf("phase pct death %v%%, competition %v%%, want 25/75", fast, slow)
	}

	row := stats.ToCSV(42)
	if row.WindowEnd != 42 || row.CompetitionPct != slow {
		t.Errorf("ToCSV = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	// Empty collector should return zero values without panicking
	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}
