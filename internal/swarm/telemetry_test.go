package swarm

import (
	"math"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestMinPairDistance(t *testing.T) {
	positions := []r3.Vec{
		{X: 0},
		{X: 5},
		{X: 6},
	}
	if d := MinPairDistance(positions); math.Abs(d-1) > 1e-12 {
		t.Errorf("expected 1, got %v", d)
	}
	if d := MinPairDistance([]r3.Vec{{X: 1}}); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for single position, got %v", d)
	}
}

func TestCheckSafety(t *testing.T) {
	positions := []r3.Vec{
		{X: 0},
		{X: 0.5}, // within d_safe of agent 0
		{X: 10},
	}
	obstacles := []Obstacle{
		{ID: 0, Position: r3.Vec{X: 10.2}, Radius: 0.5}, // agent 2 inside margin
	}

	safe, violations := CheckSafety(positions, obstacles, 1.0, 0.5)
	if safe {
		t.Fatal("expected unsafe configuration")
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(violations), violations)
	}
	if !strings.Contains(violations[0], "agents 0 and 1") {
		t.Errorf("unexpected violation description: %s", violations[0])
	}
	if !strings.Contains(violations[1], "agent 2") {
		t.Errorf("unexpected violation description: %s", violations[1])
	}
}

func TestCheckSafety_SafeConfiguration(t *testing.T) {
	positions := []r3.Vec{{X: 0}, {X: 5}, {X: 10}}
	safe, violations := CheckSafety(positions, nil, 1.0, 0.5)
	if !safe || len(violations) != 0 {
		t.Errorf("expected safe, got violations: %v", violations)
	}
}

func TestSolverStats(t *testing.T) {
	var s SolverStats
	if s.MeanSolveTime() != 0 {
		t.Error("expected zero mean before any solve")
	}

	s.observe(2*time.Millisecond, true)
	s.observe(4*time.Millisecond, false)

	if s.Solves != 2 {
		t.Errorf("expected 2 solves, got %d", s.Solves)
	}
	if s.Infeasible != 1 {
		t.Errorf("expected 1 infeasible, got %d", s.Infeasible)
	}
	if got := s.MeanSolveTime(); got != 3*time.Millisecond {
		t.Errorf("expected mean 3ms, got %v", got)
	}
	if got := s.MaxSolveTime(); got != 4*time.Millisecond {
		t.Errorf("expected max 4ms, got %v", got)
	}
}

func TestFormationError(t *testing.T) {
	mean, max := formationError([]float64{1, 2, 3})
	if math.Abs(mean-2) > 1e-12 || math.Abs(max-3) > 1e-12 {
		t.Errorf("got mean=%v max=%v", mean, max)
	}
	mean, max = formationError(nil)
	if mean != 0 || max != 0 {
		t.Errorf("expected zeros for empty input, got mean=%v max=%v", mean, max)
	}
}

func TestMemoryRecorder(t *testing.T) {
	var m MemoryRecorder
	for i := 0; i < 3; i++ {
		if err := m.RecordTick(TickRecord{Tick: i}); err != nil {
			t.Fatal(err)
		}
	}
	if len(m.Records) != 3 || m.Records[2].Tick != 2 {
		t.Errorf("unexpected records: %+v", m.Records)
	}
}
