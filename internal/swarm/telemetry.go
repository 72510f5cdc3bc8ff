package swarm

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// TickRecord is the per-tick telemetry row. One is produced every tick
// and handed to the configured Recorder; the struct is flat so stores and
// plotters can consume it without reaching back into the simulation.
type TickRecord struct {
	Tick  int
	Time  float64 // seconds since run start
	State RunState

	// MinAgentDistance is the smallest pairwise center-to-center
	// distance this tick; +Inf for a single-agent fleet.
	MinAgentDistance float64

	// MinObstacleDistance is the smallest agent-to-obstacle surface
	// distance; +Inf with no obstacles.
	MinObstacleDistance float64

	// Formation tracking error across agents, meters.
	MeanFormationError float64
	MaxFormationError  float64

	// CBFActivations counts safety constraints binding at this tick's
	// solutions, summed over agents.
	CBFActivations int

	// InfeasibleAgents counts agents whose QP had no solution this tick.
	InfeasibleAgents int

	// NearCollisions counts degenerate (epsilon-clamped) constraint
	// pairs seen this tick.
	NearCollisions int
}

// Recorder consumes per-tick telemetry. Implementations must not block
// the control path; anything slow belongs behind a buffer.
type Recorder interface {
	RecordTick(rec TickRecord) error
}

// MemoryRecorder keeps telemetry in memory, for short runs and tests.
type MemoryRecorder struct {
	Records []TickRecord
}

func (m *MemoryRecorder) RecordTick(rec TickRecord) error {
	m.Records = append(m.Records, rec)
	return nil
}

// SolverStats accumulates QP solve timing over a run, mirroring the
// statistics surface of the original controller.
type SolverStats struct {
	Solves     int
	Infeasible int
	total      time.Duration
	max        time.Duration
}

func (s *SolverStats) observe(d time.Duration, feasible bool) {
	s.Solves++
	if !feasible {
		s.Infeasible++
	}
	s.total += d
	if d > s.max {
		s.max = d
	}
}

// MeanSolveTime returns the average QP solve duration, or zero before the
// first solve.
func (s *SolverStats) MeanSolveTime() time.Duration {
	if s.Solves == 0 {
		return 0
	}
	return s.total / time.Duration(s.Solves)
}

// MaxSolveTime returns the longest single QP solve duration.
func (s *SolverStats) MaxSolveTime() time.Duration { return s.max }

// MinPairDistance returns the smallest pairwise distance among positions,
// or +Inf for fewer than two.
func MinPairDistance(positions []r3.Vec) float64 {
	min := math.Inf(1)
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			if d := r3.Norm(r3.Sub(positions[i], positions[j])); d < min {
				min = d
			}
		}
	}
	return min
}

// CheckSafety audits a configuration against the separation requirements:
// every agent pair at least dSafe apart, every agent outside each
// obstacle's radius plus margin. Returns true with no violations when the
// configuration is safe; otherwise false plus one description per breach.
func CheckSafety(positions []r3.Vec, obstacles []Obstacle, dSafe, obstacleMargin float64) (bool, []string) {
	var violations []string

	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			d := r3.Norm(r3.Sub(positions[i], positions[j]))
			if d < dSafe {
				violations = append(violations,
					fmt.Sprintf("agents %d and %d too close: %.3fm < %.3fm", i, j, d, dSafe))
			}
		}
	}

	for i := range positions {
		for _, obs := range obstacles {
			d := r3.Norm(r3.Sub(positions[i], obs.Position))
			minDist := obs.Radius + obstacleMargin
			if d < minDist {
				violations = append(violations,
					fmt.Sprintf("agent %d too close to obstacle %d: %.3fm < %.3fm", i, obs.ID, d, minDist))
			}
		}
	}

	return len(violations) == 0, violations
}

// formationError summarizes per-agent slot tracking errors. Returns
// (mean, max); zeros for an empty slice.
func formationError(errs []float64) (mean, max float64) {
	if len(errs) == 0 {
		return 0, 0
	}
	return floats.Sum(errs) / float64(len(errs)), floats.Max(errs)
}
