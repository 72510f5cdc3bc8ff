// Package swarm implements the formation-control core: neighbor
// detection, formation geometry, a PD tracking controller, second-order
// CBF safety constraints, the per-agent safety QP, and the fixed-timestep
// orchestrator that ties them together.
package swarm

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// AgentState is the kinematic state of one agent. The orchestrator owns
// the canonical array and rewrites it once per tick after integration;
// everything else reads a per-tick snapshot.
type AgentState struct {
	ID int // stable, 0..N-1

	Position r3.Vec
	Velocity r3.Vec

	// Accel is the last acceleration applied to this agent. Zero before
	// the first tick.
	Accel r3.Vec
}

// Obstacle is a spherical keep-out region. Static obstacles have zero
// velocity; dynamic ones are updated by the host between ticks.
type Obstacle struct {
	ID       int
	Position r3.Vec
	Velocity r3.Vec

	// Accel is the obstacle's published acceleration, if the host knows
	// it. Zero for static obstacles; folded into the constraint as a
	// known term for accelerating ones.
	Accel r3.Vec

	Radius float64
}

// TargetState is the pose and velocity of the formation's tracked target.
type TargetState struct {
	Position r3.Vec
	Velocity r3.Vec
}

// ConstraintSource identifies what a safety constraint protects against.
type ConstraintSource string

const (
	SourceNeighbor ConstraintSource = "neighbor"
	SourceObstacle ConstraintSource = "obstacle"
)

// SafetyConstraint is one linear inequality A·u ≥ B on the acceleration
// decision variable, tagged with its origin and current barrier value for
// activation accounting.
type SafetyConstraint struct {
	A r3.Vec
	B float64

	Source   ConstraintSource
	SourceID int

	// H is the barrier value ‖r‖² − d_safe² at constraint-build time.
	// Negative H means the pair is already inside the safety margin.
	H float64

	// Degenerate is set when the relative position was below the epsilon
	// floor and the constraint direction had to be synthesized.
	Degenerate bool
}

func (c SafetyConstraint) String() string {
	return fmt.Sprintf("%s %d: [%.4f %.4f %.4f]·u >= %.4f (h=%.4f)",
		c.Source, c.SourceID, c.A.X, c.A.Y, c.A.Z, c.B, c.H)
}

// QPResult is the outcome of one per-agent safety QP solve.
type QPResult struct {
	// U is the filtered acceleration. Only meaningful when Feasible.
	U r3.Vec

	Feasible bool

	// Binding lists the safety constraints active (within tolerance) at
	// the solution; on the infeasible path it lists the constraints that
	// could not be jointly satisfied.
	Binding []SafetyConstraint

	// Saturated is set when any component of U sits on the ±a_max box.
	Saturated bool

	Iterations int
}

// Snapshot is the read-only view of the world handed to each agent's
// per-tick computation. Copied once per tick so the per-agent solves can
// run in parallel without observing partial writes.
type Snapshot struct {
	Tick      int
	Time      float64
	Agents    []AgentState
	Obstacles []Obstacle
	Target    TargetState
}
