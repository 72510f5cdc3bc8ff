package swarm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skyfleet-robotics/formation.control/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

// RunState is the orchestrator's lifecycle state, exposed to the host
// each tick so it can decide whether to keep stepping, pause, or abort.
type RunState string

const (
	RunStateRunning  RunState = "running"  // all agents feasible
	RunStateDegraded RunState = "degraded" // at least one agent on the fallback path
	RunStateHalted   RunState = "halted"   // sustained infeasibility; needs explicit Reset
)

// HaltScope selects what freezes when sustained infeasibility escalates.
type HaltScope string

const (
	// HaltScopeAll stops the whole simulation; Step refuses further
	// ticks until Reset.
	HaltScopeAll HaltScope = "all"

	// HaltScopeAgent freezes only the boxed-in agent; the rest of the
	// fleet keeps flying if the host keeps stepping.
	HaltScopeAgent HaltScope = "agent"
)

// ErrHalted is returned by Step once the run has escalated to HALTED with
// HaltScopeAll. Reset clears it.
var ErrHalted = errors.New("simulation halted: sustained QP infeasibility")

// Params bundles every tunable of the control loop. Validate runs once at
// construction; configuration errors are fatal before the first tick and
// never discovered mid-run.
type Params struct {
	SensingRadius  float64 // R: neighbor consideration distance, m
	SafetyDistance float64 // d_safe: min agent center-to-center separation, m
	ObstacleMargin float64 // added to each obstacle radius, m
	MaxAccel       float64 // a_max: per-axis actuation bound, m/s²
	Dt             float64 // fixed timestep, s

	CBF   CBFParams
	Gains ControllerGains

	// InfeasibleTickLimit is the consecutive-infeasible-tick count at
	// which DEGRADED escalates to HALTED.
	InfeasibleTickLimit int

	Halt HaltScope

	// BrakeGain is the velocity damping applied on the fallback path
	// (emergency brake): u = −BrakeGain·v, clamped to the actuation box.
	BrakeGain float64

	// Parallel fans the per-agent solves out across goroutines with a
	// barrier before integration. Results are identical either way; the
	// solves only read the tick snapshot.
	Parallel bool
}

// DefaultParams returns the stock tuning for a five-agent fleet.
func DefaultParams() Params {
	return Params{
		SensingRadius:       10.0,
		SafetyDistance:      1.0,
		ObstacleMargin:      0.5,
		MaxAccel:            5.0,
		Dt:                  0.02,
		CBF:                 DefaultCBFParams(),
		Gains:               DefaultControllerGains(),
		InfeasibleTickLimit: 10,
		Halt:                HaltScopeAll,
		BrakeGain:           2.0,
		Parallel:            true,
	}
}

// Validate checks the parameter set for geometric and numeric sanity.
func (p Params) Validate() error {
	if p.SafetyDistance <= 0 {
		return fmt.Errorf("safety_distance must be positive, got %v", p.SafetyDistance)
	}
	if p.SensingRadius < p.SafetyDistance {
		return fmt.Errorf("sensing_radius (%v) must be at least safety_distance (%v)",
			p.SensingRadius, p.SafetyDistance)
	}
	if p.ObstacleMargin < 0 {
		return fmt.Errorf("obstacle_margin must be non-negative, got %v", p.ObstacleMargin)
	}
	if p.MaxAccel <= 0 {
		return fmt.Errorf("max_accel must be positive, got %v", p.MaxAccel)
	}
	if p.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %v", p.Dt)
	}
	if p.CBF.Alpha1 <= 0 || p.CBF.Alpha2 <= 0 {
		return fmt.Errorf("CBF gains must be positive, got alpha1=%v alpha2=%v",
			p.CBF.Alpha1, p.CBF.Alpha2)
	}
	if p.InfeasibleTickLimit < 1 {
		return fmt.Errorf("infeasible_tick_limit must be at least 1, got %d", p.InfeasibleTickLimit)
	}
	if p.Halt != HaltScopeAll && p.Halt != HaltScopeAgent {
		return fmt.Errorf("halt_scope must be %q or %q, got %q", HaltScopeAll, HaltScopeAgent, p.Halt)
	}
	if p.BrakeGain < 0 {
		return fmt.Errorf("brake_gain must be non-negative, got %v", p.BrakeGain)
	}
	return nil
}

// Orchestrator drives the fixed-timestep control loop: snapshot states,
// compute desired accelerations, build CBF constraints, solve the safety
// QPs (independently per agent, optionally in parallel), then apply and
// integrate in agent-id order. It is the only writer of agent state; all
// per-tick computation reads an immutable snapshot.
type Orchestrator struct {
	params    Params
	formation Formation

	agents    []AgentState
	obstacles []Obstacle
	target    TargetState

	state        RunState
	tick         int
	infeasStreak []int
	frozen       []bool // per-agent, HaltScopeAgent only

	stats    SolverStats
	recorder Recorder
}

// NewOrchestrator validates the configuration and assembles the loop.
// Agent ids are reassigned to array order. recorder may be nil.
func NewOrchestrator(params Params, formation Formation, agents []AgentState, obstacles []Obstacle, target TargetState, recorder Recorder) (*Orchestrator, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if formation == nil {
		return nil, errors.New("formation must not be nil")
	}
	if len(agents) == 0 {
		return nil, errors.New("at least one agent required")
	}
	own := make([]AgentState, len(agents))
	copy(own, agents)
	for i := range own {
		own[i].ID = i
	}
	obs := make([]Obstacle, len(obstacles))
	copy(obs, obstacles)

	return &Orchestrator{
		params:       params,
		formation:    formation,
		agents:       own,
		obstacles:    obs,
		target:       target,
		state:        RunStateRunning,
		infeasStreak: make([]int, len(own)),
		frozen:       make([]bool, len(own)),
		recorder:     recorder,
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() RunState { return o.state }

// TickCount returns the number of completed ticks.
func (o *Orchestrator) TickCount() int { return o.tick }

// Agents returns a copy of the current agent states.
func (o *Orchestrator) Agents() []AgentState {
	out := make([]AgentState, len(o.agents))
	copy(out, o.agents)
	return out
}

// Target returns the current target state.
func (o *Orchestrator) Target() TargetState { return o.target }

// SetTarget replaces the tracked target. Call between ticks only.
func (o *Orchestrator) SetTarget(t TargetState) { o.target = t }

// UpdateObstacles replaces the obstacle set, for hosts driving dynamic
// obstacles. Call between ticks only.
func (o *Orchestrator) UpdateObstacles(obs []Obstacle) {
	o.obstacles = make([]Obstacle, len(obs))
	copy(o.obstacles, obs)
}

// Stats returns the accumulated QP solver statistics.
func (o *Orchestrator) Stats() SolverStats { return o.stats }

// Reset clears a HALTED state back to RUNNING and zeroes the
// infeasibility streaks. Agent kinematic state is untouched; the host
// decides whether to also reposition the fleet.
func (o *Orchestrator) Reset() {
	o.state = RunStateRunning
	for i := range o.infeasStreak {
		o.infeasStreak[i] = 0
		o.frozen[i] = false
	}
}

// agentResult carries one agent's per-tick computation across the
// barrier.
type agentResult struct {
	res          QPResult
	formationErr float64
	degenerate   int
	solveTime    time.Duration
}

// Step advances the simulation by one tick. The returned TickRecord is
// also delivered to the Recorder, if any. Returns ErrHalted without
// advancing when the run is HALTED with HaltScopeAll.
func (o *Orchestrator) Step() (TickRecord, error) {
	if o.state == RunStateHalted && o.params.Halt == HaltScopeAll {
		return TickRecord{}, ErrHalted
	}

	snap := o.snapshot()
	n := len(snap.Agents)
	positions := make([]r3.Vec, n)
	for i, a := range snap.Agents {
		positions[i] = a.Position
	}
	neighborSets := AllNeighbors(positions, o.params.SensingRadius)

	results := make([]agentResult, n)
	if o.params.Parallel {
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			if o.frozen[i] {
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = o.solveAgent(i, snap, neighborSets[i])
			}(i)
		}
		wg.Wait() // barrier: no state is applied until every solve is in
	} else {
		for i := 0; i < n; i++ {
			if o.frozen[i] {
				continue
			}
			results[i] = o.solveAgent(i, snap, neighborSets[i])
		}
	}

	// Apply phase, sequential in agent-id order so results are
	// deterministic regardless of goroutine scheduling.
	rec := TickRecord{
		Tick: o.tick,
		Time: float64(o.tick) * o.params.Dt,
	}
	anyInfeasible := false
	escalate := false
	var formationErrs []float64

	for i := 0; i < n; i++ {
		if o.frozen[i] {
			continue
		}
		r := results[i]
		o.stats.observe(r.solveTime, r.res.Feasible)
		if r.res.Feasible {
			rec.CBFActivations += len(r.res.Binding)
		}
		rec.NearCollisions += r.degenerate
		formationErrs = append(formationErrs, r.formationErr)

		var accel r3.Vec
		if r.res.Feasible {
			o.infeasStreak[i] = 0
			accel = r.res.U
		} else {
			anyInfeasible = true
			o.infeasStreak[i]++
			accel = o.brake(o.agents[i].Velocity)
			monitoring.Logf("agent %d: QP infeasible (streak %d/%d), braking; %d constraints in conflict",
				i, o.infeasStreak[i], o.params.InfeasibleTickLimit, len(r.res.Binding))
			if o.infeasStreak[i] >= o.params.InfeasibleTickLimit {
				escalate = true
				if o.params.Halt == HaltScopeAgent {
					o.frozen[i] = true
				}
			}
		}

		o.agents[i].Accel = accel
		o.agents[i].Position, o.agents[i].Velocity = Integrate(
			o.agents[i].Position, o.agents[i].Velocity, accel, o.params.Dt)
	}

	// Target advances with its own velocity; hosts override via SetTarget.
	o.target.Position = r3.Add(o.target.Position, r3.Scale(o.params.Dt, o.target.Velocity))

	switch {
	case escalate:
		o.state = RunStateHalted
		monitoring.Logf("run HALTED at tick %d: agent infeasible for %d consecutive ticks",
			o.tick, o.params.InfeasibleTickLimit)
	case o.state == RunStateHalted:
		// Sticky under HaltScopeAgent: a frozen agent means the run stays
		// HALTED until Reset, even while the rest of the fleet flies clean.
	case anyInfeasible:
		o.state = RunStateDegraded
	default:
		o.state = RunStateRunning
	}

	rec.State = o.state
	rec.InfeasibleAgents = countInfeasible(results, o.frozen)
	rec.MinAgentDistance = o.minAgentDistance()
	for i := range o.agents {
		positions[i] = o.agents[i].Position
	}
	rec.MinObstacleDistance = o.minObstacleDistance(positions)
	rec.MeanFormationError, rec.MaxFormationError = formationError(formationErrs)

	o.tick++

	if o.recorder != nil {
		if err := o.recorder.RecordTick(rec); err != nil {
			// Telemetry loss never stops the control loop.
			monitoring.Logf("telemetry record failed at tick %d: %v", rec.Tick, err)
		}
	}
	return rec, nil
}

// Run steps the simulation for at most ticks ticks, checking ctx between
// ticks (never mid-tick: a tick's solves complete atomically). Returns
// ErrHalted if the run escalates, ctx.Err() on cancellation.
func (o *Orchestrator) Run(ctx context.Context, ticks int) error {
	for t := 0; t < ticks; t++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := o.Step(); err != nil {
			return err
		}
		if o.state == RunStateHalted && o.params.Halt == HaltScopeAll {
			return ErrHalted
		}
	}
	return nil
}

// solveAgent runs one agent's control pipeline against the tick snapshot:
// desired slot, PD command, CBF constraints, safety QP.
func (o *Orchestrator) solveAgent(i int, snap Snapshot, neighbors []int) agentResult {
	agent := snap.Agents[i]
	desiredPos := o.formation.DesiredPosition(i, len(snap.Agents), snap.Target)
	uDes := o.params.Gains.DesiredAcceleration(agent, desiredPos, snap.Target.Velocity)

	constraints := o.params.CBF.BuildConstraints(i, snap, neighbors,
		o.params.SafetyDistance, o.params.ObstacleMargin)

	degenerate := 0
	for _, c := range constraints {
		if c.Degenerate {
			degenerate++
			monitoring.Logf("agent %d: near-collision with %s %d (h=%.6f)", i, c.Source, c.SourceID, c.H)
		}
	}

	start := time.Now()
	res := SolveSafetyQP(uDes, constraints, o.params.MaxAccel)
	return agentResult{
		res:          res,
		formationErr: r3.Norm(r3.Sub(desiredPos, agent.Position)),
		degenerate:   degenerate,
		solveTime:    time.Since(start),
	}
}

// brake is the conservative fallback for an infeasible tick: damp the
// current velocity, clamped to the actuation box so the bound holds on
// the degraded path too.
func (o *Orchestrator) brake(v r3.Vec) r3.Vec {
	return clampBox(r3.Scale(-o.params.BrakeGain, v), o.params.MaxAccel)
}

// snapshot copies the mutable world state for this tick's read-only view.
func (o *Orchestrator) snapshot() Snapshot {
	agents := make([]AgentState, len(o.agents))
	copy(agents, o.agents)
	obstacles := make([]Obstacle, len(o.obstacles))
	copy(obstacles, o.obstacles)
	return Snapshot{
		Tick:      o.tick,
		Time:      float64(o.tick) * o.params.Dt,
		Agents:    agents,
		Obstacles: obstacles,
		Target:    o.target,
	}
}

func (o *Orchestrator) minAgentDistance() float64 {
	positions := make([]r3.Vec, len(o.agents))
	for i, a := range o.agents {
		positions[i] = a.Position
	}
	return MinPairDistance(positions)
}

// minObstacleDistance is the smallest agent-to-obstacle surface distance.
func (o *Orchestrator) minObstacleDistance(positions []r3.Vec) float64 {
	min := math.Inf(1)
	for _, p := range positions {
		for _, obs := range o.obstacles {
			if d := r3.Norm(r3.Sub(p, obs.Position)) - obs.Radius; d < min {
				min = d
			}
		}
	}
	return min
}

func countInfeasible(results []agentResult, frozen []bool) int {
	n := 0
	for i, r := range results {
		if !frozen[i] && !r.res.Feasible {
			n++
		}
	}
	return n
}
