package swarm

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Constants for constraint construction.
const (
	// DegeneracyFloor is the minimum relative distance used when forming
	// a constraint direction. Below this the pair is effectively
	// coincident and the true direction is numerically meaningless.
	DegeneracyFloor = 1e-6
)

// CBFParams are the class-K gains of the second-order barrier condition
// ḧ + α1·ḣ + α2·h ≥ 0. Larger α1 brakes earlier; larger α2 lets the
// barrier decay toward zero faster.
type CBFParams struct {
	Alpha1 float64
	Alpha2 float64
}

// DefaultCBFParams matches the gains the original field deployment flew.
func DefaultCBFParams() CBFParams {
	return CBFParams{Alpha1: 2.0, Alpha2: 1.0}
}

// pairConstraint forms the linear acceleration constraint for one
// protected pair from relative position r, relative velocity v and the
// required separation dSafe.
//
// Barrier: h = ‖r‖² − d_safe²
// First derivative: ḣ = 2 r·v
// Second derivative: ḧ = 2‖v‖² + 2 r·(a_i − a_other)
//
// Imposing ḧ + α1·ḣ + α2·h ≥ 0 and moving everything known to the right
// gives one inequality linear in the unknown a_i:
//
//	2 r·a_i ≥ −2‖v‖² − α1·ḣ − α2·h + 2 r·a_other
//
// a_other is zero for neighbors (their own filter bounds their authority;
// treating them as non-cooperative is conservative) and the published
// acceleration for dynamic obstacles.
func (p CBFParams) pairConstraint(r, v, aOther r3.Vec, dSafe float64) (a r3.Vec, b float64, degenerate bool) {
	h := r3.Norm2(r) - dSafe*dSafe

	// Coincident bodies give a near-zero constraint row that the QP
	// cannot act on. Synthesize a direction at the epsilon floor so the
	// constraint pushes the pair apart instead of vanishing; h keeps its
	// true (deeply negative) value.
	if r3.Norm(r) < DegeneracyFloor {
		degenerate = true
		dir := v
		if r3.Norm(dir) < DegeneracyFloor {
			dir = r3.Vec{X: 1}
		}
		r = r3.Scale(DegeneracyFloor, r3.Unit(dir))
	}

	hDot := 2 * r3.Dot(r, v)
	a = r3.Scale(2, r)
	b = -2*r3.Norm2(v) - p.Alpha1*hDot - p.Alpha2*h + 2*r3.Dot(r, aOther)
	return a, b, degenerate
}

// BuildConstraints converts agent i's neighbor and obstacle relative
// states into the linear inequality set for its safety QP. dSafeAgents is
// the required center-to-center separation between agents; obstacleMargin
// is added to each obstacle radius (plus the agent's own dSafe share is
// already folded into dSafeAgents by the caller's config).
//
// Degenerate (near-coincident) pairs are clamped to DegeneracyFloor and
// flagged on the returned constraint; the caller counts them as
// near-collision diagnostics.
func (p CBFParams) BuildConstraints(i int, snap Snapshot, neighbors []int, dSafeAgents, obstacleMargin float64) []SafetyConstraint {
	self := snap.Agents[i]
	out := make([]SafetyConstraint, 0, len(neighbors)+len(snap.Obstacles))

	for _, j := range neighbors {
		other := snap.Agents[j]
		r := r3.Sub(self.Position, other.Position)
		v := r3.Sub(self.Velocity, other.Velocity)
		a, b, degenerate := p.pairConstraint(r, v, r3.Vec{}, dSafeAgents)
		out = append(out, SafetyConstraint{
			A:          a,
			B:          b,
			Source:     SourceNeighbor,
			SourceID:   j,
			H:          r3.Norm2(r) - dSafeAgents*dSafeAgents,
			Degenerate: degenerate,
		})
	}

	for _, obs := range snap.Obstacles {
		r := r3.Sub(self.Position, obs.Position)
		v := r3.Sub(self.Velocity, obs.Velocity)
		dSafe := obs.Radius + obstacleMargin
		a, b, degenerate := p.pairConstraint(r, v, obs.Accel, dSafe)
		out = append(out, SafetyConstraint{
			A:          a,
			B:          b,
			Source:     SourceObstacle,
			SourceID:   obs.ID,
			H:          r3.Norm2(r) - dSafe*dSafe,
			Degenerate: degenerate,
		})
	}

	return out
}
