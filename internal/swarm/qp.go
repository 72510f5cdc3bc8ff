package swarm

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// qp implements the per-agent safety filter: project the desired
// acceleration onto the polyhedron cut out by the CBF rows and the ±a_max
// actuation box.
//
//	minimize ‖u − u_des‖²  subject to  a_k·u ≥ b_k,  ‖u‖∞ ≤ a_max
//
// The projection is computed by Hildreth's procedure, the classic dual
// coordinate-descent method for identity-Hessian QPs: with w = u − u_des
// and rows normalized to unit length, the dual is
//
//	min_{λ≥0} ½ λᵀ(AAᵀ)λ − λᵀ(b − A·u_des),   u = u_des + Aᵀλ
//
// and each coordinate update has a closed form. The Gram matrix and the
// final active-set polish are computed with gonum/mat. On an infeasible
// problem the dual diverges; the solver detects this through the primal
// residual after the iteration cap and returns an explicit infeasible
// result rather than an unsafe u.

// Solver tolerances and limits.
const (
	// QPTolerance is the convergence threshold on the largest dual
	// coordinate update per sweep.
	QPTolerance = 1e-9

	// QPMaxIterations caps Hildreth sweeps. The problem has three
	// variables; feasible instances converge orders of magnitude sooner.
	QPMaxIterations = 3000

	// qpFeasTol is the primal residual (per unit of constraint scale)
	// above which the returned point is rejected as infeasible.
	qpFeasTol = 1e-6

	// qpActiveTol classifies a constraint as binding at the solution.
	qpActiveTol = 1e-6
)

// qpRow is one normalized inequality a·u ≥ b. safetyIdx indexes the
// originating SafetyConstraint, or -1 for actuation box rows.
type qpRow struct {
	a         r3.Vec
	b         float64
	safetyIdx int
}

// SolveSafetyQP filters the desired acceleration through the constraint
// set. The returned QPResult is always safe to act on: either a feasible
// u with its binding constraints, or Feasible=false with the violated set
// (never a silently unsafe point).
func SolveSafetyQP(uDes r3.Vec, constraints []SafetyConstraint, aMax float64) QPResult {
	rows := buildRows(constraints, aMax)

	// No-op fast path: an already-feasible desired acceleration passes
	// through untouched so the filter is exact when nothing is active.
	if allSatisfied(uDes, rows, 0) {
		return QPResult{U: uDes, Feasible: true}
	}

	u, lambda, iters := hildreth(uDes, rows)

	if !allSatisfied(u, rows, qpFeasTol) {
		return QPResult{
			Feasible:   false,
			Binding:    violated(u, constraints, rows),
			Iterations: iters,
		}
	}

	// Polish: re-solve the equality-constrained projection on the active
	// set exactly. Hildreth converges geometrically but the polished
	// point puts binding rows on their boundary to machine precision.
	if polished, ok := polish(uDes, rows, lambda); ok && allSatisfied(polished, rows, qpFeasTol) {
		u = polished
	}

	u = clampBox(u, aMax)

	res := QPResult{U: u, Feasible: true, Iterations: iters}
	for k, row := range rows {
		active := math.Abs(r3.Dot(row.a, u)-row.b) <= qpActiveTol*(1+math.Abs(row.b)) || lambda[k] > qpActiveTol
		if !active {
			continue
		}
		if row.safetyIdx >= 0 {
			res.Binding = append(res.Binding, constraints[row.safetyIdx])
		} else {
			res.Saturated = true
		}
	}
	return res
}

// buildRows normalizes the safety constraints and appends the six ±a_max
// box rows. Unit-length rows keep the dual Gram matrix well conditioned
// regardless of how large ‖r‖ grew in the CBF terms.
func buildRows(constraints []SafetyConstraint, aMax float64) []qpRow {
	rows := make([]qpRow, 0, len(constraints)+6)
	for i, c := range constraints {
		n := r3.Norm(c.A)
		if n == 0 {
			// Cannot happen after the builder's degeneracy clamp, but a
			// zero row would poison the Gram matrix.
			continue
		}
		rows = append(rows, qpRow{a: r3.Scale(1/n, c.A), b: c.B / n, safetyIdx: i})
	}
	for axis := 0; axis < 3; axis++ {
		var e r3.Vec
		switch axis {
		case 0:
			e = r3.Vec{X: 1}
		case 1:
			e = r3.Vec{Y: 1}
		default:
			e = r3.Vec{Z: 1}
		}
		rows = append(rows,
			qpRow{a: e, b: -aMax, safetyIdx: -1},
			qpRow{a: r3.Scale(-1, e), b: -aMax, safetyIdx: -1},
		)
	}
	return rows
}

// hildreth runs the dual coordinate descent from λ=0 and returns the
// primal iterate, the dual variables and the sweep count.
func hildreth(uDes r3.Vec, rows []qpRow) (r3.Vec, []float64, int) {
	m := len(rows)

	// Gram matrix G = A·Aᵀ of the normalized rows.
	a := mat.NewDense(m, 3, nil)
	for k, row := range rows {
		a.SetRow(k, []float64{row.a.X, row.a.Y, row.a.Z})
	}
	var g mat.Dense
	g.Mul(a, a.T())

	// c_k = b_k − a_k·u_des: the constraint offsets seen from u_des.
	c := make([]float64, m)
	for k, row := range rows {
		c[k] = row.b - r3.Dot(row.a, uDes)
	}

	lambda := make([]float64, m)
	iters := 0
	for ; iters < QPMaxIterations; iters++ {
		maxDelta := 0.0
		for k := 0; k < m; k++ {
			gkk := g.At(k, k) // 1 for unit rows
			sum := 0.0
			for j := 0; j < m; j++ {
				sum += g.At(k, j) * lambda[j]
			}
			next := lambda[k] - (sum-c[k])/gkk
			if next < 0 {
				next = 0
			}
			if d := math.Abs(next - lambda[k]); d > maxDelta {
				maxDelta = d
			}
			lambda[k] = next
		}
		if maxDelta < QPTolerance {
			iters++
			break
		}
	}

	u := uDes
	for k, row := range rows {
		u = r3.Add(u, r3.Scale(lambda[k], row.a))
	}
	return u, lambda, iters
}

// polish solves the projection restricted to the rows Hildreth left
// active, as equalities: u = u_des + A_Sᵀ(A_S·A_Sᵀ)⁻¹(b_S − A_S·u_des).
// Returns ok=false when the active set is empty, overdetermined, or the
// multipliers come out negative (wrong active set).
func polish(uDes r3.Vec, rows []qpRow, lambda []float64) (r3.Vec, bool) {
	var active []qpRow
	for k, row := range rows {
		if lambda[k] > qpActiveTol {
			active = append(active, row)
		}
	}
	if len(active) == 0 || len(active) > 3 {
		return r3.Vec{}, false
	}

	s := len(active)
	as := mat.NewDense(s, 3, nil)
	rhs := mat.NewVecDense(s, nil)
	for k, row := range active {
		as.SetRow(k, []float64{row.a.X, row.a.Y, row.a.Z})
		rhs.SetVec(k, row.b-r3.Dot(row.a, uDes))
	}

	var gram mat.Dense
	gram.Mul(as, as.T())
	mu := mat.NewVecDense(s, nil)
	if err := mu.SolveVec(&gram, rhs); err != nil {
		// Linearly dependent active rows; keep the iterate.
		return r3.Vec{}, false
	}
	for k := 0; k < s; k++ {
		if mu.AtVec(k) < -qpActiveTol {
			return r3.Vec{}, false
		}
	}

	u := uDes
	for k, row := range active {
		u = r3.Add(u, r3.Scale(mu.AtVec(k), row.a))
	}
	return u, true
}

// allSatisfied reports whether u satisfies every row with the given
// slack tolerance, scaled by each row's offset magnitude.
func allSatisfied(u r3.Vec, rows []qpRow, tol float64) bool {
	for _, row := range rows {
		if r3.Dot(row.a, u)-row.b < -tol*(1+math.Abs(row.b)) {
			return false
		}
	}
	return true
}

// violated returns the safety constraints the point fails to satisfy,
// for infeasibility reporting.
func violated(u r3.Vec, constraints []SafetyConstraint, rows []qpRow) []SafetyConstraint {
	var out []SafetyConstraint
	for _, row := range rows {
		if row.safetyIdx < 0 {
			continue
		}
		if r3.Dot(row.a, u)-row.b < -qpFeasTol*(1+math.Abs(row.b)) {
			out = append(out, constraints[row.safetyIdx])
		}
	}
	return out
}

// clampBox clamps each component of u to ±aMax. The solve already
// respects the box; this removes the last ulp of numerical overshoot
// before the command leaves the filter.
func clampBox(u r3.Vec, aMax float64) r3.Vec {
	clamp := func(x float64) float64 {
		if x > aMax {
			return aMax
		}
		if x < -aMax {
			return -aMax
		}
		return x
	}
	return r3.Vec{X: clamp(u.X), Y: clamp(u.Y), Z: clamp(u.Z)}
}
