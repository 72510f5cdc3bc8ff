package swarm

import "gonum.org/v1/gonum/spatial/r3"

// Integrate advances double-integrator kinematics by one fixed timestep:
//
//	p' = p + v·dt + ½·a·dt²
//	v' = v + a·dt
//
// Deterministic, no failure modes. This is the whole dynamics model; the
// actuator-level attitude loop lives below this layer and outside this
// module.
func Integrate(p, v, a r3.Vec, dt float64) (r3.Vec, r3.Vec) {
	pNext := r3.Add(r3.Add(p, r3.Scale(dt, v)), r3.Scale(0.5*dt*dt, a))
	vNext := r3.Add(v, r3.Scale(dt, a))
	return pNext, vNext
}
