package swarm

import "gonum.org/v1/gonum/spatial/r3"

// ControllerGains holds the PD tracking gains.
type ControllerGains struct {
	Kp float64 // position error gain (1/s²)
	Kv float64 // velocity error gain (1/s)
}

// DefaultControllerGains returns gains tuned for the default fleet: fast
// enough to hold formation on a walking-pace target, soft enough that the
// unconstrained command rarely hits the actuation box.
func DefaultControllerGains() ControllerGains {
	return ControllerGains{Kp: 1.5, Kv: 2.0}
}

// DesiredAcceleration is the unconstrained PD tracking law: accelerate
// toward the desired slot, damped against the velocity error. The result
// is the QP's reference point and carries no safety guarantee of its own.
func (g ControllerGains) DesiredAcceleration(agent AgentState, desiredPos, desiredVel r3.Vec) r3.Vec {
	posErr := r3.Sub(desiredPos, agent.Position)
	velErr := r3.Sub(desiredVel, agent.Velocity)
	return r3.Add(r3.Scale(g.Kp, posErr), r3.Scale(g.Kv, velErr))
}
