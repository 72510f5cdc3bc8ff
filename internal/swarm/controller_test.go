package swarm

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestDesiredAcceleration_PDLaw(t *testing.T) {
	g := ControllerGains{Kp: 2.0, Kv: 0.5}
	agent := AgentState{
		Position: r3.Vec{X: 1, Y: 0, Z: 0},
		Velocity: r3.Vec{Y: 1},
	}
	// pos error (1,0,0), vel error (0,-1,0):
	// u = 2*(1,0,0) + 0.5*(0,-1,0) = (2,-0.5,0)
	got := g.DesiredAcceleration(agent, r3.Vec{X: 2}, r3.Vec{})
	vecAlmostEqual(t, got, r3.Vec{X: 2, Y: -0.5}, 1e-12, "PD command")
}

func TestDesiredAcceleration_ZeroAtSetpoint(t *testing.T) {
	g := DefaultControllerGains()
	agent := AgentState{Position: r3.Vec{X: 3, Y: 4, Z: 5}}
	// At the desired position with matching (zero) velocity, the command
	// is exactly zero: the controller is a fixed point at rest.
	got := g.DesiredAcceleration(agent, agent.Position, r3.Vec{})
	if got != (r3.Vec{}) {
		t.Errorf("expected exact zero command at setpoint, got %+v", got)
	}
}

func TestDesiredAcceleration_VelocityFeedForward(t *testing.T) {
	g := ControllerGains{Kp: 1, Kv: 1}
	// On the slot but the slot is moving: command matches the velocity
	// error so the agent picks up the target's motion.
	agent := AgentState{Position: r3.Vec{X: 1}}
	got := g.DesiredAcceleration(agent, r3.Vec{X: 1}, r3.Vec{X: 2})
	vecAlmostEqual(t, got, r3.Vec{X: 2}, 1e-12, "feed-forward")
}

func TestIntegrate_DoubleIntegrator(t *testing.T) {
	p := r3.Vec{X: 1}
	v := r3.Vec{X: 2}
	a := r3.Vec{X: 4}

	pNext, vNext := Integrate(p, v, a, 0.5)
	// p' = 1 + 2*0.5 + 0.5*4*0.25 = 2.5; v' = 2 + 4*0.5 = 4
	vecAlmostEqual(t, pNext, r3.Vec{X: 2.5}, 1e-12, "position")
	vecAlmostEqual(t, vNext, r3.Vec{X: 4}, 1e-12, "velocity")
}

func TestIntegrate_ZeroAccelIsLinearMotion(t *testing.T) {
	p := r3.Vec{Y: 1}
	v := r3.Vec{Y: -3}
	pNext, vNext := Integrate(p, v, r3.Vec{}, 0.1)
	vecAlmostEqual(t, pNext, r3.Vec{Y: 0.7}, 1e-12, "position")
	vecAlmostEqual(t, vNext, v, 1e-12, "velocity unchanged")
}
