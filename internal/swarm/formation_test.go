package swarm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewFormation_UnknownShape(t *testing.T) {
	if _, err := NewFormation("wedge", FormationParams{Radius: 5}); err == nil {
		t.Fatal("expected error for unknown shape")
	}
}

func TestNewFormation_InvalidRadius(t *testing.T) {
	if _, err := NewFormation(ShapePentagon, FormationParams{Radius: 0}); err == nil {
		t.Fatal("expected error for zero radius")
	}
	if _, err := NewFormation(ShapePentagon, FormationParams{Radius: -1}); err == nil {
		t.Fatal("expected error for negative radius")
	}
}

func TestPentagonFormation_SlotGeometry(t *testing.T) {
	f, err := NewFormation(ShapePentagon, FormationParams{Radius: 8})
	if err != nil {
		t.Fatal(err)
	}
	target := TargetState{Position: r3.Vec{X: 50, Y: 50, Z: 10}}

	// Agent 0 sits at angle 0: target + (radius, 0, 0).
	got := f.DesiredPosition(0, 5, target)
	vecAlmostEqual(t, got, r3.Vec{X: 58, Y: 50, Z: 10}, 1e-9, "slot 0")

	// All slots lie on the circle and are evenly spaced.
	var prev r3.Vec
	for id := 0; id < 5; id++ {
		slot := f.DesiredPosition(id, 5, target)
		r := r3.Norm(r3.Sub(slot, target.Position))
		if math.Abs(r-8) > 1e-9 {
			t.Errorf("slot %d not on formation circle: radius %v", id, r)
		}
		if id > 0 {
			chord := r3.Norm(r3.Sub(slot, prev))
			want := 2 * 8 * math.Sin(math.Pi/5)
			if math.Abs(chord-want) > 1e-9 {
				t.Errorf("slot %d: chord %v, want %v", id, chord, want)
			}
		}
		prev = slot
	}
}

func TestLineFormation_CenteredOnTarget(t *testing.T) {
	f, err := NewFormation(ShapeLine, FormationParams{Radius: 2})
	if err != nil {
		t.Fatal(err)
	}
	target := TargetState{Position: r3.Vec{Z: 5}}

	// Three agents: offsets -2, 0, +2 along Y.
	vecAlmostEqual(t, f.DesiredPosition(0, 3, target), r3.Vec{Y: -2, Z: 5}, 1e-9, "slot 0")
	vecAlmostEqual(t, f.DesiredPosition(1, 3, target), r3.Vec{Z: 5}, 1e-9, "slot 1")
	vecAlmostEqual(t, f.DesiredPosition(2, 3, target), r3.Vec{Y: 2, Z: 5}, 1e-9, "slot 2")
}

func TestGridFormation_DistinctSlots(t *testing.T) {
	f, err := NewFormation(ShapeGrid, FormationParams{Radius: 3})
	if err != nil {
		t.Fatal(err)
	}
	target := TargetState{}

	const n = 7
	seen := make(map[r3.Vec]bool)
	for id := 0; id < n; id++ {
		slot := f.DesiredPosition(id, n, target)
		if seen[slot] {
			t.Fatalf("duplicate slot for agent %d: %+v", id, slot)
		}
		seen[slot] = true
	}
}

func TestFormation_RotateWithHeading(t *testing.T) {
	f, err := NewFormation(ShapeCircle, FormationParams{Radius: 4, RotateWithHeading: true})
	if err != nil {
		t.Fatal(err)
	}

	// Target moving along +Y: slot 0 rotates from +X to +Y.
	target := TargetState{Velocity: r3.Vec{Y: 3}}
	got := f.DesiredPosition(0, 4, target)
	vecAlmostEqual(t, got, r3.Vec{Y: 4}, 1e-9, "rotated slot")

	// Below the heading speed floor the formation stays axis-aligned.
	slow := TargetState{Velocity: r3.Vec{Y: HeadingSpeedFloor / 2}}
	got = f.DesiredPosition(0, 4, slow)
	vecAlmostEqual(t, got, r3.Vec{X: 4}, 1e-9, "axis-aligned slot")
}

func TestFormation_HeadingIgnoredWhenDisabled(t *testing.T) {
	f, err := NewFormation(ShapeCircle, FormationParams{Radius: 4})
	if err != nil {
		t.Fatal(err)
	}
	target := TargetState{Velocity: r3.Vec{Y: 3}}
	got := f.DesiredPosition(0, 4, target)
	vecAlmostEqual(t, got, r3.Vec{X: 4}, 1e-9, "fixed slot")
}
