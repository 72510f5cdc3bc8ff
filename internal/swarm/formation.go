package swarm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Formation shape names accepted by NewFormation.
const (
	ShapePentagon = "pentagon"
	ShapeCircle   = "circle"
	ShapeLine     = "line"
	ShapeGrid     = "grid"
)

// ValidShapes lists all recognized formation shapes.
var ValidShapes = []string{ShapePentagon, ShapeCircle, ShapeLine, ShapeGrid}

// FormationParams configures the geometry of a formation.
type FormationParams struct {
	// Radius is the circumradius for pentagon/circle shapes and the
	// inter-slot spacing for line/grid shapes, in meters.
	Radius float64

	// RotateWithHeading rotates slot assignments with the target's
	// horizontal heading so the formation flies "nose first". When the
	// target is near stationary the last heading is unreliable, so slots
	// stay axis-aligned below HeadingSpeedFloor.
	RotateWithHeading bool
}

// HeadingSpeedFloor is the minimum horizontal target speed (m/s) below
// which heading-following formations keep an axis-aligned orientation.
const HeadingSpeedFloor = 0.05

// Formation assigns each agent a desired slot position relative to the
// target. Implementations are stateless; the shape is selected once at
// configuration time via NewFormation.
type Formation interface {
	// DesiredPosition returns the slot position for agent id of n agents
	// given the target pose. The desired slot velocity is the target
	// velocity (rigid translation).
	DesiredPosition(id, n int, target TargetState) r3.Vec
}

// NewFormation builds the formation strategy for the named shape.
func NewFormation(shape string, params FormationParams) (Formation, error) {
	if params.Radius <= 0 {
		return nil, fmt.Errorf("formation radius must be positive, got %v", params.Radius)
	}
	switch shape {
	case ShapePentagon, ShapeCircle:
		// A pentagon is the five-slot special case of the ring; both
		// accept any n so a config change in agent count never breaks
		// the shape selection.
		return &ringFormation{params: params}, nil
	case ShapeLine:
		return &lineFormation{params: params}, nil
	case ShapeGrid:
		return &gridFormation{params: params}, nil
	default:
		return nil, fmt.Errorf("unknown formation shape %q (valid: %v)", shape, ValidShapes)
	}
}

// heading returns the rotation angle for the formation: the target's
// horizontal heading when tracking is enabled and the target is moving,
// otherwise zero.
func (p FormationParams) heading(target TargetState) float64 {
	if !p.RotateWithHeading {
		return 0
	}
	if math.Hypot(target.Velocity.X, target.Velocity.Y) < HeadingSpeedFloor {
		return 0
	}
	return math.Atan2(target.Velocity.Y, target.Velocity.X)
}

// rotateXY rotates v about the Z axis by theta radians.
func rotateXY(v r3.Vec, theta float64) r3.Vec {
	if theta == 0 {
		return v
	}
	s, c := math.Sincos(theta)
	return r3.Vec{
		X: c*v.X - s*v.Y,
		Y: s*v.X + c*v.Y,
		Z: v.Z,
	}
}

// ringFormation places agents evenly on a horizontal circle around the
// target: agent i at angle 2πi/n, radius params.Radius. With five agents
// this is the pentagon of the original deployment.
type ringFormation struct {
	params FormationParams
}

func (f *ringFormation) DesiredPosition(id, n int, target TargetState) r3.Vec {
	angle := 2 * math.Pi * float64(id) / float64(n)
	slot := r3.Vec{
		X: f.params.Radius * math.Cos(angle),
		Y: f.params.Radius * math.Sin(angle),
	}
	return r3.Add(target.Position, rotateXY(slot, f.params.heading(target)))
}

// lineFormation places agents abreast on a horizontal line through the
// target, centered on it, spaced params.Radius apart. With heading
// tracking enabled the line stays perpendicular to the direction of
// travel.
type lineFormation struct {
	params FormationParams
}

func (f *lineFormation) DesiredPosition(id, n int, target TargetState) r3.Vec {
	offset := float64(id) - float64(n-1)/2
	slot := r3.Vec{Y: offset * f.params.Radius}
	return r3.Add(target.Position, rotateXY(slot, f.params.heading(target)))
}

// gridFormation places agents on a horizontal square grid behind the
// target, row-major, with rows of ceil(√n) and spacing params.Radius.
type gridFormation struct {
	params FormationParams
}

func (f *gridFormation) DesiredPosition(id, n int, target TargetState) r3.Vec {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	row := id / cols
	col := id % cols
	// Center the grid on the target.
	rows := (n + cols - 1) / cols
	slot := r3.Vec{
		X: (float64(row) - float64(rows-1)/2) * f.params.Radius,
		Y: (float64(col) - float64(cols-1)/2) * f.params.Radius,
	}
	return r3.Add(target.Position, rotateXY(slot, f.params.heading(target)))
}
