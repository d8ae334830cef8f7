// Package geometry provides the 2D vector math used to turn keypoints into
// bones.
//
// All functions work in image space: x grows to the right and y grows
// downwards. Angles are in degrees, counter-clockwise as seen on screen,
// which is the convention of Spine skeletons.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateGeometry matches every *DegenerateGeometryError with errors.Is
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// DegenerateGeometryError reports input that would produce NaN or an
// undefined angle
type DegenerateGeometryError struct {
	Op     string
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrDegenerateGeometry, e.Reason)
}

func (e *DegenerateGeometryError) Is(target error) bool {
	return target == ErrDegenerateGeometry
}

// Coordinate is a point in image space
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finite reports whether both components are real numbers
func (c Coordinate) Finite() bool {
	return !math.IsNaN(c.X) && !math.IsNaN(c.Y) && !math.IsInf(c.X, 0) && !math.IsInf(c.Y, 0)
}

// Sub returns c - o
func (c Coordinate) Sub(o Coordinate) Coordinate {
	return Coordinate{X: c.X - o.X, Y: c.Y - o.Y}
}

// Midpoint returns the arithmetic mean of a and b
func Midpoint(a, b Coordinate) Coordinate {
	return Coordinate{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Distance returns the Euclidean length between a and b
func Distance(a, b Coordinate) (float64, error) {
	if !a.Finite() || !b.Finite() {
		return 0, &DegenerateGeometryError{Op: "distance", Reason: fmt.Sprintf("non-finite point %v -> %v", a, b)}
	}
	return math.Hypot(b.X-a.X, b.Y-a.Y), nil
}

// RotationOf returns the angle of the vector from a to b against the
// horizontal axis, in (-180, 180]. A vertical segment pointing up the
// screen is 90.
func RotationOf(a, b Coordinate) (float64, error) {
	if !a.Finite() || !b.Finite() {
		return 0, &DegenerateGeometryError{Op: "rotation", Reason: fmt.Sprintf("non-finite point %v -> %v", a, b)}
	}
	dx := b.X - a.X
	dy := a.Y - b.Y // flip to y-up so angles turn counter-clockwise on screen
	if dx == 0 && dy == 0 {
		return 0, &DegenerateGeometryError{Op: "rotation", Reason: fmt.Sprintf("coincident points at %v", a)}
	}
	return NormalizeDegrees(math.Atan2(dy, dx) * 180 / math.Pi), nil
}

// NormalizeDegrees maps any finite angle into (-180, 180]
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Transform is a bone's position and rotation in some frame
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// Position returns the translation part of t
func (t Transform) Position() Coordinate {
	return Coordinate{X: t.X, Y: t.Y}
}

// ToLocalSpace expresses child, given in global space, in the frame of
// parent, also given in global space: translate by minus the parent
// position, rotate by minus the parent rotation, subtract the parent
// rotation from the child's.
func ToLocalSpace(child, parent Transform) (Transform, error) {
	for _, v := range []float64{child.X, child.Y, child.Rotation, parent.X, parent.Y, parent.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Transform{}, &DegenerateGeometryError{Op: "local transform", Reason: "non-finite transform component"}
		}
	}

	theta := parent.Rotation * math.Pi / 180
	sin, cos := math.Sincos(theta)

	// inverse of a counter-clockwise (on screen) rotation in y-down space
	inverse := mat.NewDense(2, 2, []float64{
		cos, -sin,
		sin, cos,
	})
	offset := mat.NewVecDense(2, []float64{child.X - parent.X, child.Y - parent.Y})

	var local mat.VecDense
	local.MulVec(inverse, offset)

	return Transform{
		X:        local.AtVec(0),
		Y:        local.AtVec(1),
		Rotation: NormalizeDegrees(child.Rotation - parent.Rotation),
	}, nil
}
