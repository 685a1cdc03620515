// Coordinate mapping between probe space and motor space. The constants
// are supplied by the experiment configuration; nothing here measures or
// calibrates hardware.
package transform

import (
	"fmt"

	"github.com/jingxuanxu04/LAPD-DAQ/geom"
)

// Transform maps probe-space points to per-axis motor coordinates and
// back. Implementations must be exactly invertible within floating-point
// tolerance: ToProbe(ToMotor(p)) == p.
type Transform interface {
	// ToMotor converts a probe-space point to motor coordinates, one
	// entry per axis in controller order.
	ToMotor(p geom.Point) []float64

	// ToProbe converts motor coordinates back to a probe-space point.
	// For 2-axis transforms the returned Z is zero.
	ToProbe(m []float64) (geom.Point, error)

	// Axes returns the number of motor axes (2 or 3).
	Axes() int
}

// AxisMap is the linear mapping for one axis: motor = (probe - Offset) *
// Scale, negated when Invert is set.
type AxisMap struct {
	Scale  float64
	Offset float64
	Invert bool
}

func (m AxisMap) toMotor(probe float64) float64 {
	v := (probe - m.Offset) * m.Scale
	if m.Invert {
		v = -v
	}
	return v
}

func (m AxisMap) toProbe(motor float64) float64 {
	if m.Invert {
		motor = -motor
	}
	return motor/m.Scale + m.Offset
}

// Linear is a per-axis linear transform for 2- or 3-axis drives.
type Linear struct {
	maps []AxisMap
}

// NewLinear builds a linear transform from per-axis mappings.
func NewLinear(maps ...AxisMap) (*Linear, error) {
	if n := len(maps); n != 2 && n != 3 {
		return nil, fmt.Errorf("transform: need 2 or 3 axis mappings, got %d", n)
	}
	for i, m := range maps {
		if m.Scale == 0 {
			return nil, fmt.Errorf("transform: axis %d has zero scale", i)
		}
	}
	return &Linear{maps: maps}, nil
}

// Axes returns the number of configured axes.
func (l *Linear) Axes() int { return len(l.maps) }

// ToMotor converts a probe-space point to motor coordinates.
func (l *Linear) ToMotor(p geom.Point) []float64 {
	coords := [3]float64{p.X, p.Y, p.Z}
	out := make([]float64, len(l.maps))
	for i, m := range l.maps {
		out[i] = m.toMotor(coords[i])
	}
	return out
}

// ToProbe converts motor coordinates back to a probe-space point.
func (l *Linear) ToProbe(motor []float64) (geom.Point, error) {
	if len(motor) != len(l.maps) {
		return geom.Point{}, fmt.Errorf("transform: got %d motor coordinates, want %d",
			len(motor), len(l.maps))
	}
	var coords [3]float64
	for i, m := range l.maps {
		coords[i] = m.toProbe(motor[i])
	}
	return geom.Point{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

// Identity returns a transform that passes coordinates through unchanged,
// for drives whose motor units are already probe-space cm.
func Identity(axes int) (*Linear, error) {
	maps := make([]AxisMap, axes)
	for i := range maps {
		maps[i] = AxisMap{Scale: 1}
	}
	return NewLinear(maps...)
}
