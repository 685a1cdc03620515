package motion

import "math"

// scaleVelocities distributes vmax across the axes so every axis finishes
// its leg of a straight segment at the same time: the axis with the largest
// displacement runs at vmax, the rest in proportion to their distance.
// Velocities are in motor rev/sec; d holds per-axis displacements in cm.
func scaleVelocities(d []float64, vmax float64) []float64 {
	dmax := 0.0
	for _, di := range d {
		if a := math.Abs(di); a > dmax {
			dmax = a
		}
	}

	v := make([]float64, len(d))
	if dmax == 0 {
		return v
	}
	for i, di := range d {
		v[i] = vmax * math.Abs(di) / dmax
	}
	return v
}
