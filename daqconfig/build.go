package daqconfig

import (
	"github.com/jingxuanxu04/LAPD-DAQ/bounds"
	"github.com/jingxuanxu04/LAPD-DAQ/geom"
	"github.com/jingxuanxu04/LAPD-DAQ/scan"
	"github.com/jingxuanxu04/LAPD-DAQ/transform"
)

func (v Vec) point() geom.Point {
	return geom.Point{X: v.X, Y: v.Y, Z: v.Z}
}

// Transform builds the probe-to-motor mapping from the axis entries.
func (c *Config) Transform() (transform.Transform, error) {
	maps := make([]transform.AxisMap, len(c.Axes))
	for i, a := range c.Axes {
		maps[i] = transform.AxisMap{
			Scale:  a.Scale,
			Offset: a.Offset,
			Invert: a.Invert,
		}
	}
	return transform.NewLinear(maps...)
}

// BoundarySet builds the probe-space boundary and obstacle predicates.
// Motor-space travel limits, when configured, are checked through the
// transform so the planner rejects targets the drives cannot reach.
func (c *Config) BoundarySet(tf transform.Transform) bounds.BoundarySet {
	set := bounds.BoundarySet{
		Boundaries: []bounds.Predicate{
			bounds.Box(c.Boundary.Min.point(), c.Boundary.Max.point()),
		},
	}

	if lim := c.MotorLimits; lim != nil {
		min := [3]float64{lim.Min.X, lim.Min.Y, lim.Min.Z}
		max := [3]float64{lim.Max.X, lim.Max.Y, lim.Max.Z}
		set.Boundaries = append(set.Boundaries, func(x, y, z float64) bool {
			m := tf.ToMotor(geom.Point{X: x, Y: y, Z: z})
			for i, v := range m {
				if v < min[i] || v > max[i] {
					return false
				}
			}
			return true
		})
	}

	for _, ob := range c.Obstacles {
		set.Obstacles = append(set.Obstacles, bounds.Box(ob.Min.point(), ob.Max.point()))
	}
	return set
}

// PlannerParams builds the planner tuning, falling back to the planner's
// defaults for unset fields.
func (c *Config) PlannerParams() bounds.Params {
	return bounds.Params{
		Resolution:     c.Planner.Resolution,
		Clearance:      c.Planner.Clearance,
		OffsetStep:     c.Planner.OffsetStep,
		MaxOffsetSteps: c.Planner.MaxOffsetSteps,
		RandomAttempts: c.Planner.RandomAttempts,
		Seed:           c.Planner.Seed,
	}
}

// ScanGrid builds the shot raster.
func (c *Config) ScanGrid() scan.Grid {
	return scan.Grid{
		NX: c.Grid.NX, NY: c.Grid.NY, NZ: c.Grid.NZ,
		XMin: c.Grid.XMin, XMax: c.Grid.XMax,
		YMin: c.Grid.YMin, YMax: c.Grid.YMax,
		ZMin: c.Grid.ZMin, ZMax: c.Grid.ZMax,
		DuplicateShots: c.Grid.DuplicateShots,
		RunRepeats:     c.Grid.RunRepeats,
	}
}
