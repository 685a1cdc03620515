// Package scan expands an experiment's rectangular raster into a shot
// list and drives the acquisition loop: move, record, trigger, repeat.
package scan

import (
	"fmt"

	"github.com/jingxuanxu04/LAPD-DAQ/geom"
)

// Grid is the rectangular shot raster. NZ = 0 selects a planar XY scan;
// the probe then stays in the z = 0 plane.
type Grid struct {
	NX, NY, NZ int

	XMin, XMax float64
	YMin, YMax float64
	ZMin, ZMax float64

	// DuplicateShots is the number of consecutive shots fired at each
	// position, minimum 1.
	DuplicateShots int

	// RunRepeats repeats the whole raster, minimum 1.
	RunRepeats int
}

// Shot is one entry of the expanded raster. Numbering starts at 1.
type Shot struct {
	Num int
	Pos geom.Point
}

func (g Grid) normalized() Grid {
	if g.DuplicateShots < 1 {
		g.DuplicateShots = 1
	}
	if g.RunRepeats < 1 {
		g.RunRepeats = 1
	}
	return g
}

func (g Grid) validate() error {
	if g.NX < 1 || g.NY < 1 {
		return fmt.Errorf("scan: grid is empty: nx=%d ny=%d", g.NX, g.NY)
	}
	if g.NZ < 0 {
		return fmt.Errorf("scan: negative nz=%d", g.NZ)
	}
	return nil
}

// Total returns the number of shots the grid expands to.
func (g Grid) Total() int {
	g = g.normalized()
	nz := g.NZ
	if nz == 0 {
		nz = 1
	}
	return g.NX * g.NY * nz * g.DuplicateShots * g.RunRepeats
}

// linspace returns n evenly spaced values from min to max inclusive.
func linspace(min, max float64, n int) []float64 {
	if n == 1 {
		return []float64{min}
	}
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	return out
}

// Positions expands the raster in acquisition order: x varies fastest,
// then y, then z, with each position held for DuplicateShots consecutive
// shots and the whole raster repeated RunRepeats times.
func (g Grid) Positions() ([]Shot, error) {
	g = g.normalized()
	if err := g.validate(); err != nil {
		return nil, err
	}

	xs := linspace(g.XMin, g.XMax, g.NX)
	ys := linspace(g.YMin, g.YMax, g.NY)
	zs := []float64{0}
	if g.NZ > 0 {
		zs = linspace(g.ZMin, g.ZMax, g.NZ)
	}

	shots := make([]Shot, 0, g.Total())
	num := 1
	for r := 0; r < g.RunRepeats; r++ {
		for _, z := range zs {
			for _, y := range ys {
				for _, x := range xs {
					for d := 0; d < g.DuplicateShots; d++ {
						shots = append(shots, Shot{
							Num: num,
							Pos: geom.Point{X: x, Y: y, Z: z},
						})
						num++
					}
				}
			}
		}
	}
	return shots, nil
}
