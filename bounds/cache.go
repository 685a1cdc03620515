package bounds

import (
	"math"

	"github.com/jingxuanxu04/LAPD-DAQ/geom"
)

// pathCache memoizes found paths keyed by the quantized (start, end)
// pair. It is a pure optimization: entries are re-validated against the
// live BoundarySet before use, and the whole cache is dropped when the
// set changes.
type pathCache struct {
	grid    float64
	entries map[pathKey]Path
}

type quantPoint struct {
	X, Y, Z int64
}

type pathKey struct {
	start, end quantPoint
}

func newPathCache(grid float64) *pathCache {
	if grid <= 0 {
		grid = 0.1
	}
	return &pathCache{grid: grid, entries: make(map[pathKey]Path)}
}

func (c *pathCache) quantize(p geom.Point) quantPoint {
	return quantPoint{
		X: int64(math.Round(p.X / c.grid)),
		Y: int64(math.Round(p.Y / c.grid)),
		Z: int64(math.Round(p.Z / c.grid)),
	}
}

func (c *pathCache) key(start, end geom.Point) pathKey {
	return pathKey{start: c.quantize(start), end: c.quantize(end)}
}

func (c *pathCache) get(start, end geom.Point) (Path, bool) {
	p, ok := c.entries[c.key(start, end)]
	return p, ok
}

func (c *pathCache) put(start, end geom.Point, path Path) {
	c.entries[c.key(start, end)] = path.Clone()
}

func (c *pathCache) drop(start, end geom.Point) {
	delete(c.entries, c.key(start, end))
}

func (c *pathCache) clear() {
	c.entries = make(map[pathKey]Path)
}

func (c *pathCache) len() int {
	return len(c.entries)
}
