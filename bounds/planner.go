package bounds

import (
	"errors"
	"fmt"

	"github.com/jingxuanxu04/LAPD-DAQ/geom"
)

var (
	// ErrOutOfBounds marks a requested point that fails IsValid
	// outright. Never causes hardware motion.
	ErrOutOfBounds = errors.New("position out of bounds")

	// ErrPathNotFound marks a planning failure after every strategy
	// exhausted its bounded attempts. Never causes hardware motion.
	ErrPathNotFound = errors.New("no valid path found")
)

// degenerateTol treats a start/end pair closer than this as the same
// point, producing a trivial one-point path.
const degenerateTol = 1e-9

// FindPath returns a safe waypoint sequence from start to end, first
// element start, last element end. Strategies run in fixed priority
// order: cached path (re-validated), direct segment, two-point
// perpendicular offset, three-point jog, randomized midpoint search.
func (c *Checker) FindPath(start, end geom.Point) (Path, error) {
	if !c.IsValid(start) {
		return nil, fmt.Errorf("bounds: start %v: %w", start, ErrOutOfBounds)
	}
	if !c.IsValid(end) {
		return nil, fmt.Errorf("bounds: target %v: %w", end, ErrOutOfBounds)
	}

	if start.Eq(end, degenerateTol) {
		return Path{start}, nil
	}

	// A cache hit is only trusted after re-validation so a boundary-set
	// change since insertion can never smuggle an unsafe path through.
	if cached, ok := c.cache.get(start, end); ok {
		if c.isPathValid(cached) {
			c.met.CacheHit()
			return cached.Clone(), nil
		}
		c.cache.drop(start, end)
	}
	c.met.CacheMiss()

	type strategy struct {
		name string
		run  func(start, end geom.Point) (Path, bool)
	}
	strategies := []strategy{
		{"direct", c.findDirect},
		{"two-point", c.findTwoPoint},
		{"three-point", c.findThreePoint},
		{"randomized", c.findRandomized},
	}

	for _, s := range strategies {
		path, ok := s.run(start, end)
		if !ok {
			continue
		}
		c.met.StrategySuccess(s.name)
		c.log.Debug("path found", "strategy", s.name, "waypoints", len(path))
		c.cache.put(start, end, path)
		return path, nil
	}

	c.met.PathNotFound()
	return nil, fmt.Errorf("bounds: %v -> %v: %w", start, end, ErrPathNotFound)
}

// findDirect accepts the straight segment when it is fully valid.
func (c *Checker) findDirect(start, end geom.Point) (Path, bool) {
	if !c.IsSegmentValid(start, end) {
		return nil, false
	}
	return Path{start, end}, true
}

// offsetDirections enumerates the perpendicular offsets tried by the two-
// and three-point strategies: both perpendicular axes, both signs, with
// magnitude growing by OffsetStep up to MaxOffsetSteps.
func (c *Checker) offsetDirections(start, end geom.Point) []geom.Point {
	p1, p2 := geom.Perpendiculars(end.Sub(start))
	dirs := []geom.Point{p1, p1.Scale(-1), p2, p2.Scale(-1)}

	offsets := make([]geom.Point, 0, 4*c.params.MaxOffsetSteps)
	for step := 1; step <= c.params.MaxOffsetSteps; step++ {
		mag := float64(step) * c.params.OffsetStep
		for _, d := range dirs {
			offsets = append(offsets, d.Scale(mag))
		}
	}
	return offsets
}

// findTwoPoint inserts one intermediate waypoint offset perpendicular to
// the start-end line, accepting the first offset whose two segments are
// both valid.
func (c *Checker) findTwoPoint(start, end geom.Point) (Path, bool) {
	mid := geom.Lerp(start, end, 0.5)
	for _, off := range c.offsetDirections(start, end) {
		w := mid.Add(off)
		if !c.IsValid(w) {
			continue
		}
		if c.IsSegmentValid(start, w) && c.IsSegmentValid(w, end) {
			return Path{start, w, end}, true
		}
	}
	return nil, false
}

// findThreePoint jogs out perpendicular to the line, traverses parallel
// to it, and jogs back, for obstacles a single intermediate point cannot
// clear.
func (c *Checker) findThreePoint(start, end geom.Point) (Path, bool) {
	for _, off := range c.offsetDirections(start, end) {
		w1 := start.Add(off)
		w2 := end.Add(off)
		if !c.IsValid(w1) || !c.IsValid(w2) {
			continue
		}
		if c.IsSegmentValid(start, w1) &&
			c.IsSegmentValid(w1, w2) &&
			c.IsSegmentValid(w2, end) {
			return Path{start, w1, w2, end}, true
		}
	}
	return nil, false
}

// findRandomized samples candidate midpoints around the segment center
// within a bounded attempt budget. The generator is seeded at
// construction, so a given checker finds the same paths every run.
func (c *Checker) findRandomized(start, end geom.Point) (Path, bool) {
	mid := geom.Lerp(start, end, 0.5)
	spread := float64(c.params.MaxOffsetSteps) * c.params.OffsetStep

	for i := 0; i < c.params.RandomAttempts; i++ {
		w := mid.Add(geom.Point{
			X: (c.rng.Float64()*2 - 1) * spread,
			Y: (c.rng.Float64()*2 - 1) * spread,
			Z: (c.rng.Float64()*2 - 1) * spread,
		})
		if !c.IsValid(w) {
			continue
		}
		if c.IsSegmentValid(start, w) && c.IsSegmentValid(w, end) {
			return Path{start, w, end}, true
		}
	}
	return nil, false
}

// CacheSize reports the number of memoized paths, for tests and status
// reporting.
func (c *Checker) CacheSize() int {
	return c.cache.len()
}
