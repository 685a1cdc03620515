// Reachability checking and obstacle-avoiding path planning for probe
// motion inside the vacuum vessel.
package bounds

import "github.com/jingxuanxu04/LAPD-DAQ/geom"

// Predicate classifies a probe-space point. Predicates must be pure and
// side-effect free; they are evaluated many times per planned segment.
type Predicate func(x, y, z float64) bool

// BoundarySet is the process-wide safety configuration: boundary
// predicates are ANDed ("point lies in the allowed outer region"),
// obstacle predicates are ORed and negated ("point lies inside a
// forbidden region"). Composed once at session start and treated as
// immutable; swapping in a new set goes through Checker.Reset.
type BoundarySet struct {
	Boundaries []Predicate
	Obstacles  []Predicate
}

// Allows reports whether p satisfies every boundary predicate and no
// obstacle predicate.
func (s BoundarySet) Allows(p geom.Point) bool {
	for _, b := range s.Boundaries {
		if !b(p.X, p.Y, p.Z) {
			return false
		}
	}
	return !s.InObstacle(p)
}

// InObstacle reports whether p lies inside any obstacle.
func (s BoundarySet) InObstacle(p geom.Point) bool {
	for _, o := range s.Obstacles {
		if o(p.X, p.Y, p.Z) {
			return true
		}
	}
	return false
}

// Box returns a predicate that accepts points inside the axis-aligned box
// [min, max], inclusive. Used both for outer boundaries and, negated by
// position in the obstacle list, for rectangular obstacles.
func Box(min, max geom.Point) Predicate {
	return func(x, y, z float64) bool {
		return min.X <= x && x <= max.X &&
			min.Y <= y && y <= max.Y &&
			min.Z <= z && z <= max.Z
	}
}

// Path is an ordered waypoint sequence; the first element is the start
// position, the last is the target.
type Path []geom.Point

// Clone returns a copy of the path, protecting cached entries from caller
// mutation.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}
