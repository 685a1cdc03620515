// Probe-space geometry primitives shared by the boundary checker and the
// synchronized motion controllers.
package geom

import "math"

// Point is a position in probe space, in cm from the vessel reference.
// For 2D drives Z is carried as zero.
type Point struct {
	X, Y, Z float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point {
	return Point{p.X * s, p.Y * s, p.Z * s}
}

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Cross returns the cross product of p and q.
func (p Point) Cross(q Point) Point {
	return Point{
		p.Y*q.Z - p.Z*q.Y,
		p.Z*q.X - p.X*q.Z,
		p.X*q.Y - p.Y*q.X,
	}
}

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// Dist returns the distance between p and q.
func (p Point) Dist(q Point) float64 {
	return p.Sub(q).Norm()
}

// Lerp returns the point at parameter t along the segment a->b.
func Lerp(a, b Point, t float64) Point {
	return a.Add(b.Sub(a).Scale(t))
}

// Unit returns p normalized to unit length. The zero vector is returned
// unchanged.
func (p Point) Unit() Point {
	n := p.Norm()
	if n == 0 {
		return p
	}
	return p.Scale(1 / n)
}

// Perpendiculars returns two orthogonal unit vectors perpendicular to dir.
// The first is built against the world axis least aligned with dir so the
// pair stays numerically stable for any direction.
func Perpendiculars(dir Point) (Point, Point) {
	u := dir.Unit()
	ref := Point{X: 1}
	ax, ay, az := math.Abs(u.X), math.Abs(u.Y), math.Abs(u.Z)
	if ay <= ax && ay <= az {
		ref = Point{Y: 1}
	} else if az <= ax && az <= ay {
		ref = Point{Z: 1}
	}
	p1 := u.Cross(ref).Unit()
	p2 := u.Cross(p1).Unit()
	return p1, p2
}

// Eq reports whether p and q are equal within tol on every coordinate.
func (p Point) Eq(q Point, tol float64) bool {
	return math.Abs(p.X-q.X) <= tol &&
		math.Abs(p.Y-q.Y) <= tol &&
		math.Abs(p.Z-q.Z) <= tol
}
