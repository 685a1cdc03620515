package bounds

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/jingxuanxu04/LAPD-DAQ/geom"
	"github.com/jingxuanxu04/LAPD-DAQ/metrics"
)

// Params are the planner's tunable knobs. The tie-break order between
// strategies is fixed (direct, two-point, three-point, randomized); these
// parameters only bound each strategy's search.
type Params struct {
	// Resolution is the sampling step along a segment, in cm.
	Resolution float64

	// Clearance is the minimum distance a valid point keeps from every
	// obstacle surface, enforced by stencil sampling.
	Clearance float64

	// OffsetStep is the magnitude increment for the perpendicular
	// offsets tried by the two- and three-point strategies, in cm.
	OffsetStep float64

	// MaxOffsetSteps bounds how many offset magnitudes each offset
	// strategy tries per direction.
	MaxOffsetSteps int

	// RandomAttempts bounds the randomized strategy's candidate count.
	RandomAttempts int

	// Seed makes the randomized strategy reproducible. Production
	// sessions may reseed; tests rely on a fixed value.
	Seed uint64
}

// DefaultParams mirrors the tuning used on the actual probe drives.
func DefaultParams() Params {
	return Params{
		Resolution:     0.2,
		Clearance:      1.0,
		OffsetStep:     5.0,
		MaxOffsetSteps: 4,
		RandomAttempts: 20,
		Seed:           1,
	}
}

func (p *Params) withDefaults() {
	d := DefaultParams()
	if p.Resolution <= 0 {
		p.Resolution = d.Resolution
	}
	if p.Clearance < 0 {
		p.Clearance = d.Clearance
	}
	if p.OffsetStep <= 0 {
		p.OffsetStep = d.OffsetStep
	}
	if p.MaxOffsetSteps <= 0 {
		p.MaxOffsetSteps = d.MaxOffsetSteps
	}
	if p.RandomAttempts <= 0 {
		p.RandomAttempts = d.RandomAttempts
	}
	if p.Seed == 0 {
		p.Seed = d.Seed
	}
}

// Checker decides reachability and constructs safe paths. It is not safe
// for concurrent use; each motion group owns one Checker (and therefore
// one path cache).
type Checker struct {
	set     BoundarySet
	params  Params
	rng     *rand.Rand
	cache   *pathCache
	stencil []geom.Point
	log     *slog.Logger
	met     *metrics.Planner
}

// New builds a Checker over an immutable BoundarySet.
func New(set BoundarySet, params Params) *Checker {
	params.withDefaults()
	c := &Checker{
		set:    set,
		params: params,
		rng:    rand.New(rand.NewPCG(params.Seed, params.Seed^0x9E3779B97F4A7C15)),
		cache:  newPathCache(params.Resolution),
		log:    slog.Default(),
	}
	c.stencil = clearanceStencil(params.Clearance)
	return c
}

// SetLogger replaces the checker's logger.
func (c *Checker) SetLogger(log *slog.Logger) {
	if log != nil {
		c.log = log
	}
}

// SetMetrics attaches planner metrics. A nil value disables them.
func (c *Checker) SetMetrics(m *metrics.Planner) { c.met = m }

// Params returns the active tuning.
func (c *Checker) Params() Params { return c.params }

// Reset swaps in a new BoundarySet and invalidates every cached path.
// Only to be called between sessions, never concurrently with planning.
func (c *Checker) Reset(set BoundarySet) {
	c.set = set
	c.cache.clear()
}

// clearanceStencil samples the face centers and corners of a cube of
// half-width r around a point. A point passes the clearance check when no
// stencil sample lands inside an obstacle.
func clearanceStencil(r float64) []geom.Point {
	if r <= 0 {
		return nil
	}
	d := r / math.Sqrt(3)
	return []geom.Point{
		{X: r}, {X: -r}, {Y: r}, {Y: -r}, {Z: r}, {Z: -r},
		{X: d, Y: d, Z: d}, {X: d, Y: d, Z: -d},
		{X: d, Y: -d, Z: d}, {X: d, Y: -d, Z: -d},
		{X: -d, Y: d, Z: d}, {X: -d, Y: d, Z: -d},
		{X: -d, Y: -d, Z: d}, {X: -d, Y: -d, Z: -d},
	}
}

// IsValid reports whether p lies in the allowed region, outside every
// obstacle, and at least the configured clearance away from every
// obstacle surface.
func (c *Checker) IsValid(p geom.Point) bool {
	if !c.set.Allows(p) {
		return false
	}
	for _, off := range c.stencil {
		if c.set.InObstacle(p.Add(off)) {
			return false
		}
	}
	return true
}

// IsSegmentValid samples the straight segment a->b at the configured
// resolution (at least 10 samples) and reports whether every sample is
// valid.
func (c *Checker) IsSegmentValid(a, b geom.Point) bool {
	length := a.Dist(b)
	n := int(length / c.params.Resolution)
	if n < 10 {
		n = 10
	}
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		if !c.IsValid(geom.Lerp(a, b, t)) {
			return false
		}
	}
	return true
}

// isPathValid checks every consecutive waypoint pair of path.
func (c *Checker) isPathValid(path Path) bool {
	for i := 1; i < len(path); i++ {
		if !c.IsSegmentValid(path[i-1], path[i]) {
			return false
		}
	}
	return true
}
