package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	commonerrors "github.com/amp-labs/amp-common/errors"

	"github.com/jingxuanxu04/LAPD-DAQ/bounds"
	"github.com/jingxuanxu04/LAPD-DAQ/geom"
	"github.com/jingxuanxu04/LAPD-DAQ/metrics"
	"github.com/jingxuanxu04/LAPD-DAQ/motor"
	"github.com/jingxuanxu04/LAPD-DAQ/transform"
)

// ErrSegmentTimeout marks a waypoint segment that outlived the segment
// timeout. The axes are stopped before it is returned.
var ErrSegmentTimeout = errors.New("segment timed out")

// minMoveCm is the displacement below which an axis is not commanded at
// all for a segment; dispatching a zero-length move would leave the drive
// reporting motion it never performs.
const minMoveCm = 1e-4

// Axis is the slice of motor.Axis the controller drives. Declared here so
// tests can substitute scripted axes without hardware.
type Axis interface {
	Name() string
	StartMove(target, velocity float64) error
	Status() (motor.Status, error)
	Position() (float64, error)
	Alarm() (string, error)
	Stop() error
	Home(ctx context.Context) error
}

// Config assembles a synchronized motion controller.
type Config struct {
	// Axes in motor order; 2 for an XY drive, 3 for XYZ. Must match
	// Transform.Axes().
	Axes []Axis

	// Transform maps probe coordinates to per-axis motor positions.
	Transform transform.Transform

	// Checker validates targets and plans waypoint paths.
	Checker *bounds.Checker

	// MaxVelocity is the speed of the longest-displacement axis per
	// segment, in rev/sec.
	MaxVelocity float64

	// PollInterval is the shared status poll period during a segment.
	PollInterval time.Duration

	// SegmentTimeout bounds the execution of one waypoint segment.
	SegmentTimeout time.Duration

	Logger   *slog.Logger
	Metrics  *metrics.Motion
	Recorder Recorder
}

func (c *Config) withDefaults() {
	if c.MaxVelocity <= 0 {
		c.MaxVelocity = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.SegmentTimeout <= 0 {
		c.SegmentTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller moves the probe tip through validated straight-line segments,
// coordinating 2 or 3 motor axes so they arrive together. One move runs at
// a time; Stop may be called concurrently from any goroutine.
type Controller struct {
	axes    []Axis
	tf      transform.Transform
	checker *bounds.Checker
	vmax    float64
	poll    time.Duration
	segTmo  time.Duration
	log     *slog.Logger
	met     *metrics.Motion
	rec     Recorder

	mu      sync.Mutex
	stopped atomic.Bool
}

// New validates the configuration and returns a controller.
func New(cfg Config) (*Controller, error) {
	cfg.withDefaults()

	if n := len(cfg.Axes); n != 2 && n != 3 {
		return nil, fmt.Errorf("motion: need 2 or 3 axes, got %d", n)
	}
	if cfg.Transform == nil {
		return nil, fmt.Errorf("motion: transform required")
	}
	if cfg.Transform.Axes() != len(cfg.Axes) {
		return nil, fmt.Errorf("motion: transform handles %d axes, have %d",
			cfg.Transform.Axes(), len(cfg.Axes))
	}
	if cfg.Checker == nil {
		return nil, fmt.Errorf("motion: boundary checker required")
	}

	return &Controller{
		axes:    cfg.Axes,
		tf:      cfg.Transform,
		checker: cfg.Checker,
		vmax:    cfg.MaxVelocity,
		poll:    cfg.PollInterval,
		segTmo:  cfg.SegmentTimeout,
		log:     cfg.Logger,
		met:     cfg.Metrics,
		rec:     cfg.Recorder,
	}, nil
}

// Position reads every axis and reports the probe position.
func (c *Controller) Position() (geom.Point, error) {
	pos := make([]float64, len(c.axes))
	for i, a := range c.axes {
		p, err := a.Position()
		if err != nil {
			return geom.Point{}, fmt.Errorf("motion: %s axis readback: %w", a.Name(), err)
		}
		pos[i] = p
	}
	return c.tf.ToProbe(pos)
}

// MoveToProbePosition plans a path to target and executes it segment by
// segment. An unreachable or unsafe target skips the move rather than
// failing the run: the returned Result carries the reason and the error is
// nil. Hardware faults mid-move stop every axis and return both the Result
// and the fault.
func (c *Controller) MoveToProbePosition(ctx context.Context, target geom.Point) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped.Store(false)

	start := time.Now()
	res := Result{Requested: target}

	if !c.checker.IsValid(target) {
		c.log.Warn("target rejected", "target", target)
		return c.finish(res, "target out of bounds", nil)
	}

	cur, err := c.Position()
	if err != nil {
		return c.finish(res, "position readback failed", err)
	}

	path, err := c.checker.FindPath(cur, target)
	switch {
	case errors.Is(err, bounds.ErrPathNotFound):
		c.log.Warn("no path to target", "from", cur, "to", target)
		return c.finish(res, "no valid path", nil)
	case errors.Is(err, bounds.ErrOutOfBounds):
		c.log.Warn("position out of bounds", "from", cur, "to", target, "error", err)
		return c.finish(res, "target out of bounds", nil)
	case err != nil:
		return c.finish(res, err.Error(), err)
	}

	for i := 1; i < len(path); i++ {
		if c.stopped.Load() {
			return c.finish(res, "stopped", nil)
		}
		// The set may have changed since planning; never execute a
		// segment that is no longer safe.
		if !c.checker.IsSegmentValid(path[i-1], path[i]) {
			c.log.Warn("segment invalidated before execution",
				"from", path[i-1], "to", path[i])
			return c.finish(res, "path invalidated", nil)
		}
		if err := c.executeSegment(ctx, path[i]); err != nil {
			if errors.Is(err, motor.ErrStopped) {
				return c.finish(res, "stopped", err)
			}
			return c.finish(res, err.Error(), err)
		}
	}

	res.Achieved, _ = c.Position()
	c.met.MoveCompleted(time.Since(start))
	c.record(res)
	return res, nil
}

// finish fills in the skip state and achieved position, records the
// result, and passes the underlying error through.
func (c *Controller) finish(res Result, reason string, err error) (Result, error) {
	res.Skipped = true
	res.SkipReason = reason
	if p, perr := c.Position(); perr == nil {
		res.Achieved = p
	}
	c.met.MoveSkipped(reason)
	c.record(res)
	return res, err
}

func (c *Controller) record(res Result) {
	if c.rec == nil {
		return
	}
	if err := c.rec.Record(res); err != nil {
		c.log.Error("failed to record move result", "error", err)
	}
}

// executeSegment drives all axes to the motor positions of one waypoint
// and polls until every commanded axis settles. Any fault stops the whole
// segment.
func (c *Controller) executeSegment(ctx context.Context, waypoint geom.Point) error {
	targets := c.tf.ToMotor(waypoint)

	disp := make([]float64, len(c.axes))
	for i, a := range c.axes {
		p, err := a.Position()
		if err != nil {
			return fmt.Errorf("motion: %s axis readback: %w", a.Name(), err)
		}
		disp[i] = targets[i] - p
	}
	vel := scaleVelocities(disp, c.vmax)

	// Dispatch is sequential but non-blocking, so the drives still start
	// within one command round-trip of each other.
	var started []Axis
	for i, a := range c.axes {
		if math.Abs(disp[i]) < minMoveCm {
			continue
		}
		if err := a.StartMove(targets[i], vel[i]); err != nil {
			c.met.AxisFault(a.Name())
			c.stopAxes(started)
			return fmt.Errorf("motion: %s axis start: %w", a.Name(), err)
		}
		started = append(started, a)
	}
	if len(started) == 0 {
		return nil
	}

	begin := time.Now()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stopAxes(started)
			return fmt.Errorf("motion: %w", motor.ErrStopped)
		case <-ticker.C:
		}

		if c.stopped.Load() {
			return fmt.Errorf("motion: %w", motor.ErrStopped)
		}
		if time.Since(begin) > c.segTmo {
			c.stopAxes(started)
			return fmt.Errorf("motion: %w after %s", ErrSegmentTimeout, c.segTmo)
		}

		settled := true
		for _, a := range started {
			st, err := a.Status()
			if err != nil {
				c.met.AxisFault(a.Name())
				c.stopAxes(started)
				return fmt.Errorf("motion: %s axis status: %w", a.Name(), err)
			}
			switch st {
			case motor.StatusMoving:
				settled = false
			case motor.StatusIdle:
			default:
				c.met.AxisFault(a.Name())
				c.stopAxes(started)
				return c.faultError(a, st)
			}
		}
		if settled {
			return nil
		}
	}
}

// faultError turns a fault status into the matching typed error with
// whatever detail the drive can still report.
func (c *Controller) faultError(a Axis, st motor.Status) error {
	switch st {
	case motor.StatusAtLimit:
		pos, _ := a.Position()
		return &motor.LimitError{Axis: a.Name(), Position: pos}
	case motor.StatusAlarm:
		code, _ := a.Alarm()
		return &motor.AlarmError{Axis: a.Name(), Code: code}
	case motor.StatusTimedOut:
		return &motor.TimeoutError{Axis: a.Name(), Elapsed: c.segTmo}
	case motor.StatusDisconnected:
		return fmt.Errorf("motion: %s axis: %w", a.Name(), motor.ErrDisconnected)
	default:
		return fmt.Errorf("motion: %s axis: unexpected status %v", a.Name(), st)
	}
}

// stopAxes halts the given axes, collecting every stop failure instead of
// bailing on the first so no drive is left running.
func (c *Controller) stopAxes(axes []Axis) {
	errs := commonerrors.Collection{}
	for _, a := range axes {
		errs.Add(a.Stop())
	}
	if err := errs.GetError(); err != nil {
		c.log.Error("failed to stop axes", "error", err)
	}
}

// Stop aborts the move in progress. It bypasses the controller mutex so it
// works while MoveToProbePosition holds it, and stops every axis directly.
func (c *Controller) Stop() error {
	c.stopped.Store(true)
	errs := commonerrors.Collection{}
	for _, a := range c.axes {
		errs.Add(a.Stop())
	}
	return errs.GetError()
}

// Home runs each axis's homing sequence in order and verifies the result.
func (c *Controller) Home(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range c.axes {
		c.log.Info("homing axis", "axis", a.Name())
		if err := a.Home(ctx); err != nil {
			return fmt.Errorf("motion: homing %s axis: %w", a.Name(), err)
		}
	}
	return nil
}
