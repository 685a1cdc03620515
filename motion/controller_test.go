package motion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jingxuanxu04/LAPD-DAQ/bounds"
	"github.com/jingxuanxu04/LAPD-DAQ/geom"
	"github.com/jingxuanxu04/LAPD-DAQ/motor"
	"github.com/jingxuanxu04/LAPD-DAQ/transform"
)

type startCall struct {
	target, velocity float64
}

// fakeAxis is a scripted drive: each StartMove runs for movePolls status
// polls, then the axis either lands on target or reports the configured
// fault with the carriage halted partway.
type fakeAxis struct {
	mu        sync.Mutex
	name      string
	pos       float64
	target    float64
	moving    int
	movePolls int
	fault     motor.Status
	alarmCode string
	startErr  error
	halted    bool
	stops     int
	homed     bool
	starts    []startCall
}

func newFakeAxis(name string, pos float64) *fakeAxis {
	return &fakeAxis{name: name, pos: pos, target: pos, movePolls: 2}
}

func (f *fakeAxis) Name() string { return f.name }

func (f *fakeAxis) StartMove(target, velocity float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, startCall{target, velocity})
	f.target = target
	f.moving = f.movePolls
	f.halted = false
	return nil
}

func (f *fakeAxis) Status() (motor.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moving > 0 {
		f.moving--
		return motor.StatusMoving, nil
	}
	if f.fault != motor.StatusIdle {
		f.haltLocked()
		return f.fault, nil
	}
	f.pos = f.target
	return motor.StatusIdle, nil
}

func (f *fakeAxis) Position() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, nil
}

func (f *fakeAxis) Alarm() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alarmCode, nil
}

func (f *fakeAxis) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.moving = 0
	f.haltLocked()
	return nil
}

func (f *fakeAxis) haltLocked() {
	if !f.halted {
		f.pos = (f.pos + f.target) / 2
		f.halted = true
	}
}

func (f *fakeAxis) Home(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homed = true
	f.pos = 0
	f.target = 0
	return nil
}

func (f *fakeAxis) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeAxis) startCalls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.starts...)
}

func openField() bounds.BoundarySet {
	return bounds.BoundarySet{
		Boundaries: []bounds.Predicate{
			bounds.Box(geom.Point{X: -60, Y: -30, Z: -10}, geom.Point{X: 60, Y: 30, Z: 10}),
		},
	}
}

func obstacleField() bounds.BoundarySet {
	set := openField()
	set.Obstacles = []bounds.Predicate{
		bounds.Box(geom.Point{X: -50, Y: -3, Z: -5.5}, geom.Point{X: -20, Y: 3, Z: 5.5}),
	}
	return set
}

type captureRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *captureRecorder) Record(res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func newTestController(t *testing.T, set bounds.BoundarySet, axes ...Axis) (*Controller, *captureRecorder) {
	t.Helper()
	tf, err := transform.Identity(len(axes))
	if err != nil {
		t.Fatalf("identity transform: %v", err)
	}
	rec := &captureRecorder{}
	c, err := New(Config{
		Axes:           axes,
		Transform:      tf,
		Checker:        bounds.New(set, bounds.Params{Seed: 7}),
		MaxVelocity:    5,
		PollInterval:   time.Millisecond,
		SegmentTimeout: time.Second,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder:       rec,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, rec
}

func TestNewValidation(t *testing.T) {
	tf2, _ := transform.Identity(2)
	checker := bounds.New(openField(), bounds.Params{})
	ax := newFakeAxis("x", 0)

	if _, err := New(Config{Axes: []Axis{ax}, Transform: tf2, Checker: checker}); err == nil {
		t.Error("expected error for single axis")
	}
	tf3, _ := transform.Identity(3)
	if _, err := New(Config{Axes: []Axis{ax, newFakeAxis("y", 0)}, Transform: tf3, Checker: checker}); err == nil {
		t.Error("expected error for axis-count mismatch")
	}
	if _, err := New(Config{Axes: []Axis{ax, newFakeAxis("y", 0)}, Transform: tf2}); err == nil {
		t.Error("expected error for missing checker")
	}
}

func TestMoveSynchronizedVelocities(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	c, _ := newTestController(t, openField(), ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 10, Y: 4})
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if res.Skipped {
		t.Fatalf("move skipped: %s", res.SkipReason)
	}
	if !res.Achieved.Eq(geom.Point{X: 10, Y: 4}, 1e-9) {
		t.Errorf("achieved %v, want (10, 4, 0)", res.Achieved)
	}

	xs, ys := ax.startCalls(), ay.startCalls()
	if len(xs) != 1 || len(ys) != 1 {
		t.Fatalf("start calls = %d/%d, want 1/1", len(xs), len(ys))
	}
	// x has the larger displacement: it runs at max velocity, y scaled
	// so both arrive together.
	if math.Abs(xs[0].velocity-5) > 1e-9 {
		t.Errorf("x velocity = %v, want 5", xs[0].velocity)
	}
	if math.Abs(ys[0].velocity-2) > 1e-9 {
		t.Errorf("y velocity = %v, want 2", ys[0].velocity)
	}
}

func TestMoveSkipsStationaryAxis(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	c, _ := newTestController(t, openField(), ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 10})
	if err != nil || res.Skipped {
		t.Fatalf("move failed: err=%v skipped=%v", err, res.Skipped)
	}
	if n := len(ay.startCalls()); n != 0 {
		t.Errorf("stationary axis got %d start commands, want 0", n)
	}
	if n := len(ax.startCalls()); n != 1 {
		t.Errorf("moving axis got %d start commands, want 1", n)
	}
}

func TestMoveDegenerate(t *testing.T) {
	ax := newFakeAxis("x", 3)
	ay := newFakeAxis("y", -2)
	c, _ := newTestController(t, openField(), ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 3, Y: -2})
	if err != nil || res.Skipped {
		t.Fatalf("degenerate move failed: err=%v skipped=%v", err, res.Skipped)
	}
	if len(ax.startCalls()) != 0 || len(ay.startCalls()) != 0 {
		t.Error("degenerate move commanded the drives")
	}
}

func TestMoveSkipTargetOutOfBounds(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	c, rec := newTestController(t, openField(), ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 100})
	if err != nil {
		t.Fatalf("skip must not be an error, got %v", err)
	}
	if !res.Skipped || res.SkipReason != "target out of bounds" {
		t.Errorf("result = %+v, want skip with reason %q", res, "target out of bounds")
	}
	if len(ax.startCalls()) != 0 || len(ay.startCalls()) != 0 {
		t.Error("rejected target still commanded the drives")
	}
	if len(rec.results) != 1 || !rec.results[0].Skipped {
		t.Errorf("recorder got %+v, want one skipped result", rec.results)
	}
}

func TestMoveSkipNoPath(t *testing.T) {
	// A wall splits the field; planning fails but the move is a skip,
	// not a failure.
	set := bounds.BoundarySet{
		Boundaries: []bounds.Predicate{
			bounds.Box(geom.Point{X: -10, Y: -10, Z: -10}, geom.Point{X: 10, Y: 10, Z: 10}),
		},
		Obstacles: []bounds.Predicate{
			bounds.Box(geom.Point{X: -0.5, Y: -11, Z: -11}, geom.Point{X: 0.5, Y: 11, Z: 11}),
		},
	}
	ax := newFakeAxis("x", -5)
	ay := newFakeAxis("y", 0)
	c, _ := newTestController(t, set, ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 5})
	if err != nil {
		t.Fatalf("skip must not be an error, got %v", err)
	}
	if !res.Skipped || res.SkipReason != "no valid path" {
		t.Errorf("result = %+v, want skip with reason %q", res, "no valid path")
	}
	if len(ax.startCalls()) != 0 {
		t.Error("unreachable target still commanded the drives")
	}
}

func TestMoveAroundObstacle(t *testing.T) {
	ax := newFakeAxis("x", -25)
	ay := newFakeAxis("y", 10)
	c, _ := newTestController(t, obstacleField(), ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: -25, Y: -10})
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if res.Skipped {
		t.Fatalf("move skipped: %s", res.SkipReason)
	}
	if !res.Achieved.Eq(geom.Point{X: -25, Y: -10}, 1e-9) {
		t.Errorf("achieved %v, want (-25, -10, 0)", res.Achieved)
	}
	// The detour adds a waypoint: two segments per axis.
	if n := len(ax.startCalls()); n != 2 {
		t.Errorf("x axis got %d start commands, want 2", n)
	}
	if n := len(ay.startCalls()); n != 2 {
		t.Errorf("y axis got %d start commands, want 2", n)
	}
}

func TestMoveAlarmStopsAllAxes(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	ay.fault = motor.StatusAlarm
	ay.alarmCode = "0040"
	c, _ := newTestController(t, openField(), ax, ay)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 10, Y: 4})
	var alarmErr *motor.AlarmError
	if !errors.As(err, &alarmErr) {
		t.Fatalf("expected AlarmError, got %v", err)
	}
	if alarmErr.Axis != "y" || alarmErr.Code != "0040" {
		t.Errorf("alarm = %+v, want axis y code 0040", alarmErr)
	}
	if !res.Skipped {
		t.Error("faulted move not marked skipped")
	}
	if ax.stopCount() == 0 || ay.stopCount() == 0 {
		t.Errorf("stops = %d/%d, want both axes stopped", ax.stopCount(), ay.stopCount())
	}
}

func TestMoveLimitReportsPosition(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	ax.fault = motor.StatusAtLimit
	c, _ := newTestController(t, openField(), ax, ay)

	_, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 10, Y: 4})
	var limitErr *motor.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Axis != "x" {
		t.Errorf("limit on axis %q, want x", limitErr.Axis)
	}
	if limitErr.Position == 0 {
		t.Error("limit error carries no halt position")
	}
}

func TestStopAbortsMove(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	ax.movePolls = 10000
	ay.movePolls = 10000
	c, _ := newTestController(t, openField(), ax, ay)

	done := make(chan struct{})
	var res Result
	var moveErr error
	go func() {
		defer close(done)
		res, moveErr = c.MoveToProbePosition(context.Background(), geom.Point{X: 10, Y: 4})
	}()

	time.Sleep(20 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	<-done

	if !errors.Is(moveErr, motor.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", moveErr)
	}
	if !res.Skipped || res.SkipReason != "stopped" {
		t.Errorf("result = %+v, want skip with reason %q", res, "stopped")
	}
	if ax.stopCount() == 0 || ay.stopCount() == 0 {
		t.Error("Stop did not halt every axis")
	}
}

func TestMoveContextCancel(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	ax.movePolls = 10000
	ay.movePolls = 10000
	c, _ := newTestController(t, openField(), ax, ay)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.MoveToProbePosition(ctx, geom.Point{X: 10, Y: 4})
	if !errors.Is(err, motor.ErrStopped) {
		t.Fatalf("expected ErrStopped on cancel, got %v", err)
	}
	if ax.stopCount() == 0 || ay.stopCount() == 0 {
		t.Error("cancel did not halt every axis")
	}
}

func TestMoveStartFailureStopsStartedAxes(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	ay.startErr = errors.New("drive rejected command")
	c, _ := newTestController(t, openField(), ax, ay)

	_, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 10, Y: 4})
	if err == nil {
		t.Fatal("expected start failure to propagate")
	}
	if ax.stopCount() == 0 {
		t.Error("axis started before the failure was not stopped")
	}
}

func TestThreeAxisMove(t *testing.T) {
	ax := newFakeAxis("x", 0)
	ay := newFakeAxis("y", 0)
	az := newFakeAxis("z", 0)
	c, _ := newTestController(t, openField(), ax, ay, az)

	res, err := c.MoveToProbePosition(context.Background(), geom.Point{X: 6, Y: 3, Z: -3})
	if err != nil || res.Skipped {
		t.Fatalf("move failed: err=%v skipped=%v", err, res.Skipped)
	}
	if !res.Achieved.Eq(geom.Point{X: 6, Y: 3, Z: -3}, 1e-9) {
		t.Errorf("achieved %v, want (6, 3, -3)", res.Achieved)
	}
	zs := az.startCalls()
	if len(zs) != 1 || math.Abs(zs[0].velocity-2.5) > 1e-9 {
		t.Errorf("z start calls = %+v, want one at velocity 2.5", zs)
	}
}

func TestHomeRunsEveryAxis(t *testing.T) {
	ax := newFakeAxis("x", 5)
	ay := newFakeAxis("y", -3)
	c, _ := newTestController(t, openField(), ax, ay)

	if err := c.Home(context.Background()); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	if !ax.homed || !ay.homed {
		t.Errorf("homed = %v/%v, want both", ax.homed, ay.homed)
	}
}
