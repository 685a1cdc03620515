package motor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jingxuanxu04/LAPD-DAQ/scl"
)

// driveSim emulates an SCL drive well enough to exercise the axis state
// machine: position counters, a countdown of "moving" status polls, and
// an injectable alarm code.
type driveSim struct {
	stepsPerRev int64
	pos         int64
	target      int64
	movingPolls int
	alarm       string
	nack        string // command prefix the drive refuses with '?'
	sent        []string
	closed      bool
}

func newDriveSim() *driveSim {
	return &driveSim{stepsPerRev: 4000}
}

func (d *driveSim) Exec(cmd string) (string, error) {
	d.sent = append(d.sent, cmd)

	if d.nack != "" && strings.HasPrefix(cmd, d.nack) {
		return "?", nil
	}

	switch {
	case cmd == "IFD", strings.HasPrefix(cmd, "DL"),
		strings.HasPrefix(cmd, "VE"), strings.HasPrefix(cmd, "AC"),
		strings.HasPrefix(cmd, "DE"), cmd == "ME", cmd == "MD", cmd == "SH":
		return "%", nil
	case cmd == "ER" || cmd == "EG":
		return fmt.Sprintf("%s=%d", cmd, d.stepsPerRev), nil
	case strings.HasPrefix(cmd, "ER") || strings.HasPrefix(cmd, "EG"):
		return "%", nil
	case strings.HasPrefix(cmd, "DI"):
		n, err := strconv.ParseInt(cmd[2:], 10, 64)
		if err != nil {
			return "?", nil
		}
		d.target = n
		return "%", nil
	case cmd == "FP":
		d.movingPolls = 2
		return "%", nil
	case cmd == "RS":
		if d.alarm != "" {
			return "RS=AR", nil
		}
		if d.movingPolls > 0 {
			d.movingPolls--
			return "RS=MR", nil
		}
		d.pos = d.target
		return "RS=R", nil
	case cmd == "AL":
		return "AL=" + d.alarm, nil
	case cmd == "EP" || cmd == "SP":
		return fmt.Sprintf("%s=%d", cmd, d.pos), nil
	case cmd == "ST":
		// Halt partway between current and target.
		d.pos = (d.pos + d.target) / 2
		d.target = d.pos
		d.movingPolls = 0
		return "%", nil
	case cmd == "EP0" || cmd == "SP0":
		d.pos = 0
		d.target = 0
		return "%", nil
	case cmd == "IE" || cmd == "IP":
		return fmt.Sprintf("%s=%d", cmd, d.pos), nil
	case cmd == "IV":
		return "IV=240", nil
	}
	return "?", nil
}

func (d *driveSim) Send(cmd string) error {
	d.sent = append(d.sent, cmd)
	if cmd == "AR" {
		d.alarm = ""
	}
	return nil
}

func (d *driveSim) Close() error {
	d.closed = true
	return nil
}

func (d *driveSim) sentContains(cmd string) bool {
	for _, c := range d.sent {
		if c == cmd {
			return true
		}
	}
	return false
}

func newTestAxis(t *testing.T, sim *driveSim) *Axis {
	t.Helper()
	a, err := New(context.Background(), Config{
		Name:         "x",
		Conn:         sim,
		CmPerTurn:    0.254,
		PollInterval: time.Millisecond,
		MoveTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestNewInitializesDrive(t *testing.T) {
	sim := newDriveSim()
	newTestAxis(t, sim)

	for _, cmd := range []string{"IFD", "DL3", "ER", "EG"} {
		if !sim.sentContains(cmd) {
			t.Errorf("init did not send %s", cmd)
		}
	}
}

func TestNewProgramsRamps(t *testing.T) {
	sim := newDriveSim()
	_, err := New(context.Background(), Config{
		Name:      "x",
		Conn:      sim,
		CmPerTurn: 0.254,
		Accel:     25,
		Decel:     25,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !sim.sentContains("AC25.000") || !sim.sentContains("DE25.000") {
		t.Errorf("ramps not programmed, sent %v", sim.sent)
	}
}

func TestRejectedCommandSurfaces(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	sim.nack = "VE"
	err := a.StartMove(1, 4)
	if !errors.Is(err, scl.ErrNack) {
		t.Fatalf("expected ErrNack, got %v", err)
	}
	// A refusal is not a link failure; the axis stays usable.
	if _, err := a.Position(); err != nil {
		t.Errorf("Position after NACK failed: %v", err)
	}
}

func TestStatusFromFlags(t *testing.T) {
	tests := []struct {
		flags string
		want  Status
	}{
		{"R", StatusIdle},
		{"P", StatusIdle},
		{"MR", StatusMoving},
		{"FR", StatusMoving},
		{"H", StatusMoving},
		{"S", StatusMoving},
		{"AR", StatusAlarm},
		{"AE", StatusAlarm},
		{"D", StatusIdle},
	}

	for _, tt := range tests {
		if got := statusFromFlags(tt.flags); got != tt.want {
			t.Errorf("statusFromFlags(%q) = %v, want %v", tt.flags, got, tt.want)
		}
	}
}

func TestMoveToCompletes(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	got, err := a.MoveTo(context.Background(), 1.27, 4)
	if err != nil {
		t.Fatalf("MoveTo failed: %v", err)
	}
	if math.Abs(got-1.27) > 1e-6 {
		t.Errorf("achieved position = %v, want 1.27", got)
	}
	if !sim.sentContains("DI20000") {
		t.Errorf("expected DI20000 in %v", sim.sent)
	}
	if !sim.sentContains("FP") {
		t.Error("move never issued FP")
	}
}

func TestMoveToLimitTrip(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	sim.alarm = "0002"
	_, err := a.MoveTo(context.Background(), 5, 4)

	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Axis != "x" {
		t.Errorf("LimitError.Axis = %q, want x", le.Axis)
	}
	if !sim.sentContains("ST") {
		t.Error("limit trip did not stop the axis")
	}
}

func TestMoveToAlarm(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	sim.alarm = "0004"
	_, err := a.MoveTo(context.Background(), 5, 4)

	var ae *AlarmError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AlarmError, got %v", err)
	}
	if ae.Code != "0004" {
		t.Errorf("AlarmError.Code = %q, want 0004", ae.Code)
	}
}

func TestMoveToTimeout(t *testing.T) {
	sim := newDriveSim()
	a, err := New(context.Background(), Config{
		Name:         "x",
		Conn:         sim,
		CmPerTurn:    0.254,
		PollInterval: time.Millisecond,
		MoveTimeout:  5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sim.movingPolls = 1 << 30 // never finishes on its own
	_, err = a.MoveTo(context.Background(), 5, 4)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}

	status, err := a.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != StatusTimedOut {
		t.Errorf("status after timeout = %v, want timed-out", status)
	}
}

func TestMoveToCancel(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	sim.movingPolls = 1 << 30
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.MoveTo(ctx, 5, 4)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if !sim.sentContains("ST") {
		t.Error("cancel did not stop the axis")
	}
}

// flakyConn fails every Exec until revived.
type flakyConn struct {
	driveSim
	dead bool
}

func (f *flakyConn) Exec(cmd string) (string, error) {
	if f.dead {
		return "", errors.New("connection reset")
	}
	return f.driveSim.Exec(cmd)
}

func TestReconnectOnce(t *testing.T) {
	sim := &flakyConn{driveSim: *newDriveSim()}
	replacement := newDriveSim()

	dials := 0
	a, err := New(context.Background(), Config{
		Name:      "x",
		Conn:      sim,
		CmPerTurn: 0.254,
		Dial: func(ctx context.Context) (scl.Conn, error) {
			dials++
			return replacement, nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sim.dead = true
	if _, err := a.Position(); err != nil {
		t.Fatalf("Position should succeed via reconnect, got %v", err)
	}
	if dials != 1 {
		t.Errorf("dial count = %d, want 1", dials)
	}
}

func TestReconnectFailureIsFatal(t *testing.T) {
	sim := &flakyConn{driveSim: *newDriveSim()}

	a, err := New(context.Background(), Config{
		Name:      "x",
		Conn:      sim,
		CmPerTurn: 0.254,
		Dial: func(ctx context.Context) (scl.Conn, error) {
			return nil, errors.New("no route to host")
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sim.dead = true
	if _, err := a.Position(); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}

	// Axis is now fatally disconnected; further commands fail fast.
	if _, err := a.Position(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("expected sticky ErrDisconnected, got %v", err)
	}
	status, _ := a.Status()
	if status != StatusDisconnected {
		t.Errorf("status = %v, want disconnected", status)
	}
}

func TestSetZero(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	if _, err := a.MoveTo(context.Background(), 1.27, 4); err != nil {
		t.Fatalf("MoveTo failed: %v", err)
	}
	if err := a.SetZero(); err != nil {
		t.Fatalf("SetZero failed: %v", err)
	}
	pos, err := a.Position()
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if pos != 0 {
		t.Errorf("position after SetZero = %v, want 0", pos)
	}
}

func TestHome(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)
	sim.pos = 8000
	sim.target = 8000

	if err := a.Home(context.Background()); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	if !sim.sentContains("SH") {
		t.Error("Home never issued SH")
	}
	pos, _ := a.Position()
	if pos != 0 {
		t.Errorf("position after homing = %v, want 0", pos)
	}
}

func TestStepConversionRoundTrip(t *testing.T) {
	sim := newDriveSim()
	a := newTestAxis(t, sim)

	for _, cm := range []float64{0, 0.254, -1.27, 10.16} {
		got := a.StepsToCm(a.CmToSteps(cm))
		if math.Abs(got-cm) > 1e-6 {
			t.Errorf("step conversion round trip: %v -> %v", cm, got)
		}
	}
}
