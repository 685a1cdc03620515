package motor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jingxuanxu04/LAPD-DAQ/scl"
)

// Config describes one physical motor axis.
type Config struct {
	// Name identifies the axis in logs and errors ("x", "y", "z").
	Name string

	// Conn is an already-open drive link, used directly when set.
	Conn scl.Conn

	// Dial opens (or reopens) the drive link. Required unless Conn is
	// set; when both are set Dial serves the reconnect path.
	Dial func(ctx context.Context) (scl.Conn, error)

	// CmPerTurn is the linear drive's travel per motor revolution.
	CmPerTurn float64

	// StopSwitchMode selects the drive's DL wiring mode:
	// 1 energized open, 2 energized closed, 3 not connected.
	StopSwitchMode int

	// Accel and Decel program the drive's accel/decel ramps in
	// rev/s^2. Zero leaves the drive's stored values untouched.
	Accel float64
	Decel float64

	// PollInterval is the status poll period during a blocking move.
	PollInterval time.Duration

	// MoveTimeout bounds a single blocking move.
	MoveTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.StopSwitchMode == 0 {
		c.StopSwitchMode = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.MoveTimeout <= 0 {
		c.MoveTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Axis drives and monitors one motor axis. All commands to the drive go
// through this type; no other caller may share the link.
type Axis struct {
	name        string
	cmPerTurn   float64
	poll        time.Duration
	moveTimeout time.Duration
	log         *slog.Logger
	dial        func(ctx context.Context) (scl.Conn, error)

	mu          sync.Mutex
	conn        scl.Conn
	stepsPerRev int64
	state       Status
	lastPos     float64
	reconnected bool
}

// New connects to a drive and prepares the axis: decimal reply format,
// stop switch wiring, step resolution reconciliation, and a pending-alarm
// check.
func New(ctx context.Context, cfg Config) (*Axis, error) {
	cfg.withDefaults()
	if cfg.Name == "" {
		return nil, fmt.Errorf("motor: axis name required")
	}
	if cfg.CmPerTurn <= 0 {
		return nil, fmt.Errorf("motor: %s axis: cm-per-turn must be positive", cfg.Name)
	}

	conn := cfg.Conn
	if conn == nil {
		if cfg.Dial == nil {
			return nil, fmt.Errorf("motor: %s axis: no connection and no dialer", cfg.Name)
		}
		c, err := cfg.Dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("motor: %s axis: %w", cfg.Name, err)
		}
		conn = c
	}

	a := &Axis{
		name:        cfg.Name,
		cmPerTurn:   cfg.CmPerTurn,
		poll:        cfg.PollInterval,
		moveTimeout: cfg.MoveTimeout,
		log:         cfg.Logger.With("axis", cfg.Name),
		dial:        cfg.Dial,
		conn:        conn,
		state:       StatusIdle,
	}

	if err := a.initialize(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func (a *Axis) initialize(cfg Config) error {
	// Decimal reply format, then stop switch wiring.
	if err := a.execAck("IFD"); err != nil {
		return err
	}
	if err := a.execAck(fmt.Sprintf("DL%d", cfg.StopSwitchMode)); err != nil {
		return err
	}
	if cfg.Accel > 0 {
		if err := a.execAck(fmt.Sprintf("AC%.3f", cfg.Accel)); err != nil {
			return err
		}
	}
	if cfg.Decel > 0 {
		if err := a.execAck(fmt.Sprintf("DE%.3f", cfg.Decel)); err != nil {
			return err
		}
	}

	if err := a.reconcileStepsPerRev(); err != nil {
		return err
	}

	// Surface any alarm left over from a previous session.
	code, err := a.Alarm()
	if err != nil {
		return err
	}
	switch code {
	case "":
	case alarmCodeLimit:
		pos, perr := a.Position()
		if perr == nil {
			a.log.Warn("drive is holding a stop switch", "position_cm", pos)
		}
	default:
		a.log.Warn("clearing stale drive alarm", "code", code)
		if err := a.ClearAlarm(); err != nil {
			return err
		}
	}
	return nil
}

// reconcileStepsPerRev reads the encoder (ER) and gearing (EG) resolutions
// and forces them equal when the drive disagrees with itself, so step and
// encoder counts stay directly comparable.
func (a *Axis) reconcileStepsPerRev() error {
	encoder, err := a.execInt("ER")
	if err != nil {
		return err
	}
	gearing, err := a.execInt("EG")
	if err != nil {
		return err
	}

	if encoder != gearing {
		a.log.Warn("encoder and gearing resolution differ, forcing encoder value",
			"encoder", encoder, "gearing", gearing)
		if err := a.execAck(fmt.Sprintf("ER%d", encoder)); err != nil {
			return err
		}
		if err := a.execAck(fmt.Sprintf("EG%d", encoder)); err != nil {
			return err
		}
		check, err := a.execInt("EG")
		if err != nil {
			return err
		}
		if check != encoder {
			return fmt.Errorf("motor: %s axis: failed to set gearing resolution to %d", a.name, encoder)
		}
	}

	a.mu.Lock()
	a.stepsPerRev = encoder
	a.mu.Unlock()
	return nil
}

// Name returns the axis name.
func (a *Axis) Name() string { return a.name }

// CmToSteps converts a distance in cm to motor steps.
func (a *Axis) CmToSteps(cm float64) int64 {
	a.mu.Lock()
	spr := a.stepsPerRev
	a.mu.Unlock()
	return int64(math.Round(cm / a.cmPerTurn * float64(spr)))
}

// StepsToCm converts motor steps to a distance in cm.
func (a *Axis) StepsToCm(steps int64) float64 {
	a.mu.Lock()
	spr := a.stepsPerRev
	a.mu.Unlock()
	return float64(steps) / float64(spr) * a.cmPerTurn
}

// exec runs one command with the single-reconnect policy: the first link
// failure triggers one redial and one resend; a second failure marks the
// axis disconnected for good.
func (a *Axis) exec(cmd string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.execLocked(cmd)
}

func (a *Axis) execLocked(cmd string) (string, error) {
	if a.state == StatusDisconnected {
		return "", fmt.Errorf("motor: %s axis: %w", a.name, ErrDisconnected)
	}

	resp, err := a.conn.Exec(cmd)
	if err == nil {
		a.reconnected = false
		return a.checkReply(cmd, resp)
	}

	if a.dial == nil || a.reconnected {
		a.state = StatusDisconnected
		return "", fmt.Errorf("motor: %s axis: %w: %v", a.name, ErrDisconnected, err)
	}

	a.log.Warn("drive link lost, reconnecting", "cmd", cmd, "error", err)
	a.reconnected = true
	conn, derr := a.dial(context.Background())
	if derr != nil {
		a.state = StatusDisconnected
		return "", fmt.Errorf("motor: %s axis: %w: reconnect failed: %v", a.name, ErrDisconnected, derr)
	}
	a.conn.Close()
	a.conn = conn

	resp, err = a.conn.Exec(cmd)
	if err != nil {
		a.state = StatusDisconnected
		return "", fmt.Errorf("motor: %s axis: %w: %v", a.name, ErrDisconnected, err)
	}
	a.reconnected = false
	return a.checkReply(cmd, resp)
}

// checkReply rejects a NACK ('?') without disturbing the link state; the
// drive received the command and refused it.
func (a *Axis) checkReply(cmd, resp string) (string, error) {
	if scl.IsNack(resp) {
		return "", fmt.Errorf("motor: %s axis: %s: %w", a.name, cmd, scl.ErrNack)
	}
	return resp, nil
}

// ackLocked runs a set-type command and requires a bare acknowledgement.
func (a *Axis) ackLocked(cmd string) error {
	resp, err := a.execLocked(cmd)
	if err != nil {
		return err
	}
	if !scl.IsAck(resp) {
		return fmt.Errorf("motor: %s axis: %s: unexpected reply %q", a.name, cmd, resp)
	}
	return nil
}

func (a *Axis) execAck(cmd string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ackLocked(cmd)
}

func (a *Axis) execInt(cmd string) (int64, error) {
	resp, err := a.exec(cmd)
	if err != nil {
		return 0, err
	}
	n, err := scl.ParseInt(resp)
	if err != nil {
		return 0, fmt.Errorf("motor: %s axis: %w", a.name, err)
	}
	return n, nil
}

// Status polls the drive's status register. Disconnected and timed-out
// states are sticky until the next successful move command.
func (a *Axis) Status() (Status, error) {
	a.mu.Lock()
	if a.state == StatusDisconnected || a.state == StatusTimedOut {
		s := a.state
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	resp, err := a.exec("RS")
	if err != nil {
		return StatusDisconnected, err
	}
	flags, err := scl.StatusFlags(resp)
	if err != nil {
		return StatusAlarm, fmt.Errorf("motor: %s axis: %w", a.name, err)
	}

	s := statusFromFlags(flags)
	if s == StatusAlarm {
		code, aerr := a.Alarm()
		if aerr == nil && code == alarmCodeLimit {
			s = StatusAtLimit
		}
	}

	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	return s, nil
}

// Position reads the current position in cm. The encoder count (EP) is
// cross-checked against the drive's internal step count (SP); the encoder
// wins on disagreement since it reflects the physical shaft.
func (a *Axis) Position() (float64, error) {
	encoder, err := a.execInt("EP")
	if err != nil {
		return 0, err
	}
	internal, err := a.execInt("SP")
	if err != nil {
		return 0, err
	}

	pos := a.StepsToCm(encoder)
	ipos := a.StepsToCm(internal)
	if math.Abs(pos-ipos) > 0.01 {
		a.log.Warn("encoder and internal position disagree",
			"encoder_cm", pos, "internal_cm", ipos)
	}

	a.mu.Lock()
	a.lastPos = pos
	a.mu.Unlock()
	return pos, nil
}

// LastPosition returns the last position read back from the drive without
// touching the link.
func (a *Axis) LastPosition() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPos
}

// StartMove programs velocity and target and starts an absolute move
// without waiting for completion. Completion is observed via Status.
func (a *Axis) StartMove(target, velocity float64) error {
	if velocity <= 0 {
		return fmt.Errorf("motor: %s axis: velocity must be positive", a.name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ackLocked(fmt.Sprintf("VE%.3f", velocity)); err != nil {
		return err
	}
	steps := int64(math.Round(target / a.cmPerTurn * float64(a.stepsPerRev)))
	if err := a.ackLocked(fmt.Sprintf("DI%d", steps)); err != nil {
		return err
	}
	if err := a.ackLocked("FP"); err != nil {
		return err
	}
	a.state = StatusMoving
	return nil
}

// MoveTo starts an absolute move and blocks until the axis settles, a
// limit trips, an alarm fires, the context is canceled, or the move
// timeout elapses. Returns the achieved position.
func (a *Axis) MoveTo(ctx context.Context, target, velocity float64) (float64, error) {
	if err := a.StartMove(target, velocity); err != nil {
		return a.LastPosition(), err
	}

	start := time.Now()
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Stop()
			pos, _ := a.Position()
			return pos, fmt.Errorf("motor: %s axis: %w", a.name, ErrStopped)
		case <-ticker.C:
		}

		status, err := a.Status()
		if err != nil {
			return a.LastPosition(), err
		}

		switch status {
		case StatusMoving:
			if elapsed := time.Since(start); elapsed > a.moveTimeout {
				a.Stop()
				a.mu.Lock()
				a.state = StatusTimedOut
				a.mu.Unlock()
				pos, _ := a.positionRaw()
				return pos, &TimeoutError{Axis: a.name, Elapsed: elapsed}
			}
		case StatusAtLimit:
			a.Stop()
			pos, _ := a.positionRaw()
			return pos, &LimitError{Axis: a.name, Position: pos}
		case StatusAlarm:
			a.Stop()
			code, _ := a.Alarm()
			return a.LastPosition(), &AlarmError{Axis: a.name, Code: code}
		default:
			return a.Position()
		}
	}
}

// positionRaw reads the position bypassing the sticky-state check, for
// readback after a fault.
func (a *Axis) positionRaw() (float64, error) {
	encoder, err := a.execInt("EP")
	if err != nil {
		return a.LastPosition(), err
	}
	pos := a.StepsToCm(encoder)
	a.mu.Lock()
	a.lastPos = pos
	a.mu.Unlock()
	return pos, nil
}

// Stop issues an immediate decelerate-and-halt. Safe to call at any time,
// including when idle or faulted.
func (a *Axis) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StatusDisconnected {
		return fmt.Errorf("motor: %s axis: %w", a.name, ErrDisconnected)
	}
	// Bypass the reconnect path: a stop must never block on a redial.
	if _, err := a.conn.Exec("ST"); err != nil {
		return fmt.Errorf("motor: %s axis: stop: %w", a.name, err)
	}
	return nil
}

// Home runs the drive's seek-home sequence and zeroes both counters at
// the reference position. Required before absolute positions can be
// trusted.
func (a *Axis) Home(ctx context.Context) error {
	a.mu.Lock()
	a.state = StatusIdle // clear sticky timed-out state
	a.mu.Unlock()

	if err := a.execAck("SH"); err != nil {
		return err
	}

	start := time.Now()
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Stop()
			return fmt.Errorf("motor: %s axis: homing: %w", a.name, ErrStopped)
		case <-ticker.C:
		}

		status, err := a.Status()
		if err != nil {
			return err
		}
		switch status {
		case StatusMoving:
			if elapsed := time.Since(start); elapsed > a.moveTimeout {
				a.Stop()
				return &TimeoutError{Axis: a.name, Elapsed: elapsed}
			}
		case StatusAtLimit:
			a.Stop()
			pos, _ := a.positionRaw()
			return &LimitError{Axis: a.name, Position: pos}
		case StatusAlarm:
			code, _ := a.Alarm()
			return &AlarmError{Axis: a.name, Code: code}
		default:
			return a.SetZero()
		}
	}
}

// SetZero declares the current position to be zero on both the encoder
// and the drive's internal counter, verifying each.
func (a *Axis) SetZero() error {
	if err := a.execAck("EP0"); err != nil {
		return err
	}
	if n, err := a.execInt("IE"); err != nil {
		return err
	} else if n != 0 {
		return fmt.Errorf("motor: %s axis: failed to zero encoder", a.name)
	}

	if err := a.execAck("SP0"); err != nil {
		return err
	}
	if n, err := a.execInt("IP"); err != nil {
		return err
	} else if n != 0 {
		return fmt.Errorf("motor: %s axis: failed to zero internal position", a.name)
	}

	a.mu.Lock()
	a.lastPos = 0
	a.mu.Unlock()
	return nil
}

// Alarm returns the pending alarm code, or "" when none is present.
func (a *Axis) Alarm() (string, error) {
	resp, err := a.exec("RS")
	if err != nil {
		return "", err
	}
	flags, err := scl.StatusFlags(resp)
	if err != nil {
		return "", fmt.Errorf("motor: %s axis: %w", a.name, err)
	}
	if !strings.ContainsAny(flags, "AE") {
		return "", nil
	}

	resp, err = a.exec("AL")
	if err != nil {
		return "", err
	}
	_, code, err := scl.ParseValue(resp)
	if err != nil {
		return "", fmt.Errorf("motor: %s axis: %w", a.name, err)
	}
	return code, nil
}

// ClearAlarm clears a pending drive alarm.
func (a *Axis) ClearAlarm() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Send("AR")
}

// Enable energizes the motor, clearing any pending alarm first.
func (a *Axis) Enable() error {
	code, err := a.Alarm()
	if err != nil {
		return err
	}
	if code != "" {
		if err := a.ClearAlarm(); err != nil {
			return err
		}
	}
	return a.execAck("ME")
}

// Disable de-energizes the motor.
func (a *Axis) Disable() error {
	return a.execAck("MD")
}

// Velocity reads the instantaneous shaft velocity in rev/sec.
func (a *Axis) Velocity() (float64, error) {
	rpm, err := a.execInt("IV")
	if err != nil {
		return 0, err
	}
	return float64(rpm) / 60, nil
}

// Reset power cycles the drive logic. The drive does not reply.
func (a *Axis) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Send("RE")
}

// Close releases the drive link.
func (a *Axis) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StatusDisconnected
	return a.conn.Close()
}
