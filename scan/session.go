package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jingxuanxu04/LAPD-DAQ/geom"
	"github.com/jingxuanxu04/LAPD-DAQ/motion"
	"github.com/jingxuanxu04/LAPD-DAQ/motor"
)

// Mover executes one validated probe move. Satisfied by
// *motion.Controller.
type Mover interface {
	MoveToProbePosition(ctx context.Context, target geom.Point) (motion.Result, error)
}

// Firer fires the discharge once the probe has settled. Satisfied by
// *trigger.Client.
type Firer interface {
	Pulse(ctx context.Context) error
}

// Recorder persists the per-shot outcome, including skips, so the data
// file always shows which shots have no plasma data and why.
type Recorder interface {
	Record(shot int, r motion.Result) error
}

// Config assembles an acquisition session.
type Config struct {
	Grid  Grid
	Mover Mover

	// Trigger fires the discharge after each achieved position. Nil
	// runs motion-only, for dry runs and drive commissioning.
	Trigger Firer

	// Recorder receives every shot outcome. Nil discards them.
	Recorder Recorder

	// ShotDelay is a settle pause after each triggered shot.
	ShotDelay time.Duration

	Logger *slog.Logger
}

// Summary is the tally of one session run.
type Summary struct {
	RunID       string
	Shots       int
	Completed   int
	Skipped     int
	SkipReasons map[string]int
}

// Session runs one acquisition: every shot of the expanded grid in
// order. Skipped positions and per-shot axis faults never abort the
// session; disconnects, user stops, and trigger or recorder failures do.
type Session struct {
	id    uuid.UUID
	grid  Grid
	mover Mover
	trig  Firer
	rec   Recorder
	delay time.Duration
	log   *slog.Logger
}

// NewSession validates the configuration and assigns a run ID.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Mover == nil {
		return nil, fmt.Errorf("scan: mover required")
	}
	if err := cfg.Grid.normalized().validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id := uuid.New()
	return &Session{
		id:    id,
		grid:  cfg.Grid,
		mover: cfg.Mover,
		trig:  cfg.Trigger,
		rec:   cfg.Recorder,
		delay: cfg.ShotDelay,
		log:   cfg.Logger.With("run_id", id.String()),
	}, nil
}

// ID returns the session's run ID.
func (s *Session) ID() string { return s.id.String() }

// Run works through every shot: move, record, then trigger when the
// position was achieved. The returned Summary covers the shots actually
// attempted, even when Run returns early with an error.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	shots, err := s.grid.Positions()
	if err != nil {
		return Summary{RunID: s.ID()}, err
	}

	sum := Summary{
		RunID:       s.ID(),
		SkipReasons: make(map[string]int),
	}
	s.log.Info("starting acquisition", "shots", len(shots))

	for _, shot := range shots {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("scan: shot %d: %w", shot.Num, err)
		}
		sum.Shots++

		res, moveErr := s.mover.MoveToProbePosition(ctx, shot.Pos)
		if s.rec != nil {
			if rerr := s.rec.Record(shot.Num, res); rerr != nil {
				return sum, fmt.Errorf("scan: recording shot %d: %w", shot.Num, rerr)
			}
		}
		if moveErr != nil {
			if !shotFault(moveErr) {
				return sum, fmt.Errorf("scan: shot %d: %w", shot.Num, moveErr)
			}
			sum.Skipped++
			sum.SkipReasons[res.SkipReason]++
			s.log.Warn("shot skipped after axis fault",
				"shot", shot.Num, "target", shot.Pos, "error", moveErr)
			continue
		}

		if res.Skipped {
			sum.Skipped++
			sum.SkipReasons[res.SkipReason]++
			s.log.Warn("shot skipped",
				"shot", shot.Num, "target", shot.Pos, "reason", res.SkipReason)
			continue
		}
		sum.Completed++

		if s.trig != nil {
			if err := s.trig.Pulse(ctx); err != nil {
				return sum, fmt.Errorf("scan: shot %d: %w", shot.Num, err)
			}
		}
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return sum, fmt.Errorf("scan: shot %d: %w", shot.Num, ctx.Err())
			case <-time.After(s.delay):
			}
		}
	}

	s.log.Info("acquisition finished",
		"completed", sum.Completed, "skipped", sum.Skipped)
	return sum, nil
}

// shotFault reports whether a move error is confined to that shot. A
// limit trip, drive alarm, or motion timeout has already stopped the
// segment's axes; the scan records the skip and moves on. Anything else
// ends the session.
func shotFault(err error) bool {
	var le *motor.LimitError
	var ae *motor.AlarmError
	var te *motor.TimeoutError
	if errors.As(err, &le) || errors.As(err, &ae) || errors.As(err, &te) {
		return true
	}
	return errors.Is(err, motion.ErrSegmentTimeout)
}
