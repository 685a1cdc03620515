package motor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDisconnected marks an axis whose drive link is down and whose
	// single reconnect attempt failed. Fatal for the axis.
	ErrDisconnected = errors.New("axis link disconnected")

	// ErrStopped marks a move aborted by an external stop request.
	ErrStopped = errors.New("motion stopped")
)

// LimitError reports a tripped stop switch. The axis halts at Position.
type LimitError struct {
	Axis     string
	Position float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s axis: limit switch tripped at %.3f cm", e.Axis, e.Position)
}

// AlarmError reports a drive alarm other than a limit trip.
type AlarmError struct {
	Axis string
	Code string
}

func (e *AlarmError) Error() string {
	return fmt.Sprintf("%s axis: drive alarm %s", e.Axis, e.Code)
}

// TimeoutError reports a move that did not complete within the deadline.
// The axis is left wherever it stopped.
type TimeoutError struct {
	Axis    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s axis: motion did not complete within %s", e.Axis, e.Elapsed)
}
