// Axis control for Applied Motion stepper drives over the SCL command
// language. Each Axis owns one drive link and is the only writer to it.
package motor

import "strings"

// Status is the observable state of one motor axis.
type Status int

const (
	StatusIdle Status = iota
	StatusMoving
	StatusAtLimit
	StatusAlarm
	StatusTimedOut
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusMoving:
		return "moving"
	case StatusAtLimit:
		return "at-limit"
	case StatusAlarm:
		return "alarm"
	case StatusTimedOut:
		return "timed-out"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// alarmCodeLimit is the drive alarm code raised by a tripped stop switch.
const alarmCodeLimit = "0002"

// statusFromFlags maps RS status letters to a Status. Alarm letters win
// over motion letters; homing and stopping both count as motion in
// progress.
func statusFromFlags(flags string) Status {
	if strings.ContainsAny(flags, "AE") {
		return StatusAlarm
	}
	if strings.ContainsAny(flags, "MFHJS") {
		return StatusMoving
	}
	return StatusIdle
}
