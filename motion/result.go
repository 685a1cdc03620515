// Synchronized multi-axis motion: straight-line segments with
// proportional velocity scaling, waypoint execution, and skip accounting.
package motion

import "github.com/jingxuanxu04/LAPD-DAQ/geom"

// Result is the outcome of one requested probe move. Created per request,
// immutable once the move completes, and handed to the persistence layer
// so the experiment record shows exactly why a shot has no data.
type Result struct {
	// Requested is the probe position the caller asked for.
	Requested geom.Point

	// Achieved is the probe position read back from the axes after the
	// move finished, halted, or was skipped.
	Achieved geom.Point

	// Skipped reports that the probe did not reach Requested.
	Skipped bool

	// SkipReason is the human-readable reason when Skipped is set.
	SkipReason string
}

// Recorder receives one Result per requested move. Implementations own
// all file I/O; the motion core never writes to storage itself.
type Recorder interface {
	Record(r Result) error
}
