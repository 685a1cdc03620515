// Package daqconfig loads and validates the experiment configuration:
// drive endpoints, coordinate mapping, chamber geometry, planner tuning,
// and the scan raster.
package daqconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationError reports one rejected configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("daqconfig: %s: %s", e.Field, e.Reason)
}

// Duration parses YAML scalars like "200ms" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("daqconfig: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Vec is a point or extent in cm.
type Vec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// BoxConfig is an axis-aligned box given by two corners.
type BoxConfig struct {
	Min Vec `yaml:"min"`
	Max Vec `yaml:"max"`
}

func (b BoxConfig) validate(field string) error {
	if b.Min.X >= b.Max.X || b.Min.Y >= b.Max.Y || b.Min.Z >= b.Max.Z {
		return &ValidationError{Field: field, Reason: "min must be strictly below max on every axis"}
	}
	return nil
}

// AxisConfig describes one motor axis: its drive endpoint and the linear
// probe-to-motor mapping.
type AxisConfig struct {
	Name string `yaml:"name"`

	// Address is the drive's TCP endpoint. Exactly one of Address and
	// SerialDevice must be set.
	Address      string `yaml:"address"`
	SerialDevice string `yaml:"serial_device"`
	Baud         int    `yaml:"baud"`

	CmPerTurn      float64 `yaml:"cm_per_turn"`
	StopSwitchMode int     `yaml:"stop_switch_mode"`

	// Accel and Decel program the drive ramps in rev/s^2; zero keeps
	// the drive's stored values.
	Accel float64 `yaml:"accel"`
	Decel float64 `yaml:"decel"`

	// Probe-to-motor mapping: motor = (probe - offset) * scale, negated
	// when invert is set. Scale defaults to 1.
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
	Invert bool    `yaml:"invert"`
}

// LogConfig selects the process log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MotionConfig tunes the synchronized motion controller.
type MotionConfig struct {
	MaxVelocity    float64  `yaml:"max_velocity"`
	PollInterval   Duration `yaml:"poll_interval"`
	SegmentTimeout Duration `yaml:"segment_timeout"`
	MoveTimeout    Duration `yaml:"move_timeout"`
}

// PlannerConfig tunes the path planner. Zero values take the planner's
// built-in defaults.
type PlannerConfig struct {
	Resolution     float64 `yaml:"resolution"`
	Clearance      float64 `yaml:"clearance"`
	OffsetStep     float64 `yaml:"offset_step"`
	MaxOffsetSteps int     `yaml:"max_offset_steps"`
	RandomAttempts int     `yaml:"random_attempts"`
	Seed           uint64  `yaml:"seed"`
}

// GridConfig is the scan raster.
type GridConfig struct {
	NX int `yaml:"nx"`
	NY int `yaml:"ny"`
	NZ int `yaml:"nz"`

	XMin float64 `yaml:"xmin"`
	XMax float64 `yaml:"xmax"`
	YMin float64 `yaml:"ymin"`
	YMax float64 `yaml:"ymax"`
	ZMin float64 `yaml:"zmin"`
	ZMax float64 `yaml:"zmax"`

	DuplicateShots int      `yaml:"duplicate_shots"`
	RunRepeats     int      `yaml:"run_repeats"`
	ShotDelay      Duration `yaml:"shot_delay"`
}

// TriggerConfig points at the discharge timing server.
type TriggerConfig struct {
	Address  string   `yaml:"address"`
	Timeout  Duration `yaml:"timeout"`
	Attempts uint     `yaml:"attempts"`
}

// Config is the whole experiment configuration file.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Axes    []AxisConfig  `yaml:"axes"`
	Motion  MotionConfig  `yaml:"motion"`
	Planner PlannerConfig `yaml:"planner"`

	// Boundary is the chamber's outer limit in probe space.
	Boundary BoxConfig `yaml:"boundary"`

	// Obstacles are keep-out boxes in probe space.
	Obstacles []BoxConfig `yaml:"obstacles"`

	// MotorLimits optionally bounds motor-space travel per axis.
	MotorLimits *BoxConfig `yaml:"motor_limits"`

	Grid    GridConfig     `yaml:"grid"`
	Trigger *TriggerConfig `yaml:"trigger"`

	// MetricsAddr exposes Prometheus metrics over HTTP when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daqconfig: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates configuration bytes.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("daqconfig: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Axes {
		if c.Axes[i].Scale == 0 {
			c.Axes[i].Scale = 1
		}
	}
	if c.Grid.DuplicateShots < 1 {
		c.Grid.DuplicateShots = 1
	}
	if c.Grid.RunRepeats < 1 {
		c.Grid.RunRepeats = 1
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if n := len(c.Axes); n != 2 && n != 3 {
		return &ValidationError{Field: "axes", Reason: fmt.Sprintf("need 2 or 3 axes, got %d", n)}
	}

	names := make(map[string]bool, len(c.Axes))
	for i, a := range c.Axes {
		field := fmt.Sprintf("axes[%d]", i)
		if a.Name == "" {
			return &ValidationError{Field: field + ".name", Reason: "required"}
		}
		if names[a.Name] {
			return &ValidationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate axis %q", a.Name)}
		}
		names[a.Name] = true

		if (a.Address == "") == (a.SerialDevice == "") {
			return &ValidationError{Field: field, Reason: "exactly one of address and serial_device required"}
		}
		if a.CmPerTurn <= 0 {
			return &ValidationError{Field: field + ".cm_per_turn", Reason: "must be positive"}
		}
	}

	if err := c.Boundary.validate("boundary"); err != nil {
		return err
	}
	for i, ob := range c.Obstacles {
		if err := ob.validate(fmt.Sprintf("obstacles[%d]", i)); err != nil {
			return err
		}
	}
	if c.MotorLimits != nil {
		if err := c.MotorLimits.validate("motor_limits"); err != nil {
			return err
		}
	}

	if c.Grid.NX < 1 || c.Grid.NY < 1 {
		return &ValidationError{Field: "grid", Reason: "nx and ny must be at least 1"}
	}
	if c.Grid.NZ < 0 {
		return &ValidationError{Field: "grid.nz", Reason: "must not be negative"}
	}
	if len(c.Axes) == 2 && c.Grid.NZ > 0 {
		return &ValidationError{Field: "grid.nz", Reason: "z scan requires a third axis"}
	}

	if c.Trigger != nil && c.Trigger.Address == "" {
		return &ValidationError{Field: "trigger.address", Reason: "required"}
	}
	return nil
}
