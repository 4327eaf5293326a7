package gripper

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCalibration marks calibration constants that would make the
// register mapping degenerate.
var ErrInvalidCalibration = errors.New("invalid calibration")

// Calibration holds the constants of the affine maps between physical
// units and register counts. Loaded once at startup, never mutated.
type Calibration struct {
	MinGapCounts float64 `mapstructure:"min_gap_counts" yaml:"min_gap_counts" json:"min_gap_counts"`
	MinGap       float64 `mapstructure:"min_gap" yaml:"min_gap" json:"min_gap"`
	MaxGap       float64 `mapstructure:"max_gap" yaml:"max_gap" json:"max_gap"`
	MinSpeed     float64 `mapstructure:"min_speed" yaml:"min_speed" json:"min_speed"`
	MaxSpeed     float64 `mapstructure:"max_speed" yaml:"max_speed" json:"max_speed"`
	MinForce     float64 `mapstructure:"min_force" yaml:"min_force" json:"min_force"`
	MaxForce     float64 `mapstructure:"max_force" yaml:"max_force" json:"max_force"`
}

// DefaultCalibration matches a Robotiq 2F-85.
func DefaultCalibration() Calibration {
	return Calibration{
		MinGapCounts: 230,
		MinGap:       0.0,
		MaxGap:       0.085,
		MinSpeed:     0.013,
		MaxSpeed:     0.1,
		MinForce:     40,
		MaxForce:     100,
	}
}

// Validate rejects calibrations with empty or inverted ranges.
func (c Calibration) Validate() error {
	for name, v := range map[string]float64{
		"min_gap_counts": c.MinGapCounts,
		"min_gap":        c.MinGap,
		"max_gap":        c.MaxGap,
		"min_speed":      c.MinSpeed,
		"max_speed":      c.MaxSpeed,
		"min_force":      c.MinForce,
		"max_force":      c.MaxForce,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCalibration, name)
		}
	}

	if c.MinGapCounts <= 0 || c.MinGapCounts > 255 {
		return fmt.Errorf("%w: min_gap_counts must be in (0, 255], got %v", ErrInvalidCalibration, c.MinGapCounts)
	}
	if c.MaxGap <= c.MinGap {
		return fmt.Errorf("%w: max_gap (%v) must be greater than min_gap (%v)", ErrInvalidCalibration, c.MaxGap, c.MinGap)
	}
	if c.MaxSpeed <= c.MinSpeed {
		return fmt.Errorf("%w: max_speed (%v) must be greater than min_speed (%v)", ErrInvalidCalibration, c.MaxSpeed, c.MinSpeed)
	}
	if c.MaxForce <= c.MinForce {
		return fmt.Errorf("%w: max_force (%v) must be greater than min_force (%v)", ErrInvalidCalibration, c.MaxForce, c.MinForce)
	}

	return nil
}

// Clamp pulls every goal field into its calibrated range. Out of range
// goals are never rejected.
func (c Calibration) Clamp(goal MotionGoal) MotionGoal {
	return MotionGoal{
		Position: clamp(goal.Position, c.MinGap, c.MaxGap),
		Velocity: clamp(goal.Velocity, c.MinSpeed, c.MaxSpeed),
		Force:    clamp(goal.Force, c.MinForce, c.MaxForce),
	}
}

// clamp treats NaN as the lower bound so callers never see NaN leak into
// register math.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
