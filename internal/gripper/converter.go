package gripper

import "math"

// Converter maps physical units onto register counts and back.
// A larger opening width means a smaller position count.
type Converter struct {
	cal Calibration
}

// NewConverter expects a validated calibration.
func NewConverter(cal Calibration) *Converter {
	return &Converter{cal: cal}
}

// Calibration returns the constants the converter was built with.
func (c *Converter) Calibration() Calibration {
	return c.cal
}

// PositionToCounts converts an opening width in meters to rPR.
func (c *Converter) PositionToCounts(pos float64) uint8 {
	cal := c.cal
	raw := (-cal.MinGapCounts/(cal.MaxGap-cal.MinGap))*(pos-cal.MinGap) + cal.MinGapCounts
	return toCount(raw, cal.MinGapCounts)
}

// CountsToPosition converts gPO to an opening width in meters.
func (c *Converter) CountsToPosition(count uint8) float64 {
	cal := c.cal
	pos := (cal.MaxGap - cal.MinGap) / (-cal.MinGapCounts) * (float64(count) - cal.MinGapCounts)
	return clamp(pos, cal.MinGap, cal.MaxGap)
}

// VelocityToCounts converts a closing speed in m/s to rSP.
func (c *Converter) VelocityToCounts(vel float64) uint8 {
	cal := c.cal
	return toCount(255/(cal.MaxSpeed-cal.MinSpeed)*(vel-cal.MinSpeed), 255)
}

// ForceToCounts converts a grip force in newtons to rFR.
func (c *Converter) ForceToCounts(force float64) uint8 {
	cal := c.cal
	return toCount(255/(cal.MaxForce-cal.MinForce)*(force-cal.MinForce), 255)
}

// GoalCommand builds the go-to command for an already clamped goal.
func (c *Converter) GoalCommand(goal MotionGoal) Command {
	return Command{
		Activate: 1,
		GoTo:     1,
		Position: c.PositionToCounts(goal.Position),
		Speed:    c.VelocityToCounts(goal.Velocity),
		Force:    c.ForceToCounts(goal.Force),
	}
}

func toCount(raw, hi float64) uint8 {
	return uint8(math.Round(clamp(raw, 0, hi)))
}
