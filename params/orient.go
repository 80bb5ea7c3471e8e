package params

import (
	"time"

	"github.com/rotblauer/catnav/common"
)

type OrientationConfig struct {
	// DeclinationDegrees is added to the magnetic azimuth to get true north.
	DeclinationDegrees float64

	// GyroWeight is the complementary filter alpha: the share of the
	// gyro-propagated heading kept on every compass update while the gyro is live.
	GyroWeight float64

	// CompassWeight is the low-pass weight of compass updates when no gyro is live.
	CompassWeight float64

	// InterferenceScale multiplies the compass weight for samples whose
	// field magnitude is outside [MagneticMin, MagneticMax].
	InterferenceScale float64
	MagneticMin       float64
	MagneticMax       float64

	// CalibrationSamples near-level compass readings define the initial heading.
	CalibrationSamples int
	// LevelThreshold bounds lateral and longitudinal acceleration (m/s^2)
	// for a sample to count as near-level.
	LevelThreshold float64

	// GravityAlpha low-passes the accelerometer into a gravity vector.
	GravityAlpha float64

	// GyroTimeout is how long after the last gyro sample it still counts as live.
	GyroTimeout time.Duration

	// InterferenceWindow is the number of recent compass samples used for confidence.
	InterferenceWindow int
}

func DefaultOrientationConfig() OrientationConfig {
	return OrientationConfig{
		DeclinationDegrees: 0,
		GyroWeight:         0.98,
		CompassWeight:      0.2,
		InterferenceScale:  0.1,
		MagneticMin:        common.MagneticFieldMin,
		MagneticMax:        common.MagneticFieldMax,
		CalibrationSamples: 10,
		LevelThreshold:     1.5,
		GravityAlpha:       0.8,
		GyroTimeout:        500 * time.Millisecond,
		InterferenceWindow: 20,
	}
}

func (c OrientationConfig) Validate() error {
	if c.CalibrationSamples < 1 {
		return invalid("calibration samples must be >= 1, got %d", c.CalibrationSamples)
	}
	if c.InterferenceWindow < 1 {
		return invalid("interference window must be >= 1, got %d", c.InterferenceWindow)
	}
	if !(c.MagneticMin < c.MagneticMax) {
		return invalid("magnetic band [%v, %v]", c.MagneticMin, c.MagneticMax)
	}
	if !(c.DeclinationDegrees >= -180 && c.DeclinationDegrees <= 180) {
		return invalid("declination %v out of range", c.DeclinationDegrees)
	}
	return firstErr(
		unit("gyro weight", c.GyroWeight),
		unit("compass weight", c.CompassWeight),
		unit("interference scale", c.InterferenceScale),
		unit("gravity alpha", c.GravityAlpha),
		positive("level threshold", c.LevelThreshold),
		positiveDuration("gyro timeout", c.GyroTimeout),
	)
}
