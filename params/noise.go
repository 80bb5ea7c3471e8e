package params

type NoiseFilterConfig struct {
	// WindowSize is the number of trailing raw samples used for the
	// moving average and for outlier statistics.
	WindowSize int

	// OutlierThreshold rejects a sample further than this many standard
	// deviations from the window mean. The previous output is returned instead.
	OutlierThreshold float64

	// MinStdDev floors the window deviation so a flat window does not
	// flag every small wiggle as an outlier.
	MinStdDev float64

	// MaxRejectRun accepts a sample after this many consecutive rejections,
	// treating it as a level shift rather than a spike.
	MaxRejectRun int

	// ProcessNoise and MeasurementNoise parameterize the scalar Kalman filter.
	ProcessNoise     float64
	MeasurementNoise float64

	// KalmanWeight is the share of the Kalman output in the final value;
	// the moving average supplies the rest.
	KalmanWeight float64
}

func DefaultNoiseFilterConfig() NoiseFilterConfig {
	return NoiseFilterConfig{
		WindowSize:       8,
		OutlierThreshold: 3.0,
		MinStdDev:        0.05,
		MaxRejectRun:     3,
		ProcessNoise:     0.5,
		MeasurementNoise: 1.0,
		KalmanWeight:     0.7,
	}
}

func (c NoiseFilterConfig) Validate() error {
	if c.WindowSize < 1 {
		return invalid("noise window size must be >= 1, got %d", c.WindowSize)
	}
	if c.MaxRejectRun < 0 {
		return invalid("max reject run must be >= 0, got %d", c.MaxRejectRun)
	}
	return firstErr(
		positive("outlier threshold", c.OutlierThreshold),
		positive("process noise", c.ProcessNoise),
		positive("measurement noise", c.MeasurementNoise),
		unit("kalman weight", c.KalmanWeight),
	)
}
