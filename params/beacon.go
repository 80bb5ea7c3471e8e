package params

import "time"

type BeaconConfig struct {
	// RSSIAt1m is the received power one meter from a beacon (dBm).
	RSSIAt1m float64
	// PathLossExponent n in the log-distance model.
	PathLossExponent float64
	// CalibrationFactor scales every computed distance.
	CalibrationFactor float64
	// MinDistance floors computed distances (meters).
	MinDistance float64

	// RSSIMin and RSSIMax clamp raw and filtered readings (dBm).
	RSSIMin float64
	RSSIMax float64

	// SignalTimeout prunes beacons not heard from for this long.
	SignalTimeout time.Duration

	// ProcessNoise and MeasurementNoise parameterize the per-beacon RSSI Kalman filter.
	ProcessNoise     float64
	MeasurementNoise float64
}

func DefaultBeaconConfig() BeaconConfig {
	return BeaconConfig{
		RSSIAt1m:          -59,
		PathLossExponent:  2.0,
		CalibrationFactor: 1.0,
		MinDistance:       0.3,
		RSSIMin:           -100,
		RSSIMax:           -20,
		SignalTimeout:     8 * time.Second,
		ProcessNoise:      0.05,
		MeasurementNoise:  2.0,
	}
}

func (c BeaconConfig) Validate() error {
	if !(c.RSSIMin < c.RSSIMax) {
		return invalid("rssi bounds [%v, %v]", c.RSSIMin, c.RSSIMax)
	}
	return firstErr(
		positive("path loss exponent", c.PathLossExponent),
		positive("calibration factor", c.CalibrationFactor),
		positive("min distance", c.MinDistance),
		positiveDuration("signal timeout", c.SignalTimeout),
		positive("process noise", c.ProcessNoise),
		positive("measurement noise", c.MeasurementNoise),
	)
}

type TrilaterationConfig struct {
	// MinBeacons below which the solver falls back to a weighted centroid.
	MinBeacons int
	// WeightPower p weights each intersection by (1/residual)^p.
	WeightPower float64
	// Refine enables Gauss-Newton refinement of the weighted estimate.
	Refine               bool
	MaxIterations        int
	ConvergenceThreshold float64
}

func DefaultTrilaterationConfig() TrilaterationConfig {
	return TrilaterationConfig{
		MinBeacons:           3,
		WeightPower:          2,
		Refine:               true,
		MaxIterations:        100,
		ConvergenceThreshold: 0.001,
	}
}

func (c TrilaterationConfig) Validate() error {
	if c.MinBeacons < 3 {
		return invalid("trilateration needs at least 3 beacons, got %d", c.MinBeacons)
	}
	if c.MaxIterations < 1 {
		return invalid("max iterations must be >= 1, got %d", c.MaxIterations)
	}
	return firstErr(
		positive("weight power", c.WeightPower),
		positive("convergence threshold", c.ConvergenceThreshold),
	)
}
