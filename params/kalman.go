package params

type PositionFilterConfig struct {
	// ProcessNoise q builds Q = q*I.
	ProcessNoise float64
	// InitialCovariance builds P = c*I on reset.
	InitialCovariance float64
	// StepMeasurementNoise is R (m^2) for a dead-reckoned position.
	StepMeasurementNoise float64
	// MinBeaconNoise floors R (m^2) for a trilaterated position.
	MinBeaconNoise float64
}

func DefaultPositionFilterConfig() PositionFilterConfig {
	return PositionFilterConfig{
		ProcessNoise:         0.05,
		InitialCovariance:    1000,
		StepMeasurementNoise: 0.5,
		MinBeaconNoise:       1.0,
	}
}

func (c PositionFilterConfig) Validate() error {
	return firstErr(
		positive("process noise", c.ProcessNoise),
		positive("initial covariance", c.InitialCovariance),
		positive("step measurement noise", c.StepMeasurementNoise),
		positive("min beacon noise", c.MinBeaconNoise),
	)
}
