package params

type FusionConfig struct {
	// Blend normalization ranges for the TRANSITION weight.
	BlendSignalMin     float64
	BlendSignalMax     float64
	BlendSatelliteMin  float64
	BlendSatelliteMax  float64
	BlendSignalWeight  float64 // the satellite term gets the rest

	// MaxRelativeDistance (meters) from the anchor beyond which the
	// equirectangular local frame is considered unreliable.
	MaxRelativeDistance float64

	// InitialFloor when no snapshot is available.
	InitialFloor int

	// LostConfidenceScale multiplies estimate confidence while the
	// preferred source is lost.
	LostConfidenceScale float64
}

func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		BlendSignalMin:      -130,
		BlendSignalMax:      -50,
		BlendSatelliteMin:   4,
		BlendSatelliteMax:   12,
		BlendSignalWeight:   0.7,
		MaxRelativeDistance: 2000,
		InitialFloor:        0,
		LostConfidenceScale: 0.5,
	}
}

func (c FusionConfig) Validate() error {
	if !(c.BlendSignalMin < c.BlendSignalMax) {
		return invalid("blend signal range [%v, %v]", c.BlendSignalMin, c.BlendSignalMax)
	}
	if !(c.BlendSatelliteMin < c.BlendSatelliteMax) {
		return invalid("blend satellite range [%v, %v]", c.BlendSatelliteMin, c.BlendSatelliteMax)
	}
	return firstErr(
		unit("blend signal weight", c.BlendSignalWeight),
		positive("max relative distance", c.MaxRelativeDistance),
		unit("lost confidence scale", c.LostConfidenceScale),
	)
}

// EngineConfig aggregates the configuration of every estimator.
type EngineConfig struct {
	Steps         StepDetectorConfig
	StepLength    StepLengthConfig
	Orientation   OrientationConfig
	Position      PositionFilterConfig
	Beacon        BeaconConfig
	Trilateration TrilaterationConfig
	Floor         FloorDetectorConfig
	Environment   EnvironmentConfig
	GNSS          GNSSConfig
	Fusion        FusionConfig
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Steps:         DefaultStepDetectorConfig(),
		StepLength:    DefaultStepLengthConfig(),
		Orientation:   DefaultOrientationConfig(),
		Position:      DefaultPositionFilterConfig(),
		Beacon:        DefaultBeaconConfig(),
		Trilateration: DefaultTrilaterationConfig(),
		Floor:         DefaultFloorDetectorConfig(),
		Environment:   DefaultEnvironmentConfig(),
		GNSS:          DefaultGNSSConfig(),
		Fusion:        DefaultFusionConfig(),
	}
}

func (c *EngineConfig) Validate() error {
	if c == nil {
		return invalid("nil engine config")
	}
	return firstErr(
		c.Steps.Validate(),
		c.StepLength.Validate(),
		c.Orientation.Validate(),
		c.Position.Validate(),
		c.Beacon.Validate(),
		c.Trilateration.Validate(),
		c.Floor.Validate(),
		c.Environment.Validate(),
		c.GNSS.Validate(),
		c.Fusion.Validate(),
	)
}
