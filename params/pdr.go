package params

import "time"

type StepDetectorConfig struct {
	// Noise denoises the gravity-removed acceleration magnitude.
	Noise NoiseFilterConfig

	// PeakThreshold (m/s^2) must be crossed upward to enter RISING.
	PeakThreshold float64

	// ValleyThreshold (m/s^2) must be crossed downward to complete a cycle.
	ValleyThreshold float64

	// MinStepInterval debounces steps. No two steps are closer than this.
	MinStepInterval time.Duration

	// StepTimeout returns the detector to WAITING when a cycle stalls.
	StepTimeout time.Duration
}

func DefaultStepDetectorConfig() StepDetectorConfig {
	n := DefaultNoiseFilterConfig()
	n.ProcessNoise = 1.0
	n.MeasurementNoise = 0.5
	n.OutlierThreshold = 4.0
	n.MinStdDev = 1.0
	return StepDetectorConfig{
		Noise:           n,
		PeakThreshold:   1.0,
		ValleyThreshold: -0.5,
		MinStepInterval: 250 * time.Millisecond,
		StepTimeout:     2 * time.Second,
	}
}

func (c StepDetectorConfig) Validate() error {
	if err := c.Noise.Validate(); err != nil {
		return err
	}
	if c.ValleyThreshold >= c.PeakThreshold {
		return invalid("valley threshold %v must be below peak threshold %v", c.ValleyThreshold, c.PeakThreshold)
	}
	return firstErr(
		positive("peak threshold", c.PeakThreshold),
		positiveDuration("min step interval", c.MinStepInterval),
		positiveDuration("step timeout", c.StepTimeout),
	)
}

type StepLengthModel string

const (
	StepLengthFrequency StepLengthModel = "frequency"
	StepLengthPeak      StepLengthModel = "peak"
)

type StepLengthConfig struct {
	Model StepLengthModel

	// MinStepLength and MaxStepLength bound every estimate (meters).
	MinStepLength float64
	MaxStepLength float64

	// DefaultStepLength is used before a cadence is known.
	DefaultStepLength float64

	// MinFrequency and MaxFrequency (Hz) map linearly onto the length bounds.
	MinFrequency float64
	MaxFrequency float64

	// FrequencyWindow is the number of step intervals averaged for cadence.
	FrequencyWindow int

	// PeakK scales sqrt(peak acceleration) for the peak model.
	PeakK float64
}

func DefaultStepLengthConfig() StepLengthConfig {
	return StepLengthConfig{
		Model:             StepLengthFrequency,
		MinStepLength:     0.5,
		MaxStepLength:     1.0,
		DefaultStepLength: 0.7,
		MinFrequency:      1.0,
		MaxFrequency:      2.5,
		FrequencyWindow:   4,
		PeakK:             0.4,
	}
}

func (c StepLengthConfig) Validate() error {
	switch c.Model {
	case StepLengthFrequency, StepLengthPeak:
	default:
		return invalid("unknown step length model %q", c.Model)
	}
	if !(c.MinStepLength > 0 && c.MinStepLength <= c.MaxStepLength) {
		return invalid("step length bounds [%v, %v]", c.MinStepLength, c.MaxStepLength)
	}
	if !(c.MinFrequency > 0 && c.MinFrequency < c.MaxFrequency) {
		return invalid("step frequency bounds [%v, %v]", c.MinFrequency, c.MaxFrequency)
	}
	if c.FrequencyWindow < 1 {
		return invalid("frequency window must be >= 1, got %d", c.FrequencyWindow)
	}
	return firstErr(
		positive("default step length", c.DefaultStepLength),
		positive("peak k", c.PeakK),
	)
}
