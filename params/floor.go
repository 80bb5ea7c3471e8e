package params

import (
	"time"

	"github.com/rotblauer/catnav/common"
)

type FloorDetectorConfig struct {
	// Alpha of the exponential moving average applied to raw pressure.
	Alpha float64
	// WindowSize of the moving mean over the EMA output.
	WindowSize int
	// BaselineAlpha lets the stable baseline follow weather drift.
	BaselineAlpha float64

	// StairsThreshold (hPa) away from the baseline starts a transition.
	StairsThreshold float64
	// ElevatorThreshold (hPa) is the cumulative change a transition must
	// reach before it is reported.
	ElevatorThreshold float64
	// ElevatorRate (hPa/s) separates stairs from elevators by peak rate.
	ElevatorRate float64
	// StableVariance (hPa^2) of the smoothing window ends a transition.
	StableVariance float64
	// ProgressEpsilon (hPa) of new cumulative change counts as progress.
	ProgressEpsilon float64
	// Timeout cancels a transition that stops progressing without stabilizing.
	Timeout time.Duration

	// FloorHeight in meters.
	FloorHeight float64
	// MinConfidence events must exceed to be surfaced.
	MinConfidence float64

	// Expected vertical speeds (m/s) and settling overhead used for confidence.
	StairsSpeed   float64
	ElevatorSpeed float64
	SettleTime    time.Duration
}

func DefaultFloorDetectorConfig() FloorDetectorConfig {
	return FloorDetectorConfig{
		Alpha:             0.1,
		WindowSize:        10,
		BaselineAlpha:     0.005,
		StairsThreshold:   0.1,
		ElevatorThreshold: 0.25,
		ElevatorRate:      0.08,
		StableVariance:    2e-5,
		ProgressEpsilon:   0.005,
		Timeout:           5 * time.Second,
		FloorHeight:       3.5,
		MinConfidence:     0.6,
		StairsSpeed:       common.SpeedOfClimbingStairs,
		ElevatorSpeed:     common.SpeedOfElevator,
		SettleTime:        2 * time.Second,
	}
}

func (c FloorDetectorConfig) Validate() error {
	if c.WindowSize < 2 {
		return invalid("floor window size must be >= 2, got %d", c.WindowSize)
	}
	if !(c.StairsThreshold < c.ElevatorThreshold) {
		return invalid("stairs threshold %v must be below elevator threshold %v", c.StairsThreshold, c.ElevatorThreshold)
	}
	return firstErr(
		unit("alpha", c.Alpha),
		unit("baseline alpha", c.BaselineAlpha),
		positive("stairs threshold", c.StairsThreshold),
		positive("elevator rate", c.ElevatorRate),
		positive("stable variance", c.StableVariance),
		positive("progress epsilon", c.ProgressEpsilon),
		positiveDuration("timeout", c.Timeout),
		positive("floor height", c.FloorHeight),
		unit("min confidence", c.MinConfidence),
		positive("stairs speed", c.StairsSpeed),
		positive("elevator speed", c.ElevatorSpeed),
	)
}
