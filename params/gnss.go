package params

import (
	"time"

	"github.com/rotblauer/catnav/common"
)

type GNSSConfig struct {
	// AccuracyThreshold rejects fixes reporting a worse horizontal accuracy (meters).
	AccuracyThreshold float64

	// TeleportSpeed rejects fixes implying a faster jump from the last accepted one (m/s).
	TeleportSpeed float64

	// ResetInterval restarts the smoother after a gap this long.
	ResetInterval time.Duration

	// DistancePerSecond and SpeedPerSecond are the GeoFilter process noise.
	DistancePerSecond float64
	SpeedPerSecond    float64

	// FixTimeout marks GNSS as lost when no fix arrives for this long.
	FixTimeout time.Duration
}

func DefaultGNSSConfig() GNSSConfig {
	return GNSSConfig{
		AccuracyThreshold: 100.0,
		TeleportSpeed:     common.SpeedOfDrivingAutobahn,
		ResetInterval:     2 * time.Minute,
		DistancePerSecond: common.SpeedOfWalkingMean,
		SpeedPerSecond:    0.1,
		FixTimeout:        10 * time.Second,
	}
}

func (c GNSSConfig) Validate() error {
	return firstErr(
		positive("accuracy threshold", c.AccuracyThreshold),
		positive("teleport speed", c.TeleportSpeed),
		positiveDuration("reset interval", c.ResetInterval),
		positive("distance per second", c.DistancePerSecond),
		positive("speed per second", c.SpeedPerSecond),
		positiveDuration("fix timeout", c.FixTimeout),
	)
}
