/*
Package orient estimates the device heading from a tilt-compensated compass,
fused with gyroscope integration by a complementary filter.
*/
package orient

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/sensor"
)

// Heading is an immutable heading estimate.
// Azimuth is degrees clockwise from true north in [0, 360).
type Heading struct {
	Azimuth    float64
	Confidence float64
}

// minFieldNorm guards the east vector when the field is parallel to gravity.
const minFieldNorm = 0.1

// Azimuth returns the magnetic azimuth of the device's top edge given
// gravity and the magnetic field, both in device coordinates.
// It works at any tilt; ok is false in free fall or when the field is
// parallel to gravity.
func Azimuth(gravity, field sensor.Vec3) (deg float64, ok bool) {
	gn := gravity.Norm()
	if gn < minFieldNorm {
		return 0, false
	}
	east := field.Cross(gravity)
	en := east.Norm()
	if en < minFieldNorm {
		return 0, false
	}
	east = east.Scale(1 / en)
	up := gravity.Scale(1 / gn)
	north := up.Cross(east)
	return common.WrapDegrees(math.Atan2(east.Y, north.Y) * 180 / math.Pi), true
}

type Estimator struct {
	config params.OrientationConfig
	logger *slog.Logger

	mu           sync.Mutex
	gravity      sensor.Vec3
	hasGravity   bool
	heading      float64
	calibrated   bool
	calibration  []float64
	lastGyro     time.Time
	interference *common.RingBuffer[bool]
	gyroOnly     bool
}

func NewEstimator(config params.OrientationConfig) (*Estimator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{
		config:       config,
		logger:       slog.With("d", "orient"),
		interference: common.NewRingBuffer[bool](config.InterferenceWindow),
	}, nil
}

// SetConfig swaps the configuration, keeping the current heading.
// An invalid config is rejected and the previous one kept.
func (e *Estimator) SetConfig(config params.OrientationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = config
	if e.interference.Cap() != config.InterferenceWindow {
		e.interference = common.NewRingBuffer[bool](config.InterferenceWindow)
	}
	return nil
}

// UpdateAccel low-passes the accelerometer into a gravity estimate.
func (e *Estimator) UpdateAccel(a sensor.Vec3, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasGravity {
		e.gravity = a
		e.hasGravity = true
		return
	}
	alpha := e.config.GravityAlpha
	e.gravity = e.gravity.Scale(alpha).Add(a.Scale(1 - alpha))
}

func (e *Estimator) isLevel() bool {
	return math.Abs(e.gravity.X) < e.config.LevelThreshold &&
		math.Abs(e.gravity.Y) < e.config.LevelThreshold
}

func (e *Estimator) gyroLive(t time.Time) bool {
	return !e.lastGyro.IsZero() && t.Sub(e.lastGyro) <= e.config.GyroTimeout
}

// UpdateMag folds a magnetometer sample into the heading.
// Until calibrated it only collects near-level, interference-free readings.
func (e *Estimator) UpdateMag(m sensor.Vec3, t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasGravity {
		return
	}
	raw, ok := Azimuth(e.gravity, m)
	if !ok {
		return
	}
	raw = common.WrapDegrees(raw + e.config.DeclinationDegrees)
	strength := m.Norm()
	inBand := strength >= e.config.MagneticMin && strength <= e.config.MagneticMax
	e.interference.Add(!inBand)

	if !e.calibrated {
		if inBand && e.isLevel() {
			e.calibration = append(e.calibration, raw)
		}
		if len(e.calibration) >= e.config.CalibrationSamples {
			e.heading = common.CircularMean(e.calibration)
			e.calibrated = true
			e.calibration = nil
			e.logger.Info("Heading calibrated", "azimuth", e.heading)
		}
		return
	}

	w := e.config.CompassWeight
	if e.gyroLive(t) {
		w = 1 - e.config.GyroWeight
	}
	if !inBand {
		w *= e.config.InterferenceScale
	}
	e.rotate(w * common.AngleDelta(e.heading, raw))
}

// UpdateGyro integrates the yaw rate (rotation about gravity) into the heading.
func (e *Estimator) UpdateGyro(w sensor.Vec3, t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.lastGyro = t }()
	if e.lastGyro.IsZero() || !e.calibrated {
		return
	}
	dt := t.Sub(e.lastGyro).Seconds()
	if dt <= 0 || dt > 1 {
		return
	}
	up := sensor.Vec3{Z: 1}
	if e.hasGravity && e.gravity.Norm() > minFieldNorm {
		up = e.gravity.Scale(1 / e.gravity.Norm())
	}
	// Counter-clockwise rotation seen from above decreases azimuth.
	e.rotate(-w.Dot(up) * dt * 180 / math.Pi)
}

// rotate applies a heading change, never more than half a turn.
func (e *Estimator) rotate(delta float64) {
	e.heading = common.WrapDegrees(e.heading + common.Clamp(delta, -180, 180))
}

// Heading returns the current estimate; ok is false before calibration.
func (e *Estimator) Heading() (Heading, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.calibrated {
		return Heading{}, false
	}
	return Heading{Azimuth: e.heading, Confidence: e.confidence()}, true
}

func (e *Estimator) confidence() float64 {
	if e.gyroOnly {
		return 0.5
	}
	n := e.interference.Len()
	if n == 0 {
		return 1
	}
	bad := 0
	e.interference.Scan(func(b bool) bool {
		if b {
			bad++
		}
		return true
	})
	return 1 - float64(bad)/float64(n)
}

func (e *Estimator) Calibrated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calibrated
}

// SeedHeading calibrates without a compass, e.g. from a GNSS bearing when
// the magnetometer is unavailable. Later updates come from the gyroscope.
func (e *Estimator) SeedHeading(azimuth float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heading = common.WrapDegrees(azimuth)
	e.calibrated = true
	e.gyroOnly = true
	e.calibration = nil
	e.logger.Info("Heading seeded without compass", "azimuth", e.heading)
}

func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gravity = sensor.Vec3{}
	e.hasGravity = false
	e.heading = 0
	e.calibrated = false
	e.calibration = nil
	e.lastGyro = time.Time{}
	e.interference.Reset()
	e.gyroOnly = false
}
