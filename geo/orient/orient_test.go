package orient

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/testing/testdata"
	"github.com/rotblauer/catnav/types/sensor"
)

func feed(e *Estimator, samples []sensor.Sample) {
	for _, s := range samples {
		switch s.Kind {
		case sensor.KindAccel:
			e.UpdateAccel(s.Vec3, s.Time)
		case sensor.KindMag:
			e.UpdateMag(s.Vec3, s.Time)
		case sensor.KindGyro:
			e.UpdateGyro(s.Vec3, s.Time)
		}
	}
}

func calibrated(t *testing.T, c params.OrientationConfig, heading float64) *Estimator {
	t.Helper()
	e, err := NewEstimator(c)
	if err != nil {
		t.Fatal(err)
	}
	feed(e, testdata.Compass(testdata.T0, c.CalibrationSamples, heading, 50))
	if !e.Calibrated() {
		t.Fatal("not calibrated")
	}
	return e
}

func TestAzimuth(t *testing.T) {
	g := sensor.Vec3{Z: common.Gravity}
	for _, h := range []float64{0, 45, 90, 135, 180, 225, 270, 315, 359} {
		have, ok := Azimuth(g, testdata.MagField(h, 1))
		if !ok {
			t.Fatalf("heading %v: not ok", h)
		}
		if math.Abs(common.AngleDelta(have, h)) > 1e-6 {
			t.Errorf("have %v want %v", have, h)
		}
	}
}

func TestAzimuth_Tilted(t *testing.T) {
	// Pitch the device 30 degrees about its x axis; a tilt-compensated
	// compass reads the same azimuth.
	pitch := 30 * math.Pi / 180
	rot := func(v sensor.Vec3) sensor.Vec3 {
		return sensor.Vec3{
			X: v.X,
			Y: v.Y*math.Cos(pitch) + v.Z*math.Sin(pitch),
			Z: -v.Y*math.Sin(pitch) + v.Z*math.Cos(pitch),
		}
	}
	g := rot(sensor.Vec3{Z: common.Gravity})
	m := rot(testdata.MagField(60, 1))
	have, ok := Azimuth(g, m)
	if !ok {
		t.Fatal("not ok")
	}
	if math.Abs(common.AngleDelta(have, 60)) > 1e-6 {
		t.Errorf("have %v want 60", have)
	}
}

func TestAzimuth_Degenerate(t *testing.T) {
	if _, ok := Azimuth(sensor.Vec3{}, testdata.MagField(0, 1)); ok {
		t.Error("free fall should not yield an azimuth")
	}
	if _, ok := Azimuth(sensor.Vec3{Z: 9.81}, sensor.Vec3{Z: -40}); ok {
		t.Error("vertical field should not yield an azimuth")
	}
}

func TestEstimator_Calibration(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := params.DefaultOrientationConfig()
	e, err := NewEstimator(c)
	if err != nil {
		t.Fatal(err)
	}
	feed(e, testdata.Compass(testdata.T0, c.CalibrationSamples-1, 90, 50))
	if e.Calibrated() {
		t.Fatal("calibrated too early")
	}
	if _, ok := e.Heading(); ok {
		t.Fatal("heading available before calibration")
	}
	feed(e, testdata.Compass(testdata.T0.Add(time.Second), 1, 90, 50))
	h, ok := e.Heading()
	if !ok {
		t.Fatal("not calibrated")
	}
	if math.Abs(h.Azimuth-90) > 1e-6 {
		t.Errorf("have %v want 90", h.Azimuth)
	}
	if h.Confidence != 1 {
		t.Errorf("have confidence %v want 1", h.Confidence)
	}
}

func TestEstimator_CalibrationSkipsTilted(t *testing.T) {
	c := params.DefaultOrientationConfig()
	e, err := NewEstimator(c)
	if err != nil {
		t.Fatal(err)
	}
	tilted := sensor.Vec3{X: 5, Z: 8.4}
	for i := 0; i < 2*c.CalibrationSamples; i++ {
		at := testdata.T0.Add(time.Duration(i) * 20 * time.Millisecond)
		e.UpdateAccel(tilted, at)
		e.UpdateMag(testdata.MagField(0, 1), at)
	}
	if e.Calibrated() {
		t.Error("calibrated on tilted samples")
	}
}

func TestEstimator_ShortestPath(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := params.DefaultOrientationConfig()
	e := calibrated(t, c, 350)

	at := testdata.T0.Add(time.Second)
	e.UpdateAccel(sensor.Vec3{Z: common.Gravity}, at)
	e.UpdateMag(testdata.MagField(10, 1), at)
	h, _ := e.Heading()
	want := common.WrapDegrees(350 + c.CompassWeight*20)
	if math.Abs(common.AngleDelta(h.Azimuth, want)) > 1e-6 {
		t.Errorf("have %v want %v", h.Azimuth, want)
	}

	// Opposite direction never jumps more than half a turn.
	prev := h.Azimuth
	for i := 0; i < 50; i++ {
		at = at.Add(20 * time.Millisecond)
		e.UpdateMag(testdata.MagField(prev+179, 1), at)
		h, _ = e.Heading()
		if d := math.Abs(common.AngleDelta(prev, h.Azimuth)); d > 180 {
			t.Fatalf("jump of %v degrees", d)
		}
		prev = h.Azimuth
	}
}

func TestEstimator_Interference(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := params.DefaultOrientationConfig()
	e := calibrated(t, c, 0)

	at := testdata.T0.Add(time.Second)
	e.UpdateMag(testdata.MagField(90, 3), at) // ~134 µT
	h, _ := e.Heading()
	want := c.CompassWeight * c.InterferenceScale * 90
	if math.Abs(h.Azimuth-want) > 1e-6 {
		t.Errorf("have %v want %v", h.Azimuth, want)
	}
	if h.Confidence >= 1 {
		t.Errorf("have confidence %v, want lowered", h.Confidence)
	}
}

func TestEstimator_Gyro(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := params.DefaultOrientationConfig()
	e := calibrated(t, c, 0)

	// Turn clockwise (seen from above) at 0.5 rad/s for one second.
	at := testdata.T0.Add(time.Second)
	for i := 0; i <= 100; i++ {
		e.UpdateGyro(sensor.Vec3{Z: -0.5}, at)
		at = at.Add(10 * time.Millisecond)
	}
	h, _ := e.Heading()
	want := 0.5 * 180 / math.Pi
	if math.Abs(h.Azimuth-want) > 0.01 {
		t.Errorf("have %v want %v", h.Azimuth, want)
	}
}

func TestEstimator_GyroWeight(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := params.DefaultOrientationConfig()
	e := calibrated(t, c, 0)

	at := testdata.T0.Add(time.Second)
	e.UpdateGyro(sensor.Vec3{}, at)
	e.UpdateGyro(sensor.Vec3{}, at.Add(10*time.Millisecond))
	e.UpdateMag(testdata.MagField(100, 1), at.Add(20*time.Millisecond))
	h, _ := e.Heading()
	want := (1 - c.GyroWeight) * 100
	if math.Abs(h.Azimuth-want) > 1e-6 {
		t.Errorf("have %v want %v", h.Azimuth, want)
	}
}

func TestEstimator_Declination(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := params.DefaultOrientationConfig()
	c.DeclinationDegrees = -12
	e := calibrated(t, c, 5)
	h, _ := e.Heading()
	if math.Abs(common.AngleDelta(h.Azimuth, 353)) > 1e-6 {
		t.Errorf("have %v want 353", h.Azimuth)
	}
}

func TestEstimator_SeedHeading(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	e, err := NewEstimator(params.DefaultOrientationConfig())
	if err != nil {
		t.Fatal(err)
	}
	e.SeedHeading(-90)
	h, ok := e.Heading()
	if !ok || h.Azimuth != 270 || h.Confidence != 0.5 {
		t.Errorf("have %+v ok=%v", h, ok)
	}
}

func TestEstimator_SetConfigInvalid(t *testing.T) {
	c := params.DefaultOrientationConfig()
	e, _ := NewEstimator(c)
	bad := c
	bad.GyroWeight = 2
	if err := e.SetConfig(bad); err == nil {
		t.Error("expected error")
	}
	if e.config.GyroWeight != c.GyroWeight {
		t.Error("invalid config was applied")
	}
}
