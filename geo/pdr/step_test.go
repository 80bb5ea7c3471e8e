package pdr

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

func newDetector(t *testing.T) *StepDetector {
	t.Helper()
	length, err := NewStepLengthEstimator(params.DefaultStepLengthConfig())
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewStepDetector(params.DefaultStepDetectorConfig(), length)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func runSamples(d *StepDetector, samples []sensor.Sample) []StepEvent {
	var steps []StepEvent
	for _, s := range samples {
		if ev, ok := d.Update(s.Vec3, s.Time); ok {
			steps = append(steps, ev)
		}
	}
	return steps
}

func TestStepDetector_Walk(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()

	d := newDetector(t)
	steps := runSamples(d, testdata.WalkAccel(testdata.T0, 10, 2, 50, 3))
	if len(steps) != 10 {
		t.Fatalf("have %d steps want %d", len(steps), 10)
	}
	for i, s := range steps {
		if s.Count != i+1 {
			t.Errorf("step %d: have count %d", i, s.Count)
		}
		if s.Length < 0.5 || s.Length > 1.0 {
			t.Errorf("step %d: length %v outside [0.5, 1.0]", i, s.Length)
		}
		if i > 0 && math.Abs(s.Interval.Seconds()-0.5) > 0.1 {
			t.Errorf("step %d: interval %v want ~500ms", i, s.Interval)
		}
	}
	if d.State() != StateWaiting && d.State() != StateFalling {
		t.Errorf("have state %v after rest", d.State())
	}
}

func TestStepDetector_Rest(t *testing.T) {
	d := newDetector(t)
	for i := 0; i < 500; i++ {
		at := testdata.T0.Add(time.Duration(i) * 20 * time.Millisecond)
		if _, ok := d.Update(testdata.FlatAccel(at).Vec3, at); ok {
			t.Fatal("step detected at rest")
		}
	}
	if d.State() != StateWaiting {
		t.Errorf("have %v want %v", d.State(), StateWaiting)
	}
}

// Oscillation faster than the debounce interval must never yield two
// steps closer than MinStepInterval.
func TestStepDetector_Debounce(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()

	cfg := params.DefaultStepDetectorConfig()
	d, err := NewStepDetector(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	steps := runSamples(d, testdata.WalkAccel(testdata.T0, 36, 6, 100, 4))
	if len(steps) == 0 {
		t.Fatal("no steps detected")
	}
	for i := 1; i < len(steps); i++ {
		if gap := steps[i].Time.Sub(steps[i-1].Time); gap < cfg.MinStepInterval {
			t.Errorf("steps %d and %d only %v apart", i-1, i, gap)
		}
	}
	if d.Debounced() == 0 {
		t.Error("expected debounced cycles at 6 Hz")
	}
	if len(steps) >= 36 {
		t.Errorf("have %d steps, debounce let every cycle through", len(steps))
	}
}

func TestStepDetector_Reset(t *testing.T) {
	d := newDetector(t)
	runSamples(d, testdata.WalkAccel(testdata.T0, 4, 2, 50, 3))
	if d.Count() == 0 {
		t.Fatal("no steps before reset")
	}
	d.Reset()
	if d.Count() != 0 || d.State() != StateWaiting {
		t.Errorf("have count %d state %v after reset", d.Count(), d.State())
	}
}
