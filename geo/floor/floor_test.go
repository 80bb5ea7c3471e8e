package floor

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

const p0 = common.PressureSeaLevel

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(params.DefaultFloorDetectorConfig())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func run(d *Detector, samples []sensor.Sample) []Event {
	var out []Event
	for _, s := range samples {
		if ev, ok := d.Update(s.Value, s.Time); ok {
			out = append(out, ev)
		}
	}
	return out
}

// climb is a pressure trace for meters of height at speed m/s.
func climb(meters, speed float64) []sensor.Sample {
	ramp := time.Duration(math.Abs(meters) / speed * float64(time.Second))
	return testdata.PressureRamp(testdata.T0, p0, testdata.HeightToPressure(p0, meters),
		5*time.Second, ramp, 10*time.Second, 10)
}

func TestHeightDelta(t *testing.T) {
	for _, m := range []float64{-10.5, -3.5, 0, 3.5, 42} {
		got := HeightDelta(p0, p0+testdata.HeightToPressure(p0, m))
		if math.Abs(got-m) > 1e-6 {
			t.Errorf("have %v want %v", got, m)
		}
	}
}

func TestDetector_Elevator(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	cases := []struct {
		meters float64
		floors int
	}{
		{10.5, 3},
		{-10.5, -3},
	}
	for _, c := range cases {
		d := newDetector(t)
		events := run(d, climb(c.meters, common.SpeedOfElevator))
		if len(events) != 1 {
			t.Fatalf("have %d events want 1", len(events))
		}
		ev := events[0]
		if ev.Type != TypeElevator {
			t.Errorf("have %v want %v", ev.Type, TypeElevator)
		}
		if ev.FloorDelta != c.floors {
			t.Errorf("have %d floors want %d", ev.FloorDelta, c.floors)
		}
		if ev.Confidence <= 0.6 || ev.Confidence > 1 {
			t.Errorf("have confidence %v", ev.Confidence)
		}
		if ev.Duration <= 0 || ev.Speed <= 0 {
			t.Errorf("have duration %v speed %v", ev.Duration, ev.Speed)
		}
		if d.State() != StateStable {
			t.Errorf("have %v want %v", d.State(), StateStable)
		}
	}
}

func TestDetector_Stairs(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	d := newDetector(t)
	events := run(d, climb(3.5, common.SpeedOfClimbingStairs))
	if len(events) != 1 {
		t.Fatalf("have %d events want 1", len(events))
	}
	ev := events[0]
	if ev.Type != TypeStairs {
		t.Errorf("have %v want %v", ev.Type, TypeStairs)
	}
	if ev.FloorDelta != 1 {
		t.Errorf("have %d floors want 1", ev.FloorDelta)
	}
	if ev.Confidence <= 0.6 {
		t.Errorf("have confidence %v", ev.Confidence)
	}
}

func TestDetector_BelowThreshold(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	d := newDetector(t)
	samples := testdata.PressureRamp(testdata.T0, p0, 0.05, 5*time.Second, 5*time.Second, 10*time.Second, 10)
	if events := run(d, samples); len(events) != 0 {
		t.Errorf("have %d events want 0", len(events))
	}
	if d.State() != StateStable {
		t.Errorf("have %v want %v", d.State(), StateStable)
	}
}

func TestDetector_CancelledBelowFloorScale(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	d := newDetector(t)
	samples := testdata.PressureRamp(testdata.T0, p0, 0.18, 5*time.Second, 2*time.Second, 15*time.Second, 10)
	if events := run(d, samples); len(events) != 0 {
		t.Errorf("have %d events want 0", len(events))
	}
	if d.State() != StateStable {
		t.Errorf("have %v want %v", d.State(), StateStable)
	}
}

func TestDetector_IgnoresBadSamples(t *testing.T) {
	d := newDetector(t)
	if _, ok := d.Update(math.NaN(), testdata.T0); ok {
		t.Error("NaN produced an event")
	}
	d.Update(p0, testdata.T0)
	d.Update(p0-5, testdata.T0)
	if d.ema != p0 {
		t.Errorf("have ema %v want %v", d.ema, p0)
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	if _, ok := m.Apply(Event{FloorDelta: 1}); ok {
		t.Error("apply before start")
	}
	c, ok := m.Start(2, testdata.T0)
	if !ok || c.Type != ChangeInitial || c.Floor != 2 {
		t.Fatalf("have %+v %v", c, ok)
	}
	if _, ok := m.Start(5, testdata.T0); ok {
		t.Error("second start produced a change")
	}
	c, ok = m.Apply(Event{FloorDelta: -3, End: testdata.T0.Add(time.Minute)})
	if !ok || c.Type != ChangeDetected || c.Floor != -1 || c.Previous != 2 {
		t.Errorf("have %+v", c)
	}
	if m.Floor() != -1 {
		t.Errorf("have %d want -1", m.Floor())
	}
}

// A transition whose pressure keeps moving without ever settling or
// growing is abandoned by the timeout, not reported when it later settles.
func TestDetector_StalledTimesOut(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	d := newDetector(t)
	const (
		rate   = 10.0
		level  = -0.4
		swing  = 0.2
		period = 4.0
	)
	var samples []sensor.Sample
	add := func(s, p float64) {
		samples = append(samples, sensor.Sample{
			Kind: sensor.KindPressure, Time: testdata.T0.Add(time.Duration(s * float64(time.Second))), Value: p,
		})
	}
	n := 0
	for ; n < 5*rate; n++ {
		add(float64(n)/rate, p0)
	}
	oscStart := n
	for ; n < 35*rate; n++ {
		s := float64(n) / rate
		add(s, p0+level+swing*math.Sin(2*math.Pi*(s-5)/period))
	}
	oscEnd := n
	for ; n < 45*rate; n++ {
		add(float64(n)/rate, p0+level)
	}

	started, timedOut := false, false
	var events []Event
	for i, s := range samples {
		if ev, ok := d.Update(s.Value, s.Time); ok {
			events = append(events, ev)
		}
		if i < oscStart || i >= oscEnd {
			continue
		}
		switch d.State() {
		case StateTransitioning:
			started = true
		case StateStable:
			if started {
				timedOut = true
			}
		}
	}
	if !started {
		t.Fatal("no transition started")
	}
	if !timedOut {
		t.Error("stalled transition was not abandoned")
	}
	if len(events) != 0 {
		t.Errorf("have %d events want 0: %+v", len(events), events)
	}
}
