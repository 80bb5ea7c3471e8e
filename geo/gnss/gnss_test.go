package gnss

import (
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb/geo"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/testing/testdata"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

const (
	lat0 = 44.98
	lng0 = -93.26
)

// northFix is a fix s seconds into a walk due north at speed m/s.
func northFix(s int, speed float64) sensor.Fix {
	dLat := speed * float64(s) / common.EarthRadius * 180 / math.Pi
	return sensor.Fix{
		Time:     testdata.T0.Add(time.Duration(s) * time.Second),
		Lat:      lat0 + dLat,
		Lng:      lng0,
		Accuracy: 5,
		Speed:    speed,
	}
}

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(params.DefaultGNSSConfig())
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	return p
}

func TestProvider_Walk(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	p := newProvider(t)
	first, err := p.Observe(northFix(0, 1.2))
	if err != nil {
		t.Fatal(err)
	}
	if first.Lat != lat0 || first.Lng != lng0 || first.Source != location.SourceGPS {
		t.Errorf("have %+v want raw first fix", first)
	}
	var est location.Estimate
	for s := 1; s <= 30; s++ {
		fix := northFix(s, 1.2)
		est, err = p.Observe(fix)
		if err != nil {
			t.Fatal(err)
		}
		if d := geo.Distance(est.Point(), point(fix)); d > 25 {
			t.Errorf("second %d: estimate %.1f m from fix", s, d)
		}
	}
	if est.Confidence <= 0 || est.Confidence > 1 {
		t.Errorf("have confidence %v", est.Confidence)
	}
	if math.Abs(common.AngleDelta(est.Bearing, 0)) > 1 {
		t.Errorf("have bearing %v want 0", est.Bearing)
	}
	if last, ok := p.Last(); !ok || last != est {
		t.Errorf("have %+v want %+v", last, est)
	}
	if acc, rej := p.Stats(); acc != 31 || rej != 0 {
		t.Errorf("have %d/%d want 31/0", acc, rej)
	}
}

func TestProvider_Rejects(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	p := newProvider(t)
	if _, err := p.Observe(northFix(0, 1)); err != nil {
		t.Fatal(err)
	}

	inaccurate := northFix(1, 1)
	inaccurate.Accuracy = 500
	teleport := northFix(2, 1)
	teleport.Lat += 1
	invalid := northFix(3, 1)
	invalid.Lat = 95
	stale := northFix(0, 1)
	nan := northFix(4, 1)
	nan.Lng = math.NaN()

	cases := []struct {
		fix  sensor.Fix
		want error
	}{
		{inaccurate, ErrInaccurate},
		{teleport, ErrTeleport},
		{invalid, ErrInvalidFix},
		{stale, ErrInvalidFix},
		{nan, ErrInvalidFix},
	}
	for _, c := range cases {
		if _, err := p.Observe(c.fix); !errors.Is(err, c.want) {
			t.Errorf("have %v want %v", err, c.want)
		}
	}
	if _, rej := p.Stats(); rej != len(cases) {
		t.Errorf("have %d rejected want %d", rej, len(cases))
	}
}

func TestProvider_StartStop(t *testing.T) {
	p, err := NewProvider(params.DefaultGNSSConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Observe(northFix(0, 1)); !errors.Is(err, ErrStopped) {
		t.Errorf("have %v want ErrStopped", err)
	}
	if p.Lost(testdata.T0) {
		t.Error("stopped provider reported lost")
	}
	p.Start()
	if !p.Lost(testdata.T0) {
		t.Error("want lost before any fix")
	}
	if _, err := p.Observe(northFix(0, 1)); err != nil {
		t.Fatal(err)
	}
	if p.Lost(testdata.T0.Add(5 * time.Second)) {
		t.Error("lost within fix timeout")
	}
	if !p.Lost(testdata.T0.Add(time.Minute)) {
		t.Error("want lost after fix timeout")
	}
	p.Stop()
	if p.Running() {
		t.Error("still running")
	}
	if _, ok := p.Last(); !ok {
		t.Error("stop dropped the last estimate")
	}
}

func TestProvider_ResetAfterGap(t *testing.T) {
	p := newProvider(t)
	p.Observe(northFix(0, 1))
	far := northFix(0, 1)
	far.Time = testdata.T0.Add(time.Hour)
	far.Lat += 0.5
	est, err := p.Observe(far)
	if err != nil {
		t.Fatal(err)
	}
	if est.Lat != far.Lat {
		t.Errorf("have %v want raw fix after reset %v", est.Lat, far.Lat)
	}
}
