package env

import (
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/testing/testdata"
	"github.com/rotblauer/catnav/types/environment"
	"github.com/rotblauer/catnav/types/sensor"
)

const (
	weakSignal   = -170.0
	strongSignal = -100.0
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(params.DefaultEnvironmentConfig())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func at(s int) time.Time { return testdata.T0.Add(time.Duration(s) * time.Second) }

func TestClassifier_Lifecycle(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := newClassifier(t)
	if c.State() != environment.Outdoor {
		t.Fatalf("have %v want OUTDOOR", c.State())
	}
	var commits []Transition
	for s := 0; s <= 70; s++ {
		sig, sats := weakSignal, 0
		if s >= 30 {
			sig, sats = strongSignal, 8
		}
		if _, tr := c.Update(sig, sats, at(s)); tr != nil {
			commits = append(commits, *tr)
		}
	}
	want := []struct {
		to environment.Environment
		at int
	}{
		{environment.Transition, 2},
		{environment.Indoor, 12},
		{environment.Transition, 32},
		// Three commits in the trailing minute hold OUTDOOR back until the first ages out.
		{environment.Outdoor, 62},
	}
	if len(commits) != len(want) {
		t.Fatalf("have %d commits want %d: %+v", len(commits), len(want), commits)
	}
	for i, w := range want {
		if commits[i].To != w.to || !commits[i].Time.Equal(at(w.at)) {
			t.Errorf("commit %d: have %v at %v want %v at %v", i, commits[i].To, commits[i].Time, w.to, at(w.at))
		}
	}
	if got := len(c.History()); got != 4 {
		t.Errorf("have %d history want 4", got)
	}
}

func TestClassifier_Flapping(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := newClassifier(t)
	crossings, commits := 0, 0
	weak := false
	for s := 0; s < 60; s++ {
		if s%6 == 0 {
			weak = !weak
			crossings++
		}
		sig, sats := strongSignal, 8
		if weak {
			sig, sats = weakSignal, 0
		}
		if _, tr := c.Update(sig, sats, at(s)); tr != nil {
			commits++
		}
	}
	if crossings < 5 {
		t.Fatalf("have %d crossings", crossings)
	}
	if commits > 3 {
		t.Errorf("have %d commits in 60s want <= 3", commits)
	}
	if commits == 0 {
		t.Error("want at least one commit")
	}
}

func TestClassifier_NeedsSamples(t *testing.T) {
	c := newClassifier(t)
	for s := 0; s < 2; s++ {
		if env, tr := c.Update(weakSignal, 0, at(s)); tr != nil || env != environment.Outdoor {
			t.Errorf("have %v %v before enough samples", env, tr)
		}
	}
	if _, tr := c.Update(math.NaN(), 0, at(2)); tr != nil {
		t.Error("NaN committed a transition")
	}
}

func TestClassifier_IntermediateHolds(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := newClassifier(t)
	for s := 0; s < 30; s++ {
		if _, tr := c.Update(-135, 3, at(s)); tr != nil {
			t.Fatalf("intermediate reading left OUTDOOR: %+v", tr)
		}
	}

	c = newClassifier(t)
	for s := 0; s < 30; s++ {
		c.Update(weakSignal, 0, at(s))
	}
	if c.State() != environment.Indoor {
		t.Fatalf("have %v want INDOOR", c.State())
	}
	for s := 30; s < 60; s++ {
		if _, tr := c.Update(-135, 3, at(s)); tr != nil {
			t.Fatalf("intermediate reading left INDOOR: %+v", tr)
		}
	}
}

func TestClassifier_TransitionReverts(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := newClassifier(t)
	var commits []Transition
	for s := 0; s <= 20; s++ {
		sig, sats := weakSignal, 0
		if s >= 6 {
			sig, sats = strongSignal, 8
		}
		if _, tr := c.Update(sig, sats, at(s)); tr != nil {
			commits = append(commits, *tr)
		}
	}
	if len(commits) != 2 {
		t.Fatalf("have %+v want 2 commits", commits)
	}
	if commits[0].To != environment.Transition || !commits[0].Time.Equal(at(2)) {
		t.Errorf("have %v at %v want TRANSITION at %v", commits[0].To, commits[0].Time, at(2))
	}
	if commits[1].To != environment.Outdoor || !commits[1].Time.Equal(at(12)) {
		t.Errorf("have %v at %v want OUTDOOR at %v", commits[1].To, commits[1].Time, at(12))
	}
}

func TestClassifier_SetConfigKeepsHistory(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := newClassifier(t)
	for s := 0; s <= 12; s++ {
		c.Update(weakSignal, 0, at(s))
	}
	if got := len(c.History()); got != 2 {
		t.Fatalf("have %d history want 2", got)
	}

	cfg := params.DefaultEnvironmentConfig()
	cfg.HistorySize = 8
	cfg.SignalWindow = 7
	if err := c.SetConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if got := len(c.History()); got != 2 {
		t.Errorf("have %d history after resize want 2", got)
	}

	// The third commit lands at 22; the rate cap still counts the first two, so
	// OUTDOOR waits for the commit at 2 to age out.
	var commits []Transition
	for s := 13; s <= 70; s++ {
		if _, tr := c.Update(strongSignal, 8, at(s)); tr != nil {
			commits = append(commits, *tr)
		}
	}
	if len(commits) != 2 {
		t.Fatalf("have %+v want 2 commits", commits)
	}
	if commits[0].To != environment.Transition || !commits[0].Time.Equal(at(22)) {
		t.Errorf("have %v at %v want TRANSITION at %v", commits[0].To, commits[0].Time, at(22))
	}
	if commits[1].To != environment.Outdoor || !commits[1].Time.Equal(at(62)) {
		t.Errorf("have %v at %v want OUTDOOR at %v", commits[1].To, commits[1].Time, at(62))
	}
}

func TestClassifier_ConcurrentHistory(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn)()
	c := newClassifier(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for s := 0; s < 200; s++ {
			c.Update(weakSignal, 0, at(s))
			_ = c.History()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cfg := params.DefaultEnvironmentConfig()
			cfg.HistorySize = 5 + i%3
			if err := c.SetConfig(cfg); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestSignalQuality(t *testing.T) {
	sig, sats := SignalQuality(testdata.Status(testdata.T0, 6, 45))
	if sig != -129 || sats != 6 {
		t.Errorf("have %v/%d want -129/6", sig, sats)
	}

	status := sensor.GNSSStatus{Satellites: []sensor.Satellite{
		{SVID: 1, Cn0DbHz: 20},
		{SVID: 2, Cn0DbHz: 30},
	}}
	sig, sats = SignalQuality(status)
	if sig != -149 || sats != 0 {
		t.Errorf("have %v/%d want -149/0", sig, sats)
	}

	sig, sats = SignalQuality(sensor.GNSSStatus{})
	if sig != -174 || sats != 0 {
		t.Errorf("have %v/%d want -174/0", sig, sats)
	}
}
