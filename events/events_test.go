package events

import (
	"testing"
	"time"

	"github.com/rotblauer/catnav/fusion"
	"github.com/rotblauer/catnav/geo/floor"
	"github.com/rotblauer/catnav/types/environment"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

func TestPublisher(t *testing.T) {
	estimates := make(chan Estimate, 1)
	envs := make(chan EnvironmentChange, 1)
	floors := make(chan FloorChange, 1)
	errs := make(chan ProviderError, 1)
	for _, sub := range []interface{ Unsubscribe() }{
		EstimateFeed.Subscribe(estimates),
		EnvironmentFeed.Subscribe(envs),
		FloorFeed.Subscribe(floors),
		ProviderErrorFeed.Subscribe(errs),
	} {
		defer sub.Unsubscribe()
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Publisher("rye")
	p.OnLocationUpdate(location.Estimate{Lat: 45, Lng: -93, Time: now})
	p.OnEnvironmentChanged(fusion.EnvironmentChange{Environment: environment.Indoor, Previous: environment.Transition, Time: now})
	p.OnFloorChanged(floor.Change{Floor: 2, Previous: 1, Type: floor.ChangeDetected, Time: now})
	p.OnProviderError(fusion.ProviderError{Sensor: sensor.KindMag, Reason: sensor.ReasonMissing, Time: now})

	if e := <-estimates; e.Device != "rye" || e.Lat != 45 {
		t.Errorf("estimate: have %+v", e)
	}
	if c := <-envs; c.Device != "rye" || c.Environment != environment.Indoor {
		t.Errorf("environment: have %+v", c)
	}
	if c := <-floors; c.Floor != 2 || c.Previous != 1 {
		t.Errorf("floor: have %+v", c)
	}
	if e := <-errs; e.Sensor != sensor.KindMag {
		t.Errorf("provider error: have %+v", e)
	}
}

func TestPublisherNoSubscribers(t *testing.T) {
	// Send with no subscribers must not block.
	done := make(chan struct{})
	go func() {
		Publisher("ghost").OnLocationUpdate(location.Estimate{Lat: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked without subscribers")
	}
}
