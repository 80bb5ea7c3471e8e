package fusion

import (
	"time"

	"github.com/rotblauer/catnav/geo/floor"
	"github.com/rotblauer/catnav/types/environment"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

type EnvironmentChange struct {
	Environment environment.Environment `json:"environment"`
	Previous    environment.Environment `json:"previous"`
	Confidence  float64                 `json:"confidence"`
	Time        time.Time               `json:"time"`
}

// ProviderError reports a sensor the engine has to do without.
type ProviderError struct {
	Sensor sensor.Kind              `json:"sensor"`
	Reason sensor.UnavailableReason `json:"reason"`
	// Disabled names the feature that degrades.
	Disabled string    `json:"disabled"`
	Time     time.Time `json:"time"`
}

func (e ProviderError) Error() string {
	return string(e.Sensor) + " unavailable (" + string(e.Reason) + "): " + e.Disabled + " disabled"
}

// Listener receives a coordinator's outputs. Calls are made outside the
// coordinator's lock, in the order the outputs were produced.
type Listener interface {
	OnLocationUpdate(location.Estimate)
	OnEnvironmentChanged(EnvironmentChange)
	OnFloorChanged(floor.Change)
	OnProviderError(ProviderError)
}

// ListenerFuncs adapts optional funcs to a Listener.
type ListenerFuncs struct {
	Location    func(location.Estimate)
	Environment func(EnvironmentChange)
	Floor       func(floor.Change)
	Error       func(ProviderError)
}

func (l ListenerFuncs) OnLocationUpdate(e location.Estimate) {
	if l.Location != nil {
		l.Location(e)
	}
}

func (l ListenerFuncs) OnEnvironmentChanged(c EnvironmentChange) {
	if l.Environment != nil {
		l.Environment(c)
	}
}

func (l ListenerFuncs) OnFloorChanged(c floor.Change) {
	if l.Floor != nil {
		l.Floor(c)
	}
}

func (l ListenerFuncs) OnProviderError(e ProviderError) {
	if l.Error != nil {
		l.Error(e)
	}
}

// Listeners fans out to each listener in turn.
type Listeners []Listener

func (ls Listeners) OnLocationUpdate(e location.Estimate) {
	for _, l := range ls {
		l.OnLocationUpdate(e)
	}
}

func (ls Listeners) OnEnvironmentChanged(c EnvironmentChange) {
	for _, l := range ls {
		l.OnEnvironmentChanged(c)
	}
}

func (ls Listeners) OnFloorChanged(c floor.Change) {
	for _, l := range ls {
		l.OnFloorChanged(c)
	}
}

func (ls Listeners) OnProviderError(e ProviderError) {
	for _, l := range ls {
		l.OnProviderError(e)
	}
}

// Snapshot is the state worth keeping across restarts.
type Snapshot struct {
	Floor       int                     `json:"floor"`
	Environment environment.Environment `json:"environment"`
	Anchor      *location.Anchor        `json:"anchor,omitempty"`
	Last        location.Estimate       `json:"last"`
	Time        time.Time               `json:"time"`
}

type SnapshotStore interface {
	SaveSnapshot(Snapshot) error
}
