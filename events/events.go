// Package events fans engine outputs out to in-process subscribers,
// like the websocket hub.
package events

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/catnav/fusion"
	"github.com/rotblauer/catnav/geo/floor"
	"github.com/rotblauer/catnav/types/location"
)

type Estimate struct {
	Device string `json:"device"`
	location.Estimate
}

type EnvironmentChange struct {
	Device string `json:"device"`
	fusion.EnvironmentChange
}

type FloorChange struct {
	Device string `json:"device"`
	floor.Change
}

type ProviderError struct {
	Device string `json:"device"`
	fusion.ProviderError
}

// EstimateFeed is emitted for every fused estimate of every device.
var EstimateFeed = event.FeedOf[Estimate]{}

var EnvironmentFeed = event.FeedOf[EnvironmentChange]{}

var FloorFeed = event.FeedOf[FloorChange]{}

// ProviderErrorFeed carries sensor loss reports.
// Send blocks until every subscriber has taken the value, so subscribers
// should read with buffered channels.
var ProviderErrorFeed = event.FeedOf[ProviderError]{}

// Publisher is a fusion.Listener sending one device's outputs to the feeds.
type Publisher string

var _ fusion.Listener = Publisher("")

func (p Publisher) OnLocationUpdate(e location.Estimate) {
	EstimateFeed.Send(Estimate{Device: string(p), Estimate: e})
}

func (p Publisher) OnEnvironmentChanged(c fusion.EnvironmentChange) {
	EnvironmentFeed.Send(EnvironmentChange{Device: string(p), EnvironmentChange: c})
}

func (p Publisher) OnFloorChanged(c floor.Change) {
	FloorFeed.Send(FloorChange{Device: string(p), Change: c})
}

func (p Publisher) OnProviderError(e fusion.ProviderError) {
	ProviderErrorFeed.Send(ProviderError{Device: string(p), ProviderError: e})
}
