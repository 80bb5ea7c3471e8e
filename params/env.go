package params

import "time"

type EnvironmentConfig struct {
	// IndoorSignal (dBm): a mean signal below this reads as indoors.
	IndoorSignal float64
	// OutdoorSignal (dBm): a mean signal above this (with enough satellites) reads as outdoors.
	OutdoorSignal float64
	// IndoorSatellites: fewer satellites than this reads as indoors.
	IndoorSatellites int
	// OutdoorSatellites: at least this many (with enough signal) reads as outdoors.
	OutdoorSatellites int

	// SignalWindow readings are averaged; nothing is classified before
	// MinSignalSamples have arrived.
	SignalWindow     int
	MinSignalSamples int

	// HysteresisInterval is the minimum time between committed transitions.
	HysteresisInterval time.Duration
	// RateWindow and MaxTransitionsPerWindow cap commits in any trailing window.
	RateWindow              time.Duration
	MaxTransitionsPerWindow int
	// HistorySize of the committed transition ring.
	HistorySize int
}

func DefaultEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		IndoorSignal:            -140,
		OutdoorSignal:           -130,
		IndoorSatellites:        2,
		OutdoorSatellites:       4,
		SignalWindow:            5,
		MinSignalSamples:        3,
		HysteresisInterval:      10 * time.Second,
		RateWindow:              60 * time.Second,
		MaxTransitionsPerWindow: 3,
		HistorySize:             5,
	}
}

func (c EnvironmentConfig) Validate() error {
	if !(c.IndoorSignal < c.OutdoorSignal) {
		return invalid("indoor signal %v must be below outdoor signal %v", c.IndoorSignal, c.OutdoorSignal)
	}
	if !(c.IndoorSatellites < c.OutdoorSatellites) {
		return invalid("indoor satellites %d must be below outdoor satellites %d", c.IndoorSatellites, c.OutdoorSatellites)
	}
	if c.MinSignalSamples < 1 || c.SignalWindow < c.MinSignalSamples {
		return invalid("signal window %d must hold min samples %d", c.SignalWindow, c.MinSignalSamples)
	}
	if c.MaxTransitionsPerWindow < 1 {
		return invalid("max transitions per window must be >= 1, got %d", c.MaxTransitionsPerWindow)
	}
	if c.HistorySize < c.MaxTransitionsPerWindow {
		return invalid("history size %d must hold max transitions %d", c.HistorySize, c.MaxTransitionsPerWindow)
	}
	return firstErr(
		positiveDuration("hysteresis interval", c.HysteresisInterval),
		positiveDuration("rate window", c.RateWindow),
	)
}
