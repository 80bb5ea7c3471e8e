package fusion

import (
	"time"

	"github.com/rotblauer/catnav/geo/beacon"
	"github.com/rotblauer/catnav/geo/kalman"
	"github.com/rotblauer/catnav/geo/orient"
	"github.com/rotblauer/catnav/geo/pdr"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/location"
)

// indoor is the dead-reckoning and beacon estimator. The step detector and
// heading run all the time; only a running indoor provider moves the filter.
type indoor struct {
	steps   *pdr.StepDetector
	heading *orient.Estimator
	pdr     *pdr.Integrator
	kf      *kalman.PositionFilter
	beacons *beacon.SignalProcessor
	solver  *beacon.Solver

	running bool
	updated time.Time
	source  location.Source
}

func newStepDetector(config *params.EngineConfig) (*pdr.StepDetector, error) {
	length, err := pdr.NewStepLengthEstimator(config.StepLength)
	if err != nil {
		return nil, err
	}
	return pdr.NewStepDetector(config.Steps, length)
}

func newIndoor(config *params.EngineConfig, registry *beacon.Registry) (*indoor, error) {
	steps, err := newStepDetector(config)
	if err != nil {
		return nil, err
	}
	heading, err := orient.NewEstimator(config.Orientation)
	if err != nil {
		return nil, err
	}
	kf, err := kalman.NewPositionFilter(config.Position)
	if err != nil {
		return nil, err
	}
	beacons, err := beacon.NewSignalProcessor(config.Beacon, registry)
	if err != nil {
		return nil, err
	}
	solver, err := beacon.NewSolver(config.Trilateration)
	if err != nil {
		return nil, err
	}
	return &indoor{
		steps:   steps,
		heading: heading,
		pdr:     pdr.NewIntegrator(),
		kf:      kf,
		beacons: beacons,
		solver:  solver,
		source:  location.SourcePDR,
	}, nil
}

// start zeroes the relative frame at the anchor.
func (in *indoor) start(t time.Time) {
	in.pdr.Reset()
	in.kf.Reset(0, 0)
	in.beacons.Reset()
	in.updated = t
	in.source = location.SourcePDR
	in.running = true
}

func (in *indoor) stop() {
	in.running = false
}

// predict advances the filter to t.
func (in *indoor) predict(t time.Time) {
	if !t.After(in.updated) {
		return
	}
	in.kf.Predict(t.Sub(in.updated).Seconds())
	in.updated = t
}

// setConfig applies an already validated config.
func (in *indoor) setConfig(config *params.EngineConfig) error {
	steps, err := newStepDetector(config)
	if err != nil {
		return err
	}
	for _, err := range []error{
		in.heading.SetConfig(config.Orientation),
		in.kf.SetConfig(config.Position),
		in.beacons.SetConfig(config.Beacon),
		in.solver.SetConfig(config.Trilateration),
	} {
		if err != nil {
			return err
		}
	}
	in.steps = steps
	return nil
}
