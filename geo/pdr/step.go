/*
Package pdr implements pedestrian dead reckoning: detecting steps in the
accelerometer stream, estimating their length, and integrating them along
a heading into a local east/north frame.
*/
package pdr

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/geo/noise"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/sensor"
)

type StepState int

const (
	StateWaiting StepState = iota
	StateRising
	StateFalling
)

func (s StepState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateRising:
		return "RISING"
	case StateFalling:
		return "FALLING"
	}
	return "UNKNOWN"
}

// StepEvent is an immutable detected step.
type StepEvent struct {
	Time     time.Time
	Count    int
	Length   float64
	Peak     float64
	Interval time.Duration
}

type StepDetector struct {
	config params.StepDetectorConfig
	length StepLengthEstimator
	logger *slog.Logger

	mu         sync.Mutex
	filter     *noise.Filter
	state      StepState
	stateSince time.Time
	peak       float64
	fired      bool
	lastStep   time.Time
	count      int
	debounced  int
}

func NewStepDetector(config params.StepDetectorConfig, length StepLengthEstimator) (*StepDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	f, err := noise.NewFilter(config.Noise)
	if err != nil {
		return nil, err
	}
	return &StepDetector{
		config: config,
		length: length,
		logger: slog.With("d", "steps"),
		filter: f,
	}, nil
}

// Update feeds one accelerometer sample and reports a step when a
// full rise/fall cycle completes.
func (d *StepDetector) Update(accel sensor.Vec3, t time.Time) (StepEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.filter.Filter(accel.Norm() - common.Gravity)
	next, fire := d.transition(v, t)
	if next != d.state {
		d.state = next
		d.stateSince = t
	}
	if !fire {
		return StepEvent{}, false
	}

	ev := StepEvent{Time: t, Count: d.count + 1, Peak: d.peak}
	if !d.lastStep.IsZero() {
		ev.Interval = t.Sub(d.lastStep)
	}
	if d.length != nil {
		ev.Length = d.length.Estimate(d.peak, t)
	}
	d.count++
	d.lastStep = t
	return ev, true
}

// transition is the detector state machine. It mutates cycle bookkeeping
// (peak, fired) and returns the next state and whether a step fires.
func (d *StepDetector) transition(v float64, t time.Time) (StepState, bool) {
	if d.state != StateWaiting && t.Sub(d.stateSince) > d.config.StepTimeout {
		d.fired = false
		return StateWaiting, false
	}
	switch d.state {
	case StateWaiting:
		if v > d.config.PeakThreshold {
			d.peak = v
			return StateRising, false
		}
	case StateRising:
		if v > d.peak {
			d.peak = v
		}
		if v < d.config.PeakThreshold {
			d.fired = false
			return StateFalling, false
		}
	case StateFalling:
		if v > d.config.PeakThreshold {
			d.peak = v
			return StateRising, false
		}
		if !d.fired && v < d.config.ValleyThreshold {
			d.fired = true
			if !d.lastStep.IsZero() && t.Sub(d.lastStep) < d.config.MinStepInterval {
				d.debounced++
				d.logger.Debug("Step debounced", "since", t.Sub(d.lastStep))
				return StateFalling, false
			}
			return StateFalling, true
		}
	}
	return d.state, false
}

func (d *StepDetector) State() StepState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *StepDetector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Debounced counts cycles suppressed by MinStepInterval.
func (d *StepDetector) Debounced() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.debounced
}

func (d *StepDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.Reset()
	d.state = StateWaiting
	d.stateSince = time.Time{}
	d.peak = 0
	d.fired = false
	d.lastStep = time.Time{}
	d.count = 0
	d.debounced = 0
	if d.length != nil {
		d.length.Reset()
	}
}
