/*
Package env classifies whether the device is outdoors, indoors or in
between, from GNSS signal strength and satellite count, with hysteresis
so the decision does not flap at a doorway.
*/
package env

import (
	"log/slog"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/environment"
	"github.com/rotblauer/catnav/types/sensor"
)

// Transition is a committed environment change.
type Transition struct {
	From, To   environment.Environment
	Time       time.Time
	Signal     float64
	Satellites int
}

type Classifier struct {
	mu     sync.Mutex
	config params.EnvironmentConfig
	logger *slog.Logger

	signals    *common.RingBuffer[float64]
	state      environment.Environment
	lastCommit time.Time
	history    *common.RingBuffer[Transition]
}

func NewClassifier(config params.EnvironmentConfig) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{config: config, logger: slog.With("d", "env")}
	c.reset()
	return c, nil
}

func (c *Classifier) SetConfig(config params.EnvironmentConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if config.SignalWindow != c.config.SignalWindow {
		c.signals = resized(c.signals, config.SignalWindow)
	}
	if config.HistorySize != c.config.HistorySize {
		c.history = resized(c.history, config.HistorySize)
	}
	c.config = config
	return nil
}

// resized moves the newest elements of rb into a ring of the given size.
func resized[T any](rb *common.RingBuffer[T], size int) *common.RingBuffer[T] {
	next := common.NewRingBuffer[T](size)
	for _, v := range rb.Tail(size) {
		next.Add(v)
	}
	return next
}

func (c *Classifier) reset() {
	c.signals = common.NewRingBuffer[float64](c.config.SignalWindow)
	c.history = common.NewRingBuffer[Transition](c.config.HistorySize)
	c.state = environment.Outdoor
	c.lastCommit = time.Time{}
}

// Reset returns to OUTDOOR with no history.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Classifier) State() environment.Environment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns committed transitions, oldest first.
func (c *Classifier) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Get()
}

// Update folds in one signal reading (dBm) and satellite count. It returns
// the current environment and the transition, if one was committed.
func (c *Classifier) Update(signal float64, satellites int, t time.Time) (environment.Environment, *Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !common.IsFinite(signal) {
		return c.state, nil
	}
	c.signals.Add(signal)
	if c.signals.Len() < c.config.MinSignalSamples {
		return c.state, nil
	}
	mean, _ := stats.Float64Data(c.signals.Get()).Mean()

	next := c.next(mean, satellites)
	if next == c.state {
		return c.state, nil
	}
	if !c.allowed(t) {
		c.logger.Debug("Transition suppressed", "from", c.state, "to", next, "signal", mean, "sats", satellites)
		return c.state, nil
	}
	tr := Transition{From: c.state, To: next, Time: t, Signal: mean, Satellites: satellites}
	c.history.Add(tr)
	c.state = next
	c.lastCommit = t
	c.logger.Info("Environment changed", "from", tr.From, "to", tr.To,
		"signal", common.DecimalToFixed(mean, 1), "sats", satellites)
	return c.state, &tr
}

// next applies the asymmetric thresholds. OUTDOOR and INDOOR are left only
// through TRANSITION, and only when the stricter exit condition holds;
// readings between the thresholds keep the current state.
func (c *Classifier) next(signal float64, satellites int) environment.Environment {
	indoor := signal < c.config.IndoorSignal || satellites < c.config.IndoorSatellites
	outdoor := signal > c.config.OutdoorSignal && satellites >= c.config.OutdoorSatellites
	switch c.state {
	case environment.Outdoor:
		if indoor {
			return environment.Transition
		}
	case environment.Transition:
		if indoor {
			return environment.Indoor
		}
		if outdoor {
			return environment.Outdoor
		}
	case environment.Indoor:
		if outdoor {
			return environment.Transition
		}
	}
	return c.state
}

// allowed applies the hysteresis interval and the trailing rate cap.
func (c *Classifier) allowed(t time.Time) bool {
	if !c.lastCommit.IsZero() && t.Sub(c.lastCommit) < c.config.HysteresisInterval {
		return false
	}
	recent := 0
	c.history.Scan(func(tr Transition) bool {
		if t.Sub(tr.Time) < c.config.RateWindow {
			recent++
		}
		return true
	})
	return recent < c.config.MaxTransitionsPerWindow
}

// noiseFloor converts C/N0 (dB-Hz) to received power (dBm) over 1 Hz at
// the thermal noise density of -174 dBm/Hz.
const noiseFloor = -174.0

// SignalQuality reduces a satellite status to (mean signal dBm, satellites used).
// When no satellite is used in a fix, all visible ones are averaged.
func SignalQuality(status sensor.GNSSStatus) (float64, int) {
	used := status.UsedCount()
	var cn0 stats.Float64Data
	for _, s := range status.Satellites {
		if s.UsedInFix || used == 0 {
			cn0 = append(cn0, s.Cn0DbHz)
		}
	}
	if len(cn0) == 0 {
		return noiseFloor, 0
	}
	mean, _ := cn0.Mean()
	return mean + noiseFloor, used
}
