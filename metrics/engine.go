// Package metrics counts what a fusion engine consumes and produces.
package metrics

import (
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"
)

// Engine holds the counters of one coordinator, in its own registry.
type Engine struct {
	Registry metrics.Registry

	Samples         metrics.Counter
	Steps           metrics.Counter
	StepsUnoriented metrics.Counter
	Fixes           metrics.Counter
	FixesRejected   metrics.Counter
	Scans           metrics.Counter
	BeaconFixes     metrics.Counter
	FloorEvents     metrics.Counter
	Transitions     metrics.Counter
	FilterRejected  metrics.Counter
	Ignored         metrics.Counter
	SensorsLost     metrics.Counter
	Estimates       metrics.Meter
}

func NewEngine(prefix string) *Engine {
	// Constructors hand out no-op metrics unless enabled.
	metrics.Enabled = true

	r := metrics.NewRegistry()
	name := func(s string) string { return fmt.Sprintf("%s/%s", prefix, s) }
	return &Engine{
		Registry:        r,
		Samples:         metrics.NewRegisteredCounter(name("samples"), r),
		Steps:           metrics.NewRegisteredCounter(name("steps"), r),
		StepsUnoriented: metrics.NewRegisteredCounter(name("steps/unoriented"), r),
		Fixes:           metrics.NewRegisteredCounter(name("fixes"), r),
		FixesRejected:   metrics.NewRegisteredCounter(name("fixes/rejected"), r),
		Scans:           metrics.NewRegisteredCounter(name("scans"), r),
		BeaconFixes:     metrics.NewRegisteredCounter(name("beacon/fixes"), r),
		FloorEvents:     metrics.NewRegisteredCounter(name("floor/events"), r),
		Transitions:     metrics.NewRegisteredCounter(name("environment/transitions"), r),
		FilterRejected:  metrics.NewRegisteredCounter(name("kalman/rejected"), r),
		Ignored:         metrics.NewRegisteredCounter(name("ignored"), r),
		SensorsLost:     metrics.NewRegisteredCounter(name("sensors/unavailable"), r),
		Estimates:       metrics.NewRegisteredMeter(name("estimates"), r),
	}
}

// Stop releases the meter's ticker.
func (e *Engine) Stop() {
	e.Estimates.Stop()
}

// Counts returns a name -> count snapshot of every counter.
func (e *Engine) Counts() map[string]int64 {
	out := map[string]int64{}
	e.Registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			out[name] = m.Snapshot().Count()
		case metrics.Meter:
			out[name] = m.Snapshot().Count()
		}
	})
	return out
}
