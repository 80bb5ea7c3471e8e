/*
Package noise denoises scalar sensor streams.

A Filter drops outliers against its trailing window, runs the survivors
through a scalar Kalman filter, and blends that with the window's moving
average.
*/
package noise

import (
	"math"
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
)

// minOutlierSamples is the window fill required before outliers are judged.
const minOutlierSamples = 3

type Filter struct {
	config params.NoiseFilterConfig

	mu       sync.Mutex
	window   *common.RingBuffer[float64]
	kalman   *Kalman1D
	last     float64
	hasLast  bool
	rejected int
	run      int
}

func NewFilter(config params.NoiseFilterConfig) (*Filter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Filter{
		config: config,
		window: common.NewRingBuffer[float64](config.WindowSize),
		kalman: NewKalman1D(config.ProcessNoise, config.MeasurementNoise),
	}, nil
}

// Filter returns the denoised value for raw.
// Non-finite and outlying samples yield the previous output unchanged.
func (f *Filter) Filter(raw float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !common.IsFinite(raw) {
		f.rejected++
		return f.last
	}
	if f.isOutlier(raw) && f.run < f.config.MaxRejectRun {
		f.rejected++
		f.run++
		return f.last
	}
	f.run = 0

	k := f.kalman.Update(raw)
	f.window.Add(raw)
	mean, err := stats.Mean(f.window.Get())
	if err != nil {
		mean = raw
	}
	f.last = f.config.KalmanWeight*k + (1-f.config.KalmanWeight)*mean
	f.hasLast = true
	return f.last
}

func (f *Filter) isOutlier(raw float64) bool {
	if f.window.Len() < minOutlierSamples {
		return false
	}
	data := stats.Float64Data(f.window.Get())
	mean, err := data.Mean()
	if err != nil {
		return false
	}
	sd, err := data.StandardDeviation()
	if err != nil {
		return false
	}
	sd = math.Max(sd, f.config.MinStdDev)
	return math.Abs(raw-mean) > f.config.OutlierThreshold*sd
}

// Last returns the most recent output.
func (f *Filter) Last() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Rejected counts samples dropped as outliers or non-finite.
func (f *Filter) Rejected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejected
}

func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window.Reset()
	f.kalman.Reset()
	f.last = 0
	f.hasLast = false
	f.rejected = 0
	f.run = 0
}
