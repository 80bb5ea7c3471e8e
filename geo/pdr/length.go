package pdr

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
)

// StepLengthEstimator turns a detected step into a length in meters.
type StepLengthEstimator interface {
	Estimate(peak float64, t time.Time) float64
	Reset()
}

func NewStepLengthEstimator(config params.StepLengthConfig) (StepLengthEstimator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Model == params.StepLengthPeak {
		return &PeakStepLength{config: config}, nil
	}
	return &FrequencyStepLength{
		config:    config,
		intervals: common.NewRingBuffer[float64](config.FrequencyWindow),
	}, nil
}

// FrequencyStepLength maps cadence linearly onto the configured length range:
// people take longer steps when they walk faster.
type FrequencyStepLength struct {
	config params.StepLengthConfig

	mu        sync.Mutex
	last      time.Time
	intervals *common.RingBuffer[float64]
}

func (f *FrequencyStepLength) Estimate(_ float64, t time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	defer func() { f.last = t }()
	if f.last.IsZero() {
		return f.config.DefaultStepLength
	}
	dt := t.Sub(f.last).Seconds()
	if dt <= 0 || dt > 2/f.config.MinFrequency {
		// A new walking bout.
		f.intervals.Reset()
		return f.config.DefaultStepLength
	}
	f.intervals.Add(dt)
	mean, err := stats.Mean(f.intervals.Get())
	if err != nil || mean <= 0 {
		return f.config.DefaultStepLength
	}
	return f.lengthForFrequency(1 / mean)
}

func (f *FrequencyStepLength) lengthForFrequency(hz float64) float64 {
	c := f.config
	return c.MinStepLength + (c.MaxStepLength-c.MinStepLength)*common.Normalize(hz, c.MinFrequency, c.MaxFrequency)
}

func (f *FrequencyStepLength) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = time.Time{}
	f.intervals.Reset()
}

// PeakStepLength uses K*sqrt(peak acceleration).
type PeakStepLength struct {
	config params.StepLengthConfig
}

func (p *PeakStepLength) Estimate(peak float64, _ time.Time) float64 {
	l := p.config.PeakK * math.Sqrt(math.Max(peak, 0))
	return common.Clamp(l, p.config.MinStepLength, p.config.MaxStepLength)
}

func (p *PeakStepLength) Reset() {}
