// Package gnss is the outdoor location provider: it validates raw
// satellite fixes and smooths them with a geodetic Kalman filter.
package gnss

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	rkalman "github.com/regnull/kalman"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

var (
	ErrStopped    = errors.New("gnss provider stopped")
	ErrInvalidFix = errors.New("invalid fix")
	ErrInaccurate = errors.New("fix accuracy over threshold")
	ErrTeleport   = errors.New("fix implies impossible speed")
)

// minAccuracy floors reported accuracies; some receivers report 0.
const minAccuracy = 1.0

type Provider struct {
	mu     sync.Mutex
	config params.GNSSConfig
	logger *slog.Logger

	running  bool
	filter   *rkalman.GeoFilter
	last     sensor.Fix
	estimate location.Estimate
	accepted int
	rejected int
}

func NewProvider(config params.GNSSConfig) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{config: config, logger: slog.With("d", "gnss")}, nil
}

func (p *Provider) SetConfig(config params.GNSSConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = config
	return nil
}

// Start begins accepting fixes with a fresh filter.
func (p *Provider) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	p.filter = nil
	p.last = sensor.Fix{}
}

// Stop drops the filter. The last estimate is kept.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.filter = nil
}

func (p *Provider) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Last returns the most recent smoothed estimate, if any.
func (p *Provider) Last() (location.Estimate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimate, !p.estimate.IsEmpty()
}

// Lost reports whether a running provider has gone FixTimeout without a fix.
func (p *Provider) Lost(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	return p.last.Time.IsZero() || now.Sub(p.last.Time) > p.config.FixTimeout
}

// Stats returns the accepted and rejected fix counts.
func (p *Provider) Stats() (accepted, rejected int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted, p.rejected
}

func validFix(f sensor.Fix) bool {
	if !common.IsFinite(f.Lat, f.Lng, f.Accuracy, f.Speed, f.Bearing, f.Altitude) {
		return false
	}
	return f.Accuracy >= 0 && s2.LatLngFromDegrees(f.Lat, f.Lng).IsValid()
}

func point(f sensor.Fix) orb.Point {
	return orb.Point{f.Lng, f.Lat}
}

// Observe validates and smooths one fix.
func (p *Provider) Observe(fix sensor.Fix) (location.Estimate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return location.Estimate{}, ErrStopped
	}
	if err := p.check(fix); err != nil {
		p.rejected++
		p.logger.Debug("Rejected fix", "error", err)
		return location.Estimate{}, err
	}

	span := fix.Time.Sub(p.last.Time)
	if p.filter == nil || span > p.config.ResetInterval {
		if err := p.reset(fix); err != nil {
			return location.Estimate{}, err
		}
		return p.accept(fix, fix.Lat, fix.Lng, fix.Speed), nil
	}

	err := p.filter.Observe(span.Seconds(), &rkalman.GeoObserved{
		Lat:                fix.Lat,
		Lng:                fix.Lng,
		Altitude:           fix.Altitude,
		Speed:              fix.Speed,
		SpeedAccuracy:      0.2,
		Direction:          fix.Bearing,
		DirectionAccuracy:  0,
		HorizontalAccuracy: math.Max(minAccuracy, fix.Accuracy),
		VerticalAccuracy:   2.0,
	})
	if err != nil {
		p.logger.Error("Kalman.Observe failed", "error", err)
		return p.accept(fix, fix.Lat, fix.Lng, fix.Speed), nil
	}
	lat, lng, speed := fix.Lat, fix.Lng, fix.Speed
	if est := p.filter.Estimate(); est != nil && common.IsFinite(est.Lat, est.Lng, est.Speed) {
		lat, lng, speed = est.Lat, est.Lng, est.Speed
	}
	return p.accept(fix, lat, lng, speed), nil
}

func (p *Provider) check(fix sensor.Fix) error {
	if !validFix(fix) {
		return fmt.Errorf("%w: lat=%v lng=%v accuracy=%v", ErrInvalidFix, fix.Lat, fix.Lng, fix.Accuracy)
	}
	if fix.Accuracy > p.config.AccuracyThreshold {
		return fmt.Errorf("%w: %.1f > %.1f", ErrInaccurate, fix.Accuracy, p.config.AccuracyThreshold)
	}
	if p.last.Time.IsZero() {
		return nil
	}
	span := fix.Time.Sub(p.last.Time)
	if span <= 0 {
		return fmt.Errorf("%w: out of order by %v", ErrInvalidFix, -span)
	}
	if span > p.config.ResetInterval {
		return nil
	}
	if v := geo.Distance(point(p.last), point(fix)) / span.Seconds(); v > p.config.TeleportSpeed {
		return fmt.Errorf("%w: %.1f m/s", ErrTeleport, v)
	}
	return nil
}

func (p *Provider) reset(fix sensor.Fix) error {
	filter, err := rkalman.NewGeoFilter(&rkalman.GeoProcessNoise{
		// Measurements are close enough together to ignore the earth's curvature.
		BaseLat:           fix.Lat,
		DistancePerSecond: p.config.DistancePerSecond,
		SpeedPerSecond:    p.config.SpeedPerSecond,
	})
	if err != nil {
		return fmt.Errorf("gnss filter: %w", err)
	}
	p.filter = filter
	return nil
}

func (p *Provider) accept(fix sensor.Fix, lat, lng, speed float64) location.Estimate {
	bearing := fix.Bearing
	if bearing == 0 && !p.last.Time.IsZero() && geo.Distance(point(p.last), point(fix)) > math.Max(minAccuracy, fix.Accuracy) {
		bearing = geo.Bearing(point(p.last), point(fix))
	}
	p.last = fix
	p.accepted++
	p.estimate = location.Estimate{
		Lat:        lat,
		Lng:        lng,
		Accuracy:   math.Max(minAccuracy, fix.Accuracy),
		Bearing:    common.WrapDegrees(bearing),
		Speed:      math.Max(0, speed),
		Source:     location.SourceGPS,
		Confidence: common.Clamp(1-fix.Accuracy/p.config.AccuracyThreshold, 0.1, 1),
		Time:       fix.Time,
	}
	return p.estimate
}
