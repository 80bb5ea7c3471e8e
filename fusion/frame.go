package fusion

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/types/location"
)

var (
	ErrNoAnchor   = errors.New("no reference anchor")
	ErrOutOfFrame = errors.New("outside local frame")
)

// LocalFrame maps [east, north] meters around an anchor to lat/lng with an
// equirectangular approximation, which only holds near the anchor.
type LocalFrame struct {
	Anchor      location.Anchor
	MaxDistance float64
	cosLat      float64
}

func NewLocalFrame(anchor location.Anchor, maxDistance float64) (LocalFrame, error) {
	if !s2.LatLngFromDegrees(anchor.Lat, anchor.Lng).IsValid() {
		return LocalFrame{}, fmt.Errorf("%w: invalid anchor %v,%v", ErrNoAnchor, anchor.Lat, anchor.Lng)
	}
	c := math.Cos(anchor.Lat * math.Pi / 180)
	if c < 1e-6 {
		return LocalFrame{}, fmt.Errorf("%w: anchor at a pole", ErrOutOfFrame)
	}
	return LocalFrame{Anchor: anchor, MaxDistance: maxDistance, cosLat: c}, nil
}

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// ToLatLng converts a local offset to absolute coordinates.
func (f LocalFrame) ToLatLng(x, y float64) (lat, lng float64, err error) {
	if !common.IsFinite(x, y) || math.Hypot(x, y) > f.MaxDistance {
		return 0, 0, fmt.Errorf("%w: offset %.1f,%.1f", ErrOutOfFrame, x, y)
	}
	lat = f.Anchor.Lat + toDegrees(y/common.EarthRadius)
	lng = f.Anchor.Lng + toDegrees(x/(common.EarthRadius*f.cosLat))
	return lat, lng, nil
}

// ToRelative is the inverse of ToLatLng.
func (f LocalFrame) ToRelative(lat, lng float64) (x, y float64, err error) {
	ll := s2.LatLngFromDegrees(lat, lng)
	if !ll.IsValid() {
		return 0, 0, fmt.Errorf("%w: invalid %v,%v", ErrOutOfFrame, lat, lng)
	}
	anchor := s2.LatLngFromDegrees(f.Anchor.Lat, f.Anchor.Lng)
	if d := ll.Distance(anchor).Radians() * common.EarthRadius; d > f.MaxDistance {
		return 0, 0, fmt.Errorf("%w: %.0f m from anchor", ErrOutOfFrame, d)
	}
	y = (lat - f.Anchor.Lat) * math.Pi / 180 * common.EarthRadius
	x = (lng - f.Anchor.Lng) * math.Pi / 180 * common.EarthRadius * f.cosLat
	return x, y, nil
}
