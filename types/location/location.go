// Package location holds the engine's outputs: fused estimates and
// the anchor tying the indoor frame to the globe.
package location

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/types/environment"
)

type Source string

const (
	SourceGPS    Source = "gps"
	SourcePDR    Source = "pdr"
	SourceBeacon Source = "beacon"
	SourceBlend  Source = "blend"
)

// Estimate is an immutable fused location.
// Accuracy is meters, Bearing degrees clockwise from true north, Speed m/s.
type Estimate struct {
	Lat         float64                 `json:"lat"`
	Lng         float64                 `json:"lng"`
	Accuracy    float64                 `json:"accuracy"`
	Bearing     float64                 `json:"bearing"`
	Speed       float64                 `json:"speed"`
	Environment environment.Environment `json:"environment"`
	Source      Source                  `json:"source"`
	Confidence  float64                 `json:"confidence"`
	Floor       int                     `json:"floor"`
	Time        time.Time               `json:"time"`
}

func (e Estimate) IsEmpty() bool {
	return e.Time.IsZero() && e.Lat == 0 && e.Lng == 0
}

// Point is [lng, lat], as orb expects.
func (e Estimate) Point() orb.Point {
	return orb.Point{e.Lng, e.Lat}
}

// Feature renders e as a GeoJSON point feature.
func (e Estimate) Feature() *geojson.Feature {
	f := geojson.NewFeature(orb.Point{
		common.DecimalToFixed(e.Lng, 7),
		common.DecimalToFixed(e.Lat, 7),
	})
	f.Properties["Time"] = e.Time.UTC().Format(time.RFC3339Nano)
	f.Properties["Accuracy"] = common.DecimalToFixed(e.Accuracy, 2)
	f.Properties["Bearing"] = common.DecimalToFixed(e.Bearing, 1)
	f.Properties["Speed"] = common.DecimalToFixed(e.Speed, 2)
	f.Properties["Environment"] = e.Environment.String()
	f.Properties["Source"] = string(e.Source)
	f.Properties["Confidence"] = common.DecimalToFixed(e.Confidence, 3)
	f.Properties["Floor"] = e.Floor
	return f
}

var ErrNotPoint = errors.New("feature geometry is not a point")

// EstimateFromFeature is the inverse of Estimate.Feature.
func EstimateFromFeature(f *geojson.Feature) (Estimate, error) {
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return Estimate{}, ErrNotPoint
	}
	t, err := time.Parse(time.RFC3339Nano, f.Properties.MustString("Time", ""))
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Lat:         pt.Lat(),
		Lng:         pt.Lon(),
		Accuracy:    f.Properties.MustFloat64("Accuracy", 0),
		Bearing:     f.Properties.MustFloat64("Bearing", 0),
		Speed:       f.Properties.MustFloat64("Speed", 0),
		Environment: environment.Parse(f.Properties.MustString("Environment", "")),
		Source:      Source(f.Properties.MustString("Source", "")),
		Confidence:  f.Properties.MustFloat64("Confidence", 0),
		Floor:       f.Properties.MustInt("Floor", 0),
		Time:        t,
	}, nil
}

// Anchor pins the local indoor frame's origin to the last trusted fix.
type Anchor struct {
	Lat  float64   `json:"lat"`
	Lng  float64   `json:"lng"`
	Time time.Time `json:"time"`
}

func (a Anchor) Point() orb.Point {
	return orb.Point{a.Lng, a.Lat}
}
