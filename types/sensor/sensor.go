// Package sensor defines the raw inputs the engine consumes: inertial,
// magnetic and barometric samples, GNSS fixes and status, and BLE scans.
package sensor

import (
	"math"
	"time"
)

type Kind string

const (
	KindAccel       Kind = "accel"
	KindGyro        Kind = "gyro"
	KindMag         Kind = "mag"
	KindPressure    Kind = "pressure"
	KindFix         Kind = "fix"
	KindGNSS        Kind = "gnss"
	KindBLE         Kind = "ble"
	KindUnavailable Kind = "unavailable"
)

// IsSample is true for kinds carried by a Sample.
func (k Kind) IsSample() bool {
	switch k {
	case KindAccel, KindGyro, KindMag, KindPressure:
		return true
	}
	return false
}

// Record is anything the engine can ingest.
type Record interface {
	RecordKind() Kind
	RecordTime() time.Time
}

// Vec3 is a three-axis reading in the device frame:
// x right, y toward the top edge, z out of the screen.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sample is one reading from a motion or environment sensor.
// Accel is m/s^2, gyro rad/s, mag µT; pressure uses Value in hPa.
type Sample struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
	Vec3
	Value float64 `json:"value,omitempty"`
}

func (s Sample) RecordKind() Kind      { return s.Kind }
func (s Sample) RecordTime() time.Time { return s.Time }

// Fix is a single GNSS position report.
type Fix struct {
	Time     time.Time `json:"time"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy"`
	Altitude float64   `json:"altitude,omitempty"`
	Bearing  float64   `json:"bearing,omitempty"`
	Speed    float64   `json:"speed,omitempty"`
}

func (f Fix) RecordKind() Kind      { return KindFix }
func (f Fix) RecordTime() time.Time { return f.Time }

type Satellite struct {
	SVID      int     `json:"svid"`
	Cn0DbHz   float64 `json:"cn0"`
	UsedInFix bool    `json:"used"`
}

// GNSSStatus is a snapshot of satellites in view.
type GNSSStatus struct {
	Time       time.Time   `json:"time"`
	Satellites []Satellite `json:"satellites"`
}

func (g GNSSStatus) RecordKind() Kind      { return KindGNSS }
func (g GNSSStatus) RecordTime() time.Time { return g.Time }

// UsedCount is the number of satellites used in the last fix.
func (g GNSSStatus) UsedCount() int {
	n := 0
	for _, s := range g.Satellites {
		if s.UsedInFix {
			n++
		}
	}
	return n
}

type BLEResult struct {
	ID   string  `json:"id"`
	RSSI float64 `json:"rssi"`
}

// BLEScan is one batch of beacon advertisements.
type BLEScan struct {
	Time    time.Time   `json:"time"`
	Results []BLEResult `json:"results"`
}

func (b BLEScan) RecordKind() Kind      { return KindBLE }
func (b BLEScan) RecordTime() time.Time { return b.Time }

type UnavailableReason string

const (
	ReasonMissing          UnavailableReason = "missing"
	ReasonPermissionDenied UnavailableReason = "permission"
)

// Unavailable reports that a sensor (or radio) cannot deliver data.
type Unavailable struct {
	Time   time.Time         `json:"time"`
	Sensor Kind              `json:"sensor"`
	Reason UnavailableReason `json:"reason"`
}

func (u Unavailable) RecordKind() Kind      { return KindUnavailable }
func (u Unavailable) RecordTime() time.Time { return u.Time }
