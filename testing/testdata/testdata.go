/*
Package testdata generates synthetic sensor traces for tests: walking
accelerometer signals, compass fields at a heading, barometric ramps,
beacon scans from known geometry, and GNSS status sequences.
*/
package testdata

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/rotblauer/catnav/catz"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/types/sensor"
)

// basepath is the root directory of this package.
var basepath string

func init() {
	_, currentFile, _, _ := runtime.Caller(0)
	basepath = filepath.Dir(currentFile)
}

// Path returns the absolute path of rel relative to this testdata/ directory.
// If rel is already absolute, it is returned unmodified.
func Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(basepath, rel)
}

// T0 is an arbitrary fixed start time for traces.
var T0 = time.Date(2024, 12, 20, 12, 0, 0, 0, time.UTC)

// Field strengths (µT) for a mid-latitude Earth field.
const (
	FieldHorizontal = 20.0
	FieldVertical   = 40.0
)

func step(sampleRate float64) time.Duration {
	return time.Duration(float64(time.Second) / sampleRate)
}

// FlatAccel is a device lying face up, at rest.
func FlatAccel(t time.Time) sensor.Sample {
	return sensor.Sample{Kind: sensor.KindAccel, Time: t, Vec3: sensor.Vec3{Z: common.Gravity}}
}

// WalkAccel simulates a flat-held phone while walking: half a second of
// rest, steps sinusoidal bounces of amplitude (m/s^2) at cadence (Hz),
// then a second of rest.
func WalkAccel(start time.Time, steps int, cadence, sampleRate, amplitude float64) []sensor.Sample {
	dt := step(sampleRate)
	out := []sensor.Sample{}
	t := start
	for i := 0; i < int(sampleRate/2); i++ {
		out = append(out, FlatAccel(t))
		t = t.Add(dt)
	}
	n := int(math.Round(float64(steps) / cadence * sampleRate))
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * cadence * float64(i) / sampleRate
		out = append(out, sensor.Sample{
			Kind: sensor.KindAccel,
			Time: t,
			Vec3: sensor.Vec3{Z: common.Gravity + amplitude*math.Sin(phase)},
		})
		t = t.Add(dt)
	}
	for i := 0; i < int(sampleRate); i++ {
		out = append(out, FlatAccel(t))
		t = t.Add(dt)
	}
	return out
}

// MagField is the magnetometer reading of a flat device whose top edge
// points at headingDeg (clockwise from magnetic north).
func MagField(headingDeg, scale float64) sensor.Vec3 {
	h := headingDeg * math.Pi / 180
	return sensor.Vec3{
		X: -FieldHorizontal * math.Sin(h) * scale,
		Y: FieldHorizontal * math.Cos(h) * scale,
		Z: -FieldVertical * scale,
	}
}

// Compass returns n flat accel+mag sample pairs at headingDeg.
func Compass(start time.Time, n int, headingDeg, sampleRate float64) []sensor.Sample {
	dt := step(sampleRate)
	out := make([]sensor.Sample, 0, 2*n)
	for i := 0; i < n; i++ {
		t := start.Add(time.Duration(i) * dt)
		out = append(out, FlatAccel(t))
		out = append(out, sensor.Sample{Kind: sensor.KindMag, Time: t, Vec3: MagField(headingDeg, 1)})
	}
	return out
}

// PressureRamp holds p0 for lead, ramps linearly by delta (hPa) over ramp,
// then holds for tail.
func PressureRamp(start time.Time, p0, delta float64, lead, ramp, tail time.Duration, sampleRate float64) []sensor.Sample {
	dt := step(sampleRate)
	out := []sensor.Sample{}
	end := lead + ramp + tail
	for el := time.Duration(0); el <= end; el += dt {
		p := p0
		switch {
		case el <= lead:
		case el < lead+ramp:
			p = p0 + delta*float64(el-lead)/float64(ramp)
		default:
			p = p0 + delta
		}
		out = append(out, sensor.Sample{Kind: sensor.KindPressure, Time: start.Add(el), Value: p})
	}
	return out
}

// HeightToPressure is the pressure delta (hPa) for climbing meters near p0.
func HeightToPressure(p0, meters float64) float64 {
	return p0*math.Pow(1-meters/44330, 5.255) - p0
}

// Beacon is a fixture transmitter at a local position.
type Beacon struct {
	ID   string
	X, Y float64
}

// RSSIAt is the noiseless log-distance reading at distance d.
func RSSIAt(d, rssiAt1m, n float64) float64 {
	return rssiAt1m - 10*n*math.Log10(math.Max(d, 1e-3))
}

// Scan is a noiseless BLE scan heard at (x, y).
func Scan(t time.Time, x, y, rssiAt1m, n float64, beacons ...Beacon) sensor.BLEScan {
	s := sensor.BLEScan{Time: t}
	for _, b := range beacons {
		d := math.Hypot(b.X-x, b.Y-y)
		s.Results = append(s.Results, sensor.BLEResult{ID: b.ID, RSSI: RSSIAt(d, rssiAt1m, n)})
	}
	return s
}

// Status is a GNSS status with sats used satellites at cn0 dB-Hz.
func Status(t time.Time, sats int, cn0 float64) sensor.GNSSStatus {
	s := sensor.GNSSStatus{Time: t}
	for i := 0; i < sats; i++ {
		s.Satellites = append(s.Satellites, sensor.Satellite{SVID: i + 1, Cn0DbHz: cn0, UsedInFix: true})
	}
	return s
}

// Merge sorts records from several traces by time, stably.
func Merge(traces ...[]sensor.Record) []sensor.Record {
	out := []sensor.Record{}
	for _, tr := range traces {
		out = append(out, tr...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordTime().Before(out[j].RecordTime())
	})
	return out
}

// Records converts samples into records.
func Records(samples []sensor.Sample) []sensor.Record {
	out := make([]sensor.Record, len(samples))
	for i, s := range samples {
		out[i] = s
	}
	return out
}

// WriteRecordsGZ writes records as gzipped NDJSON to a temp file and returns its path.
func WriteRecordsGZ(dir string, recs []sensor.Record) (string, error) {
	path := filepath.Join(dir, "records.ndjson.gz")
	w, err := catz.NewGZFileWriter(path, catz.DefaultGZFileWriterConfig())
	if err != nil {
		return "", err
	}
	for _, r := range recs {
		b, err := sensor.EncodeRecord(r)
		if err != nil {
			w.MaybeClose()
			return "", err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			w.MaybeClose()
			return "", err
		}
	}
	return path, w.Close()
}

// TempDir is a fresh directory under the OS temp dir.
func TempDir(prefix string) string {
	d, err := os.MkdirTemp(os.TempDir(), prefix)
	if err != nil {
		panic(err)
	}
	return d
}
