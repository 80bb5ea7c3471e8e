package beacon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrUnknownBeacon = errors.New("unknown beacon")

// Beacon is a surveyed transmitter. Position is in the local frame,
// [east, north] meters.
type Beacon struct {
	ID       string
	Position orb.Point
	Floor    int
	// RSSIAt1m overrides the configured one-meter power when non-nil.
	RSSIAt1m *float64
}

// Registry is the static map of known beacons. It is read-only once built.
type Registry struct {
	beacons map[string]Beacon
	origin  *orb.Point
}

func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func NewRegistry(beacons ...Beacon) *Registry {
	r := &Registry{beacons: make(map[string]Beacon, len(beacons))}
	for _, b := range beacons {
		b.ID = NormalizeID(b.ID)
		r.beacons[b.ID] = b
	}
	return r
}

func (r *Registry) Lookup(id string) (Beacon, error) {
	if r == nil {
		return Beacon{}, fmt.Errorf("%w: %s", ErrUnknownBeacon, id)
	}
	b, ok := r.beacons[NormalizeID(id)]
	if !ok {
		return Beacon{}, fmt.Errorf("%w: %s", ErrUnknownBeacon, id)
	}
	return b, nil
}

// WithOrigin pins the registry's local frame to [lng, lat].
func (r *Registry) WithOrigin(origin orb.Point) *Registry {
	r.origin = &origin
	return r
}

// Origin is the [lng, lat] of the local frame's origin, if the survey has one.
// Without it, beacon coordinates are taken to share the indoor anchor's frame.
func (r *Registry) Origin() (orb.Point, bool) {
	if r == nil || r.origin == nil {
		return orb.Point{}, false
	}
	return *r.origin, true
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.beacons)
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.beacons))
	for id := range r.beacons {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadRegistryGeoJSON reads a FeatureCollection of Point features whose
// coordinates are local [east, north] meters. Properties: "id" (required),
// "floor" and "rssi_1m" (optional). A top-level "origin" member of
// [lng, lat] georeferences the frame.
func LoadRegistryGeoJSON(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("beacon registry: %w", err)
	}
	beacons := make([]Beacon, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("beacon registry: feature %d is not a point", i)
		}
		id := f.Properties.MustString("id", "")
		if id == "" {
			return nil, fmt.Errorf("beacon registry: feature %d has no id", i)
		}
		b := Beacon{
			ID:       id,
			Position: pt,
			Floor:    f.Properties.MustInt("floor", 0),
		}
		if _, ok := f.Properties["rssi_1m"]; ok {
			v := f.Properties.MustFloat64("rssi_1m", 0)
			b.RSSIAt1m = &v
		}
		beacons = append(beacons, b)
	}
	reg := NewRegistry(beacons...)
	if v, ok := fc.ExtraMembers["origin"]; ok {
		origin, err := parseOrigin(v)
		if err != nil {
			return nil, fmt.Errorf("beacon registry: %w", err)
		}
		reg.WithOrigin(origin)
	}
	return reg, nil
}

func parseOrigin(v interface{}) (orb.Point, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != 2 {
		return orb.Point{}, errors.New("origin must be [lng, lat]")
	}
	var pt orb.Point
	for i, c := range arr {
		f, ok := c.(float64)
		if !ok {
			return orb.Point{}, errors.New("origin must be [lng, lat]")
		}
		pt[i] = f
	}
	return pt, nil
}

// LoadRegistryFile is LoadRegistryGeoJSON on a file path.
func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadRegistryGeoJSON(f)
}
