/*
Package beacon turns BLE advertisements from surveyed beacons into
position fixes: RSSI is clamped and Kalman-smoothed per beacon, converted
to range with a log-distance path-loss model, and trilaterated.
*/
package beacon

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/geo/noise"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/sensor"
)

// Observation is the current filtered view of one beacon.
type Observation struct {
	ID           string
	Position     orb.Point
	Floor        int
	FilteredRSSI float64
	Distance     float64
	LastSeen     time.Time
}

type track struct {
	beacon   Beacon
	kalman   *noise.Kalman1D
	rssi     float64
	distance float64
	lastSeen time.Time
}

type SignalProcessor struct {
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	config  params.BeaconConfig
	tracks  map[string]*track
	unknown int
}

func NewSignalProcessor(config params.BeaconConfig, registry *Registry) (*SignalProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SignalProcessor{
		registry: registry,
		logger:   slog.With("d", "beacon"),
		config:   config,
		tracks:   map[string]*track{},
	}, nil
}

func (p *SignalProcessor) SetConfig(config params.BeaconConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = config
	return nil
}

// Distance converts an RSSI to meters with the log-distance path-loss model.
func Distance(config params.BeaconConfig, rssi, rssiAt1m float64) float64 {
	d := math.Pow(10, (rssiAt1m-rssi)/(10*config.PathLossExponent)) * config.CalibrationFactor
	return math.Max(d, config.MinDistance)
}

// ClampRSSI bounds a reading to the configured range.
func ClampRSSI(config params.BeaconConfig, rssi float64) float64 {
	return common.Clamp(rssi, config.RSSIMin, config.RSSIMax)
}

// Process folds a scan into the per-beacon filters, prunes stale beacons,
// and returns the active observations nearest first.
func (p *SignalProcessor) Process(scan sensor.BLEScan) []Observation {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, res := range scan.Results {
		if !common.IsFinite(res.RSSI) {
			continue
		}
		id := NormalizeID(res.ID)
		tr, ok := p.tracks[id]
		if !ok {
			b, err := p.registry.Lookup(id)
			if err != nil {
				p.unknown++
				p.logger.Debug("Ignoring beacon", "error", err)
				continue
			}
			tr = &track{beacon: b, kalman: noise.NewKalman1D(p.config.ProcessNoise, p.config.MeasurementNoise)}
			p.tracks[id] = tr
		}
		raw := ClampRSSI(p.config, res.RSSI)
		tr.rssi = ClampRSSI(p.config, tr.kalman.Update(raw))
		at1m := p.config.RSSIAt1m
		if tr.beacon.RSSIAt1m != nil {
			at1m = *tr.beacon.RSSIAt1m
		}
		tr.distance = Distance(p.config, tr.rssi, at1m)
		tr.lastSeen = scan.Time
	}
	p.prune(scan.Time)
	return p.observations()
}

// Active prunes against now and returns what remains.
func (p *SignalProcessor) Active(now time.Time) []Observation {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prune(now)
	return p.observations()
}

func (p *SignalProcessor) prune(now time.Time) {
	for id, tr := range p.tracks {
		if now.Sub(tr.lastSeen) > p.config.SignalTimeout {
			delete(p.tracks, id)
		}
	}
}

func (p *SignalProcessor) observations() []Observation {
	out := make([]Observation, 0, len(p.tracks))
	for id, tr := range p.tracks {
		out = append(out, Observation{
			ID:           id,
			Position:     tr.beacon.Position,
			Floor:        tr.beacon.Floor,
			FilteredRSSI: tr.rssi,
			Distance:     tr.distance,
			LastSeen:     tr.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Unknown counts advertisements from beacons missing in the registry.
func (p *SignalProcessor) Unknown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unknown
}

func (p *SignalProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = map[string]*track{}
	p.unknown = 0
}

// OnFloor keeps observations on floor, unless none are, in which case
// all are returned.
func OnFloor(obs []Observation, floor int) []Observation {
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.Floor == floor {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return obs
	}
	return out
}
