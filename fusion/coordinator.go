/*
Package fusion runs the location engine for one device. The Coordinator
owns every estimator, decides from the environment which provider is
trusted, and emits one fused estimate per update.
*/
package fusion

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/geo/beacon"
	"github.com/rotblauer/catnav/geo/env"
	"github.com/rotblauer/catnav/geo/floor"
	"github.com/rotblauer/catnav/geo/gnss"
	"github.com/rotblauer/catnav/geo/orient"
	"github.com/rotblauer/catnav/geo/pdr"
	"github.com/rotblauer/catnav/metrics"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/types/environment"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

var (
	ErrStarted       = errors.New("coordinator already started")
	ErrUnknownRecord = errors.New("unknown record type")
)

type Coordinator struct {
	mu       sync.Mutex
	config   params.EngineConfig
	logger   *slog.Logger
	listener Listener
	store    SnapshotStore
	metrics  *metrics.Engine
	registry *beacon.Registry

	gnss       *gnss.Provider
	classifier *env.Classifier
	indoor     *indoor
	floors     *floor.Detector
	floor      *floor.Manager

	started      bool
	initialFloor int
	environment  environment.Environment
	signal       float64
	satellites   int
	hasSignal    bool
	frame        *LocalFrame
	last         location.Estimate

	unavailable map[sensor.Kind]bool

	// outbox holds listener calls made after the lock is released.
	outbox []func()
}

// NewCoordinator builds an engine. A nil listener discards outputs,
// a nil registry disables beacon ranging.
func NewCoordinator(config *params.EngineConfig, registry *beacon.Registry, listener Listener) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}
	if registry == nil {
		registry = beacon.NewRegistry()
	}
	c := &Coordinator{
		config:       *config,
		logger:       slog.With("d", "fusion"),
		listener:     listener,
		metrics:      metrics.NewEngine("catnav"),
		registry:     registry,
		initialFloor: config.Fusion.InitialFloor,
		environment:  environment.Outdoor,
		unavailable:  map[sensor.Kind]bool{},
	}
	var err error
	if c.gnss, err = gnss.NewProvider(config.GNSS); err != nil {
		return nil, err
	}
	if c.classifier, err = env.NewClassifier(config.Environment); err != nil {
		return nil, err
	}
	if c.indoor, err = newIndoor(config, registry); err != nil {
		return nil, err
	}
	if c.floors, err = floor.NewDetector(config.Floor); err != nil {
		return nil, err
	}
	c.floor = floor.NewManager()
	return c, nil
}

// do runs fn under the lock, then delivers whatever fn queued.
func (c *Coordinator) do(fn func()) {
	c.mu.Lock()
	fn()
	out := c.outbox
	c.outbox = nil
	c.mu.Unlock()
	for _, f := range out {
		f()
	}
}

func (c *Coordinator) queue(f func()) {
	c.outbox = append(c.outbox, f)
}

func (c *Coordinator) SetMetrics(m *metrics.Engine) {
	c.do(func() {
		c.metrics.Stop()
		c.metrics = m
	})
}

func (c *Coordinator) Metrics() *metrics.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Coordinator) SetSnapshotStore(s SnapshotStore) {
	c.do(func() { c.store = s })
}

// Restore resumes the floor and last estimate from a snapshot.
// It must be called before the first record.
func (c *Coordinator) Restore(s Snapshot) error {
	var err error
	c.do(func() {
		if c.started {
			err = ErrStarted
			return
		}
		c.initialFloor = s.Floor
		c.last = s.Last
	})
	return err
}

// Close saves a final snapshot, if started, and releases the metrics ticker.
func (c *Coordinator) Close() {
	c.do(func() {
		if c.started {
			c.saveSnapshot()
		}
		c.metrics.Stop()
	})
}

// Start begins tracking outdoors and reports the initial floor.
// Handlers call it implicitly with the first record's time.
func (c *Coordinator) Start(t time.Time) {
	c.do(func() { c.start(t) })
}

func (c *Coordinator) start(t time.Time) {
	if c.started {
		return
	}
	c.started = true
	c.gnss.Start()
	if change, ok := c.floor.Start(c.initialFloor, t); ok {
		c.queue(func() { c.listener.OnFloorChanged(change) })
	}
	c.logger.Info("Coordinator started", "floor", c.initialFloor, "beacons", c.registry.Len())
}

// SetConfig validates and applies a whole engine config.
// An invalid config leaves the current one in place.
func (c *Coordinator) SetConfig(config *params.EngineConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	var err error
	c.do(func() {
		errs := []error{
			c.gnss.SetConfig(config.GNSS),
			c.classifier.SetConfig(config.Environment),
			c.floors.SetConfig(config.Floor),
			c.indoor.setConfig(config),
		}
		for _, e := range errs {
			if e != nil {
				err = e
				return
			}
		}
		c.config = *config
	})
	return err
}

func (c *Coordinator) Config() params.EngineConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

func (c *Coordinator) Environment() environment.Environment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.environment
}

func (c *Coordinator) Floor() int {
	return c.floor.Floor()
}

// Last returns the last emitted (or restored) estimate.
func (c *Coordinator) Last() (location.Estimate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, !c.last.IsEmpty()
}

// Anchor returns the current indoor session's reference anchor.
func (c *Coordinator) Anchor() (location.Anchor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return location.Anchor{}, false
	}
	return c.frame.Anchor, true
}

// Heading returns the orientation estimate.
func (c *Coordinator) Heading() (orient.Heading, bool) {
	return c.indoor.heading.Heading()
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{
		Floor:       c.floor.Floor(),
		Environment: c.environment,
		Last:        c.last,
		Time:        c.last.Time,
	}
	if c.frame != nil {
		a := c.frame.Anchor
		s.Anchor = &a
	}
	return s
}

func (c *Coordinator) saveSnapshot() {
	if c.store == nil {
		return
	}
	snap, store, logger := c.snapshot(), c.store, c.logger
	c.queue(func() {
		if err := store.SaveSnapshot(snap); err != nil {
			logger.Warn("Failed to save snapshot", "error", err)
		}
	})
}

// Handle dispatches any decoded record.
func (c *Coordinator) Handle(rec sensor.Record) error {
	switch r := rec.(type) {
	case sensor.Sample:
		c.HandleSample(r)
	case sensor.Fix:
		c.HandleFix(r)
	case sensor.GNSSStatus:
		c.HandleGNSSStatus(r)
	case sensor.BLEScan:
		c.HandleBLEScan(r)
	case sensor.Unavailable:
		c.ReportSensorUnavailable(r)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownRecord, rec)
	}
	return nil
}

// HandleSample consumes an accelerometer, gyroscope, magnetometer or
// barometer reading.
func (c *Coordinator) HandleSample(s sensor.Sample) {
	c.do(func() {
		c.start(s.Time)
		c.metrics.Samples.Inc(1)
		switch s.Kind {
		case sensor.KindAccel:
			if c.unavailable[sensor.KindAccel] {
				return
			}
			c.indoor.heading.UpdateAccel(s.Vec3, s.Time)
			if ev, ok := c.indoor.steps.Update(s.Vec3, s.Time); ok {
				c.onStep(ev)
			}
		case sensor.KindGyro:
			c.indoor.heading.UpdateGyro(s.Vec3, s.Time)
		case sensor.KindMag:
			if c.unavailable[sensor.KindMag] {
				return
			}
			c.indoor.heading.UpdateMag(s.Vec3, s.Time)
		case sensor.KindPressure:
			c.onPressure(s.Value, s.Time)
		default:
			c.metrics.Ignored.Inc(1)
		}
	})
}

func (c *Coordinator) onStep(ev pdr.StepEvent) {
	if !c.indoor.running {
		return
	}
	h, ok := c.indoor.heading.Heading()
	if !ok {
		c.metrics.StepsUnoriented.Inc(1)
		c.logger.Debug("Step before heading calibration", "count", ev.Count)
		return
	}
	c.metrics.Steps.Inc(1)
	d := c.indoor.pdr.Step(ev, h.Azimuth)
	c.indoor.predict(ev.Time)
	if err := c.indoor.kf.Update(d.Position[0], d.Position[1], c.config.Position.StepMeasurementNoise); err != nil {
		c.metrics.FilterRejected.Inc(1)
		c.logger.Warn("Step update rejected", "error", err)
	}
	c.indoor.source = location.SourcePDR
	c.emitIndoor(ev.Time)
}

func (c *Coordinator) onPressure(p float64, t time.Time) {
	if c.unavailable[sensor.KindPressure] {
		return
	}
	ev, ok := c.floors.Update(p, t)
	if !ok {
		return
	}
	c.metrics.FloorEvents.Inc(1)
	change, ok := c.floor.Apply(ev)
	if !ok {
		return
	}
	c.queue(func() { c.listener.OnFloorChanged(change) })
	c.saveSnapshot()
}

// HandleFix consumes a raw satellite fix. Fixes are ignored while indoors.
func (c *Coordinator) HandleFix(f sensor.Fix) {
	c.do(func() {
		c.start(f.Time)
		if !c.gnss.Running() {
			c.metrics.Ignored.Inc(1)
			return
		}
		est, err := c.gnss.Observe(f)
		if err != nil {
			c.metrics.FixesRejected.Inc(1)
			return
		}
		c.metrics.Fixes.Inc(1)
		switch c.environment {
		case environment.Outdoor:
			c.emit(est)
		case environment.Transition:
			c.fixToFilter(est)
			c.emitBlend(f.Time)
		}
	})
}

// fixToFilter feeds a smoothed fix to the indoor filter as a position.
func (c *Coordinator) fixToFilter(est location.Estimate) {
	if c.frame == nil || !c.indoor.running {
		return
	}
	x, y, err := c.frame.ToRelative(est.Lat, est.Lng)
	if err != nil {
		c.logger.Debug("Fix outside indoor frame", "error", err)
		return
	}
	c.indoor.predict(est.Time)
	r := math.Max(est.Accuracy*est.Accuracy, c.config.Position.MinBeaconNoise)
	if err := c.indoor.kf.Update(x, y, r); err != nil {
		c.metrics.FilterRejected.Inc(1)
	}
}

// HandleGNSSStatus feeds satellite signal quality to the environment classifier.
func (c *Coordinator) HandleGNSSStatus(s sensor.GNSSStatus) {
	c.do(func() {
		c.start(s.Time)
		sig, sats := env.SignalQuality(s)
		c.signal, c.satellites, c.hasSignal = sig, sats, true
		if _, tr := c.classifier.Update(sig, sats, s.Time); tr != nil {
			c.transition(*tr)
		}
	})
}

func (c *Coordinator) transition(tr env.Transition) {
	c.metrics.Transitions.Inc(1)
	c.environment = tr.To
	switch {
	case tr.From == environment.Outdoor:
		c.startIndoor(tr.Time)
		if tr.To == environment.Indoor {
			c.gnss.Stop()
		}
	case tr.To == environment.Outdoor:
		c.indoor.stop()
		c.frame = nil
		if !c.gnss.Running() {
			c.gnss.Start()
		}
	case tr.To == environment.Transition:
		c.gnss.Start()
	case tr.To == environment.Indoor:
		c.gnss.Stop()
	}
	change := EnvironmentChange{
		Environment: tr.To,
		Previous:    tr.From,
		Confidence:  c.environmentConfidence(),
		Time:        tr.Time,
	}
	c.queue(func() { c.listener.OnEnvironmentChanged(change) })
	c.saveSnapshot()
}

// startIndoor anchors a new indoor session at the last satellite estimate.
func (c *Coordinator) startIndoor(t time.Time) {
	c.frame = nil
	last, ok := c.gnss.Last()
	if ok {
		frame, err := NewLocalFrame(location.Anchor{Lat: last.Lat, Lng: last.Lng, Time: last.Time},
			c.config.Fusion.MaxRelativeDistance)
		if err == nil {
			c.frame = &frame
		}
	}
	if c.frame == nil {
		c.logger.Warn("Indoor session without anchor, estimates withheld")
	}
	if c.unavailable[sensor.KindMag] && ok {
		c.indoor.heading.SeedHeading(last.Bearing)
	}
	c.indoor.start(t)
	c.logger.Info("Indoor session started", "anchored", c.frame != nil)
}

// HandleBLEScan ranges registered beacons while the indoor provider runs.
func (c *Coordinator) HandleBLEScan(s sensor.BLEScan) {
	c.do(func() {
		c.start(s.Time)
		if !c.indoor.running || c.unavailable[sensor.KindBLE] {
			c.metrics.Ignored.Inc(1)
			return
		}
		c.metrics.Scans.Inc(1)
		obs := beacon.OnFloor(c.indoor.beacons.Process(s), c.floor.Floor())
		if len(obs) == 0 {
			return
		}
		sol, err := c.indoor.solver.Solve(obs)
		if err != nil {
			return
		}
		pos, ok := c.beaconToFrame(sol.Position)
		if !ok {
			return
		}
		c.metrics.BeaconFixes.Inc(1)
		c.indoor.predict(s.Time)
		r := math.Max(sol.Accuracy*sol.Accuracy, c.config.Position.MinBeaconNoise)
		if err := c.indoor.kf.Update(pos[0], pos[1], r); err != nil {
			c.metrics.FilterRejected.Inc(1)
			c.logger.Warn("Beacon update rejected", "error", err)
		}
		c.indoor.source = location.SourceBeacon
		c.emitIndoor(s.Time)
	})
}

// beaconToFrame moves a georeferenced survey position into the anchor frame.
func (c *Coordinator) beaconToFrame(p orb.Point) (orb.Point, bool) {
	origin, ok := c.registry.Origin()
	if !ok {
		return p, true
	}
	if c.frame == nil {
		return p, false
	}
	x, y, err := c.frame.ToRelative(origin.Lat(), origin.Lon())
	if err != nil {
		c.logger.Debug("Beacon survey outside indoor frame", "error", err)
		return p, false
	}
	return orb.Point{p[0] + x, p[1] + y}, true
}

// ReportSensorUnavailable disables what depends on a missing sensor.
// Each sensor is reported to the listener once.
func (c *Coordinator) ReportSensorUnavailable(u sensor.Unavailable) {
	c.do(func() {
		if c.unavailable[u.Sensor] {
			return
		}
		c.unavailable[u.Sensor] = true
		c.metrics.SensorsLost.Inc(1)

		disabled := "nothing"
		switch u.Sensor {
		case sensor.KindPressure:
			disabled = "floor detection"
		case sensor.KindAccel:
			disabled = "step detection"
		case sensor.KindMag:
			disabled = "compass heading"
			bearing := 0.0
			if last, ok := c.gnss.Last(); ok {
				bearing = last.Bearing
			}
			c.indoor.heading.SeedHeading(bearing)
		case sensor.KindGyro:
			disabled = "gyro heading"
		case sensor.KindFix, sensor.KindGNSS:
			disabled = "satellite positioning"
		case sensor.KindBLE:
			disabled = "beacon ranging"
		}
		perr := ProviderError{Sensor: u.Sensor, Reason: u.Reason, Disabled: disabled, Time: u.Time}
		c.logger.Warn("Sensor unavailable", "sensor", u.Sensor, "reason", u.Reason, "disabled", disabled)
		c.queue(func() { c.listener.OnProviderError(perr) })
	})
}

// BlendWeight is the trust in satellites, in [0, 1], from the latest status.
func (c *Coordinator) BlendWeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blendWeight()
}

func (c *Coordinator) blendWeight() float64 {
	if !c.hasSignal {
		return 0
	}
	f := c.config.Fusion
	sig := common.Normalize(c.signal, f.BlendSignalMin, f.BlendSignalMax)
	sats := common.Normalize(float64(c.satellites), f.BlendSatelliteMin, f.BlendSatelliteMax)
	return f.BlendSignalWeight*sig + (1-f.BlendSignalWeight)*sats
}

func (c *Coordinator) environmentConfidence() float64 {
	w := c.blendWeight()
	switch c.environment {
	case environment.Outdoor:
		return w
	case environment.Indoor:
		return 1 - w
	}
	return 1 - math.Abs(2*w-1)
}

// accuracyConfidence maps an accuracy in meters onto [0.1, 1].
func (c *Coordinator) accuracyConfidence(accuracy float64) float64 {
	return common.Clamp(1-accuracy/c.config.GNSS.AccuracyThreshold, 0.1, 1)
}

// indoorEstimate renders the filter state in absolute coordinates.
func (c *Coordinator) indoorEstimate(t time.Time) (location.Estimate, bool) {
	if c.frame == nil || !c.indoor.running {
		return location.Estimate{}, false
	}
	x, y := c.indoor.kf.Position()
	lat, lng, err := c.frame.ToLatLng(x, y)
	if err != nil {
		c.logger.Warn("Indoor estimate outside frame", "error", err)
		return location.Estimate{}, false
	}
	vx, vy := c.indoor.kf.Velocity()
	accuracy := c.indoor.kf.PositionStdDev()
	est := location.Estimate{
		Lat:      lat,
		Lng:      lng,
		Accuracy: accuracy,
		Speed:    math.Hypot(vx, vy),
		Source:   c.indoor.source,
		Time:     t,
	}
	if h, ok := c.indoor.heading.Heading(); ok {
		est.Bearing = h.Azimuth
		est.Confidence = c.accuracyConfidence(accuracy) * h.Confidence
	} else {
		est.Bearing = common.WrapDegrees(math.Atan2(vx, vy) * 180 / math.Pi)
		est.Confidence = c.accuracyConfidence(accuracy) * c.config.Fusion.LostConfidenceScale
	}
	return est, true
}

func (c *Coordinator) emitIndoor(t time.Time) {
	if c.environment == environment.Transition {
		c.emitBlend(t)
		return
	}
	if est, ok := c.indoorEstimate(t); ok {
		c.emit(est)
	}
}

// Blend is the straight weighted average of a satellite and an indoor
// estimate, w being the satellite weight.
func Blend(gps, in location.Estimate, w float64) location.Estimate {
	mix := func(a, b float64) float64 { return w*a + (1-w)*b }
	t := gps.Time
	if in.Time.After(t) {
		t = in.Time
	}
	return location.Estimate{
		Lat:        mix(gps.Lat, in.Lat),
		Lng:        mix(gps.Lng, in.Lng),
		Accuracy:   mix(gps.Accuracy, in.Accuracy),
		Bearing:    mix(gps.Bearing, in.Bearing),
		Speed:      mix(gps.Speed, in.Speed),
		Confidence: mix(gps.Confidence, in.Confidence),
		Source:     location.SourceBlend,
		Time:       t,
	}
}

func (c *Coordinator) emitBlend(t time.Time) {
	gps, gok := c.gnss.Last()
	gok = gok && !c.gnss.Lost(t)
	in, iok := c.indoorEstimate(t)
	var est location.Estimate
	switch {
	case gok && iok:
		est = Blend(gps, in, c.blendWeight())
	case gok:
		est = gps
		est.Confidence *= c.config.Fusion.LostConfidenceScale
	case iok:
		est = in
		est.Confidence *= c.config.Fusion.LostConfidenceScale
	default:
		return
	}
	est.Time = t
	c.emit(est)
}

func (c *Coordinator) emit(est location.Estimate) {
	est.Environment = c.environment
	est.Floor = c.floor.Floor()
	c.last = est
	c.metrics.Estimates.Mark(1)
	c.queue(func() { c.listener.OnLocationUpdate(est) })
}
