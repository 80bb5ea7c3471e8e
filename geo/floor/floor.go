/*
Package floor detects vertical movement between floors from barometric
pressure and keeps track of the current floor.
*/
package floor

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
)

type Type int

const (
	TypeStairs Type = iota
	TypeElevator
)

func (t Type) String() string {
	switch t {
	case TypeStairs:
		return "STAIRS"
	case TypeElevator:
		return "ELEVATOR"
	}
	return "UNKNOWN"
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Event is a completed vertical transition.
type Event struct {
	Type Type
	// FloorDelta is positive going up.
	FloorDelta  int
	HeightDelta float64
	Duration    time.Duration
	// Speed is the mean vertical speed in m/s.
	Speed      float64
	Confidence float64
	Start, End time.Time
}

type State int

const (
	StateStable State = iota
	StateTransitioning
)

func (s State) String() string {
	if s == StateTransitioning {
		return "TRANSITIONING"
	}
	return "STABLE"
}

// HeightDelta is the barometric height gained going from p1 to p2 (hPa).
func HeightDelta(p1, p2 float64) float64 {
	return 44330 * (1 - math.Pow(p2/p1, 1/5.255))
}

type Detector struct {
	mu     sync.Mutex
	config params.FloorDetectorConfig
	logger *slog.Logger

	ema     float64
	emaInit bool
	window  *common.RingBuffer[float64]
	prevAt  time.Time
	prev    float64 // smoothed
	ready   bool

	state    State
	baseline float64
	lastNear time.Time
	nearRate float64

	start         time.Time
	startPressure float64
	maxAbs        float64
	maxRate       float64
	lastProgress  time.Time
}

func NewDetector(config params.FloorDetectorConfig) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		config: config,
		logger: slog.With("d", "floor"),
		window: common.NewRingBuffer[float64](config.WindowSize),
	}, nil
}

func (d *Detector) SetConfig(config params.FloorDetectorConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resize := config.WindowSize != d.config.WindowSize
	d.config = config
	if resize {
		d.reset()
	}
	return nil
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Detector) reset() {
	d.ema, d.emaInit = 0, false
	d.window = common.NewRingBuffer[float64](d.config.WindowSize)
	d.prevAt, d.prev, d.ready = time.Time{}, 0, false
	d.state = StateStable
	d.baseline, d.lastNear, d.nearRate = 0, time.Time{}, 0
	d.start, d.startPressure = time.Time{}, 0
	d.maxAbs, d.maxRate, d.lastProgress = 0, 0, time.Time{}
}

// Update consumes one pressure reading (hPa) and returns a floor transition
// when one completes with enough confidence.
func (d *Detector) Update(pressure float64, t time.Time) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !common.IsFinite(pressure) || pressure <= 0 {
		return Event{}, false
	}
	if !d.prevAt.IsZero() && !t.After(d.prevAt) {
		return Event{}, false
	}

	if !d.emaInit {
		d.ema, d.emaInit = pressure, true
	} else {
		d.ema += d.config.Alpha * (pressure - d.ema)
	}
	d.window.Add(d.ema)
	if !d.window.Full() {
		d.prevAt = t
		return Event{}, false
	}
	values := stats.Float64Data(d.window.Get())
	smoothed, _ := values.Mean()

	if !d.ready {
		d.ready = true
		d.baseline = smoothed
		d.lastNear = t
		d.prev, d.prevAt = smoothed, t
		return Event{}, false
	}
	rate := math.Abs(smoothed-d.prev) / t.Sub(d.prevAt).Seconds()
	d.prev, d.prevAt = smoothed, t

	switch d.state {
	case StateStable:
		return d.stable(smoothed, rate, t)
	default:
		variance, _ := values.PopulationVariance()
		return d.transitioning(smoothed, rate, variance, t)
	}
}

func (d *Detector) stable(smoothed, rate float64, t time.Time) (Event, bool) {
	delta := smoothed - d.baseline
	if math.Abs(delta) < d.config.StairsThreshold/4 {
		d.lastNear = t
		d.nearRate = 0
	} else {
		d.nearRate = math.Max(d.nearRate, rate)
	}
	if math.Abs(delta) <= d.config.StairsThreshold {
		d.baseline += d.config.BaselineAlpha * delta
		return Event{}, false
	}
	d.state = StateTransitioning
	d.start = d.lastNear
	d.startPressure = d.baseline
	d.maxAbs = math.Abs(delta)
	d.maxRate = d.nearRate
	d.lastProgress = t
	d.logger.Debug("Transition started", "delta", delta, "baseline", d.baseline)
	return Event{}, false
}

func (d *Detector) transitioning(smoothed, rate, variance float64, t time.Time) (Event, bool) {
	cumulative := smoothed - d.startPressure
	d.maxRate = math.Max(d.maxRate, rate)
	if math.Abs(cumulative) > d.maxAbs+d.config.ProgressEpsilon {
		d.maxAbs = math.Abs(cumulative)
		d.lastProgress = t
	}

	if variance < d.config.StableVariance {
		d.settle(smoothed, t)
		if math.Abs(cumulative) < d.config.ElevatorThreshold {
			d.logger.Debug("Transition cancelled", "cumulative", cumulative)
			return Event{}, false
		}
		ev, ok := d.event(smoothed, t)
		if !ok {
			d.logger.Debug("Transition discarded", "floors", ev.FloorDelta, "confidence", ev.Confidence)
			return Event{}, false
		}
		d.logger.Info("Floor transition", "type", ev.Type, "floors", ev.FloorDelta,
			"duration", ev.Duration.Round(time.Millisecond), "confidence", common.DecimalToFixed(ev.Confidence, 2))
		return ev, true
	}
	if t.Sub(d.lastProgress) > d.config.Timeout {
		d.logger.Debug("Transition timed out", "cumulative", cumulative)
		d.settle(smoothed, t)
	}
	return Event{}, false
}

func (d *Detector) settle(smoothed float64, t time.Time) {
	d.state = StateStable
	d.baseline = smoothed
	d.lastNear = t
	d.nearRate = 0
}

func (d *Detector) event(end float64, t time.Time) (Event, bool) {
	c := d.config
	ev := Event{
		Start:       d.start,
		End:         t,
		Duration:    t.Sub(d.start),
		HeightDelta: HeightDelta(d.startPressure, end),
		Type:        TypeStairs,
	}
	ev.FloorDelta = common.Round(ev.HeightDelta / c.FloorHeight)
	if d.maxRate > c.ElevatorRate {
		ev.Type = TypeElevator
	}
	moving := math.Max((ev.Duration - c.SettleTime).Seconds(), 1)
	ev.Speed = math.Abs(ev.HeightDelta) / moving

	expectedSpeed := c.StairsSpeed
	if ev.Type == TypeElevator {
		expectedSpeed = c.ElevatorSpeed
	}
	typeScore := 0.5 + 0.5*common.Clamp(math.Abs(d.maxRate-c.ElevatorRate)/c.ElevatorRate, 0, 1)
	speedScore := ratioScore(ev.Speed, expectedSpeed)
	expectedDuration := float64(abs(ev.FloorDelta))*c.FloorHeight/expectedSpeed + c.SettleTime.Seconds()
	durationScore := ratioScore(ev.Duration.Seconds(), expectedDuration)
	ev.Confidence = (typeScore + speedScore + durationScore) / 3

	return ev, ev.FloorDelta != 0 && ev.Confidence > c.MinConfidence
}

// ratioScore is 1 when a == b and falls toward 0 as they diverge.
func ratioScore(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return math.Min(a/b, b/a)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
