package pdr

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Displacement is the result of integrating one step.
// DX is east and DY north, in meters.
type Displacement struct {
	DX, DY        float64
	Position      orb.Point
	TotalDistance float64
	Steps         int
}

// Integrator accumulates steps into a relative east/north position.
// It knows nothing about absolute coordinates.
type Integrator struct {
	mu    sync.Mutex
	pos   orb.Point
	total float64
	steps int
}

func NewIntegrator() *Integrator {
	return &Integrator{}
}

// Step advances the position by ev.Length along headingDeg
// (degrees clockwise from north).
func (in *Integrator) Step(ev StepEvent, headingDeg float64) Displacement {
	in.mu.Lock()
	defer in.mu.Unlock()

	h := headingDeg * math.Pi / 180
	dx := ev.Length * math.Sin(h)
	dy := ev.Length * math.Cos(h)
	in.pos = orb.Point{in.pos[0] + dx, in.pos[1] + dy}
	in.total += ev.Length
	in.steps++
	return Displacement{
		DX:            dx,
		DY:            dy,
		Position:      in.pos,
		TotalDistance: in.total,
		Steps:         in.steps,
	}
}

func (in *Integrator) Position() orb.Point {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pos
}

func (in *Integrator) TotalDistance() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.total
}

// Straightline is the distance from the origin, never more than TotalDistance.
func (in *Integrator) Straightline() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return planar.Distance(orb.Point{}, in.pos)
}

// Reset zeroes the frame.
func (in *Integrator) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.pos = orb.Point{}
	in.total = 0
	in.steps = 0
}
