package beacon

import (
	"errors"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotblauer/catnav/params"
)

var ErrNoBeacons = errors.New("no active beacons")

type Method string

const (
	MethodNearest       Method = "nearest"
	MethodCentroid      Method = "centroid"
	MethodTrilateration Method = "trilateration"
)

type Solution struct {
	Position orb.Point
	// Accuracy is the RMS range residual in meters.
	Accuracy      float64
	Method        Method
	Beacons       int
	Intersections int
	Iterations    int
}

// minResidual keeps a perfect intersection's weight finite.
const minResidual = 1e-9

type Solver struct {
	mu     sync.Mutex
	config params.TrilaterationConfig
}

func NewSolver(config params.TrilaterationConfig) (*Solver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Solver{config: config}, nil
}

func (s *Solver) SetConfig(config params.TrilaterationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	return nil
}

// Solve estimates a position from ranged beacons.
// Fewer than MinBeacons yields an inverse-square weighted centroid.
func (s *Solver) Solve(obs []Observation) (Solution, error) {
	s.mu.Lock()
	config := s.config
	s.mu.Unlock()

	if len(obs) == 0 {
		return Solution{}, ErrNoBeacons
	}
	if len(obs) < config.MinBeacons {
		p := centroid(obs)
		return Solution{Position: p, Accuracy: rmsResidual(p, obs), Method: MethodCentroid, Beacons: len(obs)}, nil
	}

	var sum orb.Point
	var total float64
	n := 0
	for i := 0; i < len(obs); i++ {
		for j := i + 1; j < len(obs); j++ {
			for _, pt := range intersect(obs[i], obs[j]) {
				n++
				w := math.Pow(1/math.Max(totalResidual(pt, obs), minResidual), config.WeightPower)
				if math.IsInf(w, 0) || math.IsNaN(w) {
					continue
				}
				sum[0] += w * pt[0]
				sum[1] += w * pt[1]
				total += w
			}
		}
	}
	if total == 0 {
		nearest := obs[0]
		for _, o := range obs[1:] {
			if o.Distance < nearest.Distance {
				nearest = o
			}
		}
		return Solution{
			Position:      nearest.Position,
			Accuracy:      nearest.Distance,
			Method:        MethodNearest,
			Beacons:       len(obs),
			Intersections: n,
		}, nil
	}

	p := orb.Point{sum[0] / total, sum[1] / total}
	sol := Solution{
		Position:      p,
		Accuracy:      rmsResidual(p, obs),
		Method:        MethodTrilateration,
		Beacons:       len(obs),
		Intersections: n,
	}
	if config.Refine {
		if rp, iters := refine(p, obs, config); rmsResidual(rp, obs) <= sol.Accuracy {
			sol.Position = rp
			sol.Accuracy = rmsResidual(rp, obs)
			sol.Iterations = iters
		}
	}
	return sol, nil
}

func centroid(obs []Observation) orb.Point {
	var sum orb.Point
	var total float64
	for _, o := range obs {
		w := 1 / (o.Distance * o.Distance)
		sum[0] += w * o.Position[0]
		sum[1] += w * o.Position[1]
		total += w
	}
	return orb.Point{sum[0] / total, sum[1] / total}
}

// intersect returns the 0, 1 or 2 points where the range circles of a and b meet.
func intersect(a, b Observation) []orb.Point {
	d := planar.Distance(a.Position, b.Position)
	ra, rb := a.Distance, b.Distance
	if d == 0 || d > ra+rb || d < math.Abs(ra-rb) {
		return nil
	}
	along := (ra*ra - rb*rb + d*d) / (2 * d)
	h := math.Sqrt(math.Max(ra*ra-along*along, 0))
	ux := (b.Position[0] - a.Position[0]) / d
	uy := (b.Position[1] - a.Position[1]) / d
	mx := a.Position[0] + along*ux
	my := a.Position[1] + along*uy
	if h == 0 {
		return []orb.Point{{mx, my}}
	}
	return []orb.Point{
		{mx - h*uy, my + h*ux},
		{mx + h*uy, my - h*ux},
	}
}

func totalResidual(p orb.Point, obs []Observation) float64 {
	var sum float64
	for _, o := range obs {
		sum += math.Abs(planar.Distance(p, o.Position) - o.Distance)
	}
	return sum
}

func rmsResidual(p orb.Point, obs []Observation) float64 {
	var sum float64
	for _, o := range obs {
		r := planar.Distance(p, o.Position) - o.Distance
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(obs)))
}

// refine runs Gauss-Newton on the squared range residuals from p.
func refine(p orb.Point, obs []Observation, config params.TrilaterationConfig) (orb.Point, int) {
	iters := 0
	for iters < config.MaxIterations {
		iters++
		var a00, a01, a11, g0, g1 float64
		for _, o := range obs {
			dx := p[0] - o.Position[0]
			dy := p[1] - o.Position[1]
			dist := math.Hypot(dx, dy)
			if dist < minResidual {
				continue
			}
			jx, jy := dx/dist, dy/dist
			r := dist - o.Distance
			a00 += jx * jx
			a01 += jx * jy
			a11 += jy * jy
			g0 += jx * r
			g1 += jy * r
		}
		det := a00*a11 - a01*a01
		if math.Abs(det) < 1e-12 {
			break
		}
		dx := -(a11*g0 - a01*g1) / det
		dy := -(-a01*g0 + a00*g1) / det
		p = orb.Point{p[0] + dx, p[1] + dy}
		if math.Hypot(dx, dy) < config.ConvergenceThreshold {
			break
		}
	}
	return p, iters
}
