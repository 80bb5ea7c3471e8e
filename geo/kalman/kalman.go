/*
Package kalman implements a constant-velocity Kalman filter over a local
east/north plane, with state [x, y, vx, vy] and position-only measurements.
*/
package kalman

import (
	"errors"
	"math"
	"sync"

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
)

var ErrSingularInnovation = errors.New("singular innovation covariance")
var ErrNonFinite = errors.New("non-finite measurement")

// singularDet is the smallest |det S| the 2x2 inverse accepts.
const singularDet = 1e-12

type Vec4 [4]float64
type Mat4 [4][4]float64

// State is a value copy of the filter state.
type State struct {
	X Vec4
	P Mat4
}

type PositionFilter struct {
	config params.PositionFilterConfig

	mu    sync.Mutex
	state State
}

func NewPositionFilter(config params.PositionFilterConfig) (*PositionFilter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	f := &PositionFilter{config: config}
	f.reset(0, 0)
	return f, nil
}

// SetConfig applies a new configuration to future steps.
func (f *PositionFilter) SetConfig(config params.PositionFilterConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = config
	return nil
}

// Reset puts the filter at (x, y) at rest with a large covariance.
func (f *PositionFilter) Reset(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset(x, y)
}

func (f *PositionFilter) reset(x, y float64) {
	f.state = State{X: Vec4{x, y, 0, 0}}
	for i := 0; i < 4; i++ {
		f.state.P[i][i] = f.config.InitialCovariance
	}
}

// Predict advances the state by dt seconds. Non-positive dt is a no-op.
func (f *PositionFilter) Predict(dt float64) {
	if !(dt > 0) || !common.IsFinite(dt) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	x := &f.state.X
	x[0] += dt * x[2]
	x[1] += dt * x[3]

	// P = F P F^T + Q, with F = I + dt*(e0 e2^T + e1 e3^T).
	p := f.state.P
	var fp Mat4
	for j := 0; j < 4; j++ {
		fp[0][j] = p[0][j] + dt*p[2][j]
		fp[1][j] = p[1][j] + dt*p[3][j]
		fp[2][j] = p[2][j]
		fp[3][j] = p[3][j]
	}
	var np Mat4
	for i := 0; i < 4; i++ {
		np[i][0] = fp[i][0] + dt*fp[i][2]
		np[i][1] = fp[i][1] + dt*fp[i][3]
		np[i][2] = fp[i][2]
		np[i][3] = fp[i][3]
	}
	for i := 0; i < 4; i++ {
		np[i][i] += f.config.ProcessNoise
	}
	f.state.P = symmetrize(np)
}

// Update folds a position measurement (zx, zy) with variance r (m^2).
// On a singular innovation the prior state is kept and
// ErrSingularInnovation returned.
func (f *PositionFilter) Update(zx, zy, r float64) error {
	if !common.IsFinite(zx, zy, r) || r < 0 {
		return ErrNonFinite
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.state.P
	s00, s01 := p[0][0]+r, p[0][1]
	s10, s11 := p[1][0], p[1][1]+r
	det := s00*s11 - s01*s10
	if math.Abs(det) < singularDet || !common.IsFinite(det) {
		return ErrSingularInnovation
	}
	inv := [2][2]float64{
		{s11 / det, -s01 / det},
		{-s10 / det, s00 / det},
	}

	// K = P H^T S^-1; P H^T is the first two columns of P.
	var k [4][2]float64
	for i := 0; i < 4; i++ {
		k[i][0] = p[i][0]*inv[0][0] + p[i][1]*inv[1][0]
		k[i][1] = p[i][0]*inv[0][1] + p[i][1]*inv[1][1]
	}

	yx := zx - f.state.X[0]
	yy := zy - f.state.X[1]
	var nx Vec4
	for i := 0; i < 4; i++ {
		nx[i] = f.state.X[i] + k[i][0]*yx + k[i][1]*yy
	}

	// Joseph form: P = (I-KH) P (I-KH)^T + K R K^T.
	var a Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = identity(i, j)
			if j < 2 {
				a[i][j] -= k[i][j]
			}
		}
	}
	np := mul(mul(a, p), transpose(a))
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			np[i][j] += r * (k[i][0]*k[j][0] + k[i][1]*k[j][1])
		}
	}
	np = symmetrize(np)

	if !finiteState(nx, np) {
		return ErrNonFinite
	}
	f.state.X = nx
	f.state.P = np
	return nil
}

// Position returns (x, y).
func (f *PositionFilter) Position() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.X[0], f.state.X[1]
}

// Velocity returns (vx, vy) in m/s.
func (f *PositionFilter) Velocity() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.X[2], f.state.X[3]
}

// PositionStdDev is the RMS of the x and y standard deviations, in meters.
func (f *PositionFilter) PositionStdDev() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return math.Sqrt((f.state.P[0][0] + f.state.P[1][1]) / 2)
}

func (f *PositionFilter) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func identity(i, j int) float64 {
	if i == j {
		return 1
	}
	return 0
}

func mul(a, b Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += a[i][k] * b[k][j]
			}
			out[i][j] = s
		}
	}
	return out
}

func transpose(a Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

func symmetrize(a Mat4) Mat4 {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			m := (a[i][j] + a[j][i]) / 2
			a[i][j], a[j][i] = m, m
		}
	}
	return a
}

func finiteState(x Vec4, p Mat4) bool {
	if !common.IsFinite(x[:]...) {
		return false
	}
	for i := 0; i < 4; i++ {
		if !common.IsFinite(p[i][:]...) {
			return false
		}
	}
	return true
}
