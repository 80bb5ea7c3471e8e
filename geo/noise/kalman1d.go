package noise

// Kalman1D is a scalar random-walk Kalman filter.
// It is not safe for concurrent use; owners lock around it.
type Kalman1D struct {
	Q, R float64

	x, p float64
	init bool
}

func NewKalman1D(q, r float64) *Kalman1D {
	return &Kalman1D{Q: q, R: r}
}

// Update folds z into the estimate and returns it.
// The first measurement initializes the state.
func (k *Kalman1D) Update(z float64) float64 {
	if !k.init {
		k.x = z
		k.p = k.R
		k.init = true
		return k.x
	}
	k.p += k.Q
	gain := k.p / (k.p + k.R)
	k.x += gain * (z - k.x)
	k.p *= 1 - gain
	return k.x
}

func (k *Kalman1D) Value() float64 { return k.x }

func (k *Kalman1D) Initialized() bool { return k.init }

func (k *Kalman1D) Reset() {
	k.x, k.p, k.init = 0, 0, false
}
