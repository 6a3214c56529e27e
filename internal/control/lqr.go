package control

import (
	"errors"
	"math"
)

var ErrNoGain = errors.New("control: riccati recursion did not converge")

// LQR is u = -K (x - Target).
type LQR struct {
	K      float64
	Target float64
}

func NewLQR(k, target float64) *LQR {
	return &LQR{K: k, Target: target}
}

// NewScalarLQR derives the gain for x' = a x + b u with stage cost
// q x^2 + r u^2 by iterating the discrete Riccati equation.
func NewScalarLQR(a, b, q, r, target float64) (*LQR, error) {
	k, err := RiccatiGain(a, b, q, r)
	if err != nil {
		return nil, err
	}
	return NewLQR(k, target), nil
}

// RiccatiGain returns the stationary LQR gain for the scalar system.
func RiccatiGain(a, b, q, r float64) (float64, error) {
	if r <= 0 || q < 0 {
		return 0, ErrNoGain
	}
	p := q
	for i := 0; i < 10000; i++ {
		next := q + a*a*p - (a*b*p)*(a*b*p)/(r+b*b*p)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, ErrNoGain
		}
		if math.Abs(next-p) <= 1e-12*(1+math.Abs(p)) {
			p = next
			return a * b * p / (r + b*b*p), nil
		}
		p = next
	}
	return 0, ErrNoGain
}

func (l *LQR) Compute(x float64) float64 {
	return -l.K * (x - l.Target)
}
