package control

import "sync"

// Manual returns whatever input was last set, ignoring the state. The live
// view uses it to nudge the plant by hand.
type Manual struct {
	mu sync.Mutex
	u  float64
}

func NewManual(u float64) *Manual {
	return &Manual{u: u}
}

// SetControl replaces the input.
func (m *Manual) SetControl(u float64) {
	m.mu.Lock()
	m.u = u
	m.mu.Unlock()
}

func (m *Manual) Compute(x float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.u
}
