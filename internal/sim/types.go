package sim

import "github.com/san-kum/mpcsim/internal/control"

type Metric interface {
	Name() string
	Observe(t int, x, u float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(t int, x, u float64, d control.Decision)
}

type Config struct {
	Steps int
	// ValidateState stops the run with ErrInvalidState when the plant
	// produces NaN or Inf.
	ValidateState bool
}

// Fallback records a re-plan that ended without an optimal solution.
type Fallback struct {
	Step   int    `json:"step"`
	Status string `json:"status"`
}

// Result holds the histories of one run. States has Steps+1 entries,
// Applied has one per step and Inputs one per re-plan.
type Result struct {
	States    []float64
	Inputs    []float64
	Applied   []float64
	Fallbacks []Fallback
	Metrics   map[string]float64
}

// StepsTaken is the number of completed steps.
func (r *Result) StepsTaken() int { return len(r.Applied) }
