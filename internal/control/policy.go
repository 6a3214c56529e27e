package control

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPeriod = errors.New("control: period must be at least 1")

// Decision is what a policy reports for one step.
type Decision struct {
	// Action is the input applied at this step.
	Action float64
	// Resolved is true when the policy re-planned at this step rather than
	// holding its previous action.
	Resolved bool
	// Fallback is true when re-planning failed and a safe default was used.
	Fallback bool
	// Status describes the re-plan outcome, empty when holding.
	Status string
}

// Policy chooses the input for step t given the measured state x.
type Policy interface {
	Act(ctx context.Context, t int, x float64) (Decision, error)
}

// Law is a static feedback map evaluated when a policy re-plans.
type Law interface {
	Compute(x float64) float64
}

// Resetter is implemented by laws that carry internal state.
type Resetter interface {
	Reset()
}

// Sampled evaluates a Law every period steps and holds the result in
// between (zero-order hold).
type Sampled struct {
	law    Law
	period int
	held   float64
}

func NewSampled(law Law, period int) (*Sampled, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidPeriod, period)
	}
	return &Sampled{law: law, period: period}, nil
}

func (s *Sampled) Act(ctx context.Context, t int, x float64) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if t%s.period != 0 {
		return Decision{Action: s.held}, nil
	}
	s.held = s.law.Compute(x)
	return Decision{Action: s.held, Resolved: true, Status: "computed"}, nil
}

// Held returns the action currently in force.
func (s *Sampled) Held() float64 { return s.held }

// Reset clears the held action and the wrapped law's state.
func (s *Sampled) Reset() {
	s.held = 0
	if r, ok := s.law.(Resetter); ok {
		r.Reset()
	}
}

type limited struct {
	law    Law
	lo, hi float64
}

// Limit saturates the output of law to [lo, hi].
func Limit(law Law, lo, hi float64) Law {
	return &limited{law: law, lo: lo, hi: hi}
}

func (l *limited) Compute(x float64) float64 {
	return math.Max(l.lo, math.Min(l.hi, l.law.Compute(x)))
}

func (l *limited) Reset() {
	if r, ok := l.law.(Resetter); ok {
		r.Reset()
	}
}

// Tunable is a law whose parameters can be changed between samples.
type Tunable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64)
}

// TunableOf finds a Tunable law inside v, looking through Sampled and
// Limit wrappers.
func TunableOf(v any) (Tunable, bool) {
	for {
		switch w := v.(type) {
		case Tunable:
			return w, true
		case *Sampled:
			v = w.law
		case *limited:
			v = w.law
		default:
			return nil, false
		}
	}
}
