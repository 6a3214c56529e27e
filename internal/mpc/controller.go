package mpc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/logging"
	"github.com/san-kum/mpcsim/internal/opt"
)

// solveStats is implemented by models that report the last solve.
type solveStats interface {
	ObjectiveValue() (float64, error)
	Elapsed() time.Duration
}

// Recorder receives solver telemetry.
type Recorder interface {
	ObserveSolve(status opt.Status, elapsed time.Duration)
	ObserveFallback(step int, status opt.Status)
}

// SolveHook sees every solved formulation, e.g. to write model artifacts.
type SolveHook func(f *Formulation, sol Solution)

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.rec = r }
}

func WithSolveHook(h SolveHook) Option {
	return func(c *Controller) { c.hook = h }
}

// Controller re-plans every period steps and holds the first planned input
// in between. When a re-plan is not optimal it applies 0 instead.
type Controller struct {
	formulator *Formulator
	period     int
	held       float64
	solves     int
	fallbacks  int

	log  zerolog.Logger
	rec  Recorder
	hook SolveHook
}

func NewController(f *Formulator, period int, opts ...Option) (*Controller, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: period must be at least 1, got %d", ErrParameterBounds, period)
	}
	c := &Controller{formulator: f, period: period, log: logging.Component("mpc")}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Due reports whether step t triggers a re-plan.
func (c *Controller) Due(t int) bool { return t%c.period == 0 }

// Held returns the input currently in force.
func (c *Controller) Held() float64 { return c.held }

// Period returns the number of steps between re-plans.
func (c *Controller) Period() int { return c.period }

// Solves returns the number of re-plans so far.
func (c *Controller) Solves() int { return c.solves }

// Fallbacks returns how many re-plans ended without an optimal solution.
func (c *Controller) Fallbacks() int { return c.fallbacks }

// Act implements control.Policy.
func (c *Controller) Act(ctx context.Context, t int, x float64) (control.Decision, error) {
	if !c.Due(t) {
		return control.Decision{Action: c.held}, nil
	}

	sol, err := c.Resolve(ctx, t, x)
	if err != nil {
		return control.Decision{}, err
	}

	d := control.Decision{Resolved: true, Status: sol.Status.String()}
	if u, ok := sol.First(); ok {
		d.Action = u
	} else {
		d.Fallback = true
		c.fallbacks++
		if c.rec != nil {
			c.rec.ObserveFallback(t, sol.Status)
		}
		c.log.Warn().
			Int("step", t).
			Str("status", sol.Status.String()).
			Msg("cannot retrieve an optimal solution")
	}
	c.held = d.Action
	return d, nil
}

// Resolve formulates and solves the re-plan for state x at step t.
func (c *Controller) Resolve(ctx context.Context, t int, x float64) (Solution, error) {
	f, err := c.formulator.Formulate(x, t)
	if err != nil {
		return Solution{}, fmt.Errorf("step %d: %w", t, err)
	}

	start := time.Now()
	if err := f.Model.Optimize(ctx); err != nil {
		return Solution{}, fmt.Errorf("step %d: %w", t, err)
	}
	elapsed := time.Since(start)
	status := f.Model.Status()
	c.solves++
	if c.rec != nil {
		c.rec.ObserveSolve(status, elapsed)
	}

	sol, err := Extract(f, status)
	if err != nil {
		return Solution{}, fmt.Errorf("step %d: %w", t, err)
	}
	if c.hook != nil {
		c.hook(f, sol)
	}

	ev := c.log.Debug().
		Int("step", t).
		Int("horizon", c.formulator.Horizon()).
		Float64("state", x).
		Str("status", status.String()).
		Dur("elapsed", elapsed)
	if s, ok := f.Model.(solveStats); ok {
		ev = ev.Dur("solver_elapsed", s.Elapsed())
		if obj, err := s.ObjectiveValue(); err == nil {
			ev = ev.Float64("objective", obj)
		}
	}
	if u, ok := sol.First(); ok {
		ev = ev.Float64("action", u)
	}
	ev.Msg("re-planned")
	return sol, nil
}

// Reset forgets the held input and counters.
func (c *Controller) Reset() {
	c.held = 0
	c.solves = 0
	c.fallbacks = 0
}
