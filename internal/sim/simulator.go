// Package sim drives the closed loop: each step asks the policy for an
// input, applies the input in force to the plant and records the histories.
package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/plant"
)

type Simulator struct {
	policy    control.Policy
	plant     plant.Plant
	metrics   []Metric
	observers []Observer
}

func New(policy control.Policy, p plant.Plant) *Simulator {
	return &Simulator{
		policy:    policy,
		plant:     p,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run executes cfg.Steps steps from x0. Every step runs; the only early
// exits are a policy error, an invalid state or a cancelled context.
func (s *Simulator) Run(ctx context.Context, x0 float64, cfg Config) (*Result, error) {
	sess, err := s.NewSession(x0, cfg)
	if err != nil {
		return nil, err
	}
	for !sess.Done() {
		if err := sess.Step(ctx); err != nil {
			return sess.Result(), err
		}
	}
	return sess.Result(), nil
}

func validateConfig(cfg Config) error {
	if cfg.Steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", cfg.Steps)
	}
	return nil
}

// Session is a run advanced one step at a time.
type Session struct {
	sim *Simulator
	cfg Config
	t   int
	res *Result
}

func (s *Simulator) NewSession(x0 float64, cfg Config) (*Session, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	for _, m := range s.metrics {
		m.Reset()
	}
	res := &Result{
		States:  make([]float64, 0, cfg.Steps+1),
		Inputs:  make([]float64, 0),
		Applied: make([]float64, 0, cfg.Steps),
		Metrics: make(map[string]float64),
	}
	res.States = append(res.States, x0)
	return &Session{sim: s, cfg: cfg, res: res}, nil
}

// Step runs one iteration of the loop.
func (ss *Session) Step(ctx context.Context) error {
	if ss.Done() {
		return ErrFinished
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s, res, t := ss.sim, ss.res, ss.t
	x := res.States[len(res.States)-1]

	d, err := s.policy.Act(ctx, t, x)
	if err != nil {
		return &StepError{Step: t, State: x, Wrapped: err}
	}
	if d.Resolved {
		res.Inputs = append(res.Inputs, d.Action)
		if d.Fallback {
			res.Fallbacks = append(res.Fallbacks, Fallback{Step: t, Status: d.Status})
		}
	}
	if len(res.Inputs) == 0 {
		return &StepError{Step: t, State: x, Wrapped: ErrNoInput}
	}
	u := res.Inputs[len(res.Inputs)-1]

	next := s.plant.Advance(x, u)
	if ss.cfg.ValidateState && (math.IsNaN(next) || math.IsInf(next, 0)) {
		return &StepError{Step: t, State: x, Wrapped: ErrInvalidState}
	}

	res.States = append(res.States, next)
	res.Applied = append(res.Applied, u)
	for _, m := range s.metrics {
		m.Observe(t, x, u)
	}
	for _, obs := range s.observers {
		obs.OnStep(t, x, u, d)
	}
	ss.t++
	return nil
}

// Policy is the policy driving the session.
func (ss *Session) Policy() control.Policy { return ss.sim.policy }

// Done reports whether every configured step has run.
func (ss *Session) Done() bool { return ss.t >= ss.cfg.Steps }

// Steps is the configured number of steps.
func (ss *Session) Steps() int { return ss.cfg.Steps }

// T is the index of the next step.
func (ss *Session) T() int { return ss.t }

// State is the latest state.
func (ss *Session) State() float64 { return ss.res.States[len(ss.res.States)-1] }

// Result returns the histories so far with current metric values.
func (ss *Session) Result() *Result {
	fallbacks := float64(len(ss.res.Fallbacks))
	ss.res.Metrics["fallbacks"] = fallbacks
	for _, m := range ss.sim.metrics {
		ss.res.Metrics[m.Name()] = m.Value()
	}
	return ss.res
}
