// Package experiment assembles a simulator from a run config.
package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/opt"
	"github.com/san-kum/mpcsim/internal/opt/native"
	"github.com/san-kum/mpcsim/internal/sim"
)

type Option func(*Experiment)

// WithEnv replaces the native optimizer environment.
func WithEnv(env opt.Env) Option {
	return func(e *Experiment) { e.deps.Env = env }
}

func WithMPCOptions(opts ...mpc.Option) Option {
	return func(e *Experiment) { e.deps.MPCOptions = append(e.deps.MPCOptions, opts...) }
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.registry = r }
}

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	deps      Deps
	policy    control.Policy
	simulator *sim.Simulator
}

func New(cfg *config.Config, opts ...Option) *Experiment {
	e := &Experiment{cfg: cfg.Clone()}
	for _, o := range opts {
		o(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.deps.Env == nil {
		e.deps.Env = NativeEnv(cfg.Solver)
	}
	return e
}

// NativeEnv is the built-in optimizer configured from solver settings.
func NativeEnv(sc config.SolverConfig) opt.Env {
	var opts []native.Option
	if sc.TimeLimit > 0 {
		opts = append(opts, native.WithTimeLimit(sc.TimeLimit))
	}
	if sc.MaxIterations > 0 {
		opts = append(opts, native.WithMaxIterations(sc.MaxIterations))
	}
	if sc.NodeLimit > 0 {
		opts = append(opts, native.WithNodeLimit(sc.NodeLimit))
	}
	return native.NewEnv(opts...)
}

// Setup validates the config and builds the policy and simulator.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	policy, err := e.registry.GetPolicy(e.cfg.Controller, e.cfg, e.deps)
	if err != nil {
		return err
	}
	e.policy = policy
	e.simulator = sim.New(policy, e.cfg.Plant)
	for _, m := range e.registry.DefaultMetrics(e.cfg) {
		e.simulator.AddMetric(m)
	}
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, e.cfg.InitialState, e.SimConfig())
}

// SimConfig is the loop configuration derived from the run config.
func (e *Experiment) SimConfig() sim.Config {
	return sim.Config{Steps: e.cfg.Steps, ValidateState: true}
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Policy returns the policy built by Setup.
func (e *Experiment) Policy() control.Policy { return e.policy }

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}
