package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/metrics"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/opt"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Deps carries what policy factories need beyond the config.
type Deps struct {
	Env        opt.Env
	MPCOptions []mpc.Option
}

// PolicyFactory builds a fresh policy for one run.
type PolicyFactory func(cfg *config.Config, deps Deps) (control.Policy, error)

type Registry struct {
	policies map[string]PolicyFactory
}

func NewRegistry() *Registry {
	r := &Registry{policies: make(map[string]PolicyFactory)}

	r.policies["mpc"] = func(cfg *config.Config, deps Deps) (control.Policy, error) {
		f := mpc.NewFormulator(deps.Env, cfg.Horizon, cfg.Model, cfg.Weights, cfg.Bounds)
		return mpc.NewController(f, cfg.Period, deps.MPCOptions...)
	}
	r.policies["none"] = func(cfg *config.Config, _ Deps) (control.Policy, error) {
		return control.NewSampled(control.NewNone(), cfg.Period)
	}
	r.policies["pid"] = func(cfg *config.Config, _ Deps) (control.Policy, error) {
		pid := control.NewPID(cfg.PID.Kp, cfg.PID.Ki, cfg.PID.Kd, cfg.PID.Target)
		return control.NewSampled(control.Limit(pid, cfg.Bounds.Lower, cfg.Bounds.Upper), cfg.Period)
	}
	r.policies["lqr"] = func(cfg *config.Config, _ Deps) (control.Policy, error) {
		lqr, err := control.NewScalarLQR(cfg.Model.A, cfg.Model.B, cfg.Weights.Q, cfg.Weights.R, 0)
		if err != nil {
			return nil, err
		}
		return control.NewSampled(control.Limit(lqr, cfg.Bounds.Lower, cfg.Bounds.Upper), cfg.Period)
	}
	r.policies["manual"] = func(cfg *config.Config, _ Deps) (control.Policy, error) {
		return control.NewSampled(control.NewManual(cfg.ManualInput), cfg.Period)
	}

	return r
}

// Register adds or replaces a policy factory.
func (r *Registry) Register(name string, fn PolicyFactory) {
	r.policies[name] = fn
}

func (r *Registry) GetPolicy(name string, cfg *config.Config, deps Deps) (control.Policy, error) {
	fn, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	return fn(cfg, deps)
}

func (r *Registry) ListControllers() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics are reported after every run.
func (r *Registry) DefaultMetrics(cfg *config.Config) []sim.Metric {
	return []sim.Metric{
		metrics.NewStability(0.1),
		metrics.NewControlEffort(),
		metrics.NewQuadraticCost(cfg.Weights.Q, cfg.Weights.R),
		metrics.NewMaxDeviation(),
	}
}
