// Package automation runs scripted batches of experiments: YAML scenarios,
// one-parameter sweeps and Monte Carlo trials over the initial state.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcsim/internal/analysis"
	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/logging"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Preset      string         `yaml:"preset"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep overrides the scenario base config for one run. Config is
// decoded onto a copy of the base, so omitted keys keep their values.
type ScenarioStep struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// StepResult is one finished scenario step.
type StepResult struct {
	Name   string
	Config *config.Config
	Result *sim.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Base returns the config every step starts from.
func (s *Scenario) Base() (*config.Config, error) {
	if s.Preset == "" {
		return config.DefaultConfig(), nil
	}
	cfg := config.GetPreset(s.Preset)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s", s.Preset)
	}
	return cfg, nil
}

// StepConfig resolves the config of step i.
func (s *Scenario) StepConfig(i int) (*config.Config, error) {
	base, err := s.Base()
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if node := s.Steps[i].Config; !node.IsZero() {
		if err := node.Decode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// RunScenario executes all steps in order. Results of completed steps are
// returned along with the first error.
func RunScenario(ctx context.Context, scenario *Scenario, opts ...experiment.Option) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))
	l := logging.Component("automation")

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}
		l.Info().Str("scenario", scenario.Name).Str("step", name).Msgf("running step %d/%d", i+1, len(scenario.Steps))

		cfg, err := scenario.StepConfig(i)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp := experiment.New(cfg, opts...)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		results = append(results, StepResult{Name: name, Config: exp.Config(), Result: result})
	}

	return results, nil
}

// Setter writes one swept parameter into a config.
type Setter func(cfg *config.Config, v float64)

// Params are the sweepable parameters.
var Params = map[string]Setter{
	"q":           func(c *config.Config, v float64) { c.Weights.Q = v },
	"r":           func(c *config.Config, v float64) { c.Weights.R = v },
	"s":           func(c *config.Config, v float64) { c.Weights.S = v },
	"x0":          func(c *config.Config, v float64) { c.InitialState = v },
	"upper":       func(c *config.Config, v float64) { c.Bounds.Upper = v },
	"plant.alpha": func(c *config.Config, v float64) { c.Plant.Alpha = v },
	"plant.beta":  func(c *config.Config, v float64) { c.Plant.Beta = v },
	"plant.gain":  func(c *config.Config, v float64) { c.Plant.Gain = v },
}

// ParameterSweep runs one experiment per evenly spaced parameter value.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

type SweepResult struct {
	ParamValue float64
	FinalState float64
	Fallbacks  int
	Response   analysis.Response
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, opts ...experiment.Option) ([]SweepResult, error) {
	set, ok := Params[sweep.ParamName]
	if !ok {
		return nil, fmt.Errorf("parameter %s is not sweepable", sweep.ParamName)
	}
	if sweep.NumSteps < 1 {
		return nil, errors.New("sweep needs at least one step")
	}
	base := sweep.Base
	if base == nil {
		base = config.DefaultConfig()
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	l := logging.Component("automation")
	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep
		cfg := base.Clone()
		set(cfg, paramVal)

		exp := experiment.New(cfg, opts...)
		if err := exp.Setup(); err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}

		results = append(results, SweepResult{
			ParamValue: paramVal,
			FinalState: result.States[len(result.States)-1],
			Fallbacks:  len(result.Fallbacks),
			Response:   analysis.Analyze(result.States, result.Applied),
			Metrics:    result.Metrics,
		})
		l.Debug().Str("param", sweep.ParamName).Float64("value", paramVal).Msgf("sweep %d/%d", i+1, sweep.NumSteps)
	}

	return results, nil
}

// MonteCarloConfig perturbs the initial state of Base uniformly within
// +/- Perturbation.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
	// Bound marks a trial unstable when |x| ends above it.
	Bound float64
	// Workers caps concurrent trials; 0 uses GOMAXPROCS.
	Workers int
}

type MonteCarloResult struct {
	TrialID      int
	InitialState float64
	FinalState   float64
	Stable       bool
	Settled      bool
	Fallbacks    int
}

// RunMonteCarlo executes the trials concurrently. Results are indexed by
// trial.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, opts ...experiment.Option) ([]MonteCarloResult, error) {
	base := cfg.Base
	if base == nil {
		base = config.DefaultConfig()
	}
	bound := cfg.Bound
	if bound <= 0 {
		bound = 1e6
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	initial := make([]float64, cfg.NumTrials)
	for i := range initial {
		initial[i] = base.InitialState + (rng.Float64()-0.5)*2*cfg.Perturbation
	}

	results := make([]MonteCarloResult, cfg.NumTrials)
	g, ctx := errgroup.WithContext(ctx)
	limit := cfg.Workers
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for trial := range initial {
		g.Go(func() error {
			c := base.Clone()
			c.InitialState = initial[trial]
			exp := experiment.New(c, opts...)
			if err := exp.Setup(); err != nil {
				return err
			}
			result, err := exp.Run(ctx)
			if err != nil && !errors.Is(err, sim.ErrInvalidState) {
				return fmt.Errorf("trial %d: %w", trial, err)
			}

			final := math.Inf(1)
			r := MonteCarloResult{TrialID: trial, InitialState: c.InitialState}
			if err == nil {
				final = result.States[len(result.States)-1]
				r.Settled = analysis.Analyze(result.States, result.Applied).SettlingStep >= 0
				r.Fallbacks = len(result.Fallbacks)
			}
			r.FinalState = final
			r.Stable = math.Abs(final) <= bound
			results[trial] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
