package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/plant"
)

const scenarioYAML = `
name: compare
preset: matched
steps:
  - name: mpc-short
    config:
      steps: 12
      horizon: 5
  - config:
      controller: none
      steps: 8
      plant:
        beta: 0.5
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "compare", sc.Name)
	require.Len(t, sc.Steps, 2)

	cfg, err := sc.StepConfig(0)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Steps)
	assert.Equal(t, 5, cfg.Horizon)
	assert.Equal(t, config.DefaultPeriod, cfg.Period)
	assert.Equal(t, plant.Matched(), cfg.Plant)

	cfg, err = sc.StepConfig(1)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Controller)
	// partial plant override keeps the preset's other coefficients
	assert.Equal(t, plant.Affine{Alpha: 0.9, Beta: 0.5, Gain: 1}, cfg.Plant)

	_, err = ParseScenario([]byte("name: empty\n"))
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)

	results, err := RunScenario(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "mpc-short", results[0].Name)
	assert.Len(t, results[0].Result.States, 13)
	assert.Len(t, results[0].Result.Inputs, 2)

	assert.Equal(t, "step2", results[1].Name)
	want := plant.FreeResponse(results[1].Config.Plant, 1, 8)
	assert.InDeltaSlice(t, want, results[1].Result.States, 1e-12)
}

func TestRunScenarioStopsOnError(t *testing.T) {
	sc, err := ParseScenario([]byte(`
steps:
  - config: {steps: 3}
  - config: {controller: bangbang}
`))
	require.NoError(t, err)

	results, err := RunScenario(context.Background(), sc)
	assert.ErrorContains(t, err, "step 2 setup")
	assert.Len(t, results, 1)
}

func TestRunSweep(t *testing.T) {
	base := config.DefaultConfig()
	base.Controller = "none"
	base.Steps = 5
	base.Plant = plant.Matched()

	results, err := RunSweep(context.Background(), &ParameterSweep{
		Base:      base,
		ParamName: "x0",
		ParamMin:  1,
		ParamMax:  3,
		NumSteps:  3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		x0 := 1 + float64(i)
		assert.Equal(t, x0, r.ParamValue)
		assert.InDelta(t, x0*0.59049, r.FinalState, 1e-12)
		assert.InDelta(t, -0.10536, r.Response.DecayRate, 1e-5)
	}

	_, err = RunSweep(context.Background(), &ParameterSweep{ParamName: "nope", NumSteps: 2})
	assert.Error(t, err)
}

func TestRunMonteCarlo(t *testing.T) {
	base := config.DefaultConfig()
	base.Controller = "none"
	base.Plant = plant.Matched()

	results, err := RunMonteCarlo(context.Background(), &MonteCarloConfig{
		Base:         base,
		Perturbation: 0.5,
		NumTrials:    16,
		Seed:         7,
		Workers:      4,
	})
	require.NoError(t, err)
	require.Len(t, results, 16)
	for i, r := range results {
		assert.Equal(t, i, r.TrialID)
		assert.InDelta(t, 1, r.InitialState, 0.5)
		assert.True(t, r.Settled, "trial %d", i)
	}
	stable, unstable := MonteCarloStats(results)
	assert.Equal(t, 16, stable)
	assert.Zero(t, unstable)

	base.Plant = plant.Affine{Alpha: 2, Gain: 1}
	results, err = RunMonteCarlo(context.Background(), &MonteCarloConfig{
		Base:      base,
		NumTrials: 2,
		Seed:      1,
		Bound:     10,
	})
	require.NoError(t, err)
	stable, unstable = MonteCarloStats(results)
	assert.Zero(t, stable)
	assert.Equal(t, 2, unstable)
}
