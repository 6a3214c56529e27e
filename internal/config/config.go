package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/plant"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultController   = "mpc"
	DefaultPlant        = "nominal"
	DefaultSteps        = 100
	DefaultPeriod       = 10
	DefaultHorizon      = 10
	DefaultInitialState = 1.0
	DefaultKp           = 0.8
	DefaultKi           = 0.05
	DefaultKd           = 0.1

	// EnvPrefix namespaces environment overrides, e.g. MPCSIM_WEIGHTS_Q.
	EnvPrefix = "MPCSIM"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Controller   string       `yaml:"controller" mapstructure:"controller"`
	PlantPreset  string       `yaml:"plant_preset" mapstructure:"plant_preset"`
	Steps        int          `yaml:"steps" mapstructure:"steps"`
	Period       int          `yaml:"period" mapstructure:"period"`
	Horizon      int          `yaml:"horizon" mapstructure:"horizon"`
	InitialState float64      `yaml:"initial_state" mapstructure:"initial_state"`
	Model        mpc.Dynamics `yaml:"model" mapstructure:"model"`
	Plant        plant.Affine `yaml:"plant" mapstructure:"plant"`
	Weights      mpc.Weights  `yaml:"weights" mapstructure:"weights"`
	Bounds       mpc.Bounds   `yaml:"bounds" mapstructure:"bounds"`
	Solver       SolverConfig `yaml:"solver" mapstructure:"solver"`
	PID          PIDConfig    `yaml:"pid" mapstructure:"pid"`
	ManualInput  float64      `yaml:"manual_input" mapstructure:"manual_input"`
}

type SolverConfig struct {
	TimeLimit     time.Duration `yaml:"time_limit" mapstructure:"time_limit"`
	MaxIterations int           `yaml:"max_iterations" mapstructure:"max_iterations"`
	NodeLimit     int           `yaml:"node_limit" mapstructure:"node_limit"`
}

type PIDConfig struct {
	Kp     float64 `yaml:"kp" mapstructure:"kp"`
	Ki     float64 `yaml:"ki" mapstructure:"ki"`
	Kd     float64 `yaml:"kd" mapstructure:"kd"`
	Target float64 `yaml:"target" mapstructure:"target"`
}

func DefaultConfig() *Config {
	return &Config{
		Controller:   DefaultController,
		PlantPreset:  DefaultPlant,
		Steps:        DefaultSteps,
		Period:       DefaultPeriod,
		Horizon:      DefaultHorizon,
		InitialState: DefaultInitialState,
		Model:        mpc.DefaultDynamics(),
		Plant:        plant.Nominal(),
		Weights:      mpc.DefaultWeights(),
		Bounds:       mpc.DefaultBounds(),
		PID: PIDConfig{
			Kp: DefaultKp,
			Ki: DefaultKi,
			Kd: DefaultKd,
		},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate checks the settings the run loop depends on.
func (c *Config) Validate() error {
	switch {
	case c.Steps < 1:
		return fmt.Errorf("%w: steps must be at least 1, got %d", ErrInvalid, c.Steps)
	case c.Period < 1:
		return fmt.Errorf("%w: period must be at least 1, got %d", ErrInvalid, c.Period)
	case c.Horizon < 1:
		return fmt.Errorf("%w: horizon must be at least 1, got %d", ErrInvalid, c.Horizon)
	case c.Bounds.Lower > c.Bounds.Upper:
		return fmt.Errorf("%w: bounds [%g, %g]", ErrInvalid, c.Bounds.Lower, c.Bounds.Upper)
	case c.Solver.TimeLimit < 0:
		return fmt.Errorf("%w: negative solver time limit", ErrInvalid)
	}
	return nil
}

// Load reads a YAML file on top of the defaults. Environment variables
// prefixed with MPCSIM_ override file values; nested keys use underscores
// (MPCSIM_WEIGHTS_Q).
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("controller", d.Controller)
	v.SetDefault("plant_preset", d.PlantPreset)
	v.SetDefault("steps", d.Steps)
	v.SetDefault("period", d.Period)
	v.SetDefault("horizon", d.Horizon)
	v.SetDefault("initial_state", d.InitialState)
	v.SetDefault("model.a", d.Model.A)
	v.SetDefault("model.b", d.Model.B)
	v.SetDefault("model.c", d.Model.C)
	v.SetDefault("plant.alpha", d.Plant.Alpha)
	v.SetDefault("plant.beta", d.Plant.Beta)
	v.SetDefault("plant.gain", d.Plant.Gain)
	v.SetDefault("weights.q", d.Weights.Q)
	v.SetDefault("weights.r", d.Weights.R)
	v.SetDefault("weights.s", d.Weights.S)
	v.SetDefault("bounds.lower", d.Bounds.Lower)
	v.SetDefault("bounds.upper", d.Bounds.Upper)
	v.SetDefault("solver.time_limit", d.Solver.TimeLimit)
	v.SetDefault("solver.max_iterations", d.Solver.MaxIterations)
	v.SetDefault("solver.node_limit", d.Solver.NodeLimit)
	v.SetDefault("pid.kp", d.PID.Kp)
	v.SetDefault("pid.ki", d.PID.Ki)
	v.SetDefault("pid.kd", d.PID.Kd)
	v.SetDefault("pid.target", d.PID.Target)
	v.SetDefault("manual_input", d.ManualInput)
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
