// Package plant holds the true systems the controllers act on. They may
// differ from the model a controller predicts with.
package plant

import (
	"fmt"
	"sort"
)

// Plant advances the true state by one step under input u.
type Plant interface {
	Advance(x, u float64) float64
}

// Affine is x' = Alpha*x + Gain*u + Beta.
type Affine struct {
	Alpha float64 `yaml:"alpha" mapstructure:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" mapstructure:"beta" json:"beta"`
	Gain  float64 `yaml:"gain" mapstructure:"gain" json:"gain"`
}

func (p Affine) Advance(x, u float64) float64 {
	return p.Alpha*x + p.Gain*u + p.Beta
}

func (p Affine) String() string {
	return fmt.Sprintf("x' = %g x + %g u + %g", p.Alpha, p.Gain, p.Beta)
}

// Nominal is the default plant: slightly slower decay than the 0.9 the
// controller models, plus a small constant disturbance.
func Nominal() Affine { return Affine{Alpha: 0.99, Beta: 0.01, Gain: 1} }

// Drift is a marginally stable plant with a larger disturbance.
func Drift() Affine { return Affine{Alpha: 1.0, Beta: 0.1, Gain: 1} }

// Matched is the plant the default controller model describes exactly.
func Matched() Affine { return Affine{Alpha: 0.9, Beta: 0, Gain: 1} }

var presets = map[string]func() Affine{
	"nominal": Nominal,
	"drift":   Drift,
	"matched": Matched,
}

// Preset returns a named plant.
func Preset(name string) (Affine, error) {
	fn, ok := presets[name]
	if !ok {
		return Affine{}, fmt.Errorf("unknown plant: %s", name)
	}
	return fn(), nil
}

// Presets lists the named plants.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FreeResponse returns the n+1 states visited from x0 with zero input.
func FreeResponse(p Plant, x0 float64, n int) []float64 {
	xs := make([]float64, 0, n+1)
	xs = append(xs, x0)
	for i := 0; i < n; i++ {
		x0 = p.Advance(x0, 0)
		xs = append(xs, x0)
	}
	return xs
}
