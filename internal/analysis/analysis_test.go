package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geometric(x0, a float64, n int) []float64 {
	xs := make([]float64, n)
	xs[0] = x0
	for i := 1; i < n; i++ {
		xs[i] = a * xs[i-1]
	}
	return xs
}

func TestAnalyzeSettles(t *testing.T) {
	states := geometric(1, 0.5, 20)
	applied := []float64{-1, -1, -0.5, 0}

	r := Analyze(states, applied)
	// 0.5^6 = 0.0156 is the first value inside 2%
	assert.Equal(t, 6, r.SettlingStep)
	assert.Zero(t, r.Overshoot)
	assert.InDelta(t, math.Pow(0.5, 19), r.FinalError, 1e-15)
	assert.Equal(t, 1.0, r.PeakInput)
	assert.Equal(t, 2, r.Saturated)
	assert.InDelta(t, math.Log(0.5), r.DecayRate, 1e-12)
}

func TestAnalyzeOvershootAndNoSettle(t *testing.T) {
	r := AnalyzeBand([]float64{1, -0.4, 0.3, -0.5}, nil, 0.1)
	assert.Equal(t, -1, r.SettlingStep)
	assert.InDelta(t, 0.5, r.Overshoot, 1e-12)
	assert.Zero(t, r.Saturated)

	empty := Analyze(nil, nil)
	assert.Equal(t, -1, empty.SettlingStep)
}

func TestDecayRateSkipsZeros(t *testing.T) {
	assert.Zero(t, DecayRate([]float64{0, 0, 0}))
	assert.InDelta(t, math.Log(2), DecayRate([]float64{1, 2, 0, 0}), 1e-12)
}

func TestDominantPeriod(t *testing.T) {
	data := make([]float64, 64)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * float64(i) / 8)
	}
	assert.InDelta(t, 8, DominantPeriod(data), 1e-9)

	flat := []float64{0.3, 0.3, 0.3, 0.3}
	assert.Zero(t, DominantPeriod(flat))
	assert.Nil(t, PowerSpectrum([]float64{1}))
}

func TestPortraitASCII(t *testing.T) {
	p := NewPortrait(geometric(1, -0.5, 10))
	require.Len(t, p.Points, 9)
	assert.Equal(t, Point{X: 1, Y: -0.5}, p.Points[0])

	out := p.ASCII(20, 8)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 8)
	assert.Contains(t, out, "•")
	assert.Contains(t, out, "│")

	si := StateInput([]float64{1, 2, 3}, []float64{-1, -2})
	assert.Len(t, si.Points, 2)
	assert.Empty(t, (&Portrait{}).ASCII(10, 10))
}
